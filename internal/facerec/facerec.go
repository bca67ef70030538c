// Package facerec detects faces in images and computes their embeddings.
package facerec

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-search/internal/config"
)

// ErrNoFace is returned when an image contains no detectable face.
var ErrNoFace = errors.New("no face detected")

// Face is a single detected face
type Face struct {
	Embedding []float32
	BBox      []float64 // [x1, y1, x2, y2] in pixels
	DetScore  float64
}

// Encoder detects faces in an RGB image and returns them in detection order.
// An image without faces yields an empty slice and a nil error.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) ([]Face, error)
	Model() string
}

// FirstEmbedding returns the embedding of the first detected face, or ErrNoFace.
func FirstEmbedding(ctx context.Context, enc Encoder, img image.Image) ([]float32, error) {
	faces, err := enc.Encode(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 || len(faces[0].Embedding) == 0 {
		return nil, ErrNoFace
	}
	return faces[0].Embedding, nil
}

// New builds the encoder selected by cfg.Kind.
func New(cfg config.EncoderConfig) (Encoder, error) {
	switch cfg.Kind {
	case "", config.EncoderHTTP:
		return NewClient(cfg.URL, ""), nil
	case config.EncoderDlib:
		return NewDlib(cfg.ModelsDir)
	default:
		return nil, fmt.Errorf("unknown face encoder %q", cfg.Kind)
	}
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, img image.Image) ([]Face, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, img image.Image) ([]Face, error) {
	return f(ctx, img)
}

// Model returns "func".
func (f EncoderFunc) Model() string {
	return "func"
}

//go:build dlib

package facerec

import (
	"context"
	"fmt"
	"image"
	"sync"

	face "github.com/Kagami/go-face"
)

// Dlib computes 128-d face descriptors in process using dlib via go-face.
// It expects shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat in modelsDir.
type Dlib struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlib loads the dlib models from modelsDir.
func NewDlib(modelsDir string) (Encoder, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &Dlib{rec: rec}, nil
}

// Encode implements Encoder.
func (d *Dlib) Encode(ctx context.Context, img image.Image) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := ToJPEG(Downscale(img, maxEncodeDimension))
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	found, err := d.rec.Recognize(data)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	faces := make([]Face, 0, len(found))
	for _, f := range found {
		desc := f.Descriptor
		r := f.Rectangle
		faces = append(faces, Face{
			Embedding: desc[:],
			BBox:      []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
			DetScore:  1,
		})
	}
	return faces, nil
}

// Model returns the dlib model name.
func (d *Dlib) Model() string {
	return defaultFaceModel
}

// Close releases the dlib recognizer.
func (d *Dlib) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Close()
	return nil
}

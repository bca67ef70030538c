// Package search runs face similarity queries against the people store.
package search

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strconv"
	"time"

	"github.com/mcuadros/go-defaults"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facerec"
)

// Params are the tunable knobs of a similarity search.
type Params struct {
	NumRows   int     `json:"num_rows" default:"10"`
	Tolerance float64 `json:"tolerance_var" default:"0.1"`
	MinAge    int     `json:"min_age" default:"20"`
	MaxAge    int     `json:"max_age" default:"70"`
}

// DefaultParams returns Params with every field at its default.
func DefaultParams() Params {
	var p Params
	defaults.SetDefaults(&p)
	return p
}

// ParseParams reads num_rows, tolerance_var, min_age and max_age from q.
// Missing or unparsable values keep their default.
func ParseParams(q url.Values) Params {
	p := DefaultParams()
	if v, err := strconv.Atoi(q.Get("num_rows")); err == nil {
		p.NumRows = v
	}
	if v, err := strconv.ParseFloat(q.Get("tolerance_var"), 64); err == nil {
		p.Tolerance = v
	}
	if v, err := strconv.Atoi(q.Get("min_age")); err == nil {
		p.MinAge = v
	}
	if v, err := strconv.Atoi(q.Get("max_age")); err == nil {
		p.MaxAge = v
	}
	return p.Clamp()
}

// Clamp replaces a non-positive row count with the default and caps it at MaxNumRows.
func (p Params) Clamp() Params {
	if p.NumRows <= 0 {
		p.NumRows = constants.DefaultNumRows
	}
	if p.NumRows > constants.MaxNumRows {
		p.NumRows = constants.MaxNumRows
	}
	return p
}

// DatabaseError marks a failure of the similarity query itself.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string {
	return e.Err.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Service encodes query images and looks up the nearest stored faces.
type Service struct {
	reader  database.PersonReader
	encoder facerec.Encoder
	metric  database.Metric
	now     func() time.Time
}

// NewService creates a search service.
func NewService(reader database.PersonReader, encoder facerec.Encoder, metric database.Metric) *Service {
	if metric == "" {
		metric = database.MetricCosine
	}
	return &Service{
		reader:  reader,
		encoder: encoder,
		metric:  metric,
		now:     time.Now,
	}
}

// Metric returns the distance metric used for queries.
func (s *Service) Metric() database.Metric {
	return s.metric
}

// SearchBytes decodes an encoded image and searches for it.
func (s *Service) SearchBytes(ctx context.Context, data []byte, p Params) ([]database.Match, error) {
	img, _, err := facerec.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, img, p)
}

// Search returns the stored people whose first-face embedding lies strictly
// closer than p.Tolerance to the first face in img and whose age is within
// [p.MinAge, p.MaxAge], nearest first. It returns facerec.ErrNoFace when img
// has no face and *DatabaseError when the query fails.
func (s *Service) Search(ctx context.Context, img image.Image, p Params) ([]database.Match, error) {
	p = p.Clamp()

	embedding, err := facerec.FirstEmbedding(ctx, s.encoder, img)
	if err != nil {
		if errors.Is(err, facerec.ErrNoFace) {
			return nil, err
		}
		return nil, fmt.Errorf("encode query image: %w", err)
	}
	return s.SearchEmbedding(ctx, embedding, p)
}

// SearchEmbedding runs the similarity query for a precomputed embedding.
func (s *Service) SearchEmbedding(ctx context.Context, embedding []float32, p Params) ([]database.Match, error) {
	p = p.Clamp()
	if err := database.ValidateEmbedding(embedding); err != nil {
		return nil, err
	}

	window := database.NewAgeWindow(s.now(), p.MinAge, p.MaxAge)
	if window.Empty() {
		return []database.Match{}, nil
	}

	matches, err := s.reader.FindSimilar(ctx, database.SimilarityQuery{
		Embedding:   embedding,
		MaxDistance: p.Tolerance,
		Window:      window,
		Limit:       p.NumRows,
		Metric:      s.metric,
	})
	if err != nil {
		return nil, &DatabaseError{Err: err}
	}
	if matches == nil {
		matches = []database.Match{}
	}
	return matches, nil
}

// Package ingest populates the people table from a dataset: every record is
// decoded, encoded into a face embedding and stored with its metadata.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/dataset"
	"github.com/kozaktomas/face-search/internal/facerec"
	"github.com/kozaktomas/face-search/internal/names"
)

// Source is a random-access list of dataset records. *dataset.Dataset implements it.
type Source interface {
	Len() int
	Record(i int) dataset.Record
	Image(i int) ([]byte, error)
}

// Options controls which records are ingested and how.
type Options struct {
	Offset      int  `json:"offset"`
	Limit       int  `json:"limit"`
	Concurrency int  `json:"concurrency"`
	DryRun      bool `json:"dry_run"`
}

// Result counts the outcome of a run. Every record in range lands in exactly
// one of Inserted, Existing, Skipped or Failed.
type Result struct {
	Total           int64 `json:"total"`
	Inserted        int64 `json:"inserted"`
	Existing        int64 `json:"existing"`
	Skipped         int64 `json:"skipped"`
	Failed          int64 `json:"failed"`
	NoFace          int64 `json:"no_face"`
	InvalidBirthday int64 `json:"invalid_birthday"`
}

// Progress is called after each record with the number of records handled so far.
type Progress func(done, total int)

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeExisting
	outcomeSkipped
	outcomeFailed
)

// Populator writes dataset records into a person store.
type Populator struct {
	writer  database.PersonWriter
	encoder facerec.Encoder

	// Progress, when set, is called from worker goroutines.
	Progress Progress
}

// New creates a populator. writer may be nil for dry runs.
func New(writer database.PersonWriter, encoder facerec.Encoder) *Populator {
	return &Populator{writer: writer, encoder: encoder}
}

// normalize clamps opts against the source size and returns the index range.
func (o *Options) normalize(n int) (start, end int) {
	if o.Concurrency <= 0 {
		o.Concurrency = constants.DefaultConcurrency
	}
	if o.Concurrency > constants.MaxConcurrency {
		o.Concurrency = constants.MaxConcurrency
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	start = min(o.Offset, n)
	end = n
	if o.Limit > 0 && start+o.Limit < end {
		end = start + o.Limit
	}
	return start, end
}

// Run ingests the records of src selected by opts. Per-record failures are
// logged and counted; Run only returns an error when it cannot start or the
// context is cancelled.
func (p *Populator) Run(ctx context.Context, src Source, opts Options) (*Result, error) {
	if p.encoder == nil {
		return nil, errors.New("ingest: no face encoder configured")
	}
	if p.writer == nil && !opts.DryRun {
		return nil, errors.New("ingest: no database writer configured")
	}

	start, end := opts.normalize(src.Len())
	res := &Result{Total: int64(end - start)}
	if res.Total == 0 {
		return res, nil
	}

	var done int64
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for i := start; i < end; i++ {
		if ctx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			switch p.ingestOne(ctx, src, idx, opts.DryRun, res) {
			case outcomeInserted:
				atomic.AddInt64(&res.Inserted, 1)
			case outcomeExisting:
				atomic.AddInt64(&res.Existing, 1)
			case outcomeSkipped:
				atomic.AddInt64(&res.Skipped, 1)
			case outcomeFailed:
				atomic.AddInt64(&res.Failed, 1)
			}

			count := atomic.AddInt64(&done, 1)
			if p.Progress != nil {
				p.Progress(int(count), int(res.Total))
			}
		}(i)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("ingest cancelled: %w", err)
	}
	return res, nil
}

// ingestOne handles record idx. The dataset index is the stored id.
func (p *Populator) ingestOne(ctx context.Context, src Source, idx int, dryRun bool, res *Result) outcome {
	id := int64(idx)

	if p.writer != nil {
		has, err := p.writer.Has(ctx, id)
		if err != nil {
			log.Printf("ingest: record %d: existence check failed: %v", idx, err)
			return outcomeFailed
		}
		if has {
			return outcomeExisting
		}
	}

	rec := src.Record(idx)

	raw, err := src.Image(idx)
	if err != nil {
		log.Printf("ingest: record %d (%s): skipping, no image: %v", idx, rec.Name, err)
		return outcomeSkipped
	}
	img, _, err := facerec.DecodeImage(raw)
	if err != nil {
		log.Printf("ingest: record %d (%s): skipping, %v", idx, rec.Name, err)
		return outcomeSkipped
	}

	embedding, err := facerec.FirstEmbedding(ctx, p.encoder, img)
	switch {
	case errors.Is(err, facerec.ErrNoFace):
		log.Printf("ingest: record %d (%s): no face detected, storing without embedding", idx, rec.Name)
		atomic.AddInt64(&res.NoFace, 1)
		embedding = nil
	case err != nil:
		log.Printf("ingest: record %d (%s): encoding failed: %v", idx, rec.Name, err)
		return outcomeFailed
	}
	if err := database.ValidateEmbedding(embedding); err != nil {
		log.Printf("ingest: record %d (%s): %v", idx, rec.Name, err)
		return outcomeFailed
	}

	pngData, err := facerec.ToPNG(img)
	if err != nil {
		log.Printf("ingest: record %d (%s): png encoding failed: %v", idx, rec.Name, err)
		return outcomeFailed
	}

	birthday, err := rec.ParseBirthday()
	if err != nil {
		log.Printf("ingest: record %d (%s): %v, storing NULL", idx, rec.Name, err)
		atomic.AddInt64(&res.InvalidBirthday, 1)
		birthday = nil
	}

	if dryRun {
		return outcomeInserted
	}

	person := &database.StoredPerson{
		ID:             id,
		Image:          pngData,
		Embedding:      embedding,
		Name:           rec.Name,
		NameNormalized: names.Normalize(rec.Name),
		PlaceOfBirth:   rec.PlaceOfBirth,
		Popularity:     rec.Popularity,
		Gender:         rec.Gender,
		Biography:      rec.Biography,
		Birthday:       birthday,
	}
	inserted, err := p.writer.Save(ctx, person)
	if err != nil {
		log.Printf("ingest: record %d (%s): save failed: %v", idx, rec.Name, err)
		return outcomeFailed
	}
	if !inserted {
		return outcomeExisting
	}
	return outcomeInserted
}

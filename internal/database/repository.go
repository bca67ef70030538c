package database

import (
	"context"
)

// PersonReader provides read-only access to stored people
type PersonReader interface {
	// Get retrieves a person by id, returns ErrNotFound if missing
	Get(ctx context.Context, id int64) (*StoredPerson, error)
	// Has checks if a person with the given id exists
	Has(ctx context.Context, id int64) (bool, error)
	// List returns the id and image of the first limit rows ordered by id
	List(ctx context.Context, limit int) ([]PersonImage, error)
	// FindByName returns people whose normalized name equals the normalized input.
	// Normalization lowercases, removes diacritics and replaces dashes with spaces.
	FindByName(ctx context.Context, name string, limit int) ([]StoredPerson, error)
	// Count returns the total number of people stored
	Count(ctx context.Context) (int, error)
	// Stats returns row counts broken down by which optional columns are set
	Stats(ctx context.Context) (*Stats, error)
	// FindSimilar runs a similarity query using the engine's vector distance
	// operator, ordered by ascending distance
	FindSimilar(ctx context.Context, q SimilarityQuery) ([]Match, error)
}

// PersonWriter provides write access to stored people
type PersonWriter interface {
	PersonReader

	// Save inserts a person. Existing ids are left untouched and reported
	// with inserted=false so interrupted runs can resume.
	Save(ctx context.Context, p *StoredPerson) (inserted bool, err error)

	// Delete removes a person by id, returns ErrNotFound if missing
	Delete(ctx context.Context, id int64) error
}

// MigrationLister reports which schema migrations a backend has applied
type MigrationLister interface {
	MigrationsApplied(ctx context.Context) ([]string, error)
}

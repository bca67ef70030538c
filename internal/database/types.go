package database

import (
	"time"
)

// StoredPerson represents a dataset record stored in the people table
type StoredPerson struct {
	ID             int64
	Image          []byte    // PNG encoded, nil if the record had no usable image
	Embedding      []float32 // nil when no face was detected
	Name           string
	NameNormalized string
	PlaceOfBirth   string
	Popularity     float64
	Gender         int
	Biography      string
	Birthday       *time.Time
	CreatedAt      time.Time
}

// HasEmbedding reports whether a face embedding was stored for the person.
func (p *StoredPerson) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// PersonImage is the id/image pair returned by listings
type PersonImage struct {
	ID    int64
	Image []byte
}

// Match is a single similarity search hit
type Match struct {
	ID       int64
	Name     string
	Image    []byte
	Distance float64
}

// SimilarityQuery describes a nearest-neighbor lookup executed by the database.
// Rows match when their distance to Embedding is strictly below MaxDistance and
// their birthday lies within Window. Rows with no embedding or no birthday never match.
type SimilarityQuery struct {
	Embedding   []float32
	MaxDistance float64
	Window      AgeWindow
	Limit       int
	Metric      Metric
}

// Stats summarizes the contents of the people table
type Stats struct {
	Total         int `json:"total"`
	WithEmbedding int `json:"with_embedding"`
	WithBirthday  int `json:"with_birthday"`
	WithImage     int `json:"with_image"`
	Searchable    int `json:"searchable"` // embedding and birthday both present
}

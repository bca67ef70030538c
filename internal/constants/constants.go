// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Search defaults, used when a query parameter is missing or unparsable
const (
	// DefaultNumRows is the default number of matches returned by a search
	DefaultNumRows = 10

	// DefaultTolerance is the default distance threshold (exclusive)
	DefaultTolerance = 0.1

	// DefaultMinAge is the default minimum age in years (inclusive)
	DefaultMinAge = 20

	// DefaultMaxAge is the default maximum age in years (inclusive)
	DefaultMaxAge = 70

	// MaxNumRows caps num_rows so a single request cannot dump the table
	MaxNumRows = 1000

	// DefaultListRows is the default number of rows returned by /hello
	DefaultListRows = 10

	// DefaultNameLookupLimit is the maximum number of people returned by a name lookup
	DefaultNameLookupLimit = 50
)

// Population constants
const (
	// DefaultConcurrency is the default number of ingestion workers (1 keeps the linear order)
	DefaultConcurrency = 1

	// MaxConcurrency bounds the ingestion worker pool
	MaxConcurrency = 32

	// DatasetPageSize is the number of rows requested per datasets-server page (server maximum)
	DatasetPageSize = 100
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// MaxFinishedJobs is the number of finished population jobs kept for status queries
	MaxFinishedJobs = 20
)

// Upload constants
const (
	// MaxUploadSize is the maximum request body size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

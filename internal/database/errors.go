package database

import "errors"

// ErrNotFound is returned when a person with the requested id does not exist.
var ErrNotFound = errors.New("person not found")

// ErrDimensionMismatch is returned when an embedding does not have FaceEmbeddingDim components.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FormatVector renders an embedding in the "[1,2,3]" text form accepted by
// VEC_FromText (MariaDB) and TO_VECTOR (Oracle).
func FormatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVector parses the text form produced by VEC_ToText / FROM_VECTOR.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return out, nil
}

// ValidateEmbedding checks that v is nil or has exactly FaceEmbeddingDim components.
func ValidateEmbedding(v []float32) error {
	if v != nil && len(v) != FaceEmbeddingDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), FaceEmbeddingDim)
	}
	return nil
}

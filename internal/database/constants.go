package database

import (
	"fmt"
	"strings"
)

// FaceEmbeddingDim is the dimension of the stored face descriptors (dlib ResNet).
const FaceEmbeddingDim = 128

// Metric selects the vector distance function used by similarity queries.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// ParseMetric converts a config value into a Metric. Empty input means cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot", "inner_product", "ip":
		return MetricDot, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

package mariadb

import (
	"strings"
	"testing"

	"github.com/kozaktomas/face-search/internal/database"
)

func TestNormalizeDSN(t *testing.T) {
	got, err := normalizeDSN("user:pass@tcp(db:3306)/faces")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	for _, want := range []string{"parseTime=true", "tcp(db:3306)/faces"} {
		if !strings.Contains(got, want) {
			t.Errorf("normalized DSN %q missing %q", got, want)
		}
	}

	kept, err := normalizeDSN("user:pass@tcp(db:3306)/faces?charset=latin1")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if !strings.Contains(kept, "charset=latin1") {
		t.Errorf("explicit charset should be preserved, got %q", kept)
	}

	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestDistanceFunc(t *testing.T) {
	tests := []struct {
		metric  database.Metric
		want    string
		wantErr bool
	}{
		{"", "VEC_DISTANCE_COSINE", false},
		{database.MetricCosine, "VEC_DISTANCE_COSINE", false},
		{database.MetricEuclidean, "VEC_DISTANCE_EUCLIDEAN", false},
		{database.MetricDot, "", true},
	}

	for _, tc := range tests {
		t.Run(string(tc.metric), func(t *testing.T) {
			got, err := distanceFunc(tc.metric)
			if (err != nil) != tc.wantErr {
				t.Fatalf("distanceFunc(%q) error = %v, wantErr %v", tc.metric, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("distanceFunc(%q) = %q, want %q", tc.metric, got, tc.want)
			}
		})
	}
}

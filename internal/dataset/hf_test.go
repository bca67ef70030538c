package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
)

// fakeHub serves total rows of a fake people dataset, with row 1 lacking an image.
func fakeHub(t *testing.T, total int, rowsCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/rows", func(w http.ResponseWriter, r *http.Request) {
		rowsCalls.Add(1)
		q := r.URL.Query()
		if q.Get("dataset") != "ashraq/tmdb-people-image" || q.Get("split") != "train" || q.Get("config") != "default" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		length, _ := strconv.Atoi(q.Get("length"))

		type row struct {
			RowIdx int            `json:"row_idx"`
			Row    map[string]any `json:"row"`
		}
		var rows []row
		for i := offset; i < total && i < offset+length; i++ {
			cells := map[string]any{
				"name":           fmt.Sprintf("Person %d", i),
				"place_of_birth": nil,
				"popularity":     float64(i) + 0.5,
				"gender":         i % 3,
				"biography":      "bio",
				"birthday":       "1980-01-01",
			}
			if i != 1 {
				cells["image"] = map[string]any{"src": srv.URL + "/img/" + strconv.Itoa(i), "height": 10, "width": 10}
			}
			rows = append(rows, row{RowIdx: i, Row: cells})
		}
		json.NewEncoder(w).Encode(map[string]any{"rows": rows, "num_rows_total": total})
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg:" + filepath.Base(r.URL.Path)))
	})

	srv = httptest.NewServer(mux)
	return srv
}

func TestHubDownloadAndLoad(t *testing.T) {
	var calls atomic.Int32
	srv := fakeHub(t, 5, &calls)
	defer srv.Close()

	client := NewHubClient(srv.URL)
	client.pageSize = 2
	dir := filepath.Join(t.TempDir(), "cache")

	var lastDone, lastTotal int
	ds, err := Load(context.Background(), client, "ashraq/tmdb-people-image", "train", dir, func(done, total int) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", ds.Len())
	}
	if lastDone != 5 || lastTotal != 5 {
		t.Errorf("progress ended at %d/%d", lastDone, lastTotal)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 page requests, got %d", calls.Load())
	}

	img, err := ds.Image(3)
	if err != nil {
		t.Fatalf("Image(3): %v", err)
	}
	if string(img) != "jpeg:3" {
		t.Errorf("unexpected image content %q", img)
	}
	if ds.Record(3).ImagePath != filepath.Join("images", "000003.jpg") {
		t.Errorf("unexpected image path %q", ds.Record(3).ImagePath)
	}
	if ds.Record(1).ImagePath != "" {
		t.Error("row without image should have no image path")
	}
	if ds.Record(0).PlaceOfBirth != "" {
		t.Error("null place_of_birth should decode to empty string")
	}

	// Second load is served from the cache.
	if _, err := Load(context.Background(), client, "ashraq/tmdb-people-image", "train", dir, nil); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("cached load should not hit the server, got %d calls", calls.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, "people.jsonl.tmp")); !os.IsNotExist(err) {
		t.Error("temporary manifest left behind")
	}
}

func TestHubServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := Load(context.Background(), NewHubClient(srv.URL), "ashraq/tmdb-people-image", "train", dir, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := FindManifest(dir); err == nil {
		t.Error("failed download must not leave a manifest")
	}
}

func TestImageExt(t *testing.T) {
	tests := []struct {
		contentType string
		src         string
		want        string
	}{
		{"image/jpeg", "https://x/a", ".jpg"},
		{"image/png; charset=binary", "https://x/a", ".png"},
		{"application/octet-stream", "https://x/a.webp?sig=1", ".webp"},
		{"", "https://x/noext", ".img"},
	}
	for _, tc := range tests {
		if got := imageExt(tc.contentType, tc.src); got != tc.want {
			t.Errorf("imageExt(%q, %q) = %q, want %q", tc.contentType, tc.src, got, tc.want)
		}
	}
}

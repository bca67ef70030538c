package web

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRotatingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face-search.log")

	w, err := NewRotatingLog(path, 0)
	if err != nil {
		t.Fatalf("NewRotatingLog: %v", err)
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one rotated file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file content %q", data)
	}
}

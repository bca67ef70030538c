// Package dataset reads people-image datasets from a local cache and fills
// that cache from the Hugging Face datasets server on first use.
package dataset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BirthdayLayout is the expected format of the birthday field.
const BirthdayLayout = "2006-01-02"

// ErrNoImage is returned when a record carries no image reference.
var ErrNoImage = errors.New("record has no image")

// Record is one person of the dataset
type Record struct {
	Name         string  `json:"name" yaml:"name"`
	PlaceOfBirth string  `json:"place_of_birth" yaml:"place_of_birth"`
	Popularity   float64 `json:"popularity" yaml:"popularity"`
	Gender       int     `json:"gender" yaml:"gender"`
	Biography    string  `json:"biography" yaml:"biography"`
	Birthday     string  `json:"birthday" yaml:"birthday"`

	// Exactly one image source is expected. ImagePath is relative to the manifest.
	ImagePath   string `json:"image_path,omitempty" yaml:"image_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty" yaml:"image_base64,omitempty"`
}

// ParseBirthday parses the birthday field. Empty input yields nil, nil.
func (r *Record) ParseBirthday() (*time.Time, error) {
	return ParseBirthday(r.Birthday)
}

// ParseBirthday parses a YYYY-MM-DD date. Empty input yields nil, nil.
func ParseBirthday(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(BirthdayLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid birthday %q: %w", s, err)
	}
	return &t, nil
}

// loadImage returns the raw image bytes of r, resolving ImagePath against baseDir.
func (r *Record) loadImage(baseDir string) ([]byte, error) {
	switch {
	case r.ImagePath != "":
		p := r.ImagePath
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return data, nil
	case r.ImageBase64 != "":
		data, err := base64.StdEncoding.DecodeString(r.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("decode image_base64: %w", err)
		}
		return data, nil
	default:
		return nil, ErrNoImage
	}
}

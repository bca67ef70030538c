package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest file names searched for in a cache directory, in order.
var manifestNames = []string{"people.jsonl", "people.yaml", "people.yml"}

// ErrNotCached is returned by Open when dir holds no manifest.
var ErrNotCached = errors.New("dataset not cached")

// Dataset is an ordered, in-memory list of records backed by a manifest file.
// The index of a record is its stable id.
type Dataset struct {
	dir     string
	records []Record
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Record returns the record at index i.
func (d *Dataset) Record(i int) Record {
	return d.records[i]
}

// Image returns the raw image bytes of the record at index i.
func (d *Dataset) Image(i int) ([]byte, error) {
	return d.records[i].loadImage(d.dir)
}

// Dir returns the directory image paths are resolved against.
func (d *Dataset) Dir() string {
	return d.dir
}

// FindManifest returns the manifest path inside dir, or ErrNotCached.
func FindManifest(dir string) (string, error) {
	for _, name := range manifestNames {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no manifest in %s", ErrNotCached, dir)
}

// Open loads a dataset from a cache directory or directly from a manifest file.
func Open(path string) (*Dataset, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, path)
		}
		return nil, fmt.Errorf("stat dataset: %w", err)
	}

	manifest := path
	if st.IsDir() {
		if manifest, err = FindManifest(path); err != nil {
			return nil, err
		}
	}

	var records []Record
	switch strings.ToLower(filepath.Ext(manifest)) {
	case ".jsonl", ".ndjson":
		records, err = loadJSONL(manifest)
	case ".yaml", ".yml":
		records, err = loadYAML(manifest)
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", manifest)
	}
	if err != nil {
		return nil, err
	}

	return &Dataset{dir: filepath.Dir(manifest), records: records}, nil
}

func loadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return records, nil
}

// yamlManifest is the layout of a YAML manifest.
type yamlManifest struct {
	People []Record `yaml:"people"`
}

func loadYAML(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m yamlManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m.People, nil
}

// WriteJSONL writes records as a JSON lines manifest.
func WriteJSONL(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			f.Close()
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}

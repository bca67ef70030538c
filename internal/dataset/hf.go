package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-search/internal/constants"
)

const (
	defaultServerURL = "https://datasets-server.huggingface.co"
	defaultConfig    = "default"
	imagesDir        = "images"
)

// Progress is called after every downloaded row with the running count and the total.
type Progress func(done, total int)

// HubClient pages through a dataset split using the datasets-server /rows API.
type HubClient struct {
	baseURL  string
	client   *http.Client
	pageSize int
}

// NewHubClient creates a datasets-server client.
func NewHubClient(baseURL string) *HubClient {
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	return &HubClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
		pageSize: constants.DatasetPageSize,
	}
}

// hubImage is the image cell of a row.
type hubImage struct {
	Src    string `json:"src"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// hubRow holds the columns of a people row. Nullable columns decode to their zero value.
type hubRow struct {
	Name         string    `json:"name"`
	PlaceOfBirth *string   `json:"place_of_birth"`
	Popularity   float64   `json:"popularity"`
	Gender       int       `json:"gender"`
	Biography    *string   `json:"biography"`
	Birthday     *string   `json:"birthday"`
	Image        *hubImage `json:"image"`
}

type rowsResponse struct {
	Rows []struct {
		RowIdx int    `json:"row_idx"`
		Row    hubRow `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fetchRows returns one page of rows.
func (c *HubClient) fetchRows(ctx context.Context, name, split string, offset int) (*rowsResponse, error) {
	q := url.Values{}
	q.Set("dataset", name)
	q.Set("config", defaultConfig)
	q.Set("split", split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("datasets-server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	return &out, nil
}

// fetchImage downloads src into dir and returns the file name.
func (c *HubClient) fetchImage(ctx context.Context, src, dir string, idx int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download failed (status %d)", resp.StatusCode)
	}

	name := fmt.Sprintf("%06d%s", idx, imageExt(resp.Header.Get("Content-Type"), src))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image file: %w", err)
	}
	return name, nil
}

// imageExt picks a file extension from the content type, falling back to the URL path.
func imageExt(contentType, src string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/webp":
			return ".webp"
		case "image/gif":
			return ".gif"
		}
	}
	if u, err := url.Parse(src); err == nil {
		if ext := strings.ToLower(filepath.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".img"
}

// Download fetches every row of the split into dir as people.jsonl plus an
// images/ directory. The manifest is written last, so a partial download
// leaves no manifest behind and is restarted on the next call.
func (c *HubClient) Download(ctx context.Context, name, split, dir string, progress Progress) (int, error) {
	imgDir := filepath.Join(dir, imagesDir)
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}

	var records []Record
	total := -1
	for offset := 0; total < 0 || offset < total; {
		page, err := c.fetchRows(ctx, name, split, offset)
		if err != nil {
			return 0, fmt.Errorf("fetch rows at offset %d: %w", offset, err)
		}
		total = page.NumRowsTotal
		if len(page.Rows) == 0 {
			break
		}

		for _, r := range page.Rows {
			rec := Record{
				Name:         r.Row.Name,
				PlaceOfBirth: deref(r.Row.PlaceOfBirth),
				Popularity:   r.Row.Popularity,
				Gender:       r.Row.Gender,
				Biography:    deref(r.Row.Biography),
				Birthday:     deref(r.Row.Birthday),
			}
			if r.Row.Image != nil && r.Row.Image.Src != "" {
				file, err := c.fetchImage(ctx, r.Row.Image.Src, imgDir, r.RowIdx)
				if err != nil {
					if ctx.Err() != nil {
						return 0, ctx.Err()
					}
					log.Printf("dataset: row %d: %v", r.RowIdx, err)
				} else {
					rec.ImagePath = filepath.Join(imagesDir, file)
				}
			}
			records = append(records, rec)
			if progress != nil {
				progress(len(records), total)
			}
		}
		offset += len(page.Rows)
	}

	tmp := filepath.Join(dir, manifestNames[0]+".tmp")
	if err := WriteJSONL(tmp, records); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, filepath.Join(dir, manifestNames[0])); err != nil {
		return 0, fmt.Errorf("finalize manifest: %w", err)
	}
	return len(records), nil
}

// Load opens the dataset cached in cacheDir, downloading it first when the
// cache holds no manifest.
func Load(ctx context.Context, client *HubClient, name, split, cacheDir string, progress Progress) (*Dataset, error) {
	if _, err := FindManifest(cacheDir); err == nil {
		return Open(cacheDir)
	}

	log.Printf("dataset: %s not cached in %s, downloading split %q", name, cacheDir, split)
	if _, err := client.Download(ctx, name, split, cacheDir, progress); err != nil {
		return nil, fmt.Errorf("download dataset %s: %w", name, err)
	}
	return Open(cacheDir)
}

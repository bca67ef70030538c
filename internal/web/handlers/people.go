package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/dataset"
)

// PeopleHandler serves the stored people and their images
type PeopleHandler struct{}

// NewPeopleHandler creates a new people handler
func NewPeopleHandler() *PeopleHandler {
	return &PeopleHandler{}
}

// PersonResponse is the metadata of a stored person
type PersonResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PlaceOfBirth string  `json:"place_of_birth,omitempty"`
	Popularity   float64 `json:"popularity"`
	Gender       int     `json:"gender"`
	Biography    string  `json:"biography,omitempty"`
	Birthday     *string `json:"birthday"`
	HasEmbedding bool    `json:"has_embedding"`
	HasImage     bool    `json:"has_image"`
}

func toPersonResponse(p *database.StoredPerson) PersonResponse {
	resp := PersonResponse{
		ID:           p.ID,
		Name:         p.Name,
		PlaceOfBirth: p.PlaceOfBirth,
		Popularity:   p.Popularity,
		Gender:       p.Gender,
		Biography:    p.Biography,
		HasEmbedding: p.HasEmbedding(),
		HasImage:     len(p.Image) > 0,
	}
	if p.Birthday != nil {
		b := p.Birthday.Format(dataset.BirthdayLayout)
		resp.Birthday = &b
	}
	return resp
}

// StatsResponse summarizes the people table
type StatsResponse struct {
	database.Stats
	Backend   string    `json:"backend"`
	CheckedAt time.Time `json:"checked_at"`
}

// queryInt reads an integer query parameter, returning def when missing or unparsable.
func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

// List returns the id and base64 image of the first num_rows people.
// It serves both /hello and /api/v1/people.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	numRows := queryInt(r, "num_rows", constants.DefaultListRows)
	if numRows < 0 {
		numRows = 0
	}
	numRows = min(numRows, constants.MaxNumRows)

	reader, err := database.GetPersonReader(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	rows, err := reader.List(r.Context(), numRows)
	if err != nil {
		log.Printf("list people: %v", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	out := make([]PersonImageResponse, len(rows))
	for i, row := range rows {
		out[i] = PersonImageResponse{ID: row.ID, ImageBase64: encodeImage(row.Image)}
	}
	respondJSON(w, http.StatusOK, out)
}

// personFromRequest loads the person named by the {id} URL parameter, writing
// an error response and returning nil when that fails.
func personFromRequest(w http.ResponseWriter, r *http.Request) *database.StoredPerson {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return nil
	}

	reader, err := database.GetPersonReader(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil
	}

	p, err := reader.Get(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "person not found")
		return nil
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return nil
	}
	return p
}

// Get returns the metadata of one person
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := personFromRequest(w, r)
	if p == nil {
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(p))
}

// Image returns the stored image blob of one person
func (h *PeopleHandler) Image(w http.ResponseWriter, r *http.Request) {
	p := personFromRequest(w, r)
	if p == nil {
		return
	}
	if len(p.Image) == 0 {
		respondError(w, http.StatusNotFound, "person has no image")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(p.Image))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(p.Image)
}

// Lookup finds people by name, ignoring case and diacritics
func (h *PeopleHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	limit := queryInt(r, "limit", constants.DefaultNameLookupLimit)
	if limit <= 0 || limit > constants.DefaultNameLookupLimit {
		limit = constants.DefaultNameLookupLimit
	}

	reader, err := database.GetPersonReader(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	people, err := reader.FindByName(r.Context(), name, limit)
	if err != nil {
		log.Printf("lookup %q: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	out := make([]PersonResponse, len(people))
	for i := range people {
		out[i] = toPersonResponse(&people[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// Stats returns row counts of the people table
func (h *PeopleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	reader, err := database.GetPersonReader(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats, err := reader.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Stats:     *stats,
		Backend:   database.BackendName(),
		CheckedAt: time.Now().UTC(),
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facerec"
	"github.com/kozaktomas/face-search/internal/search"
)

// SearchHandler handles face similarity search endpoints
type SearchHandler struct {
	encoder facerec.Encoder
	metric  database.Metric
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(encoder facerec.Encoder, metric database.Metric) *SearchHandler {
	if metric == "" {
		metric = database.MetricCosine
	}
	return &SearchHandler{encoder: encoder, metric: metric}
}

// EncodeFaceRequest is the body of the encode_face endpoints.
// The UI sends "image", other clients "image_base64".
type EncodeFaceRequest struct {
	ImageBase64 string `json:"image_base64"`
	Image       string `json:"image"`
}

// payload returns whichever image field is set.
func (req *EncodeFaceRequest) payload() string {
	if req.ImageBase64 != "" {
		return req.ImageBase64
	}
	return req.Image
}

// SearchRequest is the body of POST /api/v1/search
type SearchRequest struct {
	EncodeFaceRequest
	search.Params
}

// SearchResponse is the result of POST /api/v1/search
type SearchResponse struct {
	Matches []MatchResponse `json:"matches"`
	Count   int             `json:"count"`
	Metric  string          `json:"metric"`
	Params  search.Params   `json:"params"`
}

// service binds a search service to the active database backend.
func (h *SearchHandler) service(ctx context.Context) (*search.Service, error) {
	reader, err := database.GetPersonReader(ctx)
	if err != nil {
		return nil, &search.DatabaseError{Err: err}
	}
	return search.NewService(reader, h.encoder, h.metric), nil
}

// run decodes a base64 image and executes the similarity search.
func (h *SearchHandler) run(ctx context.Context, imageBase64 string, params search.Params) ([]database.Match, error) {
	data, err := facerec.DecodeBase64(imageBase64)
	if err != nil {
		return nil, err
	}

	svc, err := h.service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.SearchBytes(ctx, data, params)
}

// respondSearchError writes the error body of the encode_face endpoints.
func respondSearchError(w http.ResponseWriter, err error) {
	var dbErr *search.DatabaseError
	switch {
	case errors.Is(err, facerec.ErrNoFace):
		respondMessage(w, http.StatusBadRequest, "No face detected")
	case errors.As(err, &dbErr):
		log.Printf("encode_face: database error: %v", dbErr)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", dbErr))
	default:
		log.Printf("encode_face: middleware encoding error: %v", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Middleware Encoding error: %v", err))
	}
}

// EncodeFace handles POST /encode_face. Parameters come from the query string,
// the image from the JSON body field image_base64.
func (h *SearchHandler) EncodeFace(w http.ResponseWriter, r *http.Request) {
	params := search.ParseParams(r.URL.Query())

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	var req EncodeFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondSearchError(w, fmt.Errorf("%s: %w", errInvalidRequestBody, err))
		return
	}
	if req.ImageBase64 == "" {
		respondSearchError(w, errors.New("missing image_base64"))
		return
	}

	matches, err := h.run(r.Context(), req.ImageBase64, params)
	if err != nil {
		respondSearchError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toMatchResponses(matches))
}

// EncodeFaceUI handles POST /api/encode_face for the bundled UI. It accepts
// "image" or "image_base64", optionally as a data URL, and rejects requests
// without an image.
func (h *SearchHandler) EncodeFaceUI(w http.ResponseWriter, r *http.Request) {
	params := search.ParseParams(r.URL.Query())

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	var req EncodeFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.payload() == "" {
		respondError(w, http.StatusBadRequest, "Missing image in request body")
		return
	}

	matches, err := h.run(r.Context(), req.payload(), params)
	if err != nil {
		respondSearchError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toMatchResponses(matches))
}

// Search handles POST /api/v1/search, taking image and parameters from the JSON body.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	req := SearchRequest{Params: search.DefaultParams()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.payload() == "" {
		respondError(w, http.StatusBadRequest, "image_base64 is required")
		return
	}
	params := req.Params.Clamp()

	data, err := facerec.DecodeBase64(req.payload())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, err := h.service(r.Context())
	var matches []database.Match
	if err == nil {
		matches, err = svc.SearchBytes(r.Context(), data, params)
	}

	var dbErr *search.DatabaseError
	switch {
	case errors.Is(err, facerec.ErrNoFace):
		respondError(w, http.StatusUnprocessableEntity, "no face detected")
		return
	case errors.As(err, &dbErr):
		log.Printf("search: database error: %v", dbErr)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("database error: %v", dbErr))
		return
	case errors.Is(err, facerec.ErrEmptyImage), errors.Is(err, facerec.ErrInvalidImage):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to search: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Matches: toMatchResponses(matches),
		Count:   len(matches),
		Metric:  string(svc.Metric()),
		Params:  params,
	})
}

package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-search/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondMessage sends a {"message": ...} body, used for client-side problems
// the legacy endpoints report that way.
func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// encodeImage returns the base64 form of an image blob, or nil when none is stored.
func encodeImage(data []byte) *string {
	if len(data) == 0 {
		return nil
	}
	s := base64.StdEncoding.EncodeToString(data)
	return &s
}

// PersonImageResponse is one row of the image listing.
type PersonImageResponse struct {
	ID          int64   `json:"id"`
	ImageBase64 *string `json:"image_base64"`
}

// MatchResponse is one row of a similarity search result.
type MatchResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	ImageBase64 *string `json:"image_base64"`
	Distance    float64 `json:"distance"`
}

func toMatchResponses(matches []database.Match) []MatchResponse {
	out := make([]MatchResponse, len(matches))
	for i, m := range matches {
		out[i] = MatchResponse{
			ID:          m.ID,
			Name:        m.Name,
			ImageBase64: encodeImage(m.Image),
			Distance:    m.Distance,
		}
	}
	return out
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if database.IsInitialized() {
		resp["database"] = database.BackendName()
	}
	respondJSON(w, http.StatusOK, resp)
}

package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-search/internal/database"
)

func TestRespondJSON_SetsStatusAndContentType(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"BadRequest", http.StatusBadRequest},
		{"InternalServerError", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.statusCode, map[string]string{"status": "ok"})

			assertStatusCode(t, recorder, tc.statusCode)
			assertContentType(t, recorder, "application/json")
		})
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusInternalServerError, "Database error: boom")

	assertJSONError(t, recorder, "Database error: boom")
}

func TestRespondMessage(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondMessage(recorder, http.StatusBadRequest, "No face detected")

	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["message"] != "No face detected" {
		t.Errorf("expected message 'No face detected', got %v", result)
	}
	if _, ok := result["error"]; ok {
		t.Error("message responses must not carry an error key")
	}
}

func TestToMatchResponses(t *testing.T) {
	matches := []database.Match{
		{ID: 7, Name: "With Image", Image: []byte{0x89, 'P', 'N', 'G'}, Distance: 0.04},
		{ID: 9, Name: "Without Image", Distance: 0.07},
	}

	got := toMatchResponses(matches)

	if len(got) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(got))
	}
	if got[0].ImageBase64 == nil || *got[0].ImageBase64 != base64.StdEncoding.EncodeToString(matches[0].Image) {
		t.Errorf("unexpected image_base64 %v", got[0].ImageBase64)
	}
	if got[1].ImageBase64 != nil {
		t.Error("missing image should encode as null")
	}

	raw, err := json.Marshal(got[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"id":9,"name":"Without Image","image_base64":null,"distance":0.07}` {
		t.Errorf("unexpected JSON %s", raw)
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("Tom\r\nHanks"); got != "TomHanks" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestHealthCheck_ReturnsOK(t *testing.T) {
	database.ResetBackend()
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
	if _, ok := result["database"]; ok {
		t.Error("database key should be absent without a backend")
	}
}

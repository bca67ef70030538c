package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/mock"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func seedPeople(t *testing.T) *mock.MockPersonRepository {
	t.Helper()
	repo := mock.NewMockPersonRepository()
	bday := time.Date(1974, 4, 28, 0, 0, 0, 0, time.UTC)
	repo.AddPerson(database.StoredPerson{ID: 0, Name: "Penélope Cruz", Image: pngHeader, Embedding: testEmbedding(1), Birthday: &bday, Popularity: 30, Gender: 1, PlaceOfBirth: "Madrid"})
	repo.AddPerson(database.StoredPerson{ID: 1, Name: "No Image"})
	repo.AddPerson(database.StoredPerson{ID: 2, Name: "Penelope Cruz", Popularity: 1})
	useMockBackend(t, repo)
	return repo
}

func TestPeopleHandler_List(t *testing.T) {
	seedPeople(t)
	handler := NewPeopleHandler()

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/hello?num_rows=2", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var rows []PersonImageResponse
	parseJSONResponse(t, recorder, &rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != 0 || rows[0].ImageBase64 == nil || *rows[0].ImageBase64 != base64.StdEncoding.EncodeToString(pngHeader) {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].ImageBase64 != nil {
		t.Error("row without image should have null image_base64")
	}
}

func TestPeopleHandler_List_DefaultAndInvalidNumRows(t *testing.T) {
	seedPeople(t)
	handler := NewPeopleHandler()

	for _, path := range []string{"/hello", "/hello?num_rows=abc"} {
		recorder := httptest.NewRecorder()
		handler.List(recorder, httptest.NewRequest("GET", path, nil))

		var rows []PersonImageResponse
		parseJSONResponse(t, recorder, &rows)
		if len(rows) != 3 {
			t.Errorf("%s: expected all 3 rows under the default limit, got %d", path, len(rows))
		}
	}
}

func TestPeopleHandler_List_DatabaseError(t *testing.T) {
	repo := seedPeople(t)
	repo.ListError = errors.New("connection refused")

	recorder := httptest.NewRecorder()
	NewPeopleHandler().List(recorder, httptest.NewRequest("GET", "/hello", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "Database error: connection refused")
}

func TestPeopleHandler_List_NoBackend(t *testing.T) {
	database.ResetBackend()

	recorder := httptest.NewRecorder()
	NewPeopleHandler().List(recorder, httptest.NewRequest("GET", "/hello", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestPeopleHandler_Get(t *testing.T) {
	seedPeople(t)
	handler := NewPeopleHandler()

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"found", "0", http.StatusOK},
		{"missing", "99", http.StatusNotFound},
		{"invalid", "abc", http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/people/"+tc.id, nil), map[string]string{"id": tc.id})
			recorder := httptest.NewRecorder()
			handler.Get(recorder, req)
			assertStatusCode(t, recorder, tc.status)
		})
	}

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/people/0", nil), map[string]string{"id": "0"})
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	var person PersonResponse
	parseJSONResponse(t, recorder, &person)
	if person.Name != "Penélope Cruz" || person.PlaceOfBirth != "Madrid" || !person.HasEmbedding || !person.HasImage {
		t.Errorf("unexpected person %+v", person)
	}
	if person.Birthday == nil || *person.Birthday != "1974-04-28" {
		t.Errorf("unexpected birthday %v", person.Birthday)
	}
}

func TestPeopleHandler_Image(t *testing.T) {
	seedPeople(t)
	handler := NewPeopleHandler()

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/people/0/image", nil), map[string]string{"id": "0"})
	recorder := httptest.NewRecorder()
	handler.Image(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "image/png")
	if recorder.Body.Len() != len(pngHeader) {
		t.Errorf("unexpected body length %d", recorder.Body.Len())
	}

	req = requestWithChiParams(httptest.NewRequest("GET", "/api/v1/people/1/image", nil), map[string]string{"id": "1"})
	recorder = httptest.NewRecorder()
	handler.Image(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestPeopleHandler_Lookup(t *testing.T) {
	seedPeople(t)
	handler := NewPeopleHandler()

	recorder := httptest.NewRecorder()
	handler.Lookup(recorder, httptest.NewRequest("GET", "/api/v1/people/lookup?name=PENELOPE+cruz", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var people []PersonResponse
	parseJSONResponse(t, recorder, &people)
	if len(people) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(people))
	}
	if people[0].ID != 0 {
		t.Errorf("expected most popular first, got id %d", people[0].ID)
	}

	recorder = httptest.NewRecorder()
	handler.Lookup(recorder, httptest.NewRequest("GET", "/api/v1/people/lookup", nil))
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestPeopleHandler_Stats(t *testing.T) {
	seedPeople(t)

	recorder := httptest.NewRecorder()
	NewPeopleHandler().Stats(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)
	if stats.Total != 3 || stats.WithImage != 1 || stats.Searchable != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Backend != "mock" {
		t.Errorf("expected backend 'mock', got %q", stats.Backend)
	}
}

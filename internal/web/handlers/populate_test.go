package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/mock"
	"github.com/kozaktomas/face-search/internal/dataset"
	"github.com/kozaktomas/face-search/internal/ingest"
)

type memSource struct {
	records []dataset.Record
	images  [][]byte
}

func (s *memSource) Len() int { return len(s.records) }

func (s *memSource) Record(i int) dataset.Record { return s.records[i] }

func (s *memSource) Image(i int) ([]byte, error) { return s.images[i], nil }

func testSource(t *testing.T, n int) *memSource {
	t.Helper()
	img, err := base64.StdEncoding.DecodeString(testImageBase64(t, 4))
	if err != nil {
		t.Fatal(err)
	}
	src := &memSource{}
	for i := range n {
		src.records = append(src.records, dataset.Record{Name: "Person", Birthday: "1980-01-01", Gender: i % 2})
		src.images = append(src.images, img)
	}
	return src
}

func staticLoader(src ingest.Source) SourceLoader {
	return func(ctx context.Context, progress dataset.Progress) (ingest.Source, error) {
		return src, nil
	}
}

// waitForStatus polls until the job reaches a terminal state
func waitForStatus(t *testing.T, job *PopulateJob) JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := job.GetStatus(); isJobTerminal(s) {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return ""
}

func startJob(t *testing.T, h *PopulateHandler, body string) *PopulateJob {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/populate", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	h.Start(recorder, req)
	assertStatusCode(t, recorder, http.StatusAccepted)

	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	job := h.jobManager.GetJob(resp["job_id"])
	if job == nil {
		t.Fatalf("job %q not registered", resp["job_id"])
	}
	return job
}

func TestPopulateHandler_RunsJob(t *testing.T) {
	repo := mock.NewMockPersonRepository()
	useMockBackend(t, repo)
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), staticLoader(testSource(t, 3)))

	job := startJob(t, h, `{"concurrency": 2}`)

	if status := waitForStatus(t, job); status != JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", status, job.View().Error)
	}
	view := job.View()
	if view.Result == nil || view.Result.Inserted != 3 {
		t.Errorf("unexpected result %+v", view.Result)
	}
	if view.Processed != 3 || view.Total != 3 {
		t.Errorf("unexpected progress %d/%d", view.Processed, view.Total)
	}
	if len(repo.IDs()) != 3 {
		t.Errorf("expected 3 stored people, got %d", len(repo.IDs()))
	}
}

func TestPopulateHandler_Status(t *testing.T) {
	useMockBackend(t, mock.NewMockPersonRepository())
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), staticLoader(testSource(t, 1)))
	job := startJob(t, h, `{}`)
	waitForStatus(t, job)

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/populate/"+job.ID, nil), map[string]string{"jobId": job.ID})
	recorder := httptest.NewRecorder()
	h.Status(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var view PopulateJobView
	parseJSONResponse(t, recorder, &view)
	if view.ID != job.ID || view.Status != JobStatusCompleted || view.Options.Concurrency != 1 {
		t.Errorf("unexpected view %+v", view)
	}

	req = requestWithChiParams(httptest.NewRequest("GET", "/api/v1/populate/nope", nil), map[string]string{"jobId": "nope"})
	recorder = httptest.NewRecorder()
	h.Status(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestPopulateHandler_RequiresDatabase(t *testing.T) {
	database.ResetBackend()
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), staticLoader(testSource(t, 1)))

	recorder := httptest.NewRecorder()
	h.Start(recorder, httptest.NewRequest("POST", "/api/v1/populate", strings.NewReader(`{}`)))
	assertStatusCode(t, recorder, http.StatusBadRequest)

	job := startJob(t, h, `{"dry_run": true}`)
	if status := waitForStatus(t, job); status != JobStatusCompleted {
		t.Errorf("dry run without database should complete, got %s", status)
	}
}

func TestPopulateHandler_RejectsInvalidRequests(t *testing.T) {
	useMockBackend(t, mock.NewMockPersonRepository())
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), staticLoader(testSource(t, 1)))

	for _, body := range []string{`{"offset": -1}`, `{"limit": -5}`, `not json`} {
		recorder := httptest.NewRecorder()
		h.Start(recorder, httptest.NewRequest("POST", "/api/v1/populate", strings.NewReader(body)))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}
}

func TestPopulateHandler_LoaderFailure(t *testing.T) {
	useMockBackend(t, mock.NewMockPersonRepository())
	loader := func(ctx context.Context, progress dataset.Progress) (ingest.Source, error) {
		return nil, errors.New("datasets-server unreachable")
	}
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), loader)

	job := startJob(t, h, `{}`)
	if status := waitForStatus(t, job); status != JobStatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	if !strings.Contains(job.View().Error, "datasets-server unreachable") {
		t.Errorf("unexpected error %q", job.View().Error)
	}
}

func TestPopulateHandler_ConflictAndCancel(t *testing.T) {
	useMockBackend(t, mock.NewMockPersonRepository())

	release := make(chan struct{})
	loader := func(ctx context.Context, progress dataset.Progress) (ingest.Source, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return testSource(t, 1), nil
	}
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), loader)
	defer close(release)

	job := startJob(t, h, `{}`)

	recorder := httptest.NewRecorder()
	h.Start(recorder, httptest.NewRequest("POST", "/api/v1/populate", strings.NewReader(`{}`)))
	assertStatusCode(t, recorder, http.StatusConflict)

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/populate/"+job.ID, nil), map[string]string{"jobId": job.ID})
	recorder = httptest.NewRecorder()
	h.Cancel(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if status := waitForStatus(t, job); status != JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", status)
	}

	// A finished job is forgotten instead
	recorder = httptest.NewRecorder()
	h.Cancel(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	var resp map[string]bool
	parseJSONResponse(t, recorder, &resp)
	if !resp["deleted"] {
		t.Errorf("expected deleted response, got %v", resp)
	}
	if h.jobManager.GetJob(job.ID) != nil {
		t.Error("finished job should be removed after DELETE")
	}

	recorder = httptest.NewRecorder()
	h.Cancel(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestPopulateHandler_EventsFinishedJob(t *testing.T) {
	useMockBackend(t, mock.NewMockPersonRepository())
	h := NewPopulateHandler(NewJobManager(), widthEncoder(), staticLoader(testSource(t, 1)))
	job := startJob(t, h, `{}`)
	waitForStatus(t, job)

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/populate/"+job.ID+"/events", nil), map[string]string{"jobId": job.ID})
	recorder := httptest.NewRecorder()
	h.Events(recorder, req)

	assertContentType(t, recorder, "text/event-stream")
	body := recorder.Body.Bytes()
	if !bytes.HasPrefix(body, []byte("event: status\ndata: ")) {
		t.Errorf("unexpected stream %q", body)
	}
	if !bytes.Contains(body, []byte(`"status":"completed"`)) {
		t.Errorf("status event should carry the final state, got %q", body)
	}
}

func TestEventBroadcaster(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()

	b.SendEvent(JobEvent{Type: "progress"})
	if ev := <-ch; ev.Type != "progress" {
		t.Errorf("unexpected event %+v", ev)
	}

	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("listener channel should be closed after removal")
	}
	b.SendEvent(JobEvent{Type: "ignored"})
}

// streamEvents runs the Events handler for job until it returns, calling
// drive once the stream is listening.
func streamEvents(t *testing.T, h *PopulateHandler, job *PopulateJob, drive func()) string {
	t.Helper()
	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/populate/"+job.ID+"/events", nil), map[string]string{"jobId": job.ID})
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Events(recorder, req)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		job.mu.RLock()
		listening := len(job.listeners) > 0
		job.mu.RUnlock()
		if listening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event stream never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	drive()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("event stream did not end")
	}
	return recorder.Body.String()
}

func TestPopulateHandler_EventsStreamsToCompletion(t *testing.T) {
	for i := range 20 {
		jm := NewJobManager()
		h := NewPopulateHandler(jm, widthEncoder(), staticLoader(testSource(t, 1)))
		job := jm.CreateJob(fmt.Sprintf("stream-%d", i), ingest.Options{})
		job.update(func(j *PopulateJob) { j.Status = JobStatusRunning })

		body := streamEvents(t, h, job, func() {
			job.recordProgress(1, 1)
			job.SendEvent(JobEvent{Type: "progress", Data: map[string]int{"processed": 1, "total": 1}})
			h.finishJob(context.Background(), job, &ingest.Result{Inserted: 1}, nil)
		})

		if !strings.Contains(body, "event: completed\n") {
			t.Fatalf("run %d: stream ended without the completed event: %q", i, body)
		}
		if !strings.Contains(body, `"inserted":1`) {
			t.Errorf("run %d: completed event should carry the result: %q", i, body)
		}
	}
}

func TestPopulateHandler_EventsStreamsCancellation(t *testing.T) {
	jm := NewJobManager()
	h := NewPopulateHandler(jm, widthEncoder(), staticLoader(testSource(t, 1)))
	job := jm.CreateJob("cancel-stream", ingest.Options{})
	job.update(func(j *PopulateJob) { j.Status = JobStatusRunning })

	body := streamEvents(t, h, job, func() {
		if !job.Cancel() {
			t.Error("running job refused to cancel")
		}
	})

	if !strings.Contains(body, "event: cancelled\n") {
		t.Errorf("stream ended without the cancelled event: %q", body)
	}
}

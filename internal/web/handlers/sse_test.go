package handlers

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedJob reports running on its first status check and a terminal
// status afterwards, with events already queued on its listener.
type scriptedJob struct {
	mu     sync.Mutex
	checks int
	final  JobStatus
	events []JobEvent
}

func (j *scriptedJob) AddListener() chan JobEvent {
	ch := make(chan JobEvent, len(j.events))
	for _, ev := range j.events {
		ch <- ev
	}
	return ch
}

func (j *scriptedJob) RemoveListener(ch chan JobEvent) {}

func (j *scriptedJob) GetStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.checks++
	if j.checks == 1 {
		return JobStatusRunning
	}
	return j.final
}

func streamScripted(t *testing.T, job SSEJob) (string, time.Duration) {
	t.Helper()
	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/populate/j/events", nil), map[string]string{"jobId": "j"})
	recorder := httptest.NewRecorder()

	start := time.Now()
	streamSSEEvents(recorder, req,
		func(string) SSEJob { return job },
		func(SSEJob) any { return map[string]string{"status": "running"} },
	)
	return recorder.Body.String(), time.Since(start)
}

func TestStreamSSEEvents_DeliversFinalEventAfterStatusChange(t *testing.T) {
	tests := []struct {
		name  string
		final JobStatus
		last  JobEvent
	}{
		{"completed", JobStatusCompleted, JobEvent{Type: "completed", Data: map[string]int{"inserted": 1}}},
		{"failed", JobStatusFailed, JobEvent{Type: "job_error", Message: "boom"}},
		{"cancelled", JobStatusCancelled, JobEvent{Type: "cancelled", Message: "Job cancelled by user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &scriptedJob{
				final:  tt.final,
				events: []JobEvent{{Type: "progress"}, tt.last, {Type: "after"}},
			}
			body, _ := streamScripted(t, job)

			if !strings.Contains(body, "event: progress\n") {
				t.Errorf("missing progress event in %q", body)
			}
			if !strings.Contains(body, "event: "+tt.last.Type+"\n") {
				t.Errorf("missing %s event in %q", tt.last.Type, body)
			}
			if strings.Contains(body, "event: after\n") {
				t.Errorf("stream continued past the final event: %q", body)
			}
		})
	}
}

func TestStreamSSEEvents_GivesUpWhenFinalEventIsLost(t *testing.T) {
	job := &scriptedJob{
		final:  JobStatusCompleted,
		events: []JobEvent{{Type: "progress"}},
	}
	body, elapsed := streamScripted(t, job)

	if !strings.Contains(body, "event: progress\n") {
		t.Errorf("missing progress event in %q", body)
	}
	if elapsed < terminalEventGrace {
		t.Errorf("stream ended after %v, before the grace period", elapsed)
	}
	if elapsed > terminalEventGrace+3*time.Second {
		t.Errorf("stream hung for %v", elapsed)
	}
}

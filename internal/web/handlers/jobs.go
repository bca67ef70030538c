package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/ingest"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// PopulateJob represents an async dataset population job.
// Fields below the broadcaster are guarded by its mutex.
type PopulateJob struct {
	EventBroadcaster

	ID          string
	Status      JobStatus
	Phase       string
	Total       int
	Processed   int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Options     ingest.Options
	Result      *ingest.Result
}

// PopulateJobView is the JSON form of a PopulateJob.
type PopulateJobView struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Phase       string         `json:"phase"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Options     ingest.Options `json:"options"`
	Result      *ingest.Result `json:"result,omitempty"`
}

// View returns a consistent snapshot of the job.
func (j *PopulateJob) View() PopulateJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v := PopulateJobView{
		ID:          j.ID,
		Status:      j.Status,
		Phase:       j.Phase,
		Total:       j.Total,
		Processed:   j.Processed,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Options:     j.Options,
	}
	if j.Result != nil {
		r := *j.Result
		v.Result = &r
	}
	return v
}

// GetStatus returns the current job status (implements SSEJob).
func (j *PopulateJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel cancels the population job. It returns false when the job had already finished.
func (j *PopulateJob) Cancel() bool {
	j.mu.Lock()
	if isJobTerminal(j.Status) {
		j.mu.Unlock()
		return false
	}
	j.Status = JobStatusCancelled
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
	return true
}

// isActive reports whether the job is pending or running.
func (j *PopulateJob) isActive() bool {
	s := j.GetStatus()
	return s == JobStatusPending || s == JobStatusRunning
}

// update applies fn to the job under its lock.
func (j *PopulateJob) update(fn func(j *PopulateJob)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j)
}

// recordProgress stores the processed count. Workers report out of order, so
// the count never moves backwards.
func (j *PopulateJob) recordProgress(done, total int) {
	j.update(func(j *PopulateJob) {
		j.Processed = max(j.Processed, done)
		j.Total = total
	})
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// setCancel stores the function that stops the job's context.
func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel = cancel
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async population jobs. At most one job is active at a time.
type JobManager struct {
	jobs map[string]*PopulateJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*PopulateJob),
	}
}

// CreateJob registers a new pending job unless another job is still active,
// in which case it returns nil. Only the newest MaxFinishedJobs finished jobs are kept.
func (m *JobManager) CreateJob(id string, options ingest.Options) *PopulateJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	finished := make([]*PopulateJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.isActive() {
			return nil
		}
		finished = append(finished, j)
	}
	m.pruneLocked(finished, constants.MaxFinishedJobs-1)

	job := &PopulateJob{
		ID:        id,
		Status:    JobStatusPending,
		Phase:     "pending",
		StartedAt: time.Now(),
		Options:   options,
	}
	m.jobs[id] = job
	return job
}

// pruneLocked drops the oldest of the finished jobs until at most keep remain.
func (m *JobManager) pruneLocked(finished []*PopulateJob, keep int) {
	if len(finished) <= keep {
		return
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].StartedAt.Before(finished[b].StartedAt)
	})
	for _, j := range finished[:len(finished)-max(keep, 0)] {
		delete(m.jobs, j.ID)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *PopulateJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*PopulateJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*PopulateJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/dataset"
	"github.com/kozaktomas/face-search/internal/facerec"
	"github.com/kozaktomas/face-search/internal/ingest"
)

// SourceLoader opens the dataset a population job ingests, reporting download
// progress when the dataset has to be fetched first.
type SourceLoader func(ctx context.Context, progress dataset.Progress) (ingest.Source, error)

// PopulateHandler runs dataset population as background jobs
type PopulateHandler struct {
	jobManager *JobManager
	encoder    facerec.Encoder
	loadSource SourceLoader
}

// NewPopulateHandler creates a new populate handler
func NewPopulateHandler(jm *JobManager, encoder facerec.Encoder, loader SourceLoader) *PopulateHandler {
	return &PopulateHandler{
		jobManager: jm,
		encoder:    encoder,
		loadSource: loader,
	}
}

// PopulateRequest represents a request to start a population job
type PopulateRequest struct {
	Offset      int  `json:"offset"`
	Limit       int  `json:"limit"`
	Concurrency int  `json:"concurrency"`
	DryRun      bool `json:"dry_run"`
}

// Start starts a new population job
func (h *PopulateHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req PopulateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	if !req.DryRun && !database.IsInitialized() {
		respondError(w, http.StatusBadRequest, "database is not configured")
		return
	}
	if req.Offset < 0 || req.Limit < 0 {
		respondError(w, http.StatusBadRequest, "offset and limit must not be negative")
		return
	}
	if req.Concurrency <= 0 {
		req.Concurrency = constants.DefaultConcurrency
	}
	if req.Concurrency > constants.MaxConcurrency {
		req.Concurrency = constants.MaxConcurrency
	}

	job := h.jobManager.CreateJob(uuid.New().String(), ingest.Options{
		Offset:      req.Offset,
		Limit:       req.Limit,
		Concurrency: req.Concurrency,
		DryRun:      req.DryRun,
	})
	if job == nil {
		respondError(w, http.StatusConflict, "a population job is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	go h.runJob(ctx, cancel, job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

// List returns all known population jobs
func (h *PopulateHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	out := make([]PopulateJobView, len(jobs))
	for i, j := range jobs {
		out[i] = j.View()
	}
	respondJSON(w, http.StatusOK, out)
}

// jobFromRequest returns the job named by the {jobId} URL parameter, writing an error response if missing.
func (h *PopulateHandler) jobFromRequest(w http.ResponseWriter, r *http.Request) *PopulateJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// Status returns the state of a population job
func (h *PopulateHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobFromRequest(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// Events streams population job events via SSE
func (h *PopulateHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			if job := h.jobManager.GetJob(id); job != nil {
				return job
			}
			return nil
		},
		func(j SSEJob) any {
			return j.(*PopulateJob).View()
		},
	)
}

// Cancel cancels a running population job, or forgets one that already finished
func (h *PopulateHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobFromRequest(w, r)
	if job == nil {
		return
	}
	if !job.Cancel() {
		h.jobManager.DeleteJob(job.ID)
		respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runJob executes the population job in the background
func (h *PopulateHandler) runJob(ctx context.Context, cancel context.CancelFunc, job *PopulateJob) {
	defer cancel()

	job.update(func(j *PopulateJob) {
		if j.Status == JobStatusPending {
			j.Status = JobStatusRunning
		}
		j.Phase = "loading"
	})
	job.SendEvent(JobEvent{Type: "started", Message: "Population job started"})

	src, err := h.loadSource(ctx, func(done, total int) {
		job.SendEvent(JobEvent{Type: "download_progress", Data: map[string]int{"done": done, "total": total}})
	})
	if err != nil {
		h.finishJob(ctx, job, nil, fmt.Errorf("failed to load dataset: %w", err))
		return
	}

	var writer database.PersonWriter
	if !job.Options.DryRun {
		writer, err = database.GetPersonWriter(ctx)
		if err != nil {
			h.finishJob(ctx, job, nil, err)
			return
		}
	}

	populator := ingest.New(writer, h.encoder)
	populator.Progress = func(done, total int) {
		job.recordProgress(done, total)
		job.SendEvent(JobEvent{Type: "progress", Data: map[string]int{"processed": done, "total": total}})
	}

	job.update(func(j *PopulateJob) { j.Phase = "ingesting" })
	res, err := populator.Run(ctx, src, job.Options)
	h.finishJob(ctx, job, res, err)
}

// finishJob records the outcome of a job and notifies listeners.
func (h *PopulateHandler) finishJob(ctx context.Context, job *PopulateJob, res *ingest.Result, err error) {
	now := time.Now()
	var status JobStatus
	job.update(func(j *PopulateJob) {
		j.CompletedAt = &now
		j.Result = res
		j.Phase = "done"
		switch {
		case j.Status == JobStatusCancelled || errors.Is(ctx.Err(), context.Canceled):
			j.Status = JobStatusCancelled
		case err != nil:
			j.Status = JobStatusFailed
			j.Error = err.Error()
		default:
			j.Status = JobStatusCompleted
		}
		status = j.Status
	})

	switch status {
	case JobStatusFailed:
		log.Printf("populate job %s failed: %v", job.ID, err)
		job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
	case JobStatusCompleted:
		log.Printf("populate job %s completed: %+v", job.ID, *res)
		job.SendEvent(JobEvent{Type: "completed", Data: res})
	default:
		log.Printf("populate job %s cancelled", job.ID)
	}
}

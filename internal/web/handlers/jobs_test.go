package handlers

import (
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/ingest"
)

func TestJobManager_PrunesFinishedJobs(t *testing.T) {
	jm := NewJobManager()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	n := constants.MaxFinishedJobs + 5

	for i := range n {
		job := jm.CreateJob(fmt.Sprintf("job-%d", i), ingest.Options{})
		if job == nil {
			t.Fatalf("CreateJob(%d) refused while no job was active", i)
		}
		job.update(func(j *PopulateJob) {
			j.Status = JobStatusCompleted
			j.StartedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}

	if got := len(jm.ListJobs()); got != constants.MaxFinishedJobs {
		t.Errorf("expected %d retained jobs, got %d", constants.MaxFinishedJobs, got)
	}
	if jm.GetJob("job-0") != nil {
		t.Error("oldest job should have been dropped")
	}
	if jm.GetJob(fmt.Sprintf("job-%d", n-constants.MaxFinishedJobs)) == nil {
		t.Error("oldest retained job missing")
	}
	if jm.GetJob(fmt.Sprintf("job-%d", n-1)) == nil {
		t.Error("newest job missing")
	}
}

func TestJobManager_RefusesWhileActive(t *testing.T) {
	jm := NewJobManager()
	running := jm.CreateJob("running", ingest.Options{})
	running.update(func(j *PopulateJob) { j.Status = JobStatusRunning })

	if jm.CreateJob("second", ingest.Options{}) != nil {
		t.Fatal("second job created while another is running")
	}

	running.update(func(j *PopulateJob) { j.Status = JobStatusFailed })
	if jm.CreateJob("second", ingest.Options{}) == nil {
		t.Fatal("job refused after the previous one failed")
	}
	if jm.GetJob("running") == nil {
		t.Error("finished job dropped below the retention limit")
	}

	jm.DeleteJob("running")
	if jm.GetJob("running") != nil {
		t.Error("DeleteJob did not remove the job")
	}
}

func TestPopulateJob_RecordProgress(t *testing.T) {
	job := &PopulateJob{}

	job.recordProgress(3, 10)
	job.recordProgress(5, 10)
	job.recordProgress(4, 10)

	view := job.View()
	if view.Processed != 5 {
		t.Errorf("processed went backwards: got %d, want 5", view.Processed)
	}
	if view.Total != 10 {
		t.Errorf("total = %d, want 10", view.Total)
	}
}

package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/driftaudio/driftd/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	req := models.DefaultRequest("https://www.youtube.com/watch?v=abc123")
	req.StartTime = "00:30"
	req.EndTime = "01:10"
	req.LoopVideo = true

	job := models.NewJob("job-1", req)
	if err := s.Create(job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != models.JobStatusQueued {
		t.Errorf("Expected queued, got %s", got.Status)
	}
	if got.Request != req {
		t.Errorf("Request not preserved:\n got %+v\nwant %+v", got.Request, req)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestSQLiteStoreUpdateLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)

	job := models.NewJob("job-1", models.DefaultRequest("https://youtu.be/abc"))
	if err := s.Create(job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	err := s.Update("job-1", func(j *models.Job) error {
		return j.Transition(models.JobStatusProcessing)
	})
	if err != nil {
		t.Fatalf("Failed to transition job: %v", err)
	}

	err = s.Update("job-1", func(j *models.Job) error {
		j.UsedCache = true
		return j.Complete("/outputs/job-1.mp3")
	})
	if err != nil {
		t.Fatalf("Failed to complete job: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != models.JobStatusCompleted || got.Progress != 1.0 {
		t.Errorf("Unexpected final state: status=%s progress=%v", got.Status, got.Progress)
	}
	if !got.UsedCache {
		t.Error("used_cache not persisted")
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("lifecycle timestamps not persisted")
	}

	// Terminal state must reject further transitions and stay unchanged.
	err = s.Update("job-1", func(j *models.Job) error {
		return j.Fail(errors.New("too late"))
	})
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	got, _ = s.Get("job-1")
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Job left terminal state: %s", got.Status)
	}
}

func TestSQLiteStoreConcurrentUpdates(t *testing.T) {
	s := newTestSQLiteStore(t)

	const numJobs = 5
	for i := 0; i < numJobs; i++ {
		job := models.NewJob(fmt.Sprintf("job-%d", i), models.DefaultRequest("https://youtu.be/abc"))
		if err := s.Create(job); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, numJobs)
	for i := 0; i < numJobs; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- s.Update(id, func(j *models.Job) error {
				return j.Transition(models.JobStatusProcessing)
			})
		}(fmt.Sprintf("job-%d", i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent update failed: %v", err)
		}
	}

	if got := len(s.List()); got != numJobs {
		t.Errorf("Expected %d jobs, got %d", numJobs, got)
	}
}

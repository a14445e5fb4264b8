// Package cleanup removes finished jobs and their artifacts once they fall
// out of the retention window.
package cleanup

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/driftaudio/driftd/internal/store"
	"github.com/driftaudio/driftd/pkg/models"
)

// Config defines the retention policy and sweep interval.
type Config struct {
	Enabled   bool
	Retention time.Duration // how long terminal jobs and their artifacts live
	Interval  time.Duration // time between sweeps
}

// DefaultConfig retains finished jobs for 7 days, sweeping hourly.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Retention: 7 * 24 * time.Hour,
		Interval:  time.Hour,
	}
}

// Stats tracks sweep activity.
type Stats struct {
	LastSweepTime     time.Time
	LastSweepDuration time.Duration
	TotalJobsDeleted  int64
}

// Sweeper periodically deletes terminal jobs past retention, along with their
// result files. Queued and processing jobs are never touched.
type Sweeper struct {
	config Config
	jobs   store.JobStore
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats

	now func() time.Time
}

func NewSweeper(config Config, jobs store.JobStore) *Sweeper {
	return &Sweeper{
		config: config,
		jobs:   jobs,
		now:    time.Now,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	if !s.config.Enabled {
		log.Println("cleanup: retention sweeper disabled")
		return
	}
	log.Printf("cleanup: retention %v, sweep interval %v", s.config.Retention, s.config.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow runs one sweep immediately and returns the number of jobs deleted.
func (s *Sweeper) SweepNow() int {
	start := s.now()
	cutoff := start.Add(-s.config.Retention)
	deleted := 0

	for _, job := range s.jobs.List() {
		if !models.IsTerminalState(job.Status) {
			continue
		}
		expiry := job.CreatedAt
		if job.CompletedAt != nil {
			expiry = *job.CompletedAt
		}
		if !expiry.Before(cutoff) {
			continue
		}

		if job.ResultPath != "" {
			if err := os.Remove(job.ResultPath); err != nil && !os.IsNotExist(err) {
				log.Printf("cleanup: could not remove artifact for job %s: %v", job.ID, err)
				// Keep the record so a later sweep retries the file.
				continue
			}
		}
		if err := s.jobs.Delete(job.ID); err != nil {
			log.Printf("cleanup: could not delete job %s: %v", job.ID, err)
			continue
		}
		deleted++
	}

	s.mu.Lock()
	s.stats.LastSweepTime = s.now()
	s.stats.LastSweepDuration = time.Since(start)
	s.stats.TotalJobsDeleted += int64(deleted)
	s.mu.Unlock()

	if deleted > 0 {
		log.Printf("cleanup: deleted %d jobs past retention", deleted)
	}
	return deleted
}

// GetStats returns current sweep statistics.
func (s *Sweeper) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

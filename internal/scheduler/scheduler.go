// Package scheduler admits jobs into a bounded FIFO queue and runs them on a
// fixed pool of workers.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/driftaudio/driftd/internal/metrics"
	"github.com/driftaudio/driftd/internal/store"
	"github.com/driftaudio/driftd/pkg/models"
)

// ErrQueueFull is returned when a submission cannot be admitted. The caller
// sees it immediately; submission never blocks on a full queue.
var ErrQueueFull = errors.New("job queue is full")

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string)
}

// Config bounds the scheduler.
type Config struct {
	Workers       int // concurrent jobs
	QueueCapacity int // waiting jobs beyond the running ones
}

// DefaultConfig allows 4 concurrent jobs with 100 waiting.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueCapacity: 100}
}

// Scheduler owns the worker pool. Jobs run in admission order; at most
// Workers of them concurrently.
type Scheduler struct {
	cfg     Config
	jobs    store.JobStore
	runner  Runner
	metrics *metrics.Metrics

	queue   chan string
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func New(cfg Config, jobs store.JobStore, runner Runner, m *metrics.Metrics) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	return &Scheduler{
		cfg:     cfg,
		jobs:    jobs,
		runner:  runner,
		metrics: m,
		queue:   make(chan string, cfg.QueueCapacity),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	log.Printf("scheduler: started %d workers, queue capacity %d", s.cfg.Workers, s.cfg.QueueCapacity)
}

// Stop rejects further submissions, cancels the context of in-flight work,
// and waits for the workers to exit. Executors see the cancellation and fail
// their jobs; jobs still waiting in the queue are abandoned in the queued
// state.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Printf("scheduler: stopped")
}

// Submit registers a job for the request and enqueues it. It returns the
// created job, or ErrQueueFull without a job record when the queue is at
// capacity.
func (s *Scheduler) Submit(req models.Request) (*models.Job, error) {
	if s.stopped.Load() {
		return nil, ErrQueueFull
	}

	job := models.NewJob(uuid.New().String(), req)
	if err := s.jobs.Create(job); err != nil {
		return nil, err
	}

	select {
	case s.queue <- job.ID:
		s.metrics.JobSubmitted()
		s.metrics.QueueDepth(1)
		return job, nil
	default:
		// No record survives a rejected submission.
		if err := s.jobs.Delete(job.ID); err != nil {
			log.Printf("scheduler: cleanup of rejected job %s failed: %v", job.ID, err)
		}
		return nil, ErrQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-s.queue:
			s.metrics.QueueDepth(-1)
			s.metrics.WorkerBusy(1)
			s.runner.Run(ctx, jobID)
			s.metrics.WorkerBusy(-1)
		}
	}
}

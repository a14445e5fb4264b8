package store

import (
	"fmt"
	"sync"

	"github.com/driftaudio/driftd/pkg/models"
)

// MemoryStore is an in-memory implementation of JobStore.
//
// The job map is guarded by an RWMutex; each record carries its own mutex so
// that updates to different jobs proceed in parallel while updates to the
// same job are serialized.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobRecord
}

type jobRecord struct {
	mu  sync.Mutex
	job models.Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*jobRecord)}
}

// Create registers a new job record
func (s *MemoryStore) Create(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = &jobRecord{job: *job}
	return nil
}

// Get returns a snapshot of the job
func (s *MemoryStore) Get(id string) (models.Job, error) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.Job{}, ErrJobNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, nil
}

// List returns snapshots of all jobs
func (s *MemoryStore) List() []models.Job {
	s.mu.RLock()
	records := make([]*jobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	jobs := make([]models.Job, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		jobs = append(jobs, rec.job)
		rec.mu.Unlock()
	}
	return jobs
}

// Update applies mutate to the job under its record lock. The mutator works
// on a copy: if it returns an error the stored record is untouched.
func (s *MemoryStore) Update(id string, mutate func(*models.Job) error) error {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	updated := rec.job
	if err := mutate(&updated); err != nil {
		return err
	}
	rec.job = updated
	return nil
}

// Delete removes a job record
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

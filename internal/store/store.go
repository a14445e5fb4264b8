package store

import (
	"errors"

	"github.com/driftaudio/driftd/pkg/models"
)

// ErrJobNotFound is returned for lookups of unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the registry of job records. It exclusively owns the records:
// callers read snapshots and mutate through Update.
//
// Update calls on different jobs must not block each other; Update calls on
// the same job are serialized.
type JobStore interface {
	// Create registers a new job record.
	Create(job *models.Job) error
	// Get returns a snapshot of the job, or ErrJobNotFound.
	Get(id string) (models.Job, error)
	// List returns snapshots of all jobs. Order is not significant.
	List() []models.Job
	// Update applies mutate to the job atomically. If mutate returns an
	// error the job is left unchanged and the error is returned.
	Update(id string, mutate func(*models.Job) error) error
	// Delete removes a job record (used by the retention sweep).
	Delete(id string) error
	// Close releases store resources.
	Close() error
}

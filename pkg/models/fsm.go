package models

import (
	"fmt"
	"time"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusQueued: {
		JobStatusProcessing: true, // Queued → Processing (worker slot assigned)
		JobStatusFailed:     true, // Queued → Failed (parameter validation failed before any work)
	},
	JobStatusProcessing: {
		JobStatusCompleted: true, // Processing → Completed (render succeeded)
		JobStatusFailed:    true, // Processing → Failed (fetch/render/timeout)
	},
	// Terminal states (no transitions allowed)
	JobStatusCompleted: {},
	JobStatusFailed:    {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown source state %q", ErrInvalidTransition, from)
	}
	if !allowed[to] {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminalState returns true if the state is terminal (no further transitions)
func IsTerminalState(state JobStatus) bool {
	return state == JobStatusCompleted || state == JobStatusFailed
}

// Transition moves the job to the given state, validating the move and
// stamping StartedAt/CompletedAt. The job is left unchanged on error.
func (j *Job) Transition(to JobStatus) error {
	if err := ValidateTransition(j.Status, to); err != nil {
		return err
	}
	now := time.Now()
	switch to {
	case JobStatusProcessing:
		j.StartedAt = &now
	case JobStatusCompleted, JobStatusFailed:
		j.CompletedAt = &now
	}
	j.Status = to
	return nil
}

// Complete marks the job completed with its result location. The result
// location is set exactly once, paired with progress 1.0.
func (j *Job) Complete(resultPath string) error {
	if err := j.Transition(JobStatusCompleted); err != nil {
		return err
	}
	j.ResultPath = resultPath
	j.Progress = 1.0
	return nil
}

// Fail marks the job failed with a user-presentable cause. The error field is
// set exactly once.
func (j *Job) Fail(cause error) error {
	if err := j.Transition(JobStatusFailed); err != nil {
		return err
	}
	j.Error = cause.Error()
	return nil
}

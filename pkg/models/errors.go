package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a job state change violates the
// lifecycle state machine.
var ErrInvalidTransition = errors.New("invalid job state transition")

// ErrorCategory classifies job failures into stable, user-presentable causes.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation" // malformed parameters, rejected before any work
	CategoryFetch      ErrorCategory = "fetch"      // source unreachable, unsupported, or removed
	CategoryRender     ErrorCategory = "render"     // effects pipeline failure
	CategoryTimeout    ErrorCategory = "timeout"    // fetch or render exceeded its budget
	CategoryInternal   ErrorCategory = "internal"   // anything else
)

// JobError pairs a failure category with its underlying cause. Its string form
// ("category: detail") is what ends up in the job's error field.
type JobError struct {
	Category ErrorCategory
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError wraps err with a failure category.
func NewJobError(category ErrorCategory, err error) *JobError {
	return &JobError{Category: category, Err: err}
}

// Validationf builds a validation-category error from a format string.
func Validationf(format string, args ...interface{}) *JobError {
	return &JobError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Categorize extracts the failure category from an error chain, defaulting to
// internal when no JobError is present.
func Categorize(err error) ErrorCategory {
	var je *JobError
	if errors.As(err, &je) {
		return je.Category
	}
	return CategoryInternal
}

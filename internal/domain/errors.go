package domain

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the execution engine. Terminal errors end a task
// immediately; retryable errors consume an attempt and the executor tries
// again with a fresh resource.
var (
	// ErrResourceExhausted means no eligible egress resource exists in any
	// tier. Terminal: retrying without a resource cannot succeed.
	ErrResourceExhausted = errors.New("no resource available")

	// ErrNoCredentials means authentication is impossible because no
	// credentials are configured. Terminal.
	ErrNoCredentials = errors.New("no credentials")

	// ErrAuthenticationFailed is a transient session failure. Retryable.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrExtractionFailed means the extractor returned no data or raised an
	// error, including anti-bot rejections. Retryable.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrDeadlineExceeded means the per-task wall-clock budget ran out.
	// Terminal regardless of remaining attempts.
	ErrDeadlineExceeded = errors.New("timed out")

	// ErrMaxRetries means all attempts were consumed. Terminal.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// IsRetryable reports whether err consumes an attempt rather than ending
// the task.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrExtractionFailed)
}

// ConflictReason explains why a schedule request was rejected.
type ConflictReason string

const (
	// ConflictDuplicateInFlight means an active, non-stale task already
	// exists for the same dedup key.
	ConflictDuplicateInFlight ConflictReason = "duplicate-in-flight"

	// ConflictRecentlyCompleted means the task reached a terminal state
	// within the cool-off window.
	ConflictRecentlyCompleted ConflictReason = "recently-completed"
)

// ConflictError is returned synchronously by the scheduler when a submission
// is rejected. It is the only error class surfaced to the submitting caller;
// everything else resolves through the task store.
type ConflictError struct {
	TaskID string
	Reason ConflictReason
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s rejected: %s", e.TaskID, e.Reason)
}

// AsConflict extracts a ConflictError from err, if present.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Package domain provides domain models used across the application.
package domain

import (
	"fmt"
	"time"
)

// Status represents a task status in the execution state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if no further status transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ValidateTransition checks if a status transition is valid.
// Terminal statuses never transition back to non-terminal ones.
func ValidateTransition(from, to Status) error {
	validTransitions := map[Status][]Status{
		StatusPending: {
			StatusInProgress, // executor picked the task up
			StatusFailed,     // rejected before any attempt (no resource, no credentials)
		},
		StatusInProgress: {
			StatusInProgress, // new attempt after a retryable failure
			StatusProcessing, // extraction succeeded, persistence pending
			StatusCompleted,
			StatusFailed,
		},
		StatusProcessing: {
			StatusCompleted,
			StatusFailed, // persistence error
		},
		// Terminal statuses
		StatusCompleted: {},
		StatusFailed:    {},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}

	for _, a := range allowed {
		if a == to {
			return nil
		}
	}

	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

// TaskID computes the stable deduplication key for a logical entity.
// It deliberately contains no timestamp so that resubmissions of the same
// entity map to the same task.
func TaskID(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// Task represents a single unit of extraction work.
type Task struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	URL        string    `json:"url"`
	Priority   int       `json:"priority"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Generation identifies which scheduling of this task ID is current.
	// A stale executor whose generation has been superseded must abort
	// before writing further state.
	Generation uint64 `json:"generation"`
}

// RawResult is the opaque payload returned by an extractor on success.
type RawResult struct {
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	URL         string         `json:"url"`
	Fields      map[string]any `json:"fields"`
	ExtractedAt time.Time      `json:"extracted_at"`
}

// IsEmpty returns true if the result carries no extracted fields.
// Empty results are treated as attempt failures by the executor.
func (r *RawResult) IsEmpty() bool {
	return r == nil || len(r.Fields) == 0
}

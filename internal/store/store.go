// Package store provides the durable task status record consumed by the
// status API and written by the execution engine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// ErrNotFound is returned when no record exists for a task ID.
var ErrNotFound = errors.New("task record not found")

// Record is the durable view of a task, keyed uniquely by TaskID.
// Last-writer-wins semantics are acceptable: only the owning executor
// writes during execution.
type Record struct {
	TaskID       string        `json:"task_id"`
	Status       domain.Status `json:"status"`
	Attempt      int           `json:"attempt"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ResultRef    string        `json:"result_ref,omitempty"`
}

// TaskStore persists task status records.
type TaskStore interface {
	// Upsert writes the record, replacing any previous version.
	Upsert(ctx context.Context, rec Record) error
	// Get returns the record for a task ID, or ErrNotFound.
	Get(ctx context.Context, taskID string) (*Record, error)
	// List returns records filtered by status (empty matches all), newest
	// first, with limit/offset paging.
	List(ctx context.Context, status domain.Status, limit, offset int) ([]*Record, error)
}

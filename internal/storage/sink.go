// Package storage persists extraction results and returns stable references
// to the stored documents.
package storage

import (
	"context"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// ResultSink receives successful extraction results. Persist returns a
// stable reference ("index/docID" for the Elasticsearch sink) that is
// recorded on the task so consumers can locate the document.
type ResultSink interface {
	Persist(ctx context.Context, result *domain.RawResult) (string, error)
}

// NoOpSink discards results. Used in tests and dry runs.
type NoOpSink struct{}

// Ensure NoOpSink implements ResultSink.
var _ ResultSink = (*NoOpSink)(nil)

// NewNoOpSink creates a sink that discards everything.
func NewNoOpSink() *NoOpSink {
	return &NoOpSink{}
}

// Persist discards the result and returns an empty reference.
func (s *NoOpSink) Persist(ctx context.Context, result *domain.RawResult) (string, error) {
	return "", nil
}

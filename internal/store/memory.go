package store

import (
	"context"
	"sort"
	"sync"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// MemoryStore is an in-process TaskStore. It backs tests and single-node
// deployments that do not need records to survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// Ensure MemoryStore implements TaskStore.
var _ TaskStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Upsert writes the record, replacing any previous version.
func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TaskID] = rec
	return nil
}

// Get returns the record for a task ID, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// List returns records filtered by status, newest first.
func (s *MemoryStore) List(ctx context.Context, status domain.Status, limit, offset int) ([]*Record, error) {
	s.mu.RLock()
	matched := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if status != "" && rec.Status != status {
			continue
		}
		r := rec
		matched = append(matched, &r)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	if offset >= len(matched) {
		return []*Record{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

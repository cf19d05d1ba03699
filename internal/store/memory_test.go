package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/domain"
)

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := Record{
		TaskID:    "company:42",
		Status:    domain.StatusInProgress,
		Attempt:   1,
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, "company:42")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, 1, got.Attempt)

	// Last writer wins.
	rec.Status = domain.StatusCompleted
	rec.ResultRef = "results/abc"
	require.NoError(t, s.Upsert(ctx, rec))

	got, err = s.Get(ctx, "company:42")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "results/abc", got.ResultRef)
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "missing:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{TaskID: "job:1", Status: domain.StatusCompleted, UpdatedAt: base},
		{TaskID: "job:2", Status: domain.StatusFailed, UpdatedAt: base.Add(time.Minute)},
		{TaskID: "job:3", Status: domain.StatusCompleted, UpdatedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, s.Upsert(ctx, rec))
	}

	all, err := s.List(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job:3", all[0].TaskID, "newest first")

	completed, err := s.List(ctx, domain.StatusCompleted, 10, 0)
	require.NoError(t, err)
	require.Len(t, completed, 2)

	paged, err := s.List(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "job:2", paged[0].TaskID)

	empty, err := s.List(ctx, "", 10, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

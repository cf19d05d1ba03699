package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/goharvest/internal/domain"
)

const (
	// defaultConnectionTimeout bounds the startup ping.
	defaultConnectionTimeout = 2 * time.Second

	// defaultKeyPrefix namespaces all task keys.
	defaultKeyPrefix = "goharvest"

	// listFetchMultiplier over-fetches index entries so that status
	// filtering can still fill a page.
	listFetchMultiplier = 4
)

// Hash field names for task records.
const (
	fieldStatus    = "status"
	fieldAttempt   = "attempt"
	fieldUpdatedAt = "updated_at"
	fieldError     = "error_message"
	fieldResultRef = "result_ref"
)

// RedisConfig holds configuration for the Redis task store.
type RedisConfig struct {
	Addr     string
	Password string `json:"-"`
	DB       int
	Prefix   string
}

// RedisStore is a Redis-backed TaskStore. Each task is a hash keyed by
// task ID, with a sorted-set index ordered by update time for listing.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Ensure RedisStore implements TaskStore.
var _ TaskStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// taskKey returns the hash key for a task record.
func (s *RedisStore) taskKey(taskID string) string {
	return s.prefix + ":task:" + taskID
}

// indexKey returns the sorted-set key ordering tasks by update time.
func (s *RedisStore) indexKey() string {
	return s.prefix + ":tasks:by_updated"
}

// Upsert writes the record, replacing any previous version.
func (s *RedisStore) Upsert(ctx context.Context, rec Record) error {
	values := map[string]any{
		fieldStatus:    string(rec.Status),
		fieldAttempt:   rec.Attempt,
		fieldUpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		fieldError:     rec.ErrorMessage,
		fieldResultRef: rec.ResultRef,
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.taskKey(rec.TaskID), values)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(rec.UpdatedAt.UnixNano()),
		Member: rec.TaskID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", rec.TaskID, err)
	}
	return nil
}

// Get returns the record for a task ID, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, taskID string) (*Record, error) {
	values, err := s.client.HGetAll(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	return recordFromHash(taskID, values)
}

// List returns records filtered by status, newest first.
func (s *RedisStore) List(ctx context.Context, status domain.Status, limit, offset int) ([]*Record, error) {
	// Over-fetch so a status filter can still fill the requested page.
	fetch := int64(-1)
	if limit > 0 {
		fetch = int64((offset + limit) * listFetchMultiplier)
	}

	taskIDs, err := s.client.ZRevRange(ctx, s.indexKey(), 0, fetch).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	records := make([]*Record, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		rec, getErr := s.Get(ctx, taskID)
		if errors.Is(getErr, ErrNotFound) {
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		if status != "" && rec.Status != status {
			continue
		}
		records = append(records, rec)
	}

	if offset >= len(records) {
		return []*Record{}, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// recordFromHash rebuilds a Record from its Redis hash fields.
func recordFromHash(taskID string, values map[string]string) (*Record, error) {
	rec := &Record{
		TaskID:       taskID,
		Status:       domain.Status(values[fieldStatus]),
		ErrorMessage: values[fieldError],
		ResultRef:    values[fieldResultRef],
	}

	if raw, ok := values[fieldAttempt]; ok && raw != "" {
		attempt, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid attempt for task %s: %w", taskID, err)
		}
		rec.Attempt = attempt
	}

	if raw, ok := values[fieldUpdatedAt]; ok && raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at for task %s: %w", taskID, err)
		}
		rec.UpdatedAt = updatedAt
	}

	return rec, nil
}

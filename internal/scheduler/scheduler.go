// Package scheduler accepts extraction work requests, deduplicates them by
// logical entity identity, assigns priority, reclaims stuck tasks, and
// enforces a completed-task cool-off window.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const (
	// DefaultStalenessThreshold is the age after which an active task is
	// treated as abandoned and may be reclaimed by a new submission.
	DefaultStalenessThreshold = 600 * time.Second

	// DefaultCoolOffWindow is how long resubmission of a completed task is
	// rejected to suppress churn.
	DefaultCoolOffWindow = 600 * time.Second

	// DefaultPriority is assigned to entity types without an importance
	// table entry.
	DefaultPriority = 1
)

// Config holds configuration for the task scheduler.
type Config struct {
	// StalenessThreshold is the active-task age before eviction.
	StalenessThreshold time.Duration
	// CoolOffWindow is the post-completion rejection window.
	CoolOffWindow time.Duration
	// Importance maps entity types to priorities. Higher integers mean more
	// important; unlisted types get DefaultPriority.
	Importance map[string]int
}

// DefaultConfig returns a Config with sensible defaults. The importance
// table mirrors the relative data value of the entity types: companies
// carry the most, bare job postings the least.
func DefaultConfig() Config {
	return Config{
		StalenessThreshold: DefaultStalenessThreshold,
		CoolOffWindow:      DefaultCoolOffWindow,
		Importance: map[string]int{
			"company": 3,
			"profile": 2,
			"job":     1,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StalenessThreshold <= 0 {
		return fmt.Errorf("staleness threshold must be positive")
	}
	if c.CoolOffWindow <= 0 {
		return fmt.Errorf("cool-off window must be positive")
	}
	return nil
}

// Accepted is the synchronous result of a successful schedule call.
type Accepted struct {
	TaskID   string `json:"task_id"`
	Priority int    `json:"priority"`
}

// activeEntry tracks a task from acceptance until terminal completion.
type activeEntry struct {
	task        *domain.Task
	scheduledAt time.Time
}

// Scheduler owns the dedup/priority index and the pending queue. All
// operations are atomic with respect to each other.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	config Config
	log    logger.Interface

	active    map[string]*activeEntry
	completed map[string]time.Time
	// generations counts schedulings per task ID so a stale executor can
	// detect it has been superseded and abort.
	generations map[string]uint64
	queue       taskHeap
	nextSeq     uint64

	// now is swappable in tests.
	now func() time.Time
}

// New creates a scheduler.
func New(cfg Config, log logger.Interface) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Scheduler{
		config:      cfg,
		log:         log,
		active:      make(map[string]*activeEntry),
		completed:   make(map[string]time.Time),
		generations: make(map[string]uint64),
		now:         time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Schedule accepts a work request unless an equivalent task is already in
// flight or recently completed. An active task older than the staleness
// threshold is evicted and superseded; its original executor, if still
// alive, will fail the Owns check before its next store write.
func (s *Scheduler) Schedule(taskType, entityType, entityID, url string) (*Accepted, error) {
	taskID := domain.TaskID(entityType, entityID)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if entry, ok := s.active[taskID]; ok {
		if now.Sub(entry.scheduledAt) <= s.config.StalenessThreshold {
			s.log.Debug("task already in progress, rejecting", "task_id", taskID)
			return nil, &domain.ConflictError{TaskID: taskID, Reason: domain.ConflictDuplicateInFlight}
		}

		// Abandoned by a crashed or hung worker: reclaim. The generation
		// bump below supersedes the old executor.
		s.log.Warn("evicting stale active task",
			"task_id", taskID,
			"age", now.Sub(entry.scheduledAt).String(),
		)
		delete(s.active, taskID)
	}

	if completedAt, ok := s.completed[taskID]; ok {
		if now.Sub(completedAt) < s.config.CoolOffWindow {
			s.log.Debug("task recently completed, rejecting", "task_id", taskID)
			return nil, &domain.ConflictError{TaskID: taskID, Reason: domain.ConflictRecentlyCompleted}
		}
		delete(s.completed, taskID)
	}

	priority := s.priorityFor(entityType)
	s.generations[taskID]++

	task := &domain.Task{
		ID:         taskID,
		Type:       taskType,
		EntityType: entityType,
		EntityID:   entityID,
		URL:        url,
		Priority:   priority,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Generation: s.generations[taskID],
	}

	s.active[taskID] = &activeEntry{task: task, scheduledAt: now}
	s.nextSeq++
	s.queue.push(&queueEntry{task: task, priority: priority, seq: s.nextSeq})
	s.cond.Signal()

	s.log.Info("task scheduled",
		"task_id", taskID,
		"priority", priority,
		"generation", task.Generation,
	)

	return &Accepted{TaskID: taskID, Priority: priority}, nil
}

// priorityFor looks up an entity type in the importance table.
func (s *Scheduler) priorityFor(entityType string) int {
	if p, ok := s.config.Importance[entityType]; ok {
		return p
	}
	return DefaultPriority
}

// Next blocks until a task is available or the context is cancelled.
// Priority is a soft hint: concurrent callers do not observe strict
// priority-then-FIFO ordering under contention.
func (s *Scheduler) Next(ctx context.Context) (*domain.Task, error) {
	// Wake the cond wait when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry := s.queue.pop(); entry != nil {
			return entry.task, nil
		}
		s.cond.Wait()
	}
}

// Owns reports whether the given generation is still the current scheduling
// of the task. A stale executor must check this before writing state and
// abort when superseded.
func (s *Scheduler) Owns(taskID string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[taskID] == generation
}

// MarkComplete removes the task from the active set and starts its cool-off
// window.
func (s *Scheduler) MarkComplete(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[taskID]; ok {
		delete(s.active, taskID)
	}
	s.completed[taskID] = s.now()
}

// PurgeCoolOff drops cool-off entries whose window has elapsed and returns
// how many were removed.
func (s *Scheduler) PurgeCoolOff() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for taskID, completedAt := range s.completed {
		if now.Sub(completedAt) >= s.config.CoolOffWindow {
			delete(s.completed, taskID)
			purged++
		}
	}
	return purged
}

// StaleCount returns how many active tasks exceed the staleness threshold.
// Used by the maintenance sweep for visibility; reclamation itself happens
// lazily on the next Schedule call for the same ID.
func (s *Scheduler) StaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stale := 0
	for _, entry := range s.active {
		if now.Sub(entry.scheduledAt) > s.config.StalenessThreshold {
			stale++
		}
	}
	return stale
}

// ClearAll resets all scheduler state. Used for test isolation and
// operator-driven recovery, not during normal operation.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = make(map[string]*activeEntry)
	s.completed = make(map[string]time.Time)
	s.generations = make(map[string]uint64)
	s.queue = nil
	s.log.Info("scheduler state cleared")
}

// Stats is a point-in-time view of scheduler state.
type Stats struct {
	Active     int `json:"active"`
	Queued     int `json:"queued"`
	CoolingOff int `json:"cooling_off"`
	Stale      int `json:"stale"`
}

// Status returns scheduler statistics.
func (s *Scheduler) Status() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stale := 0
	for _, entry := range s.active {
		if now.Sub(entry.scheduledAt) > s.config.StalenessThreshold {
			stale++
		}
	}

	return Stats{
		Active:     len(s.active),
		Queued:     s.queue.Len(),
		CoolingOff: len(s.completed),
		Stale:      stale,
	}
}

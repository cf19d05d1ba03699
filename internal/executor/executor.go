// Package executor drives claimed tasks through a bounded retry, backoff,
// and timeout state machine, coordinating resource acquisition, session
// authentication, extraction, and result persistence.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/extractor"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
	"github.com/jonesrussell/goharvest/internal/storage"
	"github.com/jonesrussell/goharvest/internal/store"
)

const (
	// DefaultMaxRetries is the attempt budget per task.
	DefaultMaxRetries = 3

	// DefaultMaxExecutionTime is the wall-clock budget per task, checked
	// cooperatively at phase boundaries.
	DefaultMaxExecutionTime = 300 * time.Second

	// DefaultWorkers is the number of concurrent execution workers.
	DefaultWorkers = 4

	// backoffBase is the exponent base for the retry backoff in seconds.
	backoffBase = 2
)

// errSuperseded aborts an execution whose scheduling generation has been
// replaced. Never written to the store; the superseding execution owns the
// record now.
var errSuperseded = errors.New("execution superseded")

// Phase is a step in the execution state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAcquiringResource
	PhaseAuthenticating
	PhaseExtracting
	PhasePersisting
	PhaseCompleted
	PhaseFailed
)

// String returns the string representation of a phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseAcquiringResource:
		return "acquiring_resource"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseExtracting:
		return "extracting"
	case PhasePersisting:
		return "persisting"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds configuration for the executor.
type Config struct {
	// MaxRetries is the attempt budget per task.
	MaxRetries int
	// MaxExecutionTime is the wall-clock budget per task.
	MaxExecutionTime time.Duration
	// Workers is the number of concurrent execution workers.
	Workers int
	// AccountKey identifies the account whose session is used for
	// extraction.
	AccountKey string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       DefaultMaxRetries,
		MaxExecutionTime: DefaultMaxExecutionTime,
		Workers:          DefaultWorkers,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.MaxExecutionTime <= 0 {
		return fmt.Errorf("max execution time must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

// Dependencies are the collaborators an executor coordinates.
type Dependencies struct {
	Pool      *pool.Pool
	Sessions  *session.Manager
	Scheduler *scheduler.Scheduler
	Store     store.TaskStore
	Extractor extractor.Extractor
	Sink      storage.ResultSink
	Logger    logger.Interface
}

// Executor runs the per-task state machine. A single Executor serves all
// workers; it holds no per-task state of its own.
type Executor struct {
	config    Config
	pool      *pool.Pool
	sessions  *session.Manager
	scheduler *scheduler.Scheduler
	store     store.TaskStore
	extractor extractor.Extractor
	sink      storage.ResultSink
	log       logger.Interface

	// now, sleep, and jitter are swappable in tests.
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New creates an executor.
func New(cfg Config, deps Dependencies) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Pool == nil || deps.Sessions == nil || deps.Scheduler == nil ||
		deps.Store == nil || deps.Extractor == nil || deps.Sink == nil {
		return nil, fmt.Errorf("all dependencies are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOp()
	}

	return &Executor{
		config:    cfg,
		pool:      deps.Pool,
		sessions:  deps.Sessions,
		scheduler: deps.Scheduler,
		store:     deps.Store,
		extractor: deps.Extractor,
		sink:      deps.Sink,
		log:       deps.Logger.WithComponent("executor"),
		now:       time.Now,
		sleep:     sleepContext,
		jitter:    func() float64 { return 1 - rand.Float64() },
	}, nil
}

// Execute drives one task to a terminal state. It returns the terminal
// failure when the task fails, and nil when the task completes or the
// execution was superseded or cancelled before reaching a terminal state.
// Retryable failures are consumed internally and never surfaced.
func (e *Executor) Execute(ctx context.Context, task *domain.Task) error {
	log := e.log.With(
		"task_id", task.ID,
		"execution_id", uuid.New().String(),
		"generation", task.Generation,
	)
	deadline := e.now().Add(e.config.MaxExecutionTime)

	// Observable before any resource work, so pollers never see a stale
	// pending status while the task is being worked.
	if err := e.writeRecord(ctx, task, domain.StatusInProgress, 0, "", ""); err != nil {
		if errors.Is(err, errSuperseded) {
			log.Warn("superseded before start, aborting")
			return nil
		}
		log.Error("failed to write initial status", "error", err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		if e.now().After(deadline) {
			return e.fail(ctx, task, attempt-1, domain.ErrDeadlineExceeded, log)
		}

		attemptErr := e.runAttempt(ctx, task, attempt, log)
		if attemptErr == nil {
			return nil
		}
		if errors.Is(attemptErr, errSuperseded) {
			log.Warn("superseded mid-execution, aborting", "attempt", attempt)
			return nil
		}
		if !domain.IsRetryable(attemptErr) {
			return e.fail(ctx, task, attempt-1, attemptErr, log)
		}

		lastErr = attemptErr
		log.Warn("attempt failed",
			"attempt", attempt,
			"max_retries", e.config.MaxRetries,
			"error", attemptErr.Error(),
		)
		if err := e.writeRecord(ctx, task, domain.StatusInProgress, attempt, attemptErr.Error(), ""); err != nil {
			if errors.Is(err, errSuperseded) {
				return nil
			}
			log.Error("failed to record attempt failure", "error", err.Error())
		}

		if attempt == e.config.MaxRetries {
			break
		}

		// Sleep the full backoff; the loop-top check declares the timeout
		// only once the budget has actually elapsed.
		if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
			// Shutdown during backoff. Leave the task in flight; the
			// staleness sweep reclaims it on the next submission.
			log.Info("execution cancelled during backoff", "attempt", attempt)
			return nil
		}
	}

	return e.fail(ctx, task, e.config.MaxRetries,
		fmt.Errorf("%w: %s", domain.ErrMaxRetries, lastErr), log)
}

// runAttempt performs one pass through the acquire/authenticate/extract/
// persist phases. A nil return means the task reached Completed.
func (e *Executor) runAttempt(ctx context.Context, task *domain.Task, attempt int, log logger.Interface) error {
	log.Debug("phase transition", "phase", PhaseAcquiringResource.String(), "attempt", attempt)
	res, err := e.pool.Acquire(pool.TierFor(task.Priority), task.Priority)
	if err != nil {
		return err
	}

	log.Debug("phase transition",
		"phase", PhaseAuthenticating.String(),
		"resource", res.ID,
	)
	sess, err := e.sessions.GetSession(ctx, e.config.AccountKey)
	if err != nil {
		if errors.Is(err, domain.ErrNoCredentials) {
			// Not the resource's fault; return it without penalty.
			e.pool.Release(res, pool.OutcomeSuccess)
			return err
		}
		e.pool.Release(res, pool.OutcomeFailure)
		return err
	}

	log.Debug("phase transition", "phase", PhaseExtracting.String())
	result, err := e.extractor.Extract(ctx, res, sess, task.URL)
	if err != nil || result.IsEmpty() {
		e.pool.Release(res, pool.OutcomeFailure)
		e.sessions.MarkFailure(e.config.AccountKey)
		if err == nil {
			err = fmt.Errorf("%w: empty result", domain.ErrExtractionFailed)
		}
		return err
	}

	e.pool.Release(res, pool.OutcomeSuccess)
	e.sessions.MarkSuccess(e.config.AccountKey)

	result.EntityType = task.EntityType
	result.EntityID = task.EntityID

	return e.persist(ctx, task, attempt, result, log)
}

// persist writes the processing status, hands the result to the sink, and
// finalizes the task as Completed.
func (e *Executor) persist(ctx context.Context, task *domain.Task, attempt int, result *domain.RawResult, log logger.Interface) error {
	log.Debug("phase transition", "phase", PhasePersisting.String())
	if err := e.writeRecord(ctx, task, domain.StatusProcessing, attempt, "", ""); err != nil {
		return err
	}

	ref, err := e.sink.Persist(ctx, result)
	if err != nil {
		return fmt.Errorf("%w: persist result: %s", domain.ErrExtractionFailed, err)
	}

	if err := e.writeRecord(ctx, task, domain.StatusCompleted, attempt, "", ref); err != nil {
		return err
	}
	e.scheduler.MarkComplete(task.ID)

	log.Info("task completed",
		"phase", PhaseCompleted.String(),
		"attempts", attempt,
		"result_ref", ref,
	)
	return nil
}

// fail writes the terminal Failed record and surfaces the reason.
func (e *Executor) fail(ctx context.Context, task *domain.Task, attempts int, reason error, log logger.Interface) error {
	if err := e.writeRecord(ctx, task, domain.StatusFailed, attempts, reason.Error(), ""); err != nil {
		if errors.Is(err, errSuperseded) {
			log.Warn("superseded before terminal write, aborting")
			return nil
		}
		log.Error("failed to write terminal status", "error", err.Error())
	}
	e.scheduler.MarkComplete(task.ID)

	log.Error("task failed",
		"phase", PhaseFailed.String(),
		"attempts", attempts,
		"reason", reason.Error(),
	)
	return reason
}

// writeRecord upserts the task record unless this execution has been
// superseded by a newer scheduling of the same task ID.
func (e *Executor) writeRecord(ctx context.Context, task *domain.Task, status domain.Status, attempt int, errMsg, resultRef string) error {
	if !e.scheduler.Owns(task.ID, task.Generation) {
		return errSuperseded
	}

	rec := store.Record{
		TaskID:       task.ID,
		Status:       status,
		Attempt:      attempt,
		UpdatedAt:    e.now(),
		ErrorMessage: errMsg,
		ResultRef:    resultRef,
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert task %s: %w", task.ID, err)
	}
	return nil
}

// backoff computes the post-attempt sleep: 2^attempt seconds plus a jitter
// in (0,1] seconds so parallel workers do not retry in lockstep.
func (e *Executor) backoff(attempt int) time.Duration {
	base := time.Duration(1) * time.Second
	for range attempt {
		base *= backoffBase
	}
	return base + time.Duration(e.jitter()*float64(time.Second))
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package executor

import (
	"context"
	"errors"
	"sync"
)

// Run starts the configured number of workers, each pulling tasks from the
// scheduler and executing them until the context is cancelled. It blocks
// until all workers have drained.
func (e *Executor) Run(ctx context.Context) {
	e.log.Info("starting execution workers", "workers", e.config.Workers)

	var wg sync.WaitGroup
	for i := range e.config.Workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	e.log.Info("execution workers stopped")
}

// worker is the per-goroutine claim/execute loop.
func (e *Executor) worker(ctx context.Context, id int) {
	log := e.log.With("worker", id)
	log.Debug("worker started")

	for {
		task, err := e.scheduler.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Debug("worker stopping")
				return
			}
			log.Error("failed to claim task", "error", err.Error())
			continue
		}

		if execErr := e.Execute(ctx, task); execErr != nil {
			// Terminal failures are already recorded in the store; this is
			// operator visibility only.
			log.Warn("task ended in failure",
				"task_id", task.ID,
				"error", execErr.Error(),
			)
		}
	}
}

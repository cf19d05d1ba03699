// Package maintenance owns the periodic background sweeps: cool-off purge,
// stale-task visibility, proactive session rotation, and pool health
// logging.
package maintenance

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Runner drives the periodic sweeps on a cron schedule.
type Runner struct {
	cron      *cron.Cron
	schedule  string
	scheduler *scheduler.Scheduler
	sessions  *session.Manager
	pool      *pool.Pool
	log       logger.Interface
}

// NewRunner creates a maintenance runner. An empty schedule uses
// DefaultSchedule.
func NewRunner(
	schedule string,
	sched *scheduler.Scheduler,
	sessions *session.Manager,
	p *pool.Pool,
	log logger.Interface,
) *Runner {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	// Standard 5-field cron format (minute hour day month weekday).
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Runner{
		cron:      c,
		schedule:  schedule,
		scheduler: sched,
		sessions:  sessions,
		pool:      p,
		log:       log.WithComponent("maintenance"),
	}
}

// Start registers the sweep and starts the cron scheduler.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.Sweep); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.log.Info("maintenance runner started", "schedule", r.schedule)
	return nil
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("maintenance runner stopped")
}

// Sweep runs one maintenance pass. Exported so operators can trigger it
// out of band.
func (r *Runner) Sweep() {
	purged := r.scheduler.PurgeCoolOff()
	if purged > 0 {
		r.log.Info("purged cool-off entries", "count", purged)
	}

	if stale := r.scheduler.StaleCount(); stale > 0 {
		// Reclamation itself happens lazily on resubmission; this is the
		// operator's early warning.
		r.log.Warn("stale active tasks detected", "count", stale)
	}

	if r.sessions.ShouldRotate() {
		r.sessions.Rotate()
	}

	snap := r.pool.Status()
	r.log.Info("pool health",
		"total", snap.Total,
		"available", snap.Available,
		"cooling", snap.Cooling,
		"in_use", snap.InUse,
		"failed", snap.Failed,
	)
}

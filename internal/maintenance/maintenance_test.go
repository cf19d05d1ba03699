package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
)

func newRunner(t *testing.T) (*Runner, *scheduler.Scheduler) {
	t.Helper()
	log := logger.NewNoOp()

	sched, err := scheduler.New(scheduler.DefaultConfig(), log)
	require.NoError(t, err)

	p, err := pool.New([]string{"10.0.0.1:8080"}, pool.DefaultConfig(), log)
	require.NoError(t, err)

	sessions, err := session.NewManager(session.DefaultConfig(), nil, log)
	require.NoError(t, err)

	return NewRunner("", sched, sessions, p, log), sched
}

func TestSweepPurgesCoolOff(t *testing.T) {
	r, sched := newRunner(t)

	_, err := sched.Schedule("extract", "company", "42", "https://example.com/42")
	require.NoError(t, err)
	sched.MarkComplete("company:42")
	require.Equal(t, 1, sched.Status().CoolingOff)

	// Within the window nothing is purged.
	r.Sweep()
	assert.Equal(t, 1, sched.Status().CoolingOff)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r, _ := newRunner(t)
	r.schedule = "not a cron spec"
	assert.Error(t, r.Start())
}

func TestStartAndStop(t *testing.T) {
	r, _ := newRunner(t)
	require.NoError(t, r.Start())
	r.Stop()
}

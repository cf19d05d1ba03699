package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

func newTestPool(t *testing.T, endpoints []string, cfg Config) (*Pool, *time.Time) {
	t.Helper()

	p, err := New(endpoints, cfg, logger.NewNoOp())
	require.NoError(t, err)

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestNewPartitionsTiersByThirds(t *testing.T) {
	endpoints := []string{"a", "b", "c", "d", "e", "f", "g"}
	p, _ := newTestPool(t, endpoints, DefaultConfig())

	snap := p.Status()
	assert.Equal(t, 7, snap.Total)
	assert.Equal(t, 2, snap.Tiers["tier1"].Total)
	assert.Equal(t, 2, snap.Tiers["tier2"].Total)
	assert.Equal(t, 3, snap.Tiers["tier3"].Total)
}

func TestAcquirePrefersLeastUsed(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b", "c"}, DefaultConfig())

	// Single-tier pools still resolve through tier fallback; with three
	// endpoints each tier holds one.
	first, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)
	p.Release(first, OutcomeSuccess)

	// "a" now has usage 1, so the next tier-1 request should still prefer
	// it only if nothing else is eligible in tier 1. Tier 1 has only "a",
	// so it is selected again before falling back.
	second, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", second.ID)
}

func TestAcquireSpreadsLoadWithinTier(t *testing.T) {
	// Six endpoints: tier1 = {a, b}, tier2 = {c, d}, tier3 = {e, f}.
	p, _ := newTestPool(t, []string{"a", "b", "c", "d", "e", "f"}, DefaultConfig())

	r1, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", r1.ID)
	p.Release(r1, OutcomeSuccess)

	r2, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", r2.ID, "least-used resource should be picked")
}

func TestAcquireFallsBackThroughTiers(t *testing.T) {
	p, now := newTestPool(t, []string{"a", "b", "c"}, DefaultConfig())

	// Fail tier1's only resource so it cools.
	r, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	require.Equal(t, "a", r.ID)
	p.Release(r, OutcomeFailure)

	// Tier 1 is cooling: a tier-1 request falls back to tier 2.
	r2, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", r2.ID)
	assert.Equal(t, Tier2, r2.Tier)

	// After the cooldown elapses, tier 1 is preferred again.
	p.Release(r2, OutcomeSuccess)
	*now = now.Add(DefaultBaseCooldown + time.Second)

	r3, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", r3.ID)
}

func TestAcquireMinTierSelection(t *testing.T) {
	// Six endpoints: tier1 = {a, b}, tier2 = {c, d}, tier3 = {e, f}.
	p, _ := newTestPool(t, []string{"a", "b", "c", "d", "e", "f"}, DefaultConfig())

	// An explicit tier wins over the importance mapping.
	r, err := p.Acquire(Tier2, 1)
	require.NoError(t, err)
	assert.Equal(t, Tier2, r.Tier)

	// An unknown tier falls back to the importance-derived one.
	r2, err := p.Acquire(Tier(0), 3)
	require.NoError(t, err)
	assert.Equal(t, Tier3, r2.Tier)
}

func TestAcquireExhausted(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b", "c"}, DefaultConfig())

	for range 3 {
		r, err := p.Acquire(Tier1, 1)
		require.NoError(t, err)
		p.Release(r, OutcomeFailure)
	}

	_, err := p.Acquire(Tier1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrResourceExhausted))
}

func TestAcquireExcludesInUseResources(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b", "c"}, DefaultConfig())

	r1, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)

	// "a" is held; the same request must not hand it out twice.
	r2, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)
}

func TestCooldownGrowsExponentiallyAndCaps(t *testing.T) {
	cfg := Config{BaseCooldown: 60 * time.Second, MaxCooldown: 3600 * time.Second}
	p, now := newTestPool(t, []string{"a"}, cfg)

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{7, 3600 * time.Second},  // 60*2^6 = 3840 > cap
		{20, 3600 * time.Second}, // stays capped, no overflow
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.cooldownFor(tt.failures), "failures=%d", tt.failures)
	}

	// Three consecutive failures leave cooldown = base*4.
	r := p.resources[0]
	for range 3 {
		r.state = StateInUse
		p.Release(r, OutcomeFailure)
	}
	assert.Equal(t, 3, r.FailureCount())
	assert.Equal(t, now.Add(240*time.Second), r.CooldownUntil())
}

func TestReleaseSuccessResetsCooldownAndDecrementsFailures(t *testing.T) {
	p, _ := newTestPool(t, []string{"a"}, DefaultConfig())
	r := p.resources[0]

	r.state = StateInUse
	p.Release(r, OutcomeFailure)
	require.Equal(t, 1, r.FailureCount())
	require.False(t, r.CooldownUntil().IsZero())

	r.state = StateInUse
	p.Release(r, OutcomeSuccess)
	assert.Equal(t, 0, r.FailureCount())
	assert.True(t, r.CooldownUntil().IsZero())

	// Floor at zero.
	r.state = StateInUse
	p.Release(r, OutcomeSuccess)
	assert.Equal(t, 0, r.FailureCount())
}

func TestStatusSnapshot(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b", "c"}, DefaultConfig())

	r1, err := p.Acquire(Tier1, 1)
	require.NoError(t, err)

	r2, err := p.Acquire(Tier2, 2)
	require.NoError(t, err)
	p.Release(r2, OutcomeFailure)

	snap := p.Status()
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 1, snap.InUse)
	assert.Equal(t, 1, snap.Cooling)
	assert.Equal(t, 1, snap.Available)
	assert.Equal(t, 1, snap.Failed)

	p.Release(r1, OutcomeSuccess)
	snap = p.Status()
	assert.Equal(t, 0, snap.InUse)
	assert.Equal(t, 2, snap.Available)
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, Tier1, TierFor(1))
	assert.Equal(t, Tier2, TierFor(2))
	assert.Equal(t, Tier3, TierFor(3))
	assert.Equal(t, Tier1, TierFor(0))
	assert.Equal(t, Tier1, TierFor(9))
}

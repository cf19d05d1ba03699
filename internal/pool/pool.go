package pool

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const (
	// DefaultBaseCooldown is the cooldown after a first failure.
	DefaultBaseCooldown = 60 * time.Second

	// DefaultMaxCooldown caps the exponential cooldown growth.
	DefaultMaxCooldown = 3600 * time.Second
)

// Config holds configuration for the resource pool.
type Config struct {
	// BaseCooldown is the cooldown applied after a resource's first failure.
	BaseCooldown time.Duration
	// MaxCooldown is the upper bound on any single cooldown window.
	MaxCooldown time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseCooldown: DefaultBaseCooldown,
		MaxCooldown:  DefaultMaxCooldown,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseCooldown <= 0 {
		return fmt.Errorf("base cooldown must be positive")
	}
	if c.MaxCooldown < c.BaseCooldown {
		return fmt.Errorf("max cooldown must be >= base cooldown")
	}
	return nil
}

// Pool owns all Resource state. Acquire and Release are atomic with respect
// to each other; no resource is ever held by two executors at once.
type Pool struct {
	mu        sync.Mutex
	resources []*Resource
	config    Config
	log       logger.Interface

	// now is swappable in tests.
	now func() time.Time
}

// New creates a pool from a list of endpoints, partitioned into three tiers
// by declared order: the first third is tier 1, the middle third tier 2, and
// the remainder tier 3.
func New(endpoints []string, cfg Config, log logger.Interface) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pool{
		config: cfg,
		log:    log,
		now:    time.Now,
	}

	total := len(endpoints)
	tier1Count := total / tierCount
	tier2Count := tier1Count

	for i, ep := range endpoints {
		tier := Tier3
		switch {
		case i < tier1Count:
			tier = Tier1
		case i < tier1Count+tier2Count:
			tier = Tier2
		}
		p.resources = append(p.resources, &Resource{
			ID:   ep,
			Tier: tier,
			seq:  i,
		})
	}

	log.Info("resource pool loaded",
		"total", total,
		"tier1", tier1Count,
		"tier2", tier2Count,
		"tier3", total-tier1Count-tier2Count,
	)

	return p, nil
}

// LoadEndpoints reads egress endpoints from a plain text file, one per line.
// Blank lines and lines starting with "//" are ignored.
func LoadEndpoints(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open resource file: %w", err)
	}
	defer f.Close()

	var endpoints []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		endpoints = append(endpoints, line)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("read resource file: %w", scanErr)
	}

	return endpoints, nil
}

// Acquire selects the best eligible resource. It tries minTier first, or the
// tier mapped from the task importance when minTier is not a known tier, then
// falls back through the remaining tiers in preference order. Among eligible
// resources it picks the one with the lowest usage count (tie-break: lowest
// failure count, then insertion order). Returns domain.ErrResourceExhausted
// when no resource is eligible in any tier.
func (p *Pool) Acquire(minTier Tier, importance int) (*Resource, error) {
	preferred := minTier
	if !preferred.IsValid() {
		preferred = TierFor(importance)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, tier := range p.tierOrder(preferred) {
		if r := p.selectFromTier(tier, now); r != nil {
			r.state = StateInUse
			r.usageCount++
			p.log.Debug("resource acquired",
				"resource", r.ID,
				"tier", r.Tier.String(),
				"usage", r.usageCount,
			)
			return r, nil
		}
	}

	p.log.Warn("no eligible resource in any tier")
	return nil, domain.ErrResourceExhausted
}

// tierOrder returns the tiers to try, preferred tier first, the rest in
// fixed preference order.
func (p *Pool) tierOrder(preferred Tier) []Tier {
	order := make([]Tier, 0, tierCount)
	order = append(order, preferred)
	for _, t := range AllTiers() {
		if t != preferred {
			order = append(order, t)
		}
	}
	return order
}

// selectFromTier picks the least-used eligible resource in a tier.
// Caller must hold the lock.
func (p *Pool) selectFromTier(tier Tier, now time.Time) *Resource {
	var best *Resource
	for _, r := range p.resources {
		if r.Tier != tier || !r.eligible(now) {
			continue
		}
		if best == nil || less(r, best) {
			best = r
		}
	}
	return best
}

// less orders resources by usage count, then failure count, then insertion
// order.
func less(a, b *Resource) bool {
	if a.usageCount != b.usageCount {
		return a.usageCount < b.usageCount
	}
	if a.failureCount != b.failureCount {
		return a.failureCount < b.failureCount
	}
	return a.seq < b.seq
}

// Release returns a resource to the pool. On success the failure count is
// decremented (floor 0) and any cooldown is cleared. On failure the failure
// count is incremented and the resource cools for
// min(base * 2^(failures-1), cap).
func (p *Pool) Release(r *Resource, outcome Outcome) {
	if r == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r.state = StateAvailable

	if outcome == OutcomeSuccess {
		if r.failureCount > 0 {
			r.failureCount--
		}
		r.cooldownUntil = time.Time{}
		return
	}

	r.failureCount++
	cooldown := p.cooldownFor(r.failureCount)
	r.cooldownUntil = p.now().Add(cooldown)

	p.log.Warn("resource marked failed",
		"resource", r.ID,
		"failures", r.failureCount,
		"cooldown", cooldown.String(),
	)
}

// cooldownFor computes the capped exponential cooldown for a failure count.
func (p *Pool) cooldownFor(failures int) time.Duration {
	cooldown := p.config.BaseCooldown
	for i := 1; i < failures; i++ {
		cooldown *= 2
		if cooldown >= p.config.MaxCooldown {
			return p.config.MaxCooldown
		}
	}
	if cooldown > p.config.MaxCooldown {
		return p.config.MaxCooldown
	}
	return cooldown
}

// TierStats holds per-tier counts for a status snapshot.
type TierStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Cooling   int `json:"cooling"`
	InUse     int `json:"in_use"`
}

// Snapshot is a point-in-time view of pool health.
type Snapshot struct {
	Total     int                  `json:"total"`
	Available int                  `json:"available"`
	Cooling   int                  `json:"cooling"`
	InUse     int                  `json:"in_use"`
	Failed    int                  `json:"failed"`
	Tiers     map[string]TierStats `json:"tiers"`
}

// Status returns a snapshot of the pool.
func (p *Pool) Status() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	snap := Snapshot{Tiers: make(map[string]TierStats, tierCount)}
	for _, tier := range AllTiers() {
		snap.Tiers[tier.String()] = TierStats{}
	}

	for _, r := range p.resources {
		ts := snap.Tiers[r.Tier.String()]
		ts.Total++
		snap.Total++

		switch {
		case r.state == StateInUse:
			ts.InUse++
			snap.InUse++
		case r.cooldownUntil.After(now):
			ts.Cooling++
			snap.Cooling++
		default:
			ts.Available++
			snap.Available++
		}

		if r.failureCount > 0 {
			snap.Failed++
		}

		snap.Tiers[r.Tier.String()] = ts
	}

	return snap
}

// Size returns the total number of resources in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}

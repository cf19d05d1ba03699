// Package pool manages a finite set of egress resources grouped into
// quality tiers, with usage tracking, failure counts, and time-based
// cooldowns.
package pool

import (
	"time"
)

// Tier is a ranked group of egress resources. Lower is better.
type Tier int

const (
	// Tier1 holds the highest-quality resources.
	Tier1 Tier = 1
	// Tier2 holds medium-reliability resources.
	Tier2 Tier = 2
	// Tier3 holds backup resources.
	Tier3 Tier = 3

	// tierCount is the number of tiers resources are partitioned into.
	tierCount = 3
)

// String returns the string representation of a tier.
func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return "unknown"
	}
}

// IsValid returns true if the tier is a valid value.
func (t Tier) IsValid() bool {
	return t >= Tier1 && t <= Tier3
}

// AllTiers returns all tiers in preference order (best first).
func AllTiers() []Tier {
	return []Tier{Tier1, Tier2, Tier3}
}

// TierFor maps a task importance to the tier it should draw from.
// Importance values outside 1..3 fall back to Tier1.
func TierFor(importance int) Tier {
	t := Tier(importance)
	if !t.IsValid() {
		return Tier1
	}
	return t
}

// ResourceState represents whether a resource is currently held.
type ResourceState int

const (
	// StateAvailable means the resource may be acquired.
	StateAvailable ResourceState = iota
	// StateInUse means exactly one executor currently holds the resource.
	StateInUse
)

// Resource is a single egress endpoint. All mutable fields are owned by the
// Pool and must only be touched under its lock.
type Resource struct {
	// ID is the endpoint address, e.g. "203.0.113.7:8080".
	ID string
	// Tier is the quality tier the resource was assigned at load time.
	Tier Tier

	state         ResourceState
	usageCount    int
	failureCount  int
	cooldownUntil time.Time
	// seq is the insertion order, used as the final selection tie-break.
	seq int
}

// UsageCount returns how many times the resource has been acquired.
func (r *Resource) UsageCount() int { return r.usageCount }

// FailureCount returns the current consecutive-failure pressure.
func (r *Resource) FailureCount() int { return r.failureCount }

// CooldownUntil returns when the resource becomes eligible again.
// The zero time means no cooldown.
func (r *Resource) CooldownUntil() time.Time { return r.cooldownUntil }

// eligible reports whether the resource can be acquired at the given time.
func (r *Resource) eligible(now time.Time) bool {
	return r.state == StateAvailable && !r.cooldownUntil.After(now)
}

// Outcome reports how a task used a resource.
type Outcome int

const (
	// OutcomeSuccess means the attempt using the resource succeeded.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the attempt failed and the resource should cool.
	OutcomeFailure
)

// String returns the string representation of an outcome.
func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

package ratelimit

import (
	"time"
)

// Result contains the outcome of a cooldown check
type Result struct {
	ShouldBlock   bool
	RemainingTime time.Duration
	Reason        string
}

// Cooldown throttles interactive mailbox checks per user. Scheduled sweeps
// pass forced and are never blocked.
type Cooldown struct {
	Period time.Duration
	now    func() time.Time
}

// NewCooldown creates a cooldown of the given period. A zero period disables it.
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{Period: period, now: time.Now}
}

// Check reports whether a check should be refused given when the previous
// one completed
func (c *Cooldown) Check(lastCheck *time.Time, forced bool) Result {
	if c == nil || c.Period <= 0 {
		return Result{Reason: "cooldown_disabled"}
	}

	if forced {
		return Result{Reason: "forced_check"}
	}

	if lastCheck == nil {
		return Result{Reason: "no_previous_check"}
	}

	elapsed := c.now().Sub(*lastCheck)
	if elapsed < c.Period {
		return Result{
			ShouldBlock:   true,
			RemainingTime: c.Period - elapsed,
			Reason:        "cooldown_active",
		}
	}

	return Result{Reason: "cooldown_passed"}
}

// RetryAfterSeconds rounds the remaining wait up to whole seconds
func (r Result) RetryAfterSeconds() int {
	if r.RemainingTime <= 0 {
		return 0
	}
	return int((r.RemainingTime + time.Second - 1) / time.Second)
}

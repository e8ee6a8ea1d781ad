package usecase

import (
	"context"
	"math"
	"time"
)

// BackoffPolicy bounds a retry loop. MaxAttempts counts every attempt,
// including the first one.
type BackoffPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
}

// Delay returns the wait after the given number of failed attempts.
func (p BackoffPolicy) Delay(failures int) time.Duration {
	if failures < 1 || p.Base <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.Base) * math.Pow(multiplier, float64(failures-1))
	if p.Max > 0 && delay > float64(p.Max) {
		return p.Max
	}
	return time.Duration(delay)
}

func (p BackoffPolicy) Start() *RetryState {
	return &RetryState{policy: p}
}

// RetryState tracks one bounded retry loop: how many attempts failed and when
// the next one becomes eligible.
type RetryState struct {
	policy         BackoffPolicy
	Attempts       int
	NextEligibleAt time.Time
}

// Failed records a failed attempt made at now. It returns false once the
// attempt ceiling is reached; otherwise NextEligibleAt is advanced.
func (r *RetryState) Failed(now time.Time) bool {
	r.Attempts++
	if r.Exhausted() {
		r.NextEligibleAt = time.Time{}
		return false
	}
	r.NextEligibleAt = now.Add(r.policy.Delay(r.Attempts))
	return true
}

func (r *RetryState) Exhausted() bool {
	limit := r.policy.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	return r.Attempts >= limit
}

// WaitDuration is how long to wait at now before the next attempt.
func (r *RetryState) WaitDuration(now time.Time) time.Duration {
	if r.NextEligibleAt.IsZero() || !r.NextEligibleAt.After(now) {
		return 0
	}
	return r.NextEligibleAt.Sub(now)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

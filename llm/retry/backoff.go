// Package retry provides the jittered exponential backoff used by the engine
// between rate-limited dispatch attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures backoff pacing. It does not bound the number of attempts;
// the engine owns that via the request's retry budget.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultPolicy returns pacing suited to LLM API throttling.
func DefaultPolicy() *Policy {
	return &Policy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// NoDelay returns a policy that retries immediately.
func NoDelay() *Policy { return &Policy{} }

// Delay computes the pause before the given attempt (attempt >= 1).
func (p *Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// ±25% jitter so simultaneous clients do not retry in lockstep.
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}

// Wait sleeps for the attempt's delay, returning early with the context
// error if the caller cancels.
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	defaultAttempts = 10
	defaultInitial  = 100 * time.Millisecond
	defaultMax      = 10 * time.Second
)

// Policy bounds a retry loop. Each wait doubles the previous one, starting at
// Initial and capped at Max. Attempts counts calls, not retries.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultPolicy is used for connection establishment at startup.
func DefaultPolicy() Policy {
	return Policy{Attempts: defaultAttempts, Initial: defaultInitial, Max: defaultMax}
}

// Backoff returns the wait before retry number attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.Initial) * math.Pow(2, float64(attempt))
	if d >= float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = defaultInitial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// Notify is called after every failed attempt. wait is zero on the last
// attempt, when no retry follows.
type Notify func(attempt int, err error, wait time.Duration)

// Do calls op until it succeeds, the policy is exhausted or ctx is done.
// The returned error wraps the last failure.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	p = p.normalized()

	var lastErr error
	for attempt := range p.Attempts {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		last := attempt == p.Attempts-1
		var wait time.Duration
		if !last {
			wait = p.Backoff(attempt)
		}
		if notify != nil {
			notify(attempt+1, lastErr, wait)
		}
		if last {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", p.Attempts, lastErr)
}

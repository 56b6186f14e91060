package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds retries of an external call: attempt count plus an
// exponential backoff schedule with jitter. One Policy value is shared by
// every call site so limits are not hand-duplicated.
type Policy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
}

// DefaultPolicy provides conservative broker-call defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Min:         100 * time.Millisecond,
		Max:         2 * time.Second,
		Factor:      2.0,
		Jitter:      0.2,
	}
}

// Next returns the backoff duration for the given attempt (1-based).
func (p Policy) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := p.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := p.Max
	if max <= 0 {
		max = 2 * time.Second
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if p.Jitter <= 0 {
		return wait
	}
	jitter := p.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Do runs fn up to MaxAttempts times, sleeping the backoff duration between
// attempts. The last error is returned when every attempt fails.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Next(attempt)):
		}
	}
	return err
}

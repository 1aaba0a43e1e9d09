// Package ratelimit provides a jittered ticker-based limiter used to pace
// requests against the registration portal.
package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter paces operations at a fixed rate with optional random jitter.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	ch       <-chan time.Time
	interval time.Duration
	jitter   float64
}

// New creates a limiter allowing rps operations per second. jitter (0.0 to
// 1.0) randomizes each wait by up to that fraction of the interval, so the
// portal does not see perfectly periodic traffic. If rps <= 0 the limiter
// never blocks.
func New(rps, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)
	return &Limiter{
		ticker:   ticker,
		ch:       ticker.C,
		interval: interval,
		jitter:   jitter,
	}
}

// Wait blocks until the next permitted operation time or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
	}

	if l.jitter > 0 {
		// Extra sleep in [0, jitter*interval). Negative jitter is not
		// possible with a ticker, which already enforces the minimum
		// interval.
		extra := time.Duration(rand.Float64() * l.jitter * float64(l.interval))
		if extra > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(extra):
			}
		}
	}
	return nil
}

// Stop releases the limiter's ticker.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}

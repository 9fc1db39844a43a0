package data

import (
	"context"
	"sync"
	"time"

	"github.com/lacymorrow/trade/internal/metrics"
)

// rateLimiter enforces a budget of calls per rolling 60 second window.
// Acquire blocks until a slot frees up or the context is cancelled. The
// mutex is never held while sleeping.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limit:  perMinute,
		window: time.Minute,
		now:    time.Now,
	}
}

// Acquire reserves one call slot, waiting out the oldest stamp if the
// window is full.
func (rl *rateLimiter) Acquire(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := rl.now()
		cutoff := now.Add(-rl.window)
		kept := rl.stamps[:0]
		for _, s := range rl.stamps {
			if s.After(cutoff) {
				kept = append(kept, s)
			}
		}
		rl.stamps = kept

		if len(rl.stamps) < rl.limit {
			rl.stamps = append(rl.stamps, now)
			rl.mu.Unlock()
			return nil
		}

		wait := rl.stamps[0].Add(rl.window).Sub(now)
		rl.mu.Unlock()

		metrics.RateLimitWaits.Inc()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Package ratelimit provides a per-key sliding-window limiter used to
// pace outbound requests to upstream sources.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = time.Minute

// Limiter enforces at most n requests per key per sliding one-minute
// window. Keys are independent; a burst against one host never delays
// another.
type Limiter struct {
	perMinute int

	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// New returns a limiter allowing perMinute requests per key. Values
// below one fall back to 60.
func New(perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 60
	}
	return &Limiter{
		perMinute: perMinute,
		history:   make(map[string][]time.Time),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until a request for key is admissible, then records it.
// When the window is full it sleeps until the oldest timestamp expires.
// Returns early with the context error if ctx is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		now := l.now()
		ts := prune(l.history[key], now)
		if len(ts) < l.perMinute {
			l.history[key] = append(ts, now)
			l.mu.Unlock()
			return nil
		}
		wait := ts[0].Add(window).Sub(now)
		l.history[key] = ts
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Remaining reports how many requests the key can still make in the
// current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := prune(l.history[key], l.now())
	l.history[key] = ts
	return l.perMinute - len(ts)
}

func prune(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

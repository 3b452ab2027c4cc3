// Package ratelimit implements a per-key sliding-window rate limiter with
// exponential-backoff waiting and periodic eviction of idle keys.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// backoffSteps are the wait durations tried by WaitForSlot, in order; once
// the sequence is exhausted every further wait is maxBackoff.
var backoffSteps = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
}

const maxBackoff = time.Second

// Limiter is a sliding-window rate limiter keyed by an arbitrary string.
// Every checkLimit touch prunes timestamps outside the current window for
// that key, so per-key memory is bounded by maxRequests.
type Limiter struct {
	mu            sync.Mutex
	windowMs      int64
	maxRequests   int
	buckets       map[string][]int64
	sweepEvery    int
	sinceLastSweep int
	now           func() time.Time
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithSweepEvery overrides how many CheckLimit calls elapse between sweeps
// that purge keys with an empty window. Default: 1000.
func WithSweepEvery(n int) Option {
	return func(l *Limiter) { l.sweepEvery = n }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter allowing at most maxRequests per windowMs per key.
func New(maxRequests int, windowMs int64, opts ...Option) *Limiter {
	l := &Limiter{
		windowMs:    windowMs,
		maxRequests: maxRequests,
		buckets:     make(map[string][]int64),
		sweepEvery:  1000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) nowMs() int64 {
	return l.now().UnixMilli()
}

// pruneLocked returns key's timestamps with those at or before
// now-windowMs dropped. It does not store the result back.
// Must be called with l.mu held.
func (l *Limiter) pruneLocked(key string, now int64) []int64 {
	ts := l.buckets[key]
	cutoff := now - l.windowMs
	i := 0
	for i < len(ts) && ts[i] <= cutoff {
		i++
	}
	if i > 0 {
		ts = ts[i:]
	}
	return ts
}

// CheckLimit reports whether a call under key is allowed right now, pruning
// stale timestamps and, if allowed, recording the attempt.
func (l *Limiter) CheckLimit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMs()
	ts := l.pruneLocked(key, now)

	allowed := len(ts) < l.maxRequests
	if allowed {
		ts = append(ts, now)
	}
	if len(ts) == 0 {
		delete(l.buckets, key)
	} else {
		l.buckets[key] = ts
	}

	l.maybeSweepLocked()
	return allowed
}

// GetCurrentCount returns the number of timestamps for key within the
// current window, after pruning.
func (l *Limiter) GetCurrentCount(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.pruneLocked(key, l.nowMs())
	if len(ts) == 0 {
		delete(l.buckets, key)
	} else {
		l.buckets[key] = ts
	}
	return len(ts)
}

// GetTimeUntilSlot returns how long, in milliseconds, until key has a free
// slot: max(0, oldest+windowMs-now).
func (l *Limiter) GetTimeUntilSlot(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMs()
	ts := l.pruneLocked(key, now)
	if len(ts) == 0 {
		delete(l.buckets, key)
		return 0
	}
	l.buckets[key] = ts
	if len(ts) < l.maxRequests {
		return 0
	}
	wait := ts[0] + l.windowMs - now
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait) * time.Millisecond
}

// WaitForSlot blocks, retrying CheckLimit with exponential backoff
// (100/200/400/800ms, capped at 1000ms), until key is allowed or ctx is
// cancelled.
func (l *Limiter) WaitForSlot(ctx context.Context, key string) error {
	step := 0
	for {
		if l.CheckLimit(key) {
			return nil
		}
		d := maxBackoff
		if step < len(backoffSteps) {
			d = backoffSteps[step]
		}
		step++
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Clear drops rate-limit state for a single key.
func (l *Limiter) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// ClearAll drops all rate-limit state.
func (l *Limiter) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string][]int64)
}

// maybeSweepLocked purges keys whose window has gone fully empty, every
// sweepEvery CheckLimit calls. Must be called with l.mu held. This bounds
// memory growth under high key cardinality (e.g. per-IP limiting), which
// otherwise grows without bound as distinct keys come and go.
func (l *Limiter) maybeSweepLocked() {
	l.sinceLastSweep++
	if l.sinceLastSweep < l.sweepEvery {
		return
	}
	l.sinceLastSweep = 0
	now := l.nowMs()
	for k, ts := range l.buckets {
		pruned := l.pruneLocked(k, now)
		if len(pruned) == 0 {
			delete(l.buckets, k)
		} else if len(pruned) != len(ts) {
			l.buckets[k] = pruned
		}
	}
}

// Package queue implements bounded admission control for concurrent tool
// invocations, with three interchangeable strategies for what happens when
// the server is already at capacity.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Strategy selects what Acquire does when the queue is already at capacity.
type Strategy int

const (
	// StrategyReject fails immediately with ErrCapacityExceeded.
	StrategyReject Strategy = iota
	// StrategyQueue parks the caller on a FIFO wait list, woken one at a
	// time as capacity frees up.
	StrategyQueue
	// StrategySleep polls on a fixed interval instead of being woken.
	StrategySleep
)

// ErrCapacityExceeded is returned by Acquire under StrategyReject when the
// queue is already at maxConcurrent in-flight work.
type ErrCapacityExceeded struct {
	Limit int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: limit=%d", e.Limit)
}

// waiter is a one-shot wake primitive for StrategyQueue.
type waiter struct {
	wake chan struct{}
}

// Queue admits at most maxConcurrent pieces of concurrent work, per Strategy.
type Queue struct {
	mu            sync.Mutex
	maxConcurrent int
	inFlight      int
	strategy      Strategy
	sleepInterval time.Duration
	waiters       []*waiter
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithSleepInterval overrides the poll interval used by StrategySleep.
// Ignored by the other strategies. Default: 20ms.
func WithSleepInterval(d time.Duration) Option {
	return func(q *Queue) { q.sleepInterval = d }
}

// New builds a Queue admitting at most maxConcurrent concurrent holders.
func New(maxConcurrent int, strategy Strategy, opts ...Option) *Queue {
	q := &Queue{
		maxConcurrent: maxConcurrent,
		strategy:      strategy,
		sleepInterval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Acquire blocks (or fails) until inFlight < maxConcurrent, then admits the
// caller. Every successful Acquire must be matched by exactly one Release,
// including on error paths.
func (q *Queue) Acquire(ctx context.Context) error {
	switch q.strategy {
	case StrategyReject:
		return q.acquireReject()
	case StrategySleep:
		return q.acquireSleep(ctx)
	default:
		return q.acquireQueue(ctx)
	}
}

func (q *Queue) acquireReject() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight >= q.maxConcurrent {
		return &ErrCapacityExceeded{Limit: q.maxConcurrent}
	}
	q.inFlight++
	return nil
}

func (q *Queue) acquireSleep(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.inFlight < q.maxConcurrent {
			q.inFlight++
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.sleepInterval):
		}
	}
}

// acquireQueue implements FIFO admission. Release wakes at most one waiter,
// but a woken waiter must re-check capacity before claiming a slot: a newly
// arriving caller may have taken the freed slot first. On a
// lost race the waiter re-enqueues at the tail and keeps waiting — this
// recheck is an invariant, not an implementation detail.
func (q *Queue) acquireQueue(ctx context.Context) error {
	q.mu.Lock()
	if q.inFlight < q.maxConcurrent {
		q.inFlight++
		q.mu.Unlock()
		return nil
	}
	w := &waiter{wake: make(chan struct{}, 1)}
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	for {
		select {
		case <-w.wake:
			q.mu.Lock()
			if q.inFlight < q.maxConcurrent {
				q.inFlight++
				q.mu.Unlock()
				return nil
			}
			q.waiters = append(q.waiters, w)
			q.mu.Unlock()
		case <-ctx.Done():
			q.removeWaiter(w)
			return ctx.Err()
		}
	}
}

func (q *Queue) removeWaiter(target *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// Release decrements inFlight and, under StrategyQueue, wakes exactly one
// waiter. The wake signal is sent after the lock is released to avoid
// thundering-herd contention on re-acquisition of q.mu.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	var head *waiter
	if q.strategy == StrategyQueue && len(q.waiters) > 0 {
		head = q.waiters[0]
		q.waiters = q.waiters[1:]
	}
	q.mu.Unlock()

	if head != nil {
		head.wake <- struct{}{}
	}
}

// InFlight returns the current number of admitted holders.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Queued returns the number of waiters parked under StrategyQueue.
func (q *Queue) Queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// IsAtCapacity reports whether inFlight has reached maxConcurrent.
func (q *Queue) IsAtCapacity() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight >= q.maxConcurrent
}

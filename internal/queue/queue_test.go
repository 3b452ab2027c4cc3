package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReject_AtCapacity(t *testing.T) {
	q := New(1, StrategyReject)
	require.NoError(t, q.Acquire(context.Background()))

	err := q.Acquire(context.Background())
	require.Error(t, err)
	var capErr *ErrCapacityExceeded
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, capErr.Limit)

	q.Release()
	assert.NoError(t, q.Acquire(context.Background()))
}

func TestReject_NeverBlocks(t *testing.T) {
	q := New(1, StrategyReject)
	require.NoError(t, q.Acquire(context.Background()))
	start := time.Now()
	_ = q.Acquire(context.Background())
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestQueue_TwoClientsMaxOne is the spec's concrete scenario 1: client A
// acquires, B suspends in acquire, A releases, B resumes; inFlight ends at 0.
func TestQueue_TwoClientsMaxOne(t *testing.T) {
	q := New(1, StrategyQueue)
	require.NoError(t, q.Acquire(context.Background()))

	bDone := make(chan struct{})
	go func() {
		require.NoError(t, q.Acquire(context.Background()))
		close(bDone)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-bDone:
		t.Fatal("B should still be parked while A holds the only slot")
	default:
	}

	q.Release()

	select {
	case <-bDone:
	case <-time.After(time.Second):
		t.Fatal("B never resumed after A released")
	}
	q.Release()
	assert.Equal(t, 0, q.InFlight())
}

func TestQueue_FIFOOrdering(t *testing.T) {
	q := New(1, StrategyQueue)
	require.NoError(t, q.Acquire(context.Background()))

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, q.Acquire(context.Background()))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			q.Release()
		}(i)
		time.Sleep(10 * time.Millisecond) // stagger enqueue order
	}
	q.Release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	for i, n := range order {
		assert.Equal(t, i, n, "waiters should be woken in FIFO order")
	}
}

func TestQueue_ContextCancelRemovesWaiter(t *testing.T) {
	q := New(1, StrategyQueue)
	require.NoError(t, q.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- q.Acquire(ctx) }()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, q.Queued())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire never returned")
	}
	assert.Equal(t, 0, q.Queued())
	q.Release()
}

func TestSleep_PollsUntilCapacity(t *testing.T) {
	q := New(1, StrategySleep, WithSleepInterval(5*time.Millisecond))
	require.NoError(t, q.Acquire(context.Background()))

	done := make(chan struct{})
	go func() {
		require.NoError(t, q.Acquire(context.Background()))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep strategy never observed freed capacity")
	}
	q.Release()
}

func TestInvariant_InFlightNeverExceedsMax(t *testing.T) {
	const maxConcurrent = 4
	q := New(maxConcurrent, StrategyQueue)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, q.Acquire(context.Background()))
			mu.Lock()
			if f := q.InFlight(); f > maxObserved {
				maxObserved = f
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			q.Release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, maxObserved, maxConcurrent)
	assert.Equal(t, 0, q.InFlight())
}

func TestIsAtCapacity(t *testing.T) {
	q := New(1, StrategyReject)
	assert.False(t, q.IsAtCapacity())
	require.NoError(t, q.Acquire(context.Background()))
	assert.True(t, q.IsAtCapacity())
}

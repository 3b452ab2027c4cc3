package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckLimit_ThreeThenRefuse is the spec's concrete scenario 2:
// maxRequests=3, windowMs=50 — three admits, fourth refused, then admitted
// again after sleeping past the window.
func TestCheckLimit_ThreeThenRefuse(t *testing.T) {
	l := New(3, 50)
	assert.True(t, l.CheckLimit("x"))
	assert.True(t, l.CheckLimit("x"))
	assert.True(t, l.CheckLimit("x"))
	assert.False(t, l.CheckLimit("x"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.CheckLimit("x"))
}

func TestGetCurrentCount_MatchesWindow(t *testing.T) {
	l := New(10, 1000)
	for i := 0; i < 4; i++ {
		l.CheckLimit("k")
	}
	assert.Equal(t, 4, l.GetCurrentCount("k"))
}

func TestPruning_BoundsMemoryPerKey(t *testing.T) {
	l := New(2, 10)
	l.CheckLimit("k")
	l.CheckLimit("k")
	time.Sleep(20 * time.Millisecond)
	// Both prior timestamps are now outside the window; count must reset.
	assert.Equal(t, 0, l.GetCurrentCount("k"))
	assert.True(t, l.CheckLimit("k"))
}

func TestGetTimeUntilSlot(t *testing.T) {
	l := New(1, 100)
	assert.True(t, l.CheckLimit("k"))
	d := l.GetTimeUntilSlot("k")
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 100*time.Millisecond)
}

func TestGetTimeUntilSlot_ZeroWhenUnderLimit(t *testing.T) {
	l := New(5, 1000)
	assert.Equal(t, time.Duration(0), l.GetTimeUntilSlot("k"))
}

func TestWaitForSlot_UnblocksWhenWindowClears(t *testing.T) {
	l := New(1, 30)
	require.True(t, l.CheckLimit("k"))

	start := time.Now()
	err := l.WaitForSlot(context.Background(), "k")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitForSlot_RespectsContextCancellation(t *testing.T) {
	l := New(1, time.Hour.Milliseconds())
	require.True(t, l.CheckLimit("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.WaitForSlot(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClearAndClearAll(t *testing.T) {
	l := New(1, 1000)
	l.CheckLimit("a")
	l.CheckLimit("b")

	l.Clear("a")
	assert.Equal(t, 0, l.GetCurrentCount("a"))
	assert.Equal(t, 1, l.GetCurrentCount("b"))

	l.ClearAll()
	assert.Equal(t, 0, l.GetCurrentCount("b"))
}

func TestSweep_PurgesEmptyKeys(t *testing.T) {
	l := New(1, 10, WithSweepEvery(3))
	l.CheckLimit("a")
	time.Sleep(15 * time.Millisecond)
	// Three more CheckLimit calls on a different key trigger a sweep pass.
	l.CheckLimit("b")
	l.CheckLimit("b")
	l.CheckLimit("b")

	l.mu.Lock()
	_, stillPresent := l.buckets["a"]
	l.mu.Unlock()
	assert.False(t, stillPresent, "sweep should have purged a's fully-expired bucket")
}

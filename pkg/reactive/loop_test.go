package reactive

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsUrgentWorkBeforeTransitions(t *testing.T) {
	l := NewLoop()
	var order []string

	l.StartTransition(func() { order = append(order, "t1") })
	l.Dispatch(func() { order = append(order, "u1") })
	l.StartTransition(func() { order = append(order, "t2") })
	l.Dispatch(func() { order = append(order, "u2") })
	assert.True(t, l.pending.Peek())

	l.Drain()
	assert.Equal(t, []string{"u1", "u2", "t1", "t2"}, order)
	assert.False(t, l.pending.Peek())
}

func TestLoopInvoke(t *testing.T) {
	l := NewLoop()
	ran := false
	l.Invoke(func() { ran = true })
	assert.False(t, ran, "off-loop Invoke dispatches")
	l.Drain()
	assert.True(t, ran)

	ran = false
	l.Do(func() {
		l.Invoke(func() { ran = true })
		assert.True(t, ran, "on-loop Invoke runs inline")
	})
}

func TestLoopEffectsRunAfterTask(t *testing.T) {
	l := NewLoop()
	s := NewSignal(0)
	var seen []int

	l.Do(func() {
		CreateEffect(func() Cleanup {
			seen = append(seen, s.Get())
			return nil
		})
	})

	s.Set(1)
	assert.Equal(t, []int{0}, seen, "off-loop writes only schedule the effect")
	l.Drain()
	assert.Equal(t, []int{0, 1}, seen)

	l.Dispatch(func() {
		s.Set(2)
		s.Set(3)
	})
	l.Drain()
	assert.Equal(t, []int{0, 1, 3}, seen)
}

func TestLoopRecoversPanics(t *testing.T) {
	l := NewLoop()
	after := false
	l.Dispatch(func() { panic("boom") })
	l.Dispatch(func() { after = true })
	require.NotPanics(t, l.Drain)
	assert.True(t, after)
}

func TestLoopRunAndClose(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int32
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	for i := 0; i < 5; i++ {
		l.Dispatch(func() { count.Add(1) })
	}
	require.Eventually(t, func() bool { return count.Load() == 5 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	l.Close()
	l.Dispatch(func() { count.Add(1) })
	l.Drain()
	assert.Equal(t, int32(5), count.Load())
	assert.True(t, l.Owner().IsDisposed())
}

func TestIntervalStopsOnCleanup(t *testing.T) {
	l := NewLoop()
	var ticks atomic.Int32
	var stop Cleanup
	l.Do(func() {
		stop = Interval(2*time.Millisecond, func() { ticks.Add(1) })
	})

	drainUntil(t, l, func() bool { return ticks.Load() >= 3 })
	stop()
	stop()
	l.Drain()
	n := ticks.Load()

	time.Sleep(20 * time.Millisecond)
	l.Drain()
	assert.Equal(t, n, ticks.Load())
}

func TestHelpersRequireLoop(t *testing.T) {
	assert.PanicsWithValue(t, ErrNoLoop, func() { Interval(time.Second, func() {}) })
}

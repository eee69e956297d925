package turboresource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStaleScenario(t *testing.T) {
	h := newHarness[map[string]int](t, "A")
	start := h.clock.Now()
	h.cache.setExpiration("A", start.Add(1000*time.Millisecond))
	h.resolve("A", map[string]int{"id": 1})

	h.clock.Advance(500 * time.Millisecond)
	var (
		isStale func() bool
		staleIn func() time.Duration
	)
	h.on(func() { isStale, staleIn = h.actions.CreateStale(time.Millisecond) })

	assert.False(t, isStale())
	assert.Equal(t, 500*time.Millisecond, staleIn())

	h.clock.Advance(600 * time.Millisecond)
	drainUntil(t, h.loop, isStale)
	assert.Equal(t, time.Duration(0), staleIn())
}

func TestCreateStaleBoundary(t *testing.T) {
	h := newHarness[string](t, "a")
	exp := h.clock.Now().Add(time.Second)
	h.cache.setExpiration("a", exp)

	h.clock.Advance(time.Second - time.Millisecond)
	var (
		isStale func() bool
		staleIn func() time.Duration
	)
	h.on(func() { isStale, staleIn = h.actions.CreateStale(time.Millisecond) })
	assert.False(t, isStale())
	assert.Equal(t, time.Millisecond, staleIn())

	h.clock.Advance(time.Millisecond)
	drainUntil(t, h.loop, isStale)
	assert.Zero(t, staleIn())
}

func TestCreateStaleWithoutExpiration(t *testing.T) {
	h := newHarness[string](t, "a")
	var (
		isStale func() bool
		staleIn func() time.Duration
	)
	h.on(func() { isStale, staleIn = h.actions.CreateStale(time.Millisecond) })

	assert.True(t, isStale())
	assert.Zero(t, staleIn())
}

func TestCreateStaleWithoutKey(t *testing.T) {
	h := newHarness[string](t, NoKey)
	var isStale func() bool
	h.on(func() { isStale, _ = h.actions.CreateStale(time.Millisecond) })
	assert.True(t, isStale())
}

func TestCreateStaleRestartsOnKeyChange(t *testing.T) {
	h := newHarness[string](t, "a")
	now := h.clock.Now()
	h.cache.setExpiration("a", now.Add(-time.Second))
	h.cache.setExpiration("b", now.Add(10*time.Second))

	var (
		isStale func() bool
		staleIn func() time.Duration
	)
	h.on(func() { isStale, staleIn = h.actions.CreateStale(time.Hour) })
	require.True(t, isStale())

	h.setKey("b")
	assert.False(t, isStale())
	assert.Equal(t, 10*time.Second, staleIn())

	h.setKey("a")
	assert.True(t, isStale())
	assert.Zero(t, staleIn())
}

func TestCreateStaleStopsOnDispose(t *testing.T) {
	h := newHarness[string](t, "a")
	var isStale func() bool
	h.on(func() { isStale, _ = h.actions.CreateStale(time.Millisecond) })
	require.True(t, isStale())

	h.dispose()
	h.cache.setExpiration("a", h.clock.Now().Add(time.Hour))
	time.Sleep(10 * time.Millisecond)
	settle(h.loop)

	assert.True(t, isStale())
}

func TestCreateStaleRequiresLoop(t *testing.T) {
	h := newHarness[string](t, "a")
	assert.Panics(t, func() { h.actions.CreateStale(time.Second) })
}

func TestCreateFocusAvailable(t *testing.T) {
	h := newHarness[string](t, "a", WithFocusInterval(5*time.Second))
	h.awaitPending("a")

	var (
		available   func() bool
		availableIn func() time.Duration
	)
	h.on(func() { available, availableIn = h.actions.CreateFocusAvailable(time.Millisecond) })
	assert.True(t, available())
	assert.Zero(t, availableIn())

	h.env.Focus()
	h.loop.Drain()
	assert.False(t, available())
	assert.Equal(t, 5*time.Second, availableIn())

	h.clock.Advance(2 * time.Second)
	drainUntil(t, h.loop, func() bool { return availableIn() == 3*time.Second })
	assert.False(t, available())

	h.clock.Advance(4 * time.Second)
	drainUntil(t, h.loop, available)
	assert.Zero(t, availableIn())
}

func TestCreateFocusAvailableNeverNegative(t *testing.T) {
	h := newHarness[string](t, "a", WithFocusInterval(time.Second))
	h.awaitPending("a")
	h.env.Focus()
	h.loop.Drain()

	var availableIn func() time.Duration
	h.on(func() { _, availableIn = h.actions.CreateFocusAvailable(time.Millisecond) })

	h.clock.Advance(time.Hour)
	drainUntil(t, h.loop, func() bool { return availableIn() == 0 })
	assert.GreaterOrEqual(t, availableIn(), time.Duration(0))
}

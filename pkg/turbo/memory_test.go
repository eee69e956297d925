package turbo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// gate is a fetcher whose calls block until released.
type gate struct {
	calls   atomic.Int32
	release chan struct{}
	value   func(key string) (any, error)
}

func newGate() *gate {
	return &gate{
		release: make(chan struct{}),
		value:   func(key string) (any, error) { return "value:" + key, nil },
	}
}

func (g *gate) fetch(ctx context.Context, key string) (any, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
		return g.value(key)
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func instant(ctx context.Context, key string) (any, error) {
	return "value:" + key, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Payload
	names  []Event
}

func (r *recorder) on(c Cache, key string) func() {
	var offs []func()
	for _, ev := range Events {
		ev := ev
		offs = append(offs, c.Subscribe(key, ev, func(p Payload) {
			r.mu.Lock()
			r.names = append(r.names, ev)
			r.events = append(r.events, p)
			r.mu.Unlock()
		}))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (r *recorder) seen() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.names...)
}

func wait(t *testing.T, p *Pending) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func TestPendingSettlesOnce(t *testing.T) {
	p := NewPending()
	_, _, ok := p.Result()
	assert.False(t, ok)

	assert.True(t, p.Settle(1, nil))
	assert.False(t, p.Settle(2, errors.New("late")))

	v, err, ok := p.Result()
	require.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPendingWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPending().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryFetchesAndCaches(t *testing.T) {
	m := NewMemory(instant)

	v, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)
	assert.Equal(t, "value:a", v)

	cached, ok := m.Peek("a")
	require.True(t, ok)
	assert.Equal(t, "value:a", cached)
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	g := newGate()
	m := NewMemory(g.fetch)

	p1 := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	p2 := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	assert.Same(t, p1, p2)

	close(g.release)
	_, err := wait(t, p1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, g.calls.Load())
}

func TestStaleQueryServesFreshEntryWithoutFetch(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	m := NewMemory(func(ctx context.Context, key string) (any, error) {
		calls.Add(1)
		return "v", nil
	}, WithClock(clock.Now))

	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)

	p := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	v, _, ok := p.Result()
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStaleQueryRevalidatesExpiredEntry(t *testing.T) {
	clock := newFakeClock()
	var n atomic.Int32
	m := NewMemory(func(ctx context.Context, key string) (any, error) {
		return int(n.Add(1)), nil
	}, WithClock(clock.Now), WithTTL(time.Second))

	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)

	rec := &recorder{}
	defer rec.on(m, "a")()

	clock.Advance(2 * time.Second)
	p := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	v, _, ok := p.Result()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.Eventually(t, func() bool {
		v, _ := m.Peek("a")
		return v == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []Event{EventRefetching, EventResolved}, rec.seen())
}

func TestExplicitRefetchBroadcasts(t *testing.T) {
	g := newGate()
	m := NewMemory(g.fetch)
	rec := &recorder{}
	defer rec.on(m, "a")()

	p := m.Query(context.Background(), "a", QueryOptions{})
	require.Equal(t, []Event{EventRefetching}, rec.seen())

	rec.mu.Lock()
	assert.Same(t, p, rec.events[0].Pending)
	rec.mu.Unlock()

	close(g.release)
	_, err := wait(t, p)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, EventResolved, rec.seen()[1])
}

func TestInitialLoadDoesNotBroadcastRefetching(t *testing.T) {
	m := NewMemory(instant)
	rec := &recorder{}
	defer rec.on(m, "a")()

	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []Event{EventResolved}, rec.seen())
}

func TestFetchErrorBroadcastsAndKeepsEntry(t *testing.T) {
	boom := errors.New("boom")
	fail := false
	var mu sync.Mutex
	m := NewMemory(func(ctx context.Context, key string) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, boom
		}
		return "ok", nil
	})
	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)

	mu.Lock()
	fail = true
	mu.Unlock()

	rec := &recorder{}
	defer rec.on(m, "a")()

	_, err = wait(t, m.Query(context.Background(), "a", QueryOptions{}))
	assert.ErrorIs(t, err, boom)
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []Event{EventRefetching, EventError}, rec.seen())

	v, ok := m.Peek("a")
	require.True(t, ok)
	assert.Equal(t, "ok", v)
}

func TestFetcherPanicBecomesError(t *testing.T) {
	m := NewMemory(func(ctx context.Context, key string) (any, error) {
		panic("bad origin")
	})
	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad origin")
}

func TestMutateCommitsAndBroadcasts(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(instant, WithClock(clock.Now), WithTTL(time.Minute))
	rec := &recorder{}
	defer rec.on(m, "n")()

	m.Mutate("n", func(prev any) any {
		assert.Nil(t, prev)
		return 1
	})
	m.Mutate("n", func(prev any) any { return prev.(int) + 1 })

	v, ok := m.Peek("n")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []Event{EventMutated, EventMutated}, rec.seen())

	exp, ok := m.Expiration("n")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(time.Minute), exp)
}

func TestSetIgnoresPrevious(t *testing.T) {
	m := NewMemory(instant)
	m.Mutate("k", Set("x"))
	m.Mutate("k", Set("y"))
	v, _ := m.Peek("k")
	assert.Equal(t, "y", v)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	m := NewMemory(instant)
	var hits atomic.Int32
	off := m.Subscribe("k", EventMutated, func(Payload) { hits.Add(1) })
	other := m.Subscribe("k", EventMutated, func(Payload) {})
	require.Equal(t, 2, m.Subscribers("k"))

	off()
	off()
	assert.Equal(t, 1, m.Subscribers("k"))

	m.Mutate("k", Set(1))
	assert.EqualValues(t, 0, hits.Load())

	other()
	assert.Equal(t, 0, m.Subscribers("k"))
}

func TestForgetDetachesInflightFetch(t *testing.T) {
	g := newGate()
	m := NewMemory(g.fetch)
	m.Mutate("a", Set("old"))
	rec := &recorder{}
	defer rec.on(m, "a")()

	p := m.Query(context.Background(), "a", QueryOptions{})
	m.Forget("a")

	_, err := wait(t, p)
	assert.ErrorIs(t, err, ErrForgotten)

	_, ok := m.Peek("a")
	assert.False(t, ok)
	_, ok = m.Expiration("a")
	assert.False(t, ok)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, []Event{EventRefetching}, rec.seen())
}

func TestForgetLetsNextQueryFetchAgain(t *testing.T) {
	g := newGate()
	m := NewMemory(g.fetch)

	first := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	m.Forget("a")
	second := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	assert.NotSame(t, first, second)

	close(g.release)
	v, err := wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, "value:a", v)
}

func TestAbortCancelsWithReason(t *testing.T) {
	g := newGate()
	m := NewMemory(g.fetch)
	rec := &recorder{}
	defer rec.on(m, "a")()

	p := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	reason := errors.New("user cancelled")
	m.Abort("a", reason)

	_, err := wait(t, p)
	assert.ErrorIs(t, err, reason)
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []Event{EventError}, rec.seen())
}

func TestAbortDefaultsReason(t *testing.T) {
	g := newGate()
	m := NewMemory(g.fetch)
	p := m.Query(context.Background(), "a", QueryOptions{Stale: true})
	m.Abort("a", nil)
	_, err := wait(t, p)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestAbortWithoutFlightIsNoop(t *testing.T) {
	m := NewMemory(instant)
	assert.NotPanics(t, func() { m.Abort("none", nil) })
}

func TestQueryTTLOverride(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(instant, WithClock(clock.Now), WithTTL(time.Minute))

	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true, TTL: time.Second}))
	require.NoError(t, err)

	exp, ok := m.Expiration("a")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(time.Second), exp)
}

func TestNoFetcher(t *testing.T) {
	m := NewMemory(nil)
	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{}))
	assert.ErrorIs(t, err, ErrNoFetcher)
}

type countingObserver struct {
	hits, misses, fetches, broadcasts atomic.Int32
}

func (o *countingObserver) CacheHit(string)                        { o.hits.Add(1) }
func (o *countingObserver) CacheMiss(string)                       { o.misses.Add(1) }
func (o *countingObserver) FetchDone(string, time.Duration, error) { o.fetches.Add(1) }
func (o *countingObserver) Broadcast(string, Event)                { o.broadcasts.Add(1) }

func TestObserverSeesActivity(t *testing.T) {
	obs := &countingObserver{}
	m := NewMemory(instant, WithObserver(obs))

	_, err := wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)
	_, err = wait(t, m.Query(context.Background(), "a", QueryOptions{Stale: true}))
	require.NoError(t, err)

	assert.EqualValues(t, 1, obs.hits.Load())
	assert.EqualValues(t, 1, obs.misses.Load())
	require.Eventually(t, func() bool { return obs.broadcasts.Load() == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, obs.fetches.Load())
}

func TestOpsOfBindsEveryOperation(t *testing.T) {
	m := NewMemory(instant)
	ops := OpsOf(m)
	require.True(t, ops.Valid())
	assert.False(t, Ops{}.Valid())

	ops.Mutate("k", Set(3))
	v, _ := m.Peek("k")
	assert.Equal(t, 3, v)
}

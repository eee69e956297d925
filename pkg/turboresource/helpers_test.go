package turboresource

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// drainUntil drains l on the test goroutine until cond holds.
func drainUntil(t *testing.T, l *reactive.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		l.Drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// settle drains l for a moment so goroutine handoffs land.
func settle(l *reactive.Loop) {
	for i := 0; i < 5; i++ {
		l.Drain()
		time.Sleep(time.Millisecond)
	}
	l.Drain()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
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

type queryCall struct {
	key  string
	opts turbo.QueryOptions
}

type fakeSub struct {
	event turbo.Event
	h     turbo.Handler
}

// fakeCache is a scripted turbo.Cache. Queries for a key share one
// pending until the test settles it; events are emitted by the test.
type fakeCache struct {
	mu          sync.Mutex
	queries     []queryCall
	pending     map[string]*turbo.Pending
	values      map[string]any
	subs        map[string][]*fakeSub
	log         []string
	expirations map[string]time.Time
	forgotten   []string
	aborted     []string
	reasons     []error
}

var _ turbo.Cache = (*fakeCache)(nil)

func newFakeCache() *fakeCache {
	return &fakeCache{
		pending:     make(map[string]*turbo.Pending),
		values:      make(map[string]any),
		subs:        make(map[string][]*fakeSub),
		expirations: make(map[string]time.Time),
	}
}

func (c *fakeCache) Query(_ context.Context, key string, opts turbo.QueryOptions) *turbo.Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, queryCall{key: key, opts: opts})
	p, ok := c.pending[key]
	if ok {
		if _, _, done := p.Result(); !done {
			return p
		}
	}
	p = turbo.NewPending()
	c.pending[key] = p
	return p
}

// current returns the pending queries for key currently share.
func (c *fakeCache) current(key string) *turbo.Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key]
}

// resolve settles key's pending with v and emits resolved.
func (c *fakeCache) resolve(key string, v any) {
	p := c.current(key)
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
	p.Settle(v, nil)
	c.emit(key, turbo.EventResolved, turbo.Payload{Key: key, Value: v, Pending: p})
}

// fail settles key's pending with err and emits error.
func (c *fakeCache) fail(key string, err error) {
	p := c.current(key)
	p.Settle(nil, err)
	c.emit(key, turbo.EventError, turbo.Payload{Key: key, Err: err, Pending: p})
}

func (c *fakeCache) queryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func (c *fakeCache) lastQuery() queryCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries[len(c.queries)-1]
}

func (c *fakeCache) Mutate(key string, update turbo.Update) {
	c.mu.Lock()
	next := update(c.values[key])
	c.values[key] = next
	c.mu.Unlock()
	c.emit(key, turbo.EventMutated, turbo.Payload{Key: key, Value: next})
}

func (c *fakeCache) Subscribe(key string, event turbo.Event, h turbo.Handler) func() {
	s := &fakeSub{event: event, h: h}
	c.mu.Lock()
	c.subs[key] = append(c.subs[key], s)
	c.log = append(c.log, fmt.Sprintf("sub %s %s", key, event))
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.subs[key]
		for i, cur := range list {
			if cur == s {
				c.subs[key] = append(list[:i:i], list[i+1:]...)
				c.log = append(c.log, fmt.Sprintf("unsub %s %s", key, event))
				return
			}
		}
	}
}

// handler returns the live handler for key and event.
func (c *fakeCache) handler(key string, event turbo.Event) turbo.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs[key] {
		if s.event == event {
			return s.h
		}
	}
	return nil
}

func (c *fakeCache) emit(key string, event turbo.Event, p turbo.Payload) {
	c.mu.Lock()
	var hs []turbo.Handler
	for _, s := range c.subs[key] {
		if s.event == event {
			hs = append(hs, s.h)
		}
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(p)
	}
}

func (c *fakeCache) subscribers(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[key])
}

func (c *fakeCache) subLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func (c *fakeCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgotten = append(c.forgotten, key)
}

func (c *fakeCache) Abort(key string, reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = append(c.aborted, key)
	c.reasons = append(c.reasons, reason)
}

func (c *fakeCache) Expiration(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expirations[key]
	return exp, ok
}

func (c *fakeCache) setExpiration(key string, t time.Time) {
	c.mu.Lock()
	c.expirations[key] = t
	c.mu.Unlock()
}

// harness is one binding on a fresh loop.
type harness[T any] struct {
	t       *testing.T
	loop    *reactive.Loop
	cache   *fakeCache
	env     *envStub
	clock   *fakeClock
	key     *reactive.Signal[string]
	res     *reactive.Resource[string, T]
	actions *Actions[T]
	owner   *reactive.Owner
}

func newHarness[T any](t *testing.T, initial string, opts ...Option) *harness[T] {
	t.Helper()
	h := &harness[T]{
		t:     t,
		loop:  reactive.NewLoop(),
		cache: newFakeCache(),
		env:   newEnvStub(),
		clock: newFakeClock(),
		key:   reactive.NewSignal(initial),
	}
	base := []Option{
		WithTurbo(h.cache),
		WithEnvironment(h.env),
		WithClock(h.clock.Now),
		WithTransition(false),
	}
	h.loop.Do(func() {
		h.owner = reactive.NewOwner(reactive.CurrentOwner())
		reactive.WithOwner(h.owner, func() {
			h.res, h.actions = Create[T](func() string { return h.key.Get() }, append(base, opts...)...)
		})
	})
	t.Cleanup(h.loop.Close)
	return h
}

// setKey changes the key and lets the binding react.
func (h *harness[T]) setKey(k string) {
	h.key.Set(k)
	h.loop.Drain()
}

// dispose disposes the binding's owner on the loop.
func (h *harness[T]) dispose() {
	h.loop.Do(h.owner.Dispose)
}

// envStub is an env.Source counting live registrations.
type envStub struct {
	mu      sync.Mutex
	focus   map[int]func()
	online  map[int]func()
	counter int
}

func newEnvStub() *envStub {
	return &envStub{focus: make(map[int]func()), online: make(map[int]func())}
}

func (e *envStub) OnFocus(fn func()) func() {
	return e.add(e.focus, fn)
}

func (e *envStub) OnOnline(fn func()) func() {
	return e.add(e.online, fn)
}

func (e *envStub) add(m map[int]func(), fn func()) func() {
	e.mu.Lock()
	e.counter++
	id := e.counter
	m[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(m, id)
		e.mu.Unlock()
	}
}

func (e *envStub) fire(m map[int]func()) {
	e.mu.Lock()
	var fns []func()
	for _, fn := range m {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *envStub) Focus()  { e.fire(e.focus) }
func (e *envStub) Online() { e.fire(e.online) }

func (e *envStub) listeners() (focus, online int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.focus), len(e.online)
}

// on runs fn on the loop under the binding's owner.
func (h *harness[T]) on(fn func()) {
	h.loop.Do(func() {
		reactive.WithOwner(h.owner, fn)
	})
}

// awaitPending waits until a query for key is in flight.
func (h *harness[T]) awaitPending(key string) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if p := h.cache.current(key); p != nil {
			if _, _, done := p.Result(); !done {
				return
			}
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("no query in flight for %q", key)
		}
		time.Sleep(time.Millisecond)
	}
}

// resolve settles the in-flight query for key with v.
func (h *harness[T]) resolve(key string, v any) {
	h.t.Helper()
	h.awaitPending(key)
	h.cache.resolve(key, v)
}

// fail settles the in-flight query for key with err.
func (h *harness[T]) fail(key string, err error) {
	h.t.Helper()
	h.awaitPending(key)
	h.cache.fail(key, err)
}

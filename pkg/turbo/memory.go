package turbo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a Memory entry stays fresh unless configured.
const DefaultTTL = time.Minute

const tracerName = "turbo"

// ErrNoFetcher is returned by queries against a Memory built without one.
var ErrNoFetcher = errors.New("turbo: no fetcher configured")

// Observer receives engine activity, typically for metrics.
type Observer interface {
	CacheHit(key string)
	CacheMiss(key string)
	FetchDone(key string, elapsed time.Duration, err error)
	Broadcast(key string, event Event)
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithTTL sets the default time-to-live of written entries.
func WithTTL(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver attaches an activity observer.
func WithObserver(o Observer) MemoryOption {
	return func(m *Memory) {
		m.observer = o
	}
}

// WithTracer sets the tracer fetch spans are recorded with.
func WithTracer(t trace.Tracer) MemoryOption {
	return func(m *Memory) {
		if t != nil {
			m.tracer = t
		}
	}
}

type entry struct {
	value   any
	expires time.Time
}

type flight struct {
	pending  *Pending
	cancel   context.CancelCauseFunc
	detached bool
}

type subscription struct {
	h Handler
}

// Memory is an in-process Cache over a Fetcher.
type Memory struct {
	fetch    Fetcher
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer

	// group deduplicates origin calls; a forgotten key gets a fresh call.
	group singleflight.Group

	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*flight
	subs     map[string]map[Event][]*subscription
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an engine loading misses through fetch.
func NewMemory(fetch Fetcher, opts ...MemoryOption) *Memory {
	m := &Memory{
		fetch:    fetch,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   slog.Default().With("component", "turbo"),
		tracer:   otel.Tracer(tracerName),
		entries:  make(map[string]entry),
		inflight: make(map[string]*flight),
		subs:     make(map[string]map[Event][]*subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Query implements Cache.
//
// A stale-tolerant query returns a cached value immediately, revalidating
// in the background once it expired. Anything else shares or starts a
// fetch; fetches that replace an existing entry, and explicit (non-stale)
// queries, broadcast EventRefetching.
func (m *Memory) Query(ctx context.Context, key string, opts QueryOptions) *Pending {
	if m.fetch == nil {
		return Failed(ErrNoFetcher)
	}
	ttl := m.ttl
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	m.mu.Lock()
	e, cached := m.entries[key]
	m.mu.Unlock()

	if opts.Stale && cached {
		if m.now().Before(e.expires) {
			m.observeHit(key)
			return Resolved(e.value)
		}
		m.observeHit(key)
		m.start(ctx, key, ttl, true)
		return Resolved(e.value)
	}

	m.observeMiss(key)
	return m.start(ctx, key, ttl, cached || !opts.Stale)
}

// start joins the key's in-flight fetch or begins a new one.
func (m *Memory) start(ctx context.Context, key string, ttl time.Duration, announce bool) *Pending {
	m.mu.Lock()
	if fl, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		return fl.pending
	}
	fctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	fl := &flight{pending: NewPending(), cancel: cancel}
	m.inflight[key] = fl
	m.mu.Unlock()

	m.logger.Debug("fetch started", "key", key, "refetch", announce)
	if announce {
		m.emit(key, EventRefetching, Payload{Key: key, Pending: fl.pending})
	}
	go m.run(fctx, key, ttl, fl)
	return fl.pending
}

func (m *Memory) run(ctx context.Context, key string, ttl time.Duration, fl *flight) {
	defer fl.cancel(nil)
	started := m.now()

	ch := m.group.DoChan(key, func() (any, error) {
		return m.load(ctx, key)
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = context.Cause(ctx)
	}
	if err == nil && ctx.Err() != nil {
		v, err = nil, context.Cause(ctx)
	}

	if m.observer != nil {
		m.observer.FetchDone(key, m.now().Sub(started), err)
	}

	m.mu.Lock()
	if m.inflight[key] == fl {
		delete(m.inflight, key)
	}
	detached := fl.detached
	if !detached && err == nil {
		m.entries[key] = entry{value: v, expires: m.now().Add(ttl)}
	}
	m.mu.Unlock()

	// Subscribers hear the outcome before waiters resume.
	defer fl.pending.Settle(v, err)

	switch {
	case detached:
		m.logger.Debug("fetch detached", "key", key)
	case err != nil:
		m.logger.Debug("fetch failed", "key", key, "error", err)
		m.emit(key, EventError, Payload{Key: key, Err: err, Pending: fl.pending})
	default:
		m.emit(key, EventResolved, Payload{Key: key, Value: v, Pending: fl.pending})
	}
}

func (m *Memory) load(ctx context.Context, key string) (v any, err error) {
	ctx, span := m.tracer.Start(ctx, "turbo.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("turbo.key", key)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turbo: fetcher panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}()

	return m.fetch(ctx, key)
}

// Mutate implements Cache.
func (m *Memory) Mutate(key string, update Update) {
	m.mu.Lock()
	var prev any
	if e, ok := m.entries[key]; ok {
		prev = e.value
	}
	next := update(prev)
	m.entries[key] = entry{value: next, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()

	m.emit(key, EventMutated, Payload{Key: key, Value: next})
}

// Subscribe implements Cache. Handlers for one key and event run in
// registration order.
func (m *Memory) Subscribe(key string, event Event, h Handler) func() {
	s := &subscription{h: h}

	m.mu.Lock()
	byEvent, ok := m.subs[key]
	if !ok {
		byEvent = make(map[Event][]*subscription)
		m.subs[key] = byEvent
	}
	byEvent[event] = append(byEvent[event], s)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(key, event, s) })
	}
}

func (m *Memory) unsubscribe(key string, event Event, s *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byEvent := m.subs[key]
	list := byEvent[event]
	for i, cur := range list {
		if cur == s {
			byEvent[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(byEvent[event]) == 0 {
		delete(byEvent, event)
	}
	if len(byEvent) == 0 {
		delete(m.subs, key)
	}
}

// Subscribers returns the number of live subscriptions on key.
func (m *Memory) Subscribers(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, list := range m.subs[key] {
		n += len(list)
	}
	return n
}

// Forget implements Cache. An in-flight fetch is detached: it settles
// with ErrForgotten and writes nothing.
func (m *Memory) Forget(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	fl := m.inflight[key]
	if fl != nil {
		fl.detached = true
		delete(m.inflight, key)
	}
	m.mu.Unlock()

	m.group.Forget(key)
	if fl != nil {
		fl.cancel(ErrForgotten)
	}
}

// Abort implements Cache. A nil reason aborts with ErrAborted.
func (m *Memory) Abort(key string, reason error) {
	if reason == nil {
		reason = ErrAborted
	}
	m.mu.Lock()
	fl := m.inflight[key]
	m.mu.Unlock()

	if fl != nil {
		m.group.Forget(key)
		fl.cancel(reason)
	}
}

// Expiration implements Cache.
func (m *Memory) Expiration(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.expires, true
}

// Peek returns the cached value for key without fetching.
func (m *Memory) Peek(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return e.value, ok
}

func (m *Memory) emit(key string, event Event, p Payload) {
	m.mu.Lock()
	list := append([]*subscription(nil), m.subs[key][event]...)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.Broadcast(key, event)
	}
	for _, s := range list {
		s.h(p)
	}
}

func (m *Memory) observeHit(key string) {
	if m.observer != nil {
		m.observer.CacheHit(key)
	}
}

func (m *Memory) observeMiss(key string) {
	if m.observer != nil {
		m.observer.CacheMiss(key)
	}
}

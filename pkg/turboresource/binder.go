package turboresource

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// Actions is the command surface of one binding. Every command is a no-op
// while the binding has no key.
type Actions[T any] struct {
	res   *reactive.Resource[string, T]
	key   *reactive.Memo[string]
	loop  *reactive.Loop
	owner *reactive.Owner
	s     settings

	transition Transition

	refetching *reactive.Signal[bool]
	lastFocus  *reactive.Signal[time.Time]

	// Loop-only state.
	fed     *turbo.Pending // last pending fed into the cell
	flagged *turbo.Pending // pending that raised the refetching flag

	mu      sync.Mutex
	current string
	subs    *subscriptionSet

	effect *reactive.Effect
}

// Create binds a resource cell to the cache key produced by key. It must
// run on a reactive.Loop; the binding lives until the current owner is
// disposed.
func Create[T any](key KeySource, opts ...Option) (*reactive.Resource[string, T], *Actions[T]) {
	loop := reactive.CurrentLoop()
	if loop == nil {
		panic(reactive.ErrNoLoop)
	}
	owner := reactive.CurrentOwner()
	s := resolve(owner, opts)
	if !s.hasCache {
		s.logger.Warn("no cache configured; loads will fail")
	}

	a := &Actions[T]{
		loop:       loop,
		owner:      owner,
		s:          s,
		key:        ResolveKey(key),
		refetching: reactive.NewSignal(false),
		lastFocus:  reactive.NewSignal(time.Time{}).WithEquals(time.Time.Equal),
	}
	a.transition = s.transition.adapter(loop)

	a.res = reactive.NewResource(func() (string, bool) {
		k := a.key.Get()
		return k, k != NoKey
	}, a.load)

	a.effect = reactive.CreateEffect(a.subscribe, reactive.EffectName("turboresource.subscriber"))
	return a.res, a
}

// load is the cell's loader: await a pending handed over by a refetch, or
// run a stale-tolerant query. A handed-over pending that was forgotten
// leaves the cell as it was.
func (a *Actions[T]) load(ctx context.Context, key string, info reactive.FetchInfo) (T, error) {
	p, _ := info.Refetching.(*turbo.Pending)
	handed := p != nil
	if !handed {
		opts := a.s.query
		opts.Stale = true
		p = a.s.ops.Query(ctx, key, opts)
	}
	v, err := p.Wait(ctx)
	if err != nil {
		var zero T
		if handed && errors.Is(err, turbo.ErrForgotten) {
			return zero, reactive.ErrDiscard
		}
		return zero, err
	}
	return cast[T](v)
}

// Key returns the active key, NoKey when unbound.
func (a *Actions[T]) Key() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Bound reports whether a subscription set is live.
func (a *Actions[T]) Bound() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subs != nil && !a.subs.isClosed()
}

// Mutate commits update(prev) to the cache. The cache's mutated broadcast
// echoes the value into the cell. A cached value of another type is
// passed to update as the zero T.
func (a *Actions[T]) Mutate(update func(prev T) T) {
	key := a.Key()
	if key == NoKey || update == nil {
		return
	}
	a.s.ops.Mutate(key, func(prev any) any {
		p, _ := cast[T](prev)
		return update(p)
	})
}

// Set commits v to the cache.
func (a *Actions[T]) Set(v T) {
	a.Mutate(func(T) T { return v })
}

// Refetch runs a fresh fetch for the active key, shows it in the cell and
// waits for its result. Without a key it returns the zero T and nil.
func (a *Actions[T]) Refetch(ctx context.Context) (T, error) {
	var zero T
	key := a.Key()
	if key == NoKey {
		return zero, nil
	}
	v, err := a.startRefetch(key).Wait(ctx)
	if err != nil {
		return zero, err
	}
	return cast[T](v)
}

// startRefetch issues a non-stale query and feeds its pending into the
// cell without waiting for it.
func (a *Actions[T]) startRefetch(key string) *turbo.Pending {
	opts := a.s.query
	opts.Stale = false
	p := a.s.ops.Query(context.Background(), key, opts)

	a.loop.Invoke(func() {
		if a.Key() != key {
			return
		}
		a.raise(p)
		a.feed(key, p)
	})
	return p
}

// Forget evicts the active key from the cache. The cell keeps its value.
func (a *Actions[T]) Forget() {
	if key := a.Key(); key != NoKey {
		a.s.ops.Forget(key)
	}
}

// Abort cancels the in-flight fetch of the active key. A nil reason lets
// the cache pick its default.
func (a *Actions[T]) Abort(reason error) {
	if key := a.Key(); key != NoKey {
		a.s.ops.Abort(key, reason)
	}
}

// Unsubscribe tears down the live subscription set. It is idempotent; a
// later key change binds again.
func (a *Actions[T]) Unsubscribe() {
	a.mu.Lock()
	set := a.subs
	a.subs = nil
	a.mu.Unlock()

	if set != nil {
		a.release(set)
	}
}

// IsRefetching reports, reactively, whether a refetch is in flight for
// the active key.
func (a *Actions[T]) IsRefetching() bool {
	return a.refetching.Get()
}

// LastFocus returns, reactively, when a focus refetch was last accepted.
func (a *Actions[T]) LastFocus() time.Time {
	return a.lastFocus.Get()
}

// Expiration returns the cache's expiration for the active key.
func (a *Actions[T]) Expiration() (time.Time, bool) {
	key := a.Key()
	if key == NoKey {
		return time.Time{}, false
	}
	return a.s.ops.Expiration(key)
}

// feed hands p to the cell's refetch through the transition adapter. A
// pending already fed is not fed again. The commit is dropped when the
// cell moved off key before it ran.
func (a *Actions[T]) feed(key string, p *turbo.Pending) {
	if p == nil || a.fed == p {
		return
	}
	a.fed = p
	a.transition(func() {
		if !a.res.RefetchFor(key, p) {
			a.s.logger.Debug("refetch dropped", "key", key)
		}
	})
}

// raise sets the refetching flag for p. The flag is lowered once p
// settles, whether or not an outcome event is ever delivered.
func (a *Actions[T]) raise(p *turbo.Pending) {
	if p == nil || a.flagged == p {
		return
	}
	a.flagged = p
	a.refetching.Set(true)

	go func() {
		<-p.Done()
		a.loop.Dispatch(func() { a.lower(p) })
	}()
}

// lower clears the flag raised by p unless another refetch took over.
func (a *Actions[T]) lower(p *turbo.Pending) {
	if a.flagged != p {
		return
	}
	a.flagged = nil
	a.refetching.Set(false)
}

func (a *Actions[T]) clearRefetching() {
	a.flagged = nil
	a.refetching.Set(false)
}

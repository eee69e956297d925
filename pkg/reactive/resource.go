package reactive

import (
	"context"
	"errors"
	"sync"
)

// ErrDiscard, returned by a loader, ends the load without touching the
// cell: the loading flag clears and the previous value, state and error
// stay visible.
var ErrDiscard = errors.New("reactive: load discarded")

// State is the lifecycle state of a Resource.
type State int

const (
	Pending State = iota // no load has completed yet
	Loading              // a load is in flight and nothing newer is visible
	Ready                // the last load (or mutation) produced a value
	Error                // the last load failed
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// FetchInfo describes why a loader was invoked.
type FetchInfo struct {
	// Refetching is the value passed to Refetch. It is nil for loads
	// triggered by a source change.
	Refetching any
}

// Loader loads the value for key. ctx is cancelled when the load is
// superseded by a newer one or the resource is disposed.
type Loader[K comparable, T any] func(ctx context.Context, key K, info FetchInfo) (T, error)

// Resource is an async cell holding a value, a loading flag and an error,
// driven by a loader bound to a reactive source key.
//
// Every load carries a sequence number. A result is committed only if no
// newer load (source change, refetch) started after it, so a slow result
// for an old key never flashes into the cell.
//
// Loads started inside a transition keep the previous value and state
// visible and commit through the loop's transition queue.
type Resource[K comparable, T any] struct {
	source func() (K, bool)
	loader Loader[K, T]
	loop   *Loop

	state   *Signal[State]
	data    *Signal[T]
	err     *Signal[error]
	loading *Signal[bool]

	mu       sync.Mutex
	key      K
	active   bool
	hasValue bool
	seq      uint64
	cancel   context.CancelFunc

	effect *Effect
}

// NewResource creates a resource on the current loop. source is tracked:
// whenever it yields a different key the loader runs again. A source that
// reports false suspends loading and keeps the last value.
//
//	user := reactive.NewResource(
//	    func() (string, bool) { id := userID.Get(); return id, id != "" },
//	    func(ctx context.Context, id string, _ reactive.FetchInfo) (*User, error) {
//	        return api.User(ctx, id)
//	    },
//	)
func NewResource[K comparable, T any](source func() (K, bool), loader Loader[K, T]) *Resource[K, T] {
	loop := getCurrentLoop()
	if loop == nil {
		panic(ErrNoLoop)
	}

	r := &Resource[K, T]{
		source:  source,
		loader:  loader,
		loop:    loop,
		state:   NewSignal(Pending),
		data:    NewSignal(*new(T)),
		err:     NewSignal[error](nil),
		loading: NewSignal(false),
	}

	r.effect = CreateEffect(func() Cleanup {
		key, ok := r.source()
		r.mu.Lock()
		r.key, r.active = key, ok
		r.mu.Unlock()

		Untracked(func() {
			if ok {
				r.load(key, FetchInfo{})
			} else {
				r.suspend()
			}
		})
		return nil
	}, EffectName("resource.source"))

	OnCleanup(r.Dispose)
	return r
}

// Value returns the current value (tracked).
func (r *Resource[K, T]) Value() T {
	return r.data.Get()
}

// Loading reports whether a load is in flight (tracked).
func (r *Resource[K, T]) Loading() bool {
	return r.loading.Get()
}

// Error returns the error of the last load, nil after a success (tracked).
func (r *Resource[K, T]) Error() error {
	return r.err.Get()
}

// State returns the lifecycle state (tracked).
func (r *Resource[K, T]) State() State {
	return r.state.Get()
}

// PeekValue returns the current value without subscribing.
func (r *Resource[K, T]) PeekValue() T {
	return r.data.Peek()
}

// PeekLoading reports whether a load is in flight without subscribing.
func (r *Resource[K, T]) PeekLoading() bool {
	return r.loading.Peek()
}

// PeekError returns the last error without subscribing.
func (r *Resource[K, T]) PeekError() error {
	return r.err.Peek()
}

// Key returns the key the resource is currently bound to.
func (r *Resource[K, T]) Key() (K, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key, r.active
}

// Refetch re-runs the loader for the current key with info as
// FetchInfo.Refetching. It is a no-op while the source is inactive.
func (r *Resource[K, T]) Refetch(info any) {
	r.mu.Lock()
	key, ok := r.key, r.active
	r.mu.Unlock()
	if !ok {
		return
	}
	r.load(key, FetchInfo{Refetching: info})
}

// RefetchFor is Refetch guarded by key: it does nothing unless key is
// still the source's current key. It reports whether a load started.
func (r *Resource[K, T]) RefetchFor(key K, info any) bool {
	r.mu.Lock()
	ok := r.active && r.key == key
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.load(key, FetchInfo{Refetching: info})
	return true
}

// MutateFor is Mutate guarded by key.
func (r *Resource[K, T]) MutateFor(key K, value T) bool {
	r.mu.Lock()
	ok := r.active && r.key == key
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.Mutate(value)
	return true
}

// Mutate commits value directly without running the loader. In-flight
// loads are not cancelled.
func (r *Resource[K, T]) Mutate(value T) {
	r.mu.Lock()
	r.hasValue = true
	r.mu.Unlock()

	Batch(func() {
		r.data.Set(value)
		r.err.Set(nil)
		r.state.Set(Ready)
	})
}

// Dispose stops tracking the source and cancels any in-flight load.
func (r *Resource[K, T]) Dispose() {
	r.effect.Dispose()
	r.mu.Lock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
}

func (r *Resource[K, T]) load(key K, info FetchInfo) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	transition := inTransition()
	var release func()
	if transition {
		release = r.loop.holdTransition()
	}

	Batch(func() {
		r.loading.Set(true)
		if !transition {
			r.state.Set(Loading)
		}
	})

	go func() {
		value, err := r.loader(ctx, key, info)
		cancel()

		commit := func() {
			r.commit(seq, value, err)
			if release != nil {
				release()
			}
		}
		if transition {
			r.loop.StartTransition(commit)
		} else {
			r.loop.Dispatch(commit)
		}
	}()
}

func (r *Resource[K, T]) commit(seq uint64, value T, err error) {
	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		return
	}
	r.cancel = nil
	if err == nil {
		r.hasValue = true
	}
	hasValue := r.hasValue
	r.mu.Unlock()

	Batch(func() {
		r.loading.Set(false)
		if errors.Is(err, ErrDiscard) {
			r.settleIdle(hasValue)
			return
		}
		if err != nil {
			r.err.Set(err)
			r.state.Set(Error)
			return
		}
		r.data.Set(value)
		r.err.Set(nil)
		r.state.Set(Ready)
	})
}

// suspend drops any in-flight load when the source goes inactive.
func (r *Resource[K, T]) suspend() {
	r.mu.Lock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	hasValue := r.hasValue
	r.mu.Unlock()

	Batch(func() {
		r.loading.Set(false)
		r.settleIdle(hasValue)
	})
}

// settleIdle leaves the Loading state for whatever the cell last showed.
func (r *Resource[K, T]) settleIdle(hasValue bool) {
	if r.state.Peek() != Loading {
		return
	}
	if hasValue {
		r.state.Set(Ready)
	} else {
		r.state.Set(Pending)
	}
}

package turboresource

import (
	"sync"

	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// subscriptionSet holds every handle bound for one key: the four cache
// events and the two environment triggers. It is closed as a unit.
type subscriptionSet struct {
	key string

	mu      sync.Mutex
	closed  bool
	handles []func()
}

func (s *subscriptionSet) add(remove func()) {
	if remove == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		remove()
		return
	}
	s.handles = append(s.handles, remove)
	s.mu.Unlock()
}

func (s *subscriptionSet) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close removes every handle. Only the first call has an effect and
// reports true.
func (s *subscriptionSet) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, remove := range handles {
		remove()
	}
	return true
}

// subscribe is the subscriber effect. Each run enters Bound for the
// resolved key; its cleanup leaves it, so the previous key's set is
// always closed before the next one is built.
func (a *Actions[T]) subscribe() reactive.Cleanup {
	key := a.key.Get()

	var set *subscriptionSet
	reactive.Untracked(func() {
		a.mu.Lock()
		a.current = key
		a.mu.Unlock()

		a.fed = nil
		a.clearRefetching()

		if key != NoKey {
			set = a.bind(key)
		}
	})
	if set == nil {
		return nil
	}

	return func() {
		a.mu.Lock()
		if a.subs == set {
			a.subs = nil
		}
		a.mu.Unlock()

		a.release(set)
	}
}

func (a *Actions[T]) release(set *subscriptionSet) {
	if set.close() {
		a.s.observer.Unbound(set.key)
		a.s.logger.Debug("unbound", "key", set.key)
	}
}

func (a *Actions[T]) bind(key string) *subscriptionSet {
	set := &subscriptionSet{key: key}

	for _, ev := range turbo.Events {
		set.add(a.s.ops.Subscribe(key, ev, a.deliver(set, ev)))
	}
	if a.s.refetchOnFocus && a.s.env != nil {
		set.add(a.s.env.OnFocus(a.trigger(set, a.onFocus)))
	}
	if a.s.refetchOnConnect && a.s.env != nil {
		set.add(a.s.env.OnOnline(a.trigger(set, a.onConnect)))
	}

	a.mu.Lock()
	a.subs = set
	a.mu.Unlock()

	a.s.observer.Bound(key)
	a.s.logger.Debug("bound", "key", key)
	return set
}

// deliver returns the cache handler for ev. The payload is carried onto
// the loop and dropped there if set was closed in the meantime.
func (a *Actions[T]) deliver(set *subscriptionSet, ev turbo.Event) turbo.Handler {
	return func(p turbo.Payload) {
		a.loop.Dispatch(func() {
			if set.isClosed() {
				a.s.observer.Delivered(ev, true)
				return
			}
			a.s.observer.Delivered(ev, false)
			a.handle(set.key, ev, p)
		})
	}
}

func (a *Actions[T]) handle(key string, ev turbo.Event, p turbo.Payload) {
	switch ev {
	case turbo.EventMutated:
		v, err := cast[T](p.Value)
		if err != nil {
			a.s.logger.Warn("mutated value ignored", "key", key, "error", err)
			return
		}
		a.transition(func() { a.res.MutateFor(key, v) })

	case turbo.EventRefetching:
		a.raise(p.Pending)
		if !a.res.PeekLoading() {
			a.feed(key, p.Pending)
		}

	case turbo.EventResolved, turbo.EventError:
		a.clearRefetching()
	}
}

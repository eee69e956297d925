package reactive

import (
	"sync"
	"sync/atomic"
)

// Memo is a cached computation that tracks its own dependencies.
//
// A memo without subscribers is lazy: a dependency change only invalidates
// it and the next Get recomputes. A memo with subscribers recomputes as
// soon as a dependency changes and notifies downstream only when the
// computed value actually changed, so an effect keyed on a memo does not
// re-run for recomputations that produce the same value.
type Memo[T any] struct {
	base signalBase

	compute func() T

	value    T
	computed bool
	valueMu  sync.RWMutex

	valid atomic.Bool

	sources   []*signalBase
	sourcesMu sync.Mutex

	equal func(T, T) bool

	// computing guards against circular dependencies.
	computing atomic.Bool
}

// NewMemo creates a memo. compute is not run until the first read.
func NewMemo[T any](compute func() T) *Memo[T] {
	return &Memo[T]{
		base:    signalBase{id: nextID()},
		compute: compute,
	}
}

// Get returns the memo value, recomputing it if needed, and subscribes the
// current listener.
func (m *Memo[T]) Get() T {
	m.base.track()
	return m.Peek()
}

// Peek returns the memo value without subscribing.
func (m *Memo[T]) Peek() T {
	if !m.valid.Load() {
		m.recompute()
	}
	m.valueMu.RLock()
	defer m.valueMu.RUnlock()
	return m.value
}

// MarkDirty implements Listener.
func (m *Memo[T]) MarkDirty() {
	if !m.valid.CompareAndSwap(true, false) {
		return
	}
	if !m.base.hasSubscribers() {
		return
	}
	if m.recompute() {
		m.base.notifySubscribers()
	}
}

// ID implements Listener.
func (m *Memo[T]) ID() uint64 {
	return m.base.id
}

// WithEquals replaces the equality used to detect changes.
func (m *Memo[T]) WithEquals(fn func(T, T) bool) *Memo[T] {
	m.equal = fn
	return m
}

func (m *Memo[T]) addSource(source *signalBase) {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()

	for _, s := range m.sources {
		if s == source {
			return
		}
	}
	m.sources = append(m.sources, source)
}

// recompute runs compute with m as the listener and reports whether the
// stored value changed.
func (m *Memo[T]) recompute() bool {
	if m.computing.Swap(true) {
		return false
	}
	defer m.computing.Store(false)

	m.sourcesMu.Lock()
	for _, source := range m.sources {
		source.unsubscribe(m)
	}
	m.sources = m.sources[:0]
	m.sourcesMu.Unlock()

	old := setCurrentListener(m)
	next := m.compute()
	setCurrentListener(old)

	m.valueMu.Lock()
	changed := !m.computed || !m.equals(m.value, next)
	m.value = next
	m.computed = true
	m.valueMu.Unlock()

	m.valid.Store(true)
	return changed
}

func (m *Memo[T]) equals(a, b T) bool {
	if m.equal != nil {
		return m.equal(a, b)
	}
	return defaultEquals(a, b)
}

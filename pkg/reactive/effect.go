package reactive

import (
	"sync"
	"sync/atomic"
)

// Effect is a reactive side effect. It runs immediately when created and
// re-runs whenever a signal or memo it read changes. The Cleanup returned
// by one run always completes before the next run starts and when the
// effect is disposed.
type Effect struct {
	id uint64

	fn      func() Cleanup
	cleanup Cleanup

	sources   []*signalBase
	sourcesMu sync.Mutex

	owner *Owner
	loop  *Loop

	pending  atomic.Bool
	disposed atomic.Bool

	name string
}

// MarkDirty schedules the effect on its loop. Effects created outside a
// loop re-run synchronously.
func (e *Effect) MarkDirty() {
	if e.disposed.Load() {
		return
	}
	if !e.pending.CompareAndSwap(false, true) {
		return
	}
	if e.loop == nil {
		e.run()
		return
	}
	e.loop.scheduleEffect(e)
}

// ID implements Listener.
func (e *Effect) ID() uint64 {
	return e.id
}

// Name returns the name given with EffectName, if any.
func (e *Effect) Name() string {
	return e.name
}

func (e *Effect) run() {
	if e.disposed.Load() {
		return
	}
	e.pending.Store(false)

	if e.cleanup != nil {
		c := e.cleanup
		e.cleanup = nil
		c()
	}

	e.releaseSources()

	old := setCurrentListener(e)
	defer setCurrentListener(old)

	e.cleanup = e.fn()
}

func (e *Effect) addSource(source *signalBase) {
	e.sourcesMu.Lock()
	defer e.sourcesMu.Unlock()

	for _, s := range e.sources {
		if s == source {
			return
		}
	}
	e.sources = append(e.sources, source)
}

func (e *Effect) releaseSources() {
	e.sourcesMu.Lock()
	defer e.sourcesMu.Unlock()
	for _, source := range e.sources {
		source.unsubscribe(e)
	}
	e.sources = e.sources[:0]
}

// Dispose runs the last cleanup and stops tracking. It is idempotent.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}
	if e.cleanup != nil {
		c := e.cleanup
		e.cleanup = nil
		c()
	}
	e.releaseSources()
}

// EffectOption configures an Effect.
type EffectOption func(*Effect)

// EffectName labels the effect in logs.
func EffectName(name string) EffectOption {
	return func(e *Effect) {
		e.name = name
	}
}

// CreateEffect creates and immediately runs an effect owned by the current
// owner and scheduled on the current loop.
//
//	reactive.CreateEffect(func() reactive.Cleanup {
//	    fmt.Println("count is", count.Get())
//	    return nil
//	})
func CreateEffect(fn func() Cleanup, opts ...EffectOption) *Effect {
	e := &Effect{
		id:    nextID(),
		fn:    fn,
		owner: getCurrentOwner(),
		loop:  getCurrentLoop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.owner != nil {
		e.owner.registerEffect(e)
	}

	e.run()
	return e
}

// OnCleanup registers fn with the current owner. Without an owner fn is
// never called.
func OnCleanup(fn func()) {
	if owner := getCurrentOwner(); owner != nil {
		owner.OnCleanup(fn)
	}
}

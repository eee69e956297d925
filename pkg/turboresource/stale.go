package turboresource

import (
	"time"

	"github.com/vango-dev/turboresource/pkg/reactive"
)

// DefaultPrecision is the polling period used for a non-positive precision.
const DefaultPrecision = time.Second

// CreateStale derives whether the active key's cached value is stale and
// how long until it will be. The snapshot is taken immediately and on
// every key change, then refreshed every precision by one timer that is
// replaced on key change and stopped when the current owner is disposed.
//
// A key without a recorded expiration counts as stale with nothing left
// to wait. Like every reactive helper it must be called on the loop.
func (a *Actions[T]) CreateStale(precision time.Duration) (isStale func() bool, staleIn func() time.Duration) {
	if reactive.CurrentLoop() == nil {
		panic(reactive.ErrNoLoop)
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}

	stale := reactive.NewSignal(true)
	in := reactive.NewSignal(time.Duration(0))
	update := func(key string) {
		s, d := a.staleness(key)
		reactive.Batch(func() {
			stale.Set(s)
			in.Set(d)
		})
	}

	reactive.CreateEffect(func() reactive.Cleanup {
		key := a.key.Get()
		reactive.Untracked(func() { update(key) })
		if key == NoKey {
			return nil
		}
		return reactive.Interval(precision, func() { update(key) })
	}, reactive.EffectName("turboresource.stale"))

	return stale.Get, in.Get
}

func (a *Actions[T]) staleness(key string) (bool, time.Duration) {
	if key == NoKey {
		return true, 0
	}
	exp, ok := a.s.ops.Expiration(key)
	if !ok {
		return true, 0
	}
	now := a.s.now()
	if !now.Before(exp) {
		return true, 0
	}
	return false, exp.Sub(now)
}

// CreateFocusAvailable derives whether a focus event would be accepted
// now and how long until it would be, refreshed every precision and
// whenever a focus refetch is accepted.
func (a *Actions[T]) CreateFocusAvailable(precision time.Duration) (isAvailable func() bool, availableIn func() time.Duration) {
	if reactive.CurrentLoop() == nil {
		panic(reactive.ErrNoLoop)
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}

	available := reactive.NewSignal(true)
	in := reactive.NewSignal(time.Duration(0))
	update := func() {
		ok, d := a.focusAvailability(a.lastFocus.Peek())
		reactive.Batch(func() {
			available.Set(ok)
			in.Set(d)
		})
	}

	reactive.CreateEffect(func() reactive.Cleanup {
		a.lastFocus.Get()
		reactive.Untracked(update)
		return reactive.Interval(precision, update)
	}, reactive.EffectName("turboresource.focus"))

	return available.Get, in.Get
}

func (a *Actions[T]) focusAvailability(last time.Time) (bool, time.Duration) {
	if last.IsZero() {
		return true, 0
	}
	elapsed := a.s.now().Sub(last)
	if elapsed > a.s.focusInterval {
		return true, 0
	}
	return false, a.s.focusInterval - elapsed
}

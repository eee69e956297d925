package reactive

import (
	"sync/atomic"
	"time"
)

// Interval calls fn on the current loop every d until the returned Cleanup
// runs. It is meant to be called inside an effect, returning the Cleanup
// from that effect so the timer lives exactly as long as the effect run:
//
//	reactive.CreateEffect(func() reactive.Cleanup {
//	    key := key.Get()
//	    return reactive.Interval(time.Second, func() { poll(key) })
//	})
//
// Ticks already queued when the Cleanup runs are dropped.
func Interval(d time.Duration, fn func()) Cleanup {
	loop := getCurrentLoop()
	if loop == nil {
		panic(ErrNoLoop)
	}

	done := make(chan struct{})
	var stopped atomic.Bool

	tick := func() {
		if !stopped.Load() {
			fn()
		}
	}

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				loop.Dispatch(tick)
			case <-done:
				return
			}
		}
	}()

	return func() {
		if stopped.CompareAndSwap(false, true) {
			close(done)
		}
	}
}

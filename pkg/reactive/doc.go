// Package reactive is the host runtime that resource bindings run on.
//
// It provides fine-grained reactivity with automatic dependency tracking:
// reading a Signal or Memo inside an Effect subscribes the effect to that
// value, and the effect re-runs on the owning Loop when the value changes.
//
// # Core Types
//
// Signal[T] is a reactive value container:
//
//	count := reactive.NewSignal(0)
//	count.Get()  // tracked read
//	count.Set(5) // notifies subscribers when the value changed
//
// Memo[T] is a cached derived computation that only propagates real changes:
//
//	doubled := reactive.NewMemo(func() int { return count.Get() * 2 })
//
// Effect runs side effects and releases them before every re-run:
//
//	reactive.CreateEffect(func() reactive.Cleanup {
//	    stop := subscribe(count.Get())
//	    return stop
//	})
//
// Resource[K, T] is an async cell with loading, error and value state.
//
// # Scheduling
//
// All reactive commits happen on a Loop. Other goroutines hand work to it
// with Loop.Dispatch; non-urgent work is queued with Loop.StartTransition
// and committed in one batch after urgent work has drained.
//
// # Thread Safety
//
// Signals and memos are safe to read from any goroutine. The tracking
// context is per-goroutine, so code that creates effects off the loop must
// establish an owner with WithOwner.
package reactive

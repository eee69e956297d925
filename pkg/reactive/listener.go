package reactive

// Listener is anything that can be notified when a dependency changes.
// Memos and effects implement it.
type Listener interface {
	// MarkDirty notifies the listener that one of its dependencies changed.
	// Memos recompute or invalidate, effects schedule a re-run.
	MarkDirty()

	// ID is used to deduplicate notifications inside a batch.
	ID() uint64
}

// Cleanup releases whatever an effect acquired. It runs before the effect
// re-runs and when the effect is disposed.
type Cleanup func()

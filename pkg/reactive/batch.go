package reactive

// Batch groups signal writes so every affected listener is notified once,
// after the outermost batch completes.
//
//	reactive.Batch(func() {
//	    value.Set(v)
//	    loading.Set(false)
//	})
func Batch(fn func()) {
	incrementBatchDepth()
	defer func() {
		if decrementBatchDepth() {
			processPendingUpdates()
		}
	}()
	fn()
}

// processPendingUpdates notifies each queued listener once.
func processPendingUpdates() {
	updates := drainPendingUpdates()
	if len(updates) == 0 {
		return
	}

	seen := make(map[uint64]bool, len(updates))
	for _, l := range updates {
		id := l.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		l.MarkDirty()
	}
}

// Untracked runs fn without subscribing the current listener to anything
// fn reads.
func Untracked(fn func()) {
	old := setCurrentListener(nil)
	defer setCurrentListener(old)
	fn()
}

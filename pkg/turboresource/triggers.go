package turboresource

// trigger adapts an environment callback: it may fire on any goroutine,
// so the work is carried onto the loop and skipped once set is closed.
func (a *Actions[T]) trigger(set *subscriptionSet, fn func(key string)) func() {
	return func() {
		a.loop.Dispatch(func() {
			if !set.isClosed() {
				fn(set.key)
			}
		})
	}
}

// onFocus refetches unless the last accepted focus is within the focus
// interval. Only accepted events move LastFocus.
func (a *Actions[T]) onFocus(key string) {
	now := a.s.now()
	last := a.lastFocus.Peek()
	if !last.IsZero() && now.Sub(last) <= a.s.focusInterval {
		a.s.observer.Triggered(TriggerFocus, false)
		a.s.logger.Debug("focus throttled", "key", key, "since", now.Sub(last))
		return
	}
	a.lastFocus.Set(now)
	a.s.observer.Triggered(TriggerFocus, true)
	a.s.logger.Debug("focus refetch", "key", key)
	a.startRefetch(key)
}

// onConnect refetches on every reconnect.
func (a *Actions[T]) onConnect(key string) {
	a.s.observer.Triggered(TriggerConnect, true)
	a.s.logger.Debug("connect refetch", "key", key)
	a.startRefetch(key)
}

// Package env reports environment changes that make cached data worth
// revalidating: the window regaining focus and the network coming back.
package env

import "sync"

// Source is a provider of environmental triggers. Each registration
// returns a function removing it; removal is idempotent.
type Source interface {
	OnFocus(fn func()) (remove func())
	OnOnline(fn func()) (remove func())
}

// Visibility is the page visibility state reported by a client.
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// Default is the process-wide source.
var Default = NewEvents()

type handler struct {
	fn func()
}

// Events is an in-process Source fed by whatever observes the client:
// the websocket bridge, a test or a host integration.
type Events struct {
	mu         sync.RWMutex
	focused    bool
	online     bool
	visibility Visibility
	focus      []*handler
	connect    []*handler
}

var _ Source = (*Events)(nil)

// NewEvents creates a source that starts focused, visible and online.
func NewEvents() *Events {
	return &Events{
		focused:    true,
		online:     true,
		visibility: VisibilityVisible,
	}
}

// OnFocus implements Source.
func (e *Events) OnFocus(fn func()) func() {
	return e.add(&e.focus, fn)
}

// OnOnline implements Source.
func (e *Events) OnOnline(fn func()) func() {
	return e.add(&e.connect, fn)
}

func (e *Events) add(list *[]*handler, fn func()) func() {
	h := &handler{fn: fn}
	e.mu.Lock()
	*list = append(*list, h)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, cur := range *list {
				if cur == h {
					*list = append((*list)[:i:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

// Focus reports that the window gained focus. Every report notifies;
// consumers throttle.
func (e *Events) Focus() {
	e.mu.Lock()
	e.focused = true
	handlers := snapshot(e.focus)
	e.mu.Unlock()

	notify(handlers)
}

// Blur reports that the window lost focus.
func (e *Events) Blur() {
	e.mu.Lock()
	e.focused = false
	e.mu.Unlock()
}

// SetVisibility records the page visibility. Going from hidden to visible
// counts as regaining focus.
func (e *Events) SetVisibility(v Visibility) {
	e.mu.Lock()
	prev := e.visibility
	e.visibility = v
	if prev != VisibilityHidden || v != VisibilityVisible {
		e.mu.Unlock()
		return
	}
	e.focused = true
	handlers := snapshot(e.focus)
	e.mu.Unlock()

	notify(handlers)
}

// Online reports that connectivity was (re)established.
func (e *Events) Online() {
	e.mu.Lock()
	e.online = true
	handlers := snapshot(e.connect)
	e.mu.Unlock()

	notify(handlers)
}

// Offline reports that connectivity was lost.
func (e *Events) Offline() {
	e.mu.Lock()
	e.online = false
	e.mu.Unlock()
}

// Focused returns the last reported focus state.
func (e *Events) Focused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.focused
}

// IsOnline returns the last reported connectivity state.
func (e *Events) IsOnline() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

// Visibility returns the last reported visibility.
func (e *Events) Visibility() Visibility {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visibility
}

func snapshot(list []*handler) []*handler {
	out := make([]*handler, len(list))
	copy(out, list)
	return out
}

func notify(handlers []*handler) {
	for _, h := range handlers {
		h.fn()
	}
}

package turboresource

import "github.com/vango-dev/turboresource/pkg/reactive"

// Transition runs commit as non-urgent work. A Transition may call commit
// from any goroutine; the commit itself always executes on the loop.
type Transition func(commit func())

type transitionMode int

const (
	transitionHost transitionMode = iota
	transitionDirect
	transitionCustom
)

type transitionSetting struct {
	mode transitionMode
	fn   Transition
}

// adapter resolves the configured mode into the function every commit of
// the binding goes through.
func (t transitionSetting) adapter(loop *reactive.Loop) Transition {
	switch t.mode {
	case transitionDirect:
		return loop.Invoke
	case transitionCustom:
		custom := t.fn
		return func(commit func()) {
			custom(func() { loop.Invoke(commit) })
		}
	default:
		return loop.StartTransition
	}
}

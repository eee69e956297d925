package reactive

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrNoLoop is raised by helpers that must run on a Loop when called from
// outside one.
var ErrNoLoop = errors.New("reactive: no loop on the current goroutine")

// maxEffectPasses bounds how many rounds of effect re-runs a single task
// may trigger before the loop gives up and logs a cycle.
const maxEffectPasses = 100

// Loop is the cooperative scheduler all reactive commits run on. Work is
// never preempted: a dispatched function, the effects it scheduled and any
// transition batch each run to completion before the next item starts.
//
// Other goroutines hand work to the loop with Dispatch. Non-urgent work is
// queued with StartTransition and committed in a single batch once the
// urgent queue is empty.
type Loop struct {
	owner  *Owner
	logger *slog.Logger

	mu          sync.Mutex
	tasks       []func()
	transitions []func()
	effects     []*Effect
	held        int
	closed      bool

	wake chan struct{}

	pending *Signal[bool]
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger used for recovered panics.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithLoopOwner makes owner the root owner of work run on the loop.
func WithLoopOwner(owner *Owner) LoopOption {
	return func(l *Loop) {
		l.owner = owner
	}
}

// NewLoop creates a loop. Call Run on a dedicated goroutine, or Drain to
// process queued work on the calling goroutine.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		pending: NewSignal(false),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.owner == nil {
		l.owner = NewOwner(nil)
	}
	if l.logger == nil {
		l.logger = slog.Default().With("component", "reactive.loop")
	}
	return l
}

// Owner returns the root owner of the loop.
func (l *Loop) Owner() *Owner {
	return l.owner
}

// Dispatch queues fn to run on the loop. It is safe to call from any
// goroutine. After Close the call is discarded.
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// Invoke runs fn immediately when called from work already running on this
// loop, and dispatches it otherwise.
func (l *Loop) Invoke(fn func()) {
	if getCurrentLoop() == l {
		fn()
		return
	}
	l.Dispatch(fn)
}

// StartTransition queues fn as non-urgent work. Transitions run after all
// urgent tasks and effects, together in one batch.
func (l *Loop) StartTransition(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.transitions = append(l.transitions, fn)
	l.mu.Unlock()
	l.updatePending()
	l.signal()
}

// TransitionPending reports, reactively, whether transition work is queued
// or in flight.
func (l *Loop) TransitionPending() bool {
	return l.pending.Get()
}

// holdTransition marks async work started inside a transition as in
// flight. The returned function releases the hold.
func (l *Loop) holdTransition() func() {
	l.mu.Lock()
	l.held++
	l.mu.Unlock()
	l.updatePending()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.held--
			l.mu.Unlock()
			l.updatePending()
		})
	}
}

func (l *Loop) updatePending() {
	l.mu.Lock()
	busy := len(l.transitions) > 0 || l.held > 0
	l.mu.Unlock()
	l.pending.Set(busy)
}

func (l *Loop) scheduleEffect(e *Effect) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.effects = append(l.effects, e)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn synchronously on the calling goroutine with the loop's owner
// and loop context installed, then runs the effects it scheduled. Use it to
// create effects and resources from outside the loop.
func (l *Loop) Do(fn func()) {
	l.enter(func() {
		l.execute(fn, false)
	})
}

// Drain processes queued work on the calling goroutine until the loop is
// idle. It must not run concurrently with Run.
func (l *Loop) Drain() {
	l.enter(func() {
		for l.step() {
		}
	})
}

// Run processes work until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close discards queued work and rejects further dispatches. The root
// owner is disposed.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.tasks = nil
	l.transitions = nil
	l.effects = nil
	l.mu.Unlock()

	l.owner.Dispose()
	l.signal()
}

func (l *Loop) enter(fn func()) {
	oldLoop := setCurrentLoop(l)
	oldOwner := setCurrentOwner(l.owner)
	defer func() {
		setCurrentOwner(oldOwner)
		setCurrentLoop(oldLoop)
	}()
	fn()
}

// step runs one unit of work and reports whether there was any.
func (l *Loop) step() bool {
	l.mu.Lock()
	if len(l.tasks) > 0 {
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		l.execute(fn, false)
		return true
	}
	if len(l.effects) > 0 {
		l.mu.Unlock()
		l.flushEffects()
		return true
	}
	if len(l.transitions) > 0 {
		batch := l.transitions
		l.transitions = nil
		l.mu.Unlock()
		l.execute(func() {
			Batch(func() {
				for _, fn := range batch {
					fn()
				}
			})
		}, true)
		l.updatePending()
		return true
	}
	l.mu.Unlock()
	return false
}

// execute runs fn with panic recovery and then settles effects.
func (l *Loop) execute(fn func(), transition bool) {
	old := setInTransition(transition)
	defer setInTransition(old)

	func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("loop task panic",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()

	setInTransition(old)
	l.flushEffects()
}

// flushEffects re-runs scheduled effects until none are pending.
func (l *Loop) flushEffects() {
	for pass := 0; pass < maxEffectPasses; pass++ {
		l.mu.Lock()
		effects := l.effects
		l.effects = nil
		l.mu.Unlock()
		if len(effects) == 0 {
			return
		}
		for _, e := range effects {
			if e.pending.Load() {
				l.runEffect(e)
			}
		}
	}
	l.logger.Error("effects did not settle", "passes", maxEffectPasses)
}

func (l *Loop) runEffect(e *Effect) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("effect panic",
				"effect", e.name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	e.run()
}

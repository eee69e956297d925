package reactive

import (
	"runtime"
	"sync"
)

// trackingContext holds the reactive state of one goroutine.
type trackingContext struct {
	// owner receives newly created effects and cleanups.
	owner *Owner

	// listener is subscribed by tracked reads. nil disables tracking.
	listener Listener

	// batchDepth > 0 queues notifications instead of firing them.
	batchDepth     int
	pendingUpdates []Listener

	// loop is set while a Loop is executing work on this goroutine.
	loop *Loop

	// transition is true while a transition task is being committed.
	transition bool
}

var trackingContexts sync.Map

// goroutineID parses the id out of the "goroutine <id> [" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func getTrackingContext() *trackingContext {
	gid := goroutineID()
	if ctx, ok := trackingContexts.Load(gid); ok {
		return ctx.(*trackingContext)
	}
	ctx := &trackingContext{}
	trackingContexts.Store(gid, ctx)
	return ctx
}

func getCurrentListener() Listener {
	return getTrackingContext().listener
}

// setCurrentListener installs l and returns the previous listener.
func setCurrentListener(l Listener) Listener {
	ctx := getTrackingContext()
	old := ctx.listener
	ctx.listener = l
	return old
}

func getCurrentOwner() *Owner {
	return getTrackingContext().owner
}

func setCurrentOwner(o *Owner) *Owner {
	ctx := getTrackingContext()
	old := ctx.owner
	ctx.owner = o
	return old
}

func getCurrentLoop() *Loop {
	return getTrackingContext().loop
}

func setCurrentLoop(l *Loop) *Loop {
	ctx := getTrackingContext()
	old := ctx.loop
	ctx.loop = l
	return old
}

func inTransition() bool {
	return getTrackingContext().transition
}

func setInTransition(v bool) bool {
	ctx := getTrackingContext()
	old := ctx.transition
	ctx.transition = v
	return old
}

func getBatchDepth() int {
	return getTrackingContext().batchDepth
}

func incrementBatchDepth() {
	getTrackingContext().batchDepth++
}

// decrementBatchDepth reports whether the outermost batch just completed.
func decrementBatchDepth() bool {
	ctx := getTrackingContext()
	ctx.batchDepth--
	return ctx.batchDepth == 0
}

func queuePendingUpdate(l Listener) {
	ctx := getTrackingContext()
	ctx.pendingUpdates = append(ctx.pendingUpdates, l)
}

func drainPendingUpdates() []Listener {
	ctx := getTrackingContext()
	updates := ctx.pendingUpdates
	ctx.pendingUpdates = nil
	return updates
}

// WithOwner runs fn with owner as the current owner. Effects and cleanups
// registered inside fn belong to owner.
func WithOwner(owner *Owner, fn func()) {
	old := setCurrentOwner(owner)
	defer setCurrentOwner(old)
	fn()
}

// CurrentOwner returns the owner of the calling goroutine, or nil.
func CurrentOwner() *Owner {
	return getCurrentOwner()
}

// CurrentLoop returns the loop executing on the calling goroutine, or nil
// when called from outside loop work.
func CurrentLoop() *Loop {
	return getCurrentLoop()
}

package turbo

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAborted is the default cause of an aborted fetch.
	ErrAborted = errors.New("turbo: fetch aborted")

	// ErrForgotten settles fetches detached by Forget.
	ErrForgotten = errors.New("turbo: key forgotten")
)

// Event names a class of cache broadcast.
type Event string

const (
	// EventMutated fires after Mutate committed a value. Payload.Value is
	// the new value.
	EventMutated Event = "mutated"

	// EventRefetching fires when a revalidating fetch starts. Payload.Pending
	// is the shared in-flight fetch.
	EventRefetching Event = "refetching"

	// EventResolved fires when a fetch succeeded. Payload.Value is the result.
	EventResolved Event = "resolved"

	// EventError fires when a fetch failed. Payload.Err is the failure.
	EventError Event = "error"
)

// Events lists every event class in subscription order.
var Events = []Event{EventMutated, EventRefetching, EventResolved, EventError}

// Payload is delivered to subscribers.
type Payload struct {
	Key     string
	Value   any
	Pending *Pending
	Err     error
}

// Handler receives events for one key. Handlers are called on the
// goroutine that produced the event and must not block.
type Handler func(Payload)

// Update computes the next value of a key from the previous one. prev is
// nil when the key holds nothing.
type Update func(prev any) any

// Set returns an Update that ignores the previous value.
func Set(v any) Update {
	return func(any) any { return v }
}

// QueryOptions are fetch options passed through bindings unmodified.
type QueryOptions struct {
	// Stale allows a cached value to be returned even when expired; an
	// expired value triggers a background revalidation.
	Stale bool

	// TTL overrides the cache's default time-to-live for this fetch.
	TTL time.Duration
}

// Cache is the contract a resource binding consumes.
type Cache interface {
	// Query returns the value for key, sharing in-flight fetches.
	Query(ctx context.Context, key string, opts QueryOptions) *Pending

	// Mutate commits update(prev) for key and broadcasts EventMutated.
	Mutate(key string, update Update)

	// Subscribe registers h for event on key.
	Subscribe(key string, event Event, h Handler) (unsubscribe func())

	// Forget evicts key.
	Forget(key string)

	// Abort cancels the in-flight fetch for key with reason as its cause.
	Abort(key string, reason error)

	// Expiration returns when the cached value for key goes stale.
	Expiration(key string) (time.Time, bool)
}

// Fetcher loads a key from the origin.
type Fetcher func(ctx context.Context, key string) (any, error)

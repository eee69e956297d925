// Package turboresource binds reactive resource cells to a shared query
// cache.
//
// A binding resolves a key, loads it through the cache, subscribes to the
// cache's broadcasts for that key and refetches on window focus and
// network reconnect:
//
//	cache := turbo.NewMemory(fetcher.HTTP("https://api.example.com"))
//	turboresource.SetDefaultCache(cache)
//
//	loop.Do(func() {
//	    user, actions := turboresource.CreateTurboResource[*User](func() string {
//	        return "users/" + userID.Get()
//	    })
//	    isStale, _ := actions.CreateStale(time.Second)
//	    ...
//	})
//
// This package re-exports the binding in pkg/turboresource; the cache
// contract lives in pkg/turbo and the host runtime in pkg/reactive.
package turboresource

import (
	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
	binding "github.com/vango-dev/turboresource/pkg/turboresource"
)

// =============================================================================
// Resource State
// =============================================================================

// ResourceState is the lifecycle state of a resource cell.
type ResourceState = reactive.State

// State constants for resource cells.
const (
	Pending ResourceState = reactive.Pending // no load has completed yet
	Loading ResourceState = reactive.Loading // a load is in flight
	Ready   ResourceState = reactive.Ready   // a value is visible
	Error   ResourceState = reactive.Error   // the last load failed
)

// =============================================================================
// Binding Types
// =============================================================================

// NoKey is the key value meaning "not bound".
const NoKey = binding.NoKey

type (
	// KeySource produces the cache key. It runs in a tracking scope, so
	// reading signals inside it rebinds the resource when they change.
	KeySource = binding.KeySource

	// Option configures a binding.
	Option = binding.Option

	// Transition wraps cell commits.
	Transition = binding.Transition

	// Observer receives binding activity.
	Observer = binding.Observer

	// Cache is the query cache contract a binding runs against.
	Cache = turbo.Cache

	// QueryOptions tunes cache queries.
	QueryOptions = turbo.QueryOptions
)

// =============================================================================
// Constructors
// =============================================================================

// CreateTurboResource binds a resource cell to the key produced by key and
// returns the cell with its actions. It must run on a reactive.Loop.
//
// Example:
//
//	todos, actions := turboresource.CreateTurboResource[[]Todo](
//	    turboresource.Static("todos"),
//	    turboresource.WithFocusInterval(10*time.Second),
//	)
//	actions.Mutate(func(prev []Todo) []Todo { return append(prev, todo) })
func CreateTurboResource[T any](key KeySource, opts ...Option) (*reactive.Resource[string, T], *binding.Actions[T]) {
	return binding.Create[T](key, opts...)
}

// Static returns a KeySource for a fixed key.
func Static(key string) KeySource {
	return binding.Static(key)
}

// KeyE returns a KeySource that unbinds while fn returns an error.
func KeyE(fn func() (string, error)) KeySource {
	return binding.KeyE(fn)
}

// =============================================================================
// Options
// =============================================================================

var (
	WithTurbo            = binding.WithTurbo
	WithOps              = binding.WithOps
	WithTransition       = binding.WithTransition
	WithTransitionFunc   = binding.WithTransitionFunc
	WithRefetchOnFocus   = binding.WithRefetchOnFocus
	WithRefetchOnConnect = binding.WithRefetchOnConnect
	WithFocusInterval    = binding.WithFocusInterval
	WithQueryOptions     = binding.WithQueryOptions
	WithEnvironment      = binding.WithEnvironment
	WithLogger           = binding.WithLogger
	WithObserver         = binding.WithObserver
	WithClock            = binding.WithClock
)

// =============================================================================
// Defaults
// =============================================================================

// SetDefaults sets process-wide options, overlaid on earlier calls.
func SetDefaults(opts ...Option) {
	binding.SetDefaults(opts...)
}

// SetDefaultCache sets the process-wide cache.
func SetDefaultCache(c Cache) {
	binding.SetDefaultCache(c)
}

// ResetDefaults clears process-wide options.
func ResetDefaults() {
	binding.ResetDefaults()
}

// ProvideConfig scopes options to owner and its descendants. A nil owner
// means the current owner.
func ProvideConfig(owner *reactive.Owner, opts ...Option) {
	binding.ProvideConfig(owner, opts...)
}

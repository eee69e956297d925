// Package turboresource binds a reactive resource cell to a keyed async
// cache.
//
// Create resolves a key from a reactive accessor, loads the key through
// the cache into a reactive.Resource, and keeps the cell in step with the
// cache afterwards: mutations broadcast by the cache are echoed into the
// cell, refetches started anywhere are joined instead of duplicated, and
// the window regaining focus or the network coming back revalidates the
// key. Every commit into the cell goes through one transition adapter.
//
//	loop.Do(func() {
//	    user, actions := turboresource.Create[*User](
//	        func() string { return "/users/" + userID.Get() },
//	        turboresource.WithTurbo(cache),
//	    )
//	    isStale, staleIn := actions.CreateStale(time.Second)
//	    ...
//	})
//
// The binding must be created on a reactive.Loop. Actions may be called
// from any goroutine; reactive reads (IsRefetching, LastFocus and the
// derived stale signals) belong on the loop.
package turboresource

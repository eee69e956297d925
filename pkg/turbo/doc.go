// Package turbo defines the keyed async cache contract resource bindings
// consume, and Memory, an in-process engine implementing it.
//
// A cache is addressed by string keys and offers:
//
//   - Query: fetch with in-flight deduplication, stale-tolerant or fresh
//   - Mutate: commit a value and broadcast it to subscribers
//   - Subscribe: listen to mutated, refetching, resolved and error events
//   - Forget, Abort and Expiration lookup
//
// Ops is the resolved operation set a binding captures once, instead of
// re-resolving the cache on every call.
package turbo

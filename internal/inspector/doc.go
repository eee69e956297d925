// Package inspector serves one resource binding over HTTP.
//
// The inspector binds a single key through turboresource.Create and
// exposes the cell, its actions and the environment bridge:
//
//	GET  /healthz      liveness
//	GET  /ws           environment frames (focus, online, visibility)
//	GET  /metrics      Prometheus collectors
//	GET  /state        JSON snapshot of the cell and its actions
//	PUT  /key          switch the bound key; an empty body unbinds
//	POST /mutate       commit the JSON body to the cache
//	POST /refetch      refetch and return the fresh value
//	POST /forget       evict the key from the cache
//	POST /abort        cancel the in-flight fetch
//	POST /unsubscribe  drop the live subscriptions
package inspector

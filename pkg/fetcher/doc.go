// Package fetcher provides origin loaders for turbo.Memory.
//
// Each constructor returns a turbo.Fetcher. Loaders honour the context
// they are given, so turbo.Memory.Abort and Forget stop an in-flight
// request.
package fetcher

package turboresource

import "github.com/vango-dev/turboresource/pkg/reactive"

// NoKey is the resolved key of a binding with nothing to fetch.
const NoKey = ""

// KeySource produces the key to bind. It is evaluated reactively: signals
// it reads re-resolve the key when they change. Returning NoKey, or
// panicking, means there is nothing to fetch.
type KeySource func() string

// Static returns a KeySource that always yields key.
func Static(key string) KeySource {
	return func() string { return key }
}

// KeyE adapts an accessor that reports failure with an error. A non-nil
// error resolves to NoKey.
func KeyE(fn func() (string, error)) KeySource {
	return func() string {
		key, err := fn()
		if err != nil {
			return NoKey
		}
		return key
	}
}

// ResolveKey memoizes src. The accessor runs again only when a signal it
// read changed, and readers are notified only when the resolved key
// actually differs.
func ResolveKey(src KeySource) *reactive.Memo[string] {
	return reactive.NewMemo(func() string {
		return evalKey(src)
	})
}

func evalKey(src KeySource) (key string) {
	if src == nil {
		return NoKey
	}
	defer func() {
		if recover() != nil {
			key = NoKey
		}
	}()
	return src()
}

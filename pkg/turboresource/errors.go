package turboresource

import (
	"errors"
	"fmt"
	"reflect"

	terrors "github.com/vango-dev/turboresource/internal/errors"
)

var (
	// ErrNoCache fails loads of a binding that resolved no cache.
	ErrNoCache = errors.New("turboresource: no cache configured")

	// ErrTypeMismatch fails loads whose cached value is not of the
	// resource's value type.
	ErrTypeMismatch = errors.New("turboresource: cached value has unexpected type")
)

// cast converts a cached value to T. A nil value is the zero T.
func cast[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, terrors.New("T101").
			WithDetail(fmt.Sprintf("got %T, want %s", v, reflect.TypeFor[T]())).
			Wrap(ErrTypeMismatch)
	}
	return t, nil
}

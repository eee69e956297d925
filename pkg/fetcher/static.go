package fetcher

import (
	"context"
	stderrors "errors"
	"maps"

	"github.com/vango-dev/turboresource/internal/errors"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// ErrNotFound is returned by Static for keys it does not hold.
var ErrNotFound = stderrors.New("key not found")

// Static returns a fetcher that serves values from a copy of data.
func Static(data map[string]any) turbo.Fetcher {
	data = maps.Clone(data)
	return func(ctx context.Context, key string) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok := data[key]
		if !ok {
			return nil, errors.New("T102").WithSource(key).Wrap(ErrNotFound)
		}
		return v, nil
	}
}

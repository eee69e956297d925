package turbo

import (
	"context"
	"time"
)

// Ops is a resolved set of cache operations. A binding resolves it once
// from whichever cache its configuration selected and calls through it
// afterwards.
type Ops struct {
	Query      func(ctx context.Context, key string, opts QueryOptions) *Pending
	Mutate     func(key string, update Update)
	Subscribe  func(key string, event Event, h Handler) func()
	Forget     func(key string)
	Abort      func(key string, reason error)
	Expiration func(key string) (time.Time, bool)
}

// OpsOf binds every operation of c.
func OpsOf(c Cache) Ops {
	return Ops{
		Query:      c.Query,
		Mutate:     c.Mutate,
		Subscribe:  c.Subscribe,
		Forget:     c.Forget,
		Abort:      c.Abort,
		Expiration: c.Expiration,
	}
}

// Valid reports whether every operation is bound.
func (o Ops) Valid() bool {
	return o.Query != nil && o.Mutate != nil && o.Subscribe != nil &&
		o.Forget != nil && o.Abort != nil && o.Expiration != nil
}

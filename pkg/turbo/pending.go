package turbo

import (
	"context"
	"sync"
)

// Pending is a one-shot in-flight fetch result shared by every caller
// waiting on the same key.
type Pending struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewPending creates an unsettled Pending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved returns a Pending already settled with v.
func Resolved(v any) *Pending {
	p := NewPending()
	p.Settle(v, nil)
	return p
}

// Failed returns a Pending already settled with err.
func Failed(err error) *Pending {
	p := NewPending()
	p.Settle(nil, err)
	return p
}

// Settle stores the outcome. Only the first call has an effect.
func (p *Pending) Settle(v any, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
		settled = true
	})
	return settled
}

// Done is closed once the fetch settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the fetch settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome and whether the fetch has settled.
func (p *Pending) Result() (any, error, bool) {
	select {
	case <-p.done:
		return p.value, p.err, true
	default:
		return nil, nil, false
	}
}

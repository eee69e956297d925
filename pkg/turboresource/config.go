package turboresource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	terrors "github.com/vango-dev/turboresource/internal/errors"
	"github.com/vango-dev/turboresource/pkg/env"
	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// DefaultFocusInterval is the minimum spacing of focus-triggered refetches.
const DefaultFocusInterval = 5 * time.Second

// Observer receives binding activity, typically for metrics.
type Observer interface {
	Bound(key string)
	Unbound(key string)
	Triggered(trigger string, accepted bool)
	Delivered(event turbo.Event, dropped bool)
}

// Trigger names reported to Observer.Triggered.
const (
	TriggerFocus   = "focus"
	TriggerConnect = "connect"
)

// config holds the options of one layer. Nil fields are unset and fall
// through to the next layer.
type config struct {
	ops              *turbo.Ops
	transition       *transitionSetting
	refetchOnFocus   *bool
	refetchOnConnect *bool
	focusInterval    *time.Duration
	query            *turbo.QueryOptions
	env              env.Source
	logger           *slog.Logger
	observer         Observer
	now              func() time.Time
}

// Option configures a binding, a config context or the process defaults.
type Option func(*config)

// WithTurbo selects the cache the binding talks to.
func WithTurbo(c turbo.Cache) Option {
	return func(cfg *config) {
		if c == nil {
			return
		}
		ops := turbo.OpsOf(c)
		cfg.ops = &ops
	}
}

// WithOps selects a cache by its operation set.
func WithOps(ops turbo.Ops) Option {
	return func(cfg *config) {
		cfg.ops = &ops
	}
}

// WithTransition enables (the host loop's transition) or disables
// transitions. Disabled bindings commit directly on the loop.
func WithTransition(enabled bool) Option {
	return func(cfg *config) {
		mode := transitionHost
		if !enabled {
			mode = transitionDirect
		}
		cfg.transition = &transitionSetting{mode: mode}
	}
}

// WithTransitionFunc routes commits through fn.
func WithTransitionFunc(fn Transition) Option {
	return func(cfg *config) {
		if fn == nil {
			cfg.transition = &transitionSetting{mode: transitionHost}
			return
		}
		cfg.transition = &transitionSetting{mode: transitionCustom, fn: fn}
	}
}

// WithRefetchOnFocus toggles refetching when the window regains focus.
func WithRefetchOnFocus(enabled bool) Option {
	return func(cfg *config) {
		cfg.refetchOnFocus = &enabled
	}
}

// WithRefetchOnConnect toggles refetching when connectivity returns.
func WithRefetchOnConnect(enabled bool) Option {
	return func(cfg *config) {
		cfg.refetchOnConnect = &enabled
	}
}

// WithFocusInterval sets the focus refetch throttle.
func WithFocusInterval(d time.Duration) Option {
	return func(cfg *config) {
		if d < 0 {
			d = 0
		}
		cfg.focusInterval = &d
	}
}

// WithQueryOptions passes cache fetch options through. Stale is decided per
// call: loads are stale-tolerant, refetches are not.
func WithQueryOptions(o turbo.QueryOptions) Option {
	return func(cfg *config) {
		cfg.query = &o
	}
}

// WithEnvironment selects where focus and connectivity triggers come from.
func WithEnvironment(src env.Source) Option {
	return func(cfg *config) {
		cfg.env = src
	}
}

// WithLogger sets the binding logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// WithObserver attaches an activity observer.
func WithObserver(o Observer) Option {
	return func(cfg *config) {
		cfg.observer = o
	}
}

// WithClock replaces time.Now for throttling and staleness.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}

func (c *config) overlay(o *config) {
	if o == nil {
		return
	}
	if o.ops != nil {
		c.ops = o.ops
	}
	if o.transition != nil {
		c.transition = o.transition
	}
	if o.refetchOnFocus != nil {
		c.refetchOnFocus = o.refetchOnFocus
	}
	if o.refetchOnConnect != nil {
		c.refetchOnConnect = o.refetchOnConnect
	}
	if o.focusInterval != nil {
		c.focusInterval = o.focusInterval
	}
	if o.query != nil {
		c.query = o.query
	}
	if o.env != nil {
		c.env = o.env
	}
	if o.logger != nil {
		c.logger = o.logger
	}
	if o.observer != nil {
		c.observer = o.observer
	}
	if o.now != nil {
		c.now = o.now
	}
}

func build(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var defaults struct {
	mu  sync.RWMutex
	cfg config
}

// SetDefaults layers opts onto the process-wide defaults.
func SetDefaults(opts ...Option) {
	c := build(opts)
	defaults.mu.Lock()
	defaults.cfg.overlay(c)
	defaults.mu.Unlock()
}

// SetDefaultCache makes c the process-wide cache.
func SetDefaultCache(c turbo.Cache) {
	SetDefaults(WithTurbo(c))
}

// ResetDefaults clears the process-wide defaults.
func ResetDefaults() {
	defaults.mu.Lock()
	defaults.cfg = config{}
	defaults.mu.Unlock()
}

func processDefaults() *config {
	defaults.mu.RLock()
	defer defaults.mu.RUnlock()
	c := defaults.cfg
	return &c
}

var configContext = reactive.CreateContext[*config](nil)

// ProvideConfig stores opts on owner for every binding created under it.
// Options already provided by an ancestor stay in effect unless opts
// override them. A nil owner means the current owner.
func ProvideConfig(owner *reactive.Owner, opts ...Option) {
	if owner == nil {
		owner = reactive.CurrentOwner()
	}
	if owner == nil {
		return
	}
	c := &config{}
	if parent, ok := configContext.Lookup(owner); ok && parent != nil {
		*c = *parent
	}
	c.overlay(build(opts))
	configContext.Provide(owner, c)
}

// settings is the fully resolved configuration of one binding.
type settings struct {
	ops              turbo.Ops
	hasCache         bool
	transition       transitionSetting
	refetchOnFocus   bool
	refetchOnConnect bool
	focusInterval    time.Duration
	query            turbo.QueryOptions
	env              env.Source
	logger           *slog.Logger
	observer         Observer
	now              func() time.Time
}

// resolve applies, lowest precedence first: built-ins, process defaults,
// the config context visible from owner, then the per-call options.
func resolve(owner *reactive.Owner, opts []Option) settings {
	c := &config{}
	c.overlay(processDefaults())
	if provided, ok := configContext.Lookup(owner); ok {
		c.overlay(provided)
	}
	c.overlay(build(opts))

	s := settings{
		transition:       transitionSetting{mode: transitionHost},
		refetchOnFocus:   true,
		refetchOnConnect: true,
		focusInterval:    DefaultFocusInterval,
		env:              env.Default,
		logger:           slog.Default().With("component", "turboresource"),
		observer:         nopObserver{},
		now:              time.Now,
	}
	if c.ops != nil && c.ops.Valid() {
		s.ops, s.hasCache = *c.ops, true
	} else {
		s.ops = noCacheOps()
	}
	if c.transition != nil {
		s.transition = *c.transition
	}
	if c.refetchOnFocus != nil {
		s.refetchOnFocus = *c.refetchOnFocus
	}
	if c.refetchOnConnect != nil {
		s.refetchOnConnect = *c.refetchOnConnect
	}
	if c.focusInterval != nil {
		s.focusInterval = *c.focusInterval
	}
	if c.query != nil {
		s.query = *c.query
	}
	if c.env != nil {
		s.env = c.env
	}
	if c.logger != nil {
		s.logger = c.logger
	}
	if c.observer != nil {
		s.observer = c.observer
	}
	if c.now != nil {
		s.now = c.now
	}
	return s
}

// noCacheOps fails every load with ErrNoCache and ignores everything else.
func noCacheOps() turbo.Ops {
	return turbo.Ops{
		Query: func(context.Context, string, turbo.QueryOptions) *turbo.Pending {
			return turbo.Failed(terrors.New("T100").Wrap(ErrNoCache))
		},
		Mutate:     func(string, turbo.Update) {},
		Subscribe:  func(string, turbo.Event, turbo.Handler) func() { return func() {} },
		Forget:     func(string) {},
		Abort:      func(string, error) {},
		Expiration: func(string) (time.Time, bool) { return time.Time{}, false },
	}
}

type nopObserver struct{}

func (nopObserver) Bound(string)                {}
func (nopObserver) Unbound(string)              {}
func (nopObserver) Triggered(string, bool)      {}
func (nopObserver) Delivered(turbo.Event, bool) {}

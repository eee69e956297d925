package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/turboresource/pkg/env"
	"github.com/vango-dev/turboresource/pkg/env/wsbridge"
	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
	"github.com/vango-dev/turboresource/pkg/turboresource"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Options configures an Inspector.
type Options struct {
	// Loop runs every reactive commit. It must not be running yet when
	// New is called.
	Loop *reactive.Loop

	// Cache backs the binding.
	Cache turbo.Cache

	// Events receives frames from /ws and drives the binding's triggers.
	Events *env.Events

	// Gatherer serves /metrics. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	// Key is the key bound at startup. Empty means no key.
	Key string

	// Binding holds extra options for turboresource.Create.
	Binding []turboresource.Option

	// Precision is the tick of the stale and focus trackers.
	// Default: turboresource.DefaultPrecision
	Precision time.Duration

	// AllowedOrigins lists origins allowed to call the API from a
	// browser. Default: any origin.
	AllowedOrigins []string

	// Tracer opens a span per request. Default: otel.Tracer("turbo.inspector")
	Tracer trace.Tracer

	// Logger defaults to slog.Default().With("component", "inspector").
	Logger *slog.Logger
}

// Inspector wraps the chi router and the binding it serves.
type Inspector struct {
	id     string
	router *chi.Mux
	loop   *reactive.Loop
	bridge *wsbridge.Bridge
	logger *slog.Logger
	tracer trace.Tracer

	gatherer prometheus.Gatherer

	owner   *reactive.Owner
	key     *reactive.Signal[string]
	res     *reactive.Resource[string, any]
	actions *turboresource.Actions[any]

	isStale        func() bool
	staleIn        func() time.Duration
	focusAvailable func() bool
	focusIn        func() time.Duration
}

// New binds opts.Key and builds the router.
func New(opts Options) *Inspector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "inspector")
	}
	if opts.Events == nil {
		opts.Events = env.NewEvents()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Precision <= 0 {
		opts.Precision = turboresource.DefaultPrecision
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("turbo.inspector")
	}

	i := &Inspector{
		id:       uuid.NewString(),
		router:   chi.NewRouter(),
		loop:     opts.Loop,
		bridge:   wsbridge.New(opts.Events, wsbridge.WithLogger(logger.With("bridge", "ws"))),
		logger:   logger,
		tracer:   opts.Tracer,
		gatherer: opts.Gatherer,
		key:      reactive.NewSignal(opts.Key),
	}

	bindOpts := append([]turboresource.Option{
		turboresource.WithTurbo(opts.Cache),
		turboresource.WithEnvironment(opts.Events),
	}, opts.Binding...)

	i.loop.Do(func() {
		i.owner = reactive.NewOwner(i.loop.Owner())
		reactive.WithOwner(i.owner, func() {
			i.res, i.actions = turboresource.Create[any](i.key.Get, bindOpts...)
			i.isStale, i.staleIn = i.actions.CreateStale(opts.Precision)
			i.focusAvailable, i.focusIn = i.actions.CreateFocusAvailable(opts.Precision)
		})
	})

	i.router.Use(middleware.RequestID)
	i.router.Use(middleware.Recoverer)
	i.router.Use(i.tracingMiddleware)
	i.router.Use(i.loggingMiddleware)
	i.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	i.routes()

	logger.Info("binding created", "id", i.id, "key", opts.Key)
	return i
}

// routes registers all HTTP routes on the router.
func (i *Inspector) routes() {
	i.router.Get("/healthz", i.handleHealthz)
	i.router.Get("/ws", i.bridge.ServeHTTP)
	i.router.Handle("/metrics", promhttp.HandlerFor(i.gatherer, promhttp.HandlerOpts{}))

	i.router.Get("/state", i.handleState)
	i.router.Put("/key", i.handleSetKey)
	i.router.Post("/mutate", i.handleMutate)
	i.router.Post("/refetch", i.handleRefetch)
	i.router.Post("/forget", i.handleForget)
	i.router.Post("/abort", i.handleAbort)
	i.router.Post("/unsubscribe", i.handleUnsubscribe)
}

// Router returns the chi router.
func (i *Inspector) Router() *chi.Mux {
	return i.router
}

// ID identifies this binding in logs and /state.
func (i *Inspector) ID() string {
	return i.id
}

// Close disposes the binding and disconnects bridge clients.
func (i *Inspector) Close() {
	i.bridge.Close()
	done := make(chan struct{})
	i.loop.Dispatch(func() {
		defer close(done)
		i.owner.Dispose()
	})
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		i.logger.Warn("binding dispose timed out")
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (i *Inspector) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           i.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		i.logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		i.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	i.bridge.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	i.logger.Info("server stopped")
	return nil
}

// onLoop runs fn on the loop and waits for it.
func (i *Inspector) onLoop(ctx context.Context, fn func()) error {
	_, err := onLoopValue(ctx, i.loop, func() struct{} {
		fn()
		return struct{}{}
	})
	return err
}

// onLoopValue runs fn on the loop and returns its result. When ctx ends
// first, the result is dropped into the buffered channel and discarded.
func onLoopValue[T any](ctx context.Context, loop *reactive.Loop, fn func() T) (T, error) {
	out := make(chan T, 1)
	loop.Dispatch(func() { out <- fn() })
	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// loggingMiddleware logs each request using the structured logger.
func (i *Inspector) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		i.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

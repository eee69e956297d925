package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/turboresource/internal/config"
	"github.com/vango-dev/turboresource/internal/inspector"
	"github.com/vango-dev/turboresource/pkg/env"
	"github.com/vango-dev/turboresource/pkg/metrics"
	"github.com/vango-dev/turboresource/pkg/reactive"
	"github.com/vango-dev/turboresource/pkg/turbo"
	"github.com/vango-dev/turboresource/pkg/turboresource"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		key        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one binding over HTTP",
		Long: `Build a memory cache over the configured fetcher, bind one key and
serve the inspector.

Settings come from turbo.json, turbo.yaml or turbo.yml in the working
directory (or --config), then TURBO_* environment variables, then flags.

Examples:
  turbo serve
  turbo serve --key users/1
  turbo serve --config ./turbo.yaml --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, os.LookupEnv)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("key") {
				cfg.Server.Key = key
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: turbo.json|yaml|yml in the working directory)")
	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultAddr, "Listen address")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Key to bind at startup")

	return cmd
}

// loadConfig resolves file, environment and validation. A missing
// default file is not an error.
func loadConfig(path string, lookup config.LookupFunc) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	default:
		if found, ok := config.Find("."); ok {
			cfg, err = config.LoadFile(found)
		} else {
			cfg = config.New()
		}
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from validated settings.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	fetch, err := buildFetcher(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))

	cache := turbo.NewMemory(fetch,
		turbo.WithTTL(cfg.TTL()),
		turbo.WithObserver(m),
	)
	loop := reactive.NewLoop()

	ins := inspector.New(inspector.Options{
		Loop:           loop,
		Cache:          cache,
		Events:         env.NewEvents(),
		Gatherer:       reg,
		Key:            cfg.Server.Key,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Binding: []turboresource.Option{
			turboresource.WithObserver(m),
			turboresource.WithRefetchOnFocus(cfg.Binding.RefetchOnFocus),
			turboresource.WithRefetchOnConnect(cfg.Binding.RefetchOnConnect),
			turboresource.WithFocusInterval(cfg.FocusInterval()),
			turboresource.WithTransition(cfg.Binding.Transition),
		},
	})

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()

	printBanner()
	logger.Info("serving",
		"addr", cfg.Server.Addr,
		"fetcher", cfg.Fetcher.Kind,
		"key", cfg.Server.Key,
		"config", cfg.Path(),
	)

	serveErr := ins.Serve(ctx, cfg.Server.Addr)

	ins.Close()
	stopLoop()
	<-loopDone
	loop.Close()
	return serveErr
}

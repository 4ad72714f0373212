package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Rajat-Ahuja1997/last-time/auth"
	"github.com/Rajat-Ahuja1997/last-time/exchange"
	"github.com/Rajat-Ahuja1997/last-time/internal/config"
	"github.com/Rajat-Ahuja1997/last-time/metrics"
	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/Rajat-Ahuja1997/last-time/providers/apple"
	"github.com/Rajat-Ahuja1997/last-time/providers/google"
	"github.com/Rajat-Ahuja1997/last-time/providers/loopback"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/Rajat-Ahuja1997/last-time/sessions/filerepo"
	"github.com/Rajat-Ahuja1997/last-time/sessions/sqliterepo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App holds everything a command needs, built once per invocation.
type App struct {
	Config      config.Config
	Coordinator *auth.Coordinator
	Registry    *prometheus.Registry
	closers     []func() error
}

// BuildOption customizes Build, primarily for tests.
type BuildOption func(*buildOptions)

type buildOptions struct {
	adapters []providers.Adapter
}

// WithAdapters replaces the provider adapters derived from the configuration.
func WithAdapters(adapters ...providers.Adapter) BuildOption {
	return func(o *buildOptions) {
		o.adapters = adapters
	}
}

// Build wires the session repo, provider adapters, exchange client, metrics
// and coordinator from cfg.
func Build(cfg config.Config, opener providers.Opener, logger zerolog.Logger, options ...BuildOption) (*App, error) {
	var opts buildOptions
	for _, opt := range options {
		opt(&opts)
	}

	app := &App{Config: cfg, Registry: prometheus.NewRegistry()}

	repo, err := app.openRepo(cfg, logger)
	if err != nil {
		return nil, err
	}

	adapters := opts.adapters
	if adapters == nil {
		if adapters, err = buildAdapters(cfg, opener, logger); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	exchangeClient, err := exchange.New(cfg.GetBackendBaseURL(),
		exchange.WithHTTPClient(&http.Client{Timeout: cfg.GetExchangeTimeout()}),
		exchange.WithLogger(logger),
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	coord, err := auth.New(adapters, exchangeClient, repo,
		auth.WithSignInTimeout(cfg.GetSignInTimeout()),
		auth.WithLogger(logger),
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	collector := metrics.NewCollector(app.Registry)
	coord.Subscribe(collector.Observe)
	app.Coordinator = coord
	return app, nil
}

func (a *App) openRepo(cfg config.Config, logger zerolog.Logger) (sessions.Repo, error) {
	switch cfg.GetSessionStore() {
	case config.StoreSQLite:
		repo, err := sqliterepo.New(cfg.GetSessionPath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	case config.StoreFile:
		repoOpts := []filerepo.Option{filerepo.WithLogger(logger)}
		key, err := cfg.GetSessionEncryptionKey()
		if err != nil {
			return nil, err
		}
		if key != nil {
			repoOpts = append(repoOpts, filerepo.WithEncryptionKey(key))
		}
		return filerepo.New(cfg.GetSessionPath(), repoOpts...)
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.GetSessionStore())
	}
}

func buildAdapters(cfg config.Config, opener providers.Opener, logger zerolog.Logger) ([]providers.Adapter, error) {
	var adapters []providers.Adapter
	if cfg.GetGoogleClientID() != "" {
		g, err := google.New(google.Config{
			ClientID:     cfg.GetGoogleClientID(),
			ClientSecret: cfg.GetGoogleClientSecret(),
			Callback:     loopback.Config{Addr: cfg.GetCallbackAddr()},
		}, opener, google.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, g)
	}
	if cfg.GetAppleBundleID() != "" {
		a, err := apple.New(apple.Config{
			BundleID: cfg.GetAppleBundleID(),
			Callback: loopback.Config{Addr: cfg.GetCallbackAddr(), PublicURL: cfg.GetAppleRedirectURL()},
		}, opener, apple.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// Start seeds the coordinator from the stored session.
func (a *App) Start(ctx context.Context) error {
	return a.Coordinator.Start(ctx)
}

// WriteMetrics writes the collected metrics in the Prometheus text format,
// for node_exporter's textfile collector.
func (a *App) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, a.Registry)
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

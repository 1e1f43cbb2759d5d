package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/otterbox/internal/cache"
	"github.com/florianilch/otterbox/internal/client"
	"github.com/florianilch/otterbox/internal/credstore"
	"github.com/florianilch/otterbox/internal/proxy"
	"github.com/florianilch/otterbox/internal/settings"
	"github.com/florianilch/otterbox/internal/tokensource"
)

// ErrReadOnlyStorage is returned by Login when the credential storage cannot be written.
var ErrReadOnlyStorage = errors.New("credential storage is read-only")

// ErrCacheDisabled is returned by CacheDir when caching is turned off.
var ErrCacheDisabled = errors.New("cache is disabled")

// ErrCacheUnavailable is returned by CacheDir when the cache directory could not be opened.
var ErrCacheUnavailable = errors.New("cache is unavailable")

// App wires the credential store, client, cache and gateway from one Config
// and orchestrates the gateway lifecycle.
type App struct {
	cfg       *Config
	store     credstore.Store
	refresher *tokensource.Refresher
	client    *client.Client
	cache     cache.Cache
	dir       *cache.Dir
	cacheErr  error
	proxy     *proxy.Proxy
}

// New creates a new App instance. No network I/O is performed.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Auth.NewCredentialStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	s, err := settings.New(cfg.Server.BaseURL, cfg.Server.Anonymous, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}

	refresher, err := tokensource.NewRefresher(cfg.Server.BaseURL, store, tokensource.WithTimeout(cfg.HTTP.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create token refresher: %w", err)
	}

	apiClient, err := client.New(s, refresher, client.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	a := &App{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		client:    apiClient,
		cache:     cache.Null{},
	}

	// An unusable cache root degrades to a cache that stores nothing
	if cfg.Cache.Disabled {
		a.cacheErr = ErrCacheDisabled
	} else if dir, err := cache.NewDir(cfg.Cache.Dir); err != nil {
		slog.Warn("cache unavailable, continuing without it", "dir", cfg.Cache.Dir, "error", err)
		a.cacheErr = fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	} else {
		a.dir = dir
		a.cache = dir
	}

	a.proxy, err = proxy.New(a.client, a.cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return a, nil
}

// Client returns the authenticated API client.
func (a *App) Client() *client.Client { return a.client }

// Cache returns the content cache, a no-op cache when caching is disabled.
func (a *App) Cache() cache.Cache { return a.cache }

// CacheDir returns the on-disk cache for management commands. It fails with
// ErrCacheDisabled or ErrCacheUnavailable when requests run without a cache.
func (a *App) CacheDir() (*cache.Dir, error) {
	if a.dir == nil {
		return nil, a.cacheErr
	}
	return a.dir, nil
}

// Login stores username and password and exchanges them for a first access token.
// The credentials stay stored when the exchange fails so a later request can retry.
func (a *App) Login(ctx context.Context, username, password string) error {
	if !a.cfg.Auth.Writable() {
		return fmt.Errorf("%w: %s", ErrReadOnlyStorage, a.cfg.Auth.Storage)
	}

	if err := a.store.Write(ctx, credstore.Credentials{Username: username, Password: password}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	if err := a.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	slog.InfoContext(ctx, "logged in", "username", username, "server", a.cfg.Server.BaseURL)
	return nil
}

// Start starts the gateway and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Gateway.Host + ":" + strconv.FormatUint(uint64(a.cfg.Gateway.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting gateway", "address", address, "upstream", a.cfg.Server.BaseURL, "cache", !a.cfg.Cache.Disabled)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

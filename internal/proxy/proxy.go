package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/florianilch/otterbox/internal/cache"
)

// Proxy is the local gateway server in front of the music server API.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
	addr   net.Addr
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// New creates a gateway answering from store and falling back to fetcher.
func New(fetcher Fetcher, store cache.Cache) (*Proxy, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("missing fetcher")
	}
	if store == nil {
		return nil, fmt.Errorf("missing cache")
	}

	handler := &CachingHandler{Fetcher: fetcher, Cache: store}
	wrap := func(h http.HandlerFunc) http.Handler {
		return applyMiddlewares(h, Logging(slog.Default()), Recovery)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /", wrap(handler.ServeGet))
	mux.Handle("DELETE /", wrap(handler.ServeDelete))

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start listens on address and serves in the background. Listen failures such as
// a port in use are returned directly; failures while serving arrive on the
// returned channel, which is closed once the server stops.
// Call Shutdown to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	p.addr = listener.Addr()

	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		// Bounds a slow upstream fetch plus writing the body
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Addr returns the address the gateway listens on, or nil before Start.
func (p *Proxy) Addr() net.Addr {
	return p.addr
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends,
// then closes remaining connections.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

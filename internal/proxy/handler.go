package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/florianilch/otterbox/internal/cache"
	"github.com/florianilch/otterbox/internal/client"
)

// Fetcher performs an authenticated GET. *client.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, path string, decode client.Decoder) error
}

// Compile-time check that client.Client satisfies Fetcher
var _ Fetcher = (*client.Client)(nil)

// CachingHandler serves API GETs from the content cache, fetching and storing
// misses through the authenticated client. Entries are keyed by request URI
// (path and query).
type CachingHandler struct {
	Fetcher Fetcher
	Cache   cache.Cache
}

// ServeGet answers a GET from the cache or the upstream API.
func (h *CachingHandler) ServeGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.URL.RequestURI()

	if rc, ok := h.Cache.Get(ctx, key); ok {
		defer func() { _ = rc.Close() }()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			slog.ErrorContext(ctx, "failed to write cached response", "key", key, "error", err)
		}
		return
	}

	var body []byte
	if err := h.Fetcher.Get(ctx, key, client.Raw(&body)); err != nil {
		if ctx.Err() != nil {
			return
		}
		status := statusFor(err)
		slog.WarnContext(ctx, "upstream request failed", "key", key, "status", status, "error", err)
		writeJSONError(ctx, w, err.Error(), status)
		return
	}

	h.Cache.Set(ctx, key, body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "key", key, "error", err)
	}
}

// ServeDelete evicts the cache entry for the request URI.
func (h *CachingHandler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	h.Cache.Delete(r.Context(), r.URL.RequestURI())
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps a client error onto the gateway response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, client.ErrInvalidURL):
		return http.StatusBadRequest
	}
	if code := client.StatusCode(err); code >= 400 {
		return code
	}
	return http.StatusBadGateway
}

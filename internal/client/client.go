package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultUserAgent is sent unless overridden with WithUserAgent.
const DefaultUserAgent = "otterbox"

// Settings provides the server location and the credentials to attach.
type Settings interface {
	BaseURL() string
	Anonymous() bool
	AccessToken(ctx context.Context) (string, error)
}

// Refresher obtains and persists a new access token.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Decoder consumes a successful response body.
type Decoder func(body io.Reader) error

// JSON returns a Decoder that unmarshals the body into v.
func JSON(v any) Decoder {
	return func(body io.Reader) error {
		return json.NewDecoder(body).Decode(v)
	}
}

// Raw returns a Decoder that stores the body verbatim in dst.
func Raw(dst *[]byte) Decoder {
	return func(body io.Reader) error {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		*dst = data
		return nil
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header of API requests.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// Client issues authenticated GET requests against the API.
// A 401 response triggers one token refresh followed by exactly one retry.
// Concurrent calls are independent; each may refresh on its own.
type Client struct {
	settings   Settings
	refresher  Refresher
	httpClient *http.Client
	userAgent  string
}

// New creates a Client.
func New(settings Settings, refresher Refresher, opts ...Option) (*Client, error) {
	if settings == nil {
		return nil, fmt.Errorf("missing settings")
	}
	if refresher == nil {
		return nil, fmt.Errorf("missing token refresher")
	}

	c := &Client{
		settings:   settings,
		refresher:  refresher,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get fetches path, relative to the configured base URL unless it is already absolute,
// and hands the response body to decode. Failures are returned as *Error.
func (c *Client) Get(ctx context.Context, path string, decode Decoder) error {
	target, err := NormalizeURL(c.settings.BaseURL(), path)
	if err != nil {
		return &Error{Kind: ErrInvalidURL, Method: http.MethodGet, URL: path, Err: err}
	}

	unauthorized, err := c.do(ctx, target, decode)
	if !unauthorized {
		return err
	}

	slog.DebugContext(ctx, "request unauthorized, refreshing token", "url", target)
	return c.retry(ctx, target, decode)
}

// GetJSON fetches path and decodes the JSON response into a T.
func GetJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var v T
	if err := c.Get(ctx, path, JSON(&v)); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// retry refreshes the token and sends the request once more with the new token.
func (c *Client) retry(ctx context.Context, target string, decode Decoder) error {
	if err := c.refresher.Refresh(ctx); err != nil {
		return &Error{Kind: ErrRefreshFailed, Method: http.MethodGet, URL: target, Err: err}
	}

	// The request is rebuilt so the refreshed token is read again
	if _, err := c.do(ctx, target, decode); err != nil {
		return &Error{Kind: ErrRetryExhausted, Method: http.MethodGet, URL: target, StatusCode: StatusCode(err), Err: err}
	}
	return nil
}

// do sends a single GET. It reports whether the server answered 401, in which case
// the body is discarded and decode is not called.
func (c *Client) do(ctx context.Context, target string, decode Decoder) (bool, error) {
	req, err := c.newRequest(ctx, target)
	if err != nil {
		return false, &Error{Kind: ErrTransport, Method: http.MethodGet, URL: target, Err: err}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &Error{Kind: ErrTransport, Method: http.MethodGet, URL: target, Err: err}
	}
	defer func() {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	slog.DebugContext(ctx, "api response",
		"url", target,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-Id"),
		"duration", time.Since(started),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return true, &Error{Kind: ErrTransport, Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Err: errUnauthorized}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, &Error{Kind: ErrTransport, Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	if err := decode(resp.Body); err != nil {
		return false, &Error{Kind: ErrDecode, Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	return false, nil
}

// newRequest builds a GET request, attaching the current bearer token unless in anonymous mode.
func (c *Client) newRequest(ctx context.Context, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	if c.settings.Anonymous() {
		return req, nil
	}

	token, err := c.settings.AccessToken(ctx)
	if err != nil {
		// No token yet; the server's 401 starts a refresh
		slog.DebugContext(ctx, "no access token available", "error", err)
		return req, nil
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token}).SetAuthHeader(req)
	}
	return req, nil
}

// NormalizeURL resolves path against baseURL. Absolute http(s) URLs are returned unchanged;
// anything else is appended to the base URL, keeping any path prefix of the base.
func NormalizeURL(baseURL, path string) (string, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() && u.Host != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return u.String(), nil
	}

	joined := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(joined)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute http(s) URL", joined)
	}
	return u.String(), nil
}

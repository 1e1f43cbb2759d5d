package tokensource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/otterbox/internal/credstore"
)

// ErrMissingCredentials is returned when no username or password is stored.
var ErrMissingCredentials = errors.New("username and password required")

// Option configures a Refresher.
type Option func(*refresherConfig)

// refresherConfig holds configuration for NewRefresher.
type refresherConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for login requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *refresherConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds a single login request. Defaults to 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *refresherConfig) {
		c.timeout = timeout
	}
}

// Refresher exchanges the stored username and password for a new access token
// and writes it back to the credential store.
type Refresher struct {
	config     *oauth2.Config
	store      credstore.Store
	httpClient *http.Client
}

// NewRefresher creates a Refresher for the server at baseURL.
func NewRefresher(baseURL string, store credstore.Store, opts ...Option) (*Refresher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing base URL")
	}
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}

	cfg := &refresherConfig{
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Refresher{
		config: &oauth2.Config{
			Endpoint: Endpoint(baseURL),
		},
		store: store,
		// HTTP client with login transport (wraps provided or default transport for connection pooling)
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &loginTransport{
				base: cfg.baseTransport,
			},
		},
	}, nil
}

// Refresh obtains a new access token and persists it. Nothing is written unless
// the server issued a non-empty token and ctx is still live.
func (r *Refresher) Refresh(ctx context.Context) error {
	creds, err := r.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	if creds.Username == "" || creds.Password == "" {
		return ErrMissingCredentials
	}

	// oauth2 picks up custom HTTP clients from the context (oauth2.HTTPClient key).
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	token, err := r.config.PasswordCredentialsToken(oauthCtx, creds.Username, creds.Password)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}

	// Abandoned refreshes must not leave a token behind
	if err := ctx.Err(); err != nil {
		return err
	}

	creds.AccessToken = token.AccessToken
	if err := r.store.Write(ctx, creds); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}

	slog.DebugContext(ctx, "access token refreshed", "username", creds.Username)
	return nil
}

// loginResponse is the body returned by the login endpoint.
type loginResponse struct {
	Token string `json:"token"`
}

// tokenResponse is the standard OAuth2 token response expected by golang.org/x/oauth2.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// loginTransport converts oauth2's password grant into the server's login form
// and the server's response back into an OAuth2 token response.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type loginTransport struct {
	base http.RoundTripper
}

// Compile-time check that loginTransport implements http.RoundTripper.
var _ http.RoundTripper = (*loginTransport)(nil)

// RoundTrip rewrites the request form and, for successful responses, the response body.
func (t *loginTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Defer close since we consume the body entirely and create a new body for the cloned request.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	// Only the account fields; grant_type and friends are unknown to the server
	loginForm := url.Values{
		"username": {formData.Get("username")},
		"password": {formData.Get("password")},
	}
	encoded := loginForm.Encode()

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(strings.NewReader(encoded))
	newReq.ContentLength = int64(len(encoded))
	newReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.base.RoundTrip(newReq)
	if err != nil {
		return nil, err
	}

	// Error responses pass through untouched; oauth2 turns them into a RetrieveError
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	upstreamBody := resp.Body
	defer func() { _ = upstreamBody.Close() }()
	var login loginResponse
	if err := json.NewDecoder(upstreamBody).Decode(&login); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}

	// An empty token is reported by oauth2 as a missing access_token
	converted, err := json.Marshal(tokenResponse{AccessToken: login.Token, TokenType: "Bearer"})
	if err != nil {
		return nil, fmt.Errorf("marshaling token response: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(converted))
	resp.ContentLength = int64(len(converted))
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(converted)))
	resp.Header.Del("Content-Encoding")

	return resp, nil
}

package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/florianilch/otterbox/internal/cache"
	"github.com/florianilch/otterbox/internal/client"
	"github.com/florianilch/otterbox/internal/credstore"
	"github.com/florianilch/otterbox/internal/settings"
	"github.com/florianilch/otterbox/internal/tokensource"
)

// upstream is a minimal music server: it issues "fresh" for alice/s3cret and
// serves /api/v1/tracks/ to holders of that token.
type upstream struct {
	*httptest.Server

	mu     sync.Mutex
	gets   int
	logins int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/token", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.logins++
		u.mu.Unlock()
		if r.FormValue("username") != "alice" || r.FormValue("password") != "s3cret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "fresh"}`))
	})
	mux.HandleFunc("GET /api/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.gets++
		u.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 1, "page": "` + r.URL.Query().Get("page") + `"}`))
	})
	mux.HandleFunc("GET /api/v1/missing/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) counts() (gets, logins int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.gets, u.logins
}

// newGateway wires the real client stack against u with the given stored credentials.
func newGateway(t *testing.T, u *upstream, creds credstore.Credentials) (*Proxy, *cache.Dir) {
	t.Helper()
	ctx := context.Background()

	store, err := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Write(ctx, creds); err != nil {
		t.Fatalf("Write: %v", err)
	}

	s, err := settings.New(u.URL, false, store)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	refresher, err := tokensource.NewRefresher(u.URL, store)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	c, err := client.New(s, refresher)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	dir, err := cache.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	p, err := New(c, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, dir
}

func serve(p *Proxy, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestGateway_MissThenHit(t *testing.T) {
	u := newUpstream(t)
	p, dir := newGateway(t, u, credstore.Credentials{Username: "alice", Password: "s3cret", AccessToken: "expired"})

	first := serve(p, http.MethodGet, "/api/v1/tracks/?page=2")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, body %s", first.Code, first.Body)
	}
	if first.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first X-Cache = %q, want MISS", first.Header().Get("X-Cache"))
	}

	second := serve(p, http.MethodGet, "/api/v1/tracks/?page=2")
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d", second.Code)
	}
	if second.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", second.Header().Get("X-Cache"))
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("cached body %q differs from fetched body %q", second.Body, first.Body)
	}

	var page struct {
		Page string `json:"page"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &page); err != nil || page.Page != "2" {
		t.Errorf("body = %s, err %v", second.Body, err)
	}

	// Expired token: one 401, one login, one successful retry; the hit is served locally
	gets, logins := u.counts()
	if gets != 2 || logins != 1 {
		t.Errorf("upstream gets = %d, logins = %d; want 2 and 1", gets, logins)
	}

	rc, ok := dir.Get(context.Background(), "/api/v1/tracks/?page=2")
	if !ok {
		t.Fatal("expected entry keyed by request URI")
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != first.Body.String() {
		t.Errorf("cache entry = %q", data)
	}
}

func TestGateway_Delete(t *testing.T) {
	u := newUpstream(t)
	p, _ := newGateway(t, u, credstore.Credentials{Username: "alice", Password: "s3cret", AccessToken: "fresh"})

	serve(p, http.MethodGet, "/api/v1/tracks/")
	if rec := serve(p, http.MethodDelete, "/api/v1/tracks/"); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if rec := serve(p, http.MethodGet, "/api/v1/tracks/"); rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("X-Cache after DELETE = %q, want MISS", rec.Header().Get("X-Cache"))
	}
	if gets, _ := u.counts(); gets != 2 {
		t.Errorf("upstream gets = %d, want 2", gets)
	}
}

func TestGateway_Errors(t *testing.T) {
	tests := []struct {
		name   string
		creds  credstore.Credentials
		target string
		want   int
		gets   int
		logins int
	}{
		{
			// One 401, one rejected login and no retry
			name:   "refresh rejected",
			creds:  credstore.Credentials{Username: "alice", Password: "wrong", AccessToken: "expired"},
			target: "/api/v1/tracks/",
			want:   http.StatusUnauthorized,
			gets:   1,
			logins: 1,
		},
		{
			name:   "upstream status",
			creds:  credstore.Credentials{Username: "alice", Password: "s3cret", AccessToken: "fresh"},
			target: "/api/v1/missing/",
			want:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t)
			p, dir := newGateway(t, u, tt.creds)

			rec := serve(p, http.MethodGet, tt.target)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if resp.Status != tt.want || resp.Error == "" {
				t.Errorf("error body = %+v", resp)
			}
			if _, ok := dir.Get(context.Background(), tt.target); ok {
				t.Error("failed responses must not be cached")
			}
			if gets, logins := u.counts(); gets != tt.gets || logins != tt.logins {
				t.Errorf("upstream gets = %d, logins = %d; want %d and %d", gets, logins, tt.gets, tt.logins)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "refresh failed", err: &client.Error{Kind: client.ErrRefreshFailed}, want: http.StatusUnauthorized},
		{name: "invalid url", err: &client.Error{Kind: client.ErrInvalidURL}, want: http.StatusBadRequest},
		{name: "upstream 404", err: &client.Error{Kind: client.ErrTransport, StatusCode: 404}, want: http.StatusNotFound},
		{name: "network", err: &client.Error{Kind: client.ErrTransport}, want: http.StatusBadGateway},
		{name: "decode", err: &client.Error{Kind: client.ErrDecode, StatusCode: 200}, want: http.StatusBadGateway},
		{name: "second 401", err: &client.Error{Kind: client.ErrRetryExhausted, StatusCode: 401}, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("%s: statusFor = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, cache.Null{}); err == nil {
		t.Error("expected error for nil fetcher")
	}
}

func TestStartShutdown(t *testing.T) {
	u := newUpstream(t)
	p, _ := newGateway(t, u, credstore.Credentials{Username: "alice", Password: "s3cret", AccessToken: "fresh"})

	errCh, err := p.Start(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + p.Addr().String() + "/api/v1/tracks/?page=7")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Cache") != "MISS" {
		t.Errorf("status = %d, X-Cache = %q, body %s", resp.StatusCode, resp.Header.Get("X-Cache"), body)
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("runtime error after shutdown: %v", err)
	}
}

func TestShutdown_NotStarted(t *testing.T) {
	p, err := New(&client.Client{}, cache.Null{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown before Start: %v", err)
	}
	if p.Addr() != nil {
		t.Errorf("Addr before Start = %v", p.Addr())
	}
}

// Package settings exposes the process-wide client settings: server base URL,
// anonymous mode and the current access token.
package settings

import (
	"context"
	"fmt"

	"github.com/florianilch/otterbox/internal/credstore"
)

// Settings reads the access token through the credential store so that a token
// persisted by a refresh is visible to the next request.
type Settings struct {
	baseURL   string
	anonymous bool
	store     credstore.Store
}

// New creates Settings backed by the given credential store.
func New(baseURL string, anonymous bool, store credstore.Store) (*Settings, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing base URL")
	}
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}

	return &Settings{
		baseURL:   baseURL,
		anonymous: anonymous,
		store:     store,
	}, nil
}

// BaseURL returns the server base URL.
func (s *Settings) BaseURL() string { return s.baseURL }

// Anonymous reports whether requests are sent without credentials.
func (s *Settings) Anonymous() bool { return s.anonymous }

// AccessToken returns the most recently stored access token.
func (s *Settings) AccessToken(ctx context.Context) (string, error) {
	creds, err := s.store.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("reading credentials: %w", err)
	}
	return creds.AccessToken, nil
}

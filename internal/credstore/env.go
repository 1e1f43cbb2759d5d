package credstore

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Environment variable suffixes appended to the configured prefix.
const (
	EnvUsername    = "USERNAME"
	EnvPassword    = "PASSWORD"
	EnvAccessToken = "ACCESS_TOKEN"
)

// EnvStore reads the username and password from environment variables.
// The environment itself is never modified: tokens issued by a refresh are kept
// in memory for the lifetime of the process.
type EnvStore struct {
	prefix string

	mu    sync.Mutex
	token string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading <prefix>USERNAME and <prefix>PASSWORD.
// <prefix>ACCESS_TOKEN, if set, seeds the in-memory access token. The variables are
// read on use: an unset username surfaces as ErrNotFound from Read, so anonymous
// requests and cache management work without an account.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix: prefix,
		token:  os.Getenv(prefix + EnvAccessToken),
	}, nil
}

// Read returns the credentials from the environment and the current in-memory token.
func (e *EnvStore) Read(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	username := os.Getenv(e.prefix + EnvUsername)
	if username == "" {
		return Credentials{}, fmt.Errorf("%w: environment variable %s is empty", ErrNotFound, e.prefix+EnvUsername)
	}

	e.mu.Lock()
	token := e.token
	e.mu.Unlock()

	return Credentials{
		Username:    username,
		Password:    os.Getenv(e.prefix + EnvPassword),
		AccessToken: token,
	}, nil
}

// Write keeps the access token in memory. Username and password are read-only and
// must match the environment.
func (e *EnvStore) Write(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if creds.Username != os.Getenv(e.prefix+EnvUsername) || creds.Password != os.Getenv(e.prefix+EnvPassword) {
		return fmt.Errorf("environment variable storage is read-only")
	}

	e.mu.Lock()
	e.token = creds.AccessToken
	e.mu.Unlock()
	return nil
}

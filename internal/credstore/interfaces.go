package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no credentials have been stored yet.
var ErrNotFound = errors.New("no stored credentials")

// Credentials is the persisted account state.
type Credentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	AccessToken string `json:"access_token,omitempty"`
}

// Store reads and writes credentials to persistent storage.
type Store interface {
	// Read returns the stored credentials. Returns ErrNotFound (possibly wrapped)
	// if nothing has been stored.
	Read(ctx context.Context) (Credentials, error)

	// Write replaces the stored credentials. Returns error if the backend cannot
	// hold the given values (e.g., changing the username of env storage).
	Write(ctx context.Context, creds Credentials) error
}

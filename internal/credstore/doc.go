// Package credstore persists the account credentials used to obtain API access tokens.
//
// A stored document holds the username, the password and the most recently issued
// access token. Three backends are available:
//   - File: JSON document on the local filesystem with atomic writes and 0600 permissions
//   - Keyring: the same document in the OS credential store (macOS Keychain, Secret Service, ...)
//   - Env: username and password from environment variables; issued tokens live in memory only
//
// Logging in requires writable storage (file or keyring). Token refresh works with any backend.
package credstore

// Package client implements the authenticated request pipeline for the music server API.
//
// Requests carry "Authorization: Bearer <token>" unless anonymous mode is active. When the
// server answers 401 the client asks its Refresher for a new token and sends the request
// exactly once more with the new token. A second failure is terminal:
//
//	GET ──► 401 ──► Refresh ──┬─ fails ────► ErrRefreshFailed (one GET, no retry)
//	                          └─ succeeds ─► GET ──► result, or ErrRetryExhausted
//
// Response bodies are handed to a caller-supplied Decoder; GetJSON covers the common case:
//
//	tracks, err := client.GetJSON[TrackPage](ctx, c, "/api/v1/tracks/?page=2")
//	if errors.Is(err, client.ErrRefreshFailed) {
//		// stored credentials no longer work, ask the user to log in again
//	}
package client

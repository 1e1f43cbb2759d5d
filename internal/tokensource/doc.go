// Package tokensource obtains fresh API access tokens from stored account credentials.
//
// The server's login endpoint is close to an OAuth2 resource owner password grant but
// deviates from the standard in ways that require custom handling:
//   - The request carries only the username and password form fields (no grant_type)
//   - The response is {"token": "..."} instead of {"access_token": "...", "token_type": ...}
//
// A Refresher drives golang.org/x/oauth2's password grant through a transport that
// translates between the two shapes, then persists the issued token:
//
//	r, err := tokensource.NewRefresher(baseURL, store)
//	if err := r.Refresh(ctx); err != nil {
//		// stored username/password rejected, or the server was unreachable
//	}
//
// # Custom Base Transport
//
// Configure a custom base transport for login requests (e.g., for proxies or tests):
//
//	r, err := tokensource.NewRefresher(
//		baseURL,
//		store,
//		tokensource.WithTransport(customTransport),
//	)
package tokensource

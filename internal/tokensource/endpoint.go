package tokensource

import (
	"strings"

	"golang.org/x/oauth2"
)

// TokenPath is the login endpoint, relative to the server base URL.
const TokenPath = "/api/v1/token"

// Endpoint returns the OAuth2 endpoint for the server at baseURL.
// Credentials are sent as form parameters; the server has no client authentication.
func Endpoint(baseURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		TokenURL:  strings.TrimRight(baseURL, "/") + TokenPath,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

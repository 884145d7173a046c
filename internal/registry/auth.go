package registry

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// authTransport injects an Authorization header into every request. The
// base transport is left untouched for anonymous clients.
type authTransport struct {
	base          http.RoundTripper
	authorization string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.authorization)
	return t.base.RoundTrip(clone)
}

func basicAuthTransport(username, token string) http.RoundTripper {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + token))
	return &authTransport{
		base:          http.DefaultTransport,
		authorization: fmt.Sprintf("Basic %s", encoded),
	}
}

// bearerAuthTransport base64-encodes the token, which is what ghcr.io
// expects for GITHUB_TOKEN values.
func bearerAuthTransport(token string) http.RoundTripper {
	encoded := base64.StdEncoding.EncodeToString([]byte(token))
	return &authTransport{
		base:          http.DefaultTransport,
		authorization: fmt.Sprintf("Bearer %s", encoded),
	}
}

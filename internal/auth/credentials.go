package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	bearerPrefix     = "Bearer "
	accessTokenQuery = "access_token"
)

// ErrMissingCredentials indicates the request carried no access token.
var ErrMissingCredentials = errors.New("auth: authorization header missing or invalid")

// TokenFromRequest extracts the access token from the Authorization header, falling back to
// the session cookie and then the access_token query parameter used by EventSource clients.
func TokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if r == nil {
		return "", ErrMissingCredentials
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, bearerPrefix) {
			return "", ErrMissingCredentials
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			return "", ErrMissingCredentials
		}
		return token, nil
	}
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			return strings.TrimSpace(cookie.Value), nil
		}
	}
	if token := strings.TrimSpace(r.URL.Query().Get(accessTokenQuery)); token != "" {
		return token, nil
	}
	return "", ErrMissingCredentials
}

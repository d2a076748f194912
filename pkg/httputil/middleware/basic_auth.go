package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/edgeflare/dataprovider/pkg/httputil"
)

// BasicAuthConfig holds the username-password pairs for basic authentication.
type BasicAuthConfig struct {
	Credentials map[string]string
	Realm       string
}

// BasicAuthCreds creates a BasicAuthConfig with multiple username/password pairs.
func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{
		Credentials: credentials,
		Realm:       "Restricted",
	}
}

// VerifyBasicAuth rejects requests without valid basic credentials and stores the
// authenticated username in the request context.
func VerifyBasicAuth(config *BasicAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+config.Realm+`"`)
				httputil.Error(w, http.StatusUnauthorized, "missing or malformed basic credentials")
				return
			}

			validPassword, known := config.Credentials[username]
			if !known || subtle.ConstantTimeCompare([]byte(validPassword), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+config.Realm+`"`)
				httputil.Error(w, http.StatusUnauthorized, "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

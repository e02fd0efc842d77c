package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/czmlgo/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/sp3/metadata": true,
}

// streamPrefixes may pass the token as ?access_token=, since EventSource and
// browser WebSocket clients cannot set an Authorization header.
var streamPrefixes = []string{
	"/api/v1/stream/",
	"/api/v1/ws/",
}

func isExempt(path string) bool {
	return exemptPaths[path]
}

func isStream(path string) bool {
	for _, prefix := range streamPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// requestToken returns the bearer token a request carries, or "".
func requestToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return token
	}
	if isStream(r.URL.Path) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := requestToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="czmlgo"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

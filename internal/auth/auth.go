// Package auth guards the write and heavy endpoints with a static bearer
// token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/norad/internal/httputil"
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
	"/api/v1/tle/metadata": true,
}

// exemptPrefixes cover the single-satellite read endpoints.
var exemptPrefixes = []string{
	"/api/v1/propagate/",
	"/api/v1/look/",
}

// queryTokenPaths accept the token as ?token= because EventSource cannot
// set headers.
var queryTokenPaths = map[string]bool{
	"/api/v1/stream/keyframes": true,
}

func isExempt(path string) bool {
	if exemptPaths[path] {
		return true
	}
	for _, prefix := range exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// token returns the presented credential, or "" if none.
func token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	if queryTokenPaths[r.URL.Path] {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Middleware enforces bearer token auth on non-exempt paths when enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			t := token(r)
			if t == "" || subtle.ConstantTimeCompare([]byte(t), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="norad"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

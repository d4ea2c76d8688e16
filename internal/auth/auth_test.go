package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)

	tests := []struct {
		name   string
		method string
		target string
		header string
		want   int
	}{
		{"health is public", "GET", "/healthz", "", http.StatusNoContent},
		{"metadata is public", "GET", "/api/v1/tle/metadata", "", http.StatusNoContent},
		{"propagate is public", "GET", "/api/v1/propagate/25544", "", http.StatusNoContent},
		{"look is public", "GET", "/api/v1/look/25544?lat=1&lon=2", "", http.StatusNoContent},
		{"fetch without token", "POST", "/api/v1/tle/fetch", "", http.StatusUnauthorized},
		{"fetch with token", "POST", "/api/v1/tle/fetch", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "GET", "/api/v1/passes/25544", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "GET", "/api/v1/passes/25544", "Basic s3cret", http.StatusUnauthorized},
		{"stream query token", "GET", "/api/v1/stream/keyframes?token=s3cret", "", http.StatusNoContent},
		{"query token elsewhere", "GET", "/api/v1/cache/stats?token=s3cret", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/tle/fetch", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// Package health serves the liveness and readiness probes.
package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/star/norad/internal/tle"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Checker reports readiness from the element set store.
type Checker struct {
	store  *tle.Store
	maxAge time.Duration // zero disables the staleness check
}

// NewChecker returns a readiness checker. The service is ready once a
// dataset is loaded and, with maxAge set, while it is younger than maxAge.
func NewChecker(store *tle.Store, maxAge time.Duration) *Checker {
	return &Checker{store: store, maxAge: maxAge}
}

// Readyz returns 200 "ready\n" or 503 with the reason.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	age, ok := c.store.Age()
	switch {
	case !ok:
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no TLE data\n"))
	case c.maxAge > 0 && age > c.maxAge:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "TLE data stale: %s old\n", age.Round(time.Second))
	default:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}

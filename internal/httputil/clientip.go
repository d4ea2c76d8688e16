// Package httputil holds request and response helpers shared by the API
// and the stream handlers.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request is attributed to for rate
// limiting and logs. With trustProxy the leftmost valid X-Forwarded-For
// entry wins, then X-Real-IP, then RemoteAddr. Only set trustProxy behind
// a reverse proxy that overwrites these headers.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if ip, ok := parseIP(hop); ok {
				return ip
			}
		}
		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseIP accepts a bare address or one with a port.
func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

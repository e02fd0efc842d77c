// Package httputil holds small helpers shared by the HTTP handlers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address a request came from. With trustProxy set the
// first X-Forwarded-For entry wins, then X-Real-IP, then RemoteAddr. Only
// trust proxy headers behind a reverse proxy that overwrites them.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return hostOnly(r.RemoteAddr)
}

// forwardedFor returns the leftmost entry of an X-Forwarded-For list.
func forwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Package metadata records who is calling: client address and agent.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"credence/pkg/requestcontext"
)

// ClientMetadata stores the caller's address and User-Agent on the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientSummary renders the caller's User-Agent as "browser/os" for audit events,
// e.g. "Chrome/Linux". Bots and unparseable agents are reported as such.
func ClientSummary(ctx context.Context) string {
	raw := requestcontext.UserAgent(ctx)
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	os := ua.OS()
	if browser == "" && os == "" {
		return "unknown"
	}
	return strings.Trim(browser+"/"+os, "/")
}

// ClientIPFromRequest picks the originating client address: the first
// X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

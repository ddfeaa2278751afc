package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/mssola/useragent"

	"flowledger/pkg/requestcontext"
)

// ClientMetadata captures client IP and a normalized user-agent string so
// audit events can record which reporter client submitted a snapshot.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ua := normalizeUserAgent(r.UserAgent())
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// normalizeUserAgent condenses a raw UA header into "browser/version (os)"
// so audit records stay compact. Non-browser clients (SDKs, curl) fall
// through with the raw string.
func normalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s/%s (%s)", name, version, os)
	}
	return fmt.Sprintf("%s/%s", name, version)
}

package testutil

import (
	"net/http"
	"time"

	"flowledger/pkg/domain"
	"flowledger/pkg/requestcontext"
)

// WithCaller adds a caller address to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithCaller(req *http.Request, addr domain.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), addr))
}

// WithTime pins the request-scoped clock, bypassing the request-time middleware.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

package middleware

import (
	"net/http"
	"time"

	"flowledger/pkg/requestcontext"
)

// RequestTime pins one timestamp per request. Every value persisted during
// a single mutation reads the same clock, which keeps snapshot timestamps
// and aggregate bookkeeping consistent within one operation.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package requesttime pins one timestamp per HTTP request.
package requesttime

import (
	"net/http"
	"time"

	"credence/pkg/requestcontext"
)

// Middleware stores the arrival time so ledger records, version bumps and
// audit events written by the request agree on "now".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), time.Now().UTC())))
	})
}

package middleware

import (
	"net/http"

	"github.com/dukerupert/giadinh/internal/correlation"
)

// maxRequestIDLen bounds client-supplied ids that are echoed into logs.
const maxRequestIDLen = 64

// RequestID attaches a correlation id to the request context, reusing the
// caller's X-Request-ID when it is present and short enough.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlation.Header)
		if id == "" || len(id) > maxRequestIDLen {
			id = correlation.NewID()
		}
		w.Header().Set(correlation.Header, id)
		next.ServeHTTP(w, r.WithContext(correlation.WithID(r.Context(), id)))
	})
}

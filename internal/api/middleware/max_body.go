package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/deskrag/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. A declared Content-Length
// over the limit is refused before the handler runs; bodies of unknown
// length are wrapped so reading past the limit fails inside the handler.
// A limit of 0 or less disables the cap.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	tooLarge := fmt.Sprintf("request body too large (limit %d bytes)", limit)

	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Body == nil || r.Body == http.NoBody:
			case r.ContentLength > limit:
				api.Error(w, http.StatusRequestEntityTooLarge, tooLarge)
				return
			default:
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

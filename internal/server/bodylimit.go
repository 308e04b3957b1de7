package server

import (
	"net/http"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// DefaultBodyLimit is the largest request body accepted.
const DefaultBodyLimit = 10 << 20

// BodyLimitMiddleware rejects requests whose body exceeds limit bytes. A
// declared Content-Length is checked up front; bodies of unknown length are
// capped by http.MaxBytesReader and surface as *http.MaxBytesError when read
// (see DecodeJSON).
func BodyLimitMiddleware(limit int64, errs *ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				errs.WriteError(w, r, domain.ErrPayloadTooLarge("Payload Too Large"))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httpx

import (
	"errors"
	"net/http"
)

// BodyLimit returns a middleware that caps the request body at maxBytes.
//
// Requests whose Content-Length is known and too large are rejected with 413
// without calling downstream. Otherwise the body is wrapped with
// http.MaxBytesReader; handlers should report IsBodyTooLarge errors as 413.
// maxBytes <= 0 disables the limit.
func BodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("httpx: nil next handler")
		}
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				// The body will not be read; do not reuse the connection.
				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil {
				r2 := r.WithContext(r.Context())
				r2.Body = http.MaxBytesReader(w, r.Body, maxBytes)
				r = r2
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsBodyTooLarge reports whether err came from reading past a BodyLimit.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

package client

import (
	"net/http"

	"github.com/google/uuid"
)

// Middleware wraps an http.RoundTripper. The result must be safe for
// concurrent use.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to an http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain returns mws applied to base: Chain(base, a, b) is a(b(base)).
// Nil middlewares are skipped.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = cloneDefaultTransport()
	}
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			base = mws[i](base)
		}
	}
	return base
}

// RequestIDHeader matches the header the control server echoes.
const RequestIDHeader = "X-Request-ID"

// RequestID sets a fresh UUID request id on requests that do not carry one.
// The request is cloned before modification.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get(RequestIDHeader) != "" {
				return next.RoundTrip(r)
			}
			r2 := r.Clone(r.Context())
			r2.Header.Set(RequestIDHeader, uuid.NewString())
			return next.RoundTrip(r2)
		})
	}
}

// SetHeader sets key to value on every request.
func SetHeader(key, value string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			r2 := r.Clone(r.Context())
			r2.Header.Set(key, value)
			return next.RoundTrip(r2)
		})
	}
}

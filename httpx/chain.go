package httpx

import "net/http"

// Middleware is a standard net/http middleware.
type Middleware func(http.Handler) http.Handler

// Middlewares is an ordered middleware chain.
type Middlewares []Middleware

// Chain creates a middleware chain. Nil middlewares are ignored.
func Chain(mws ...Middleware) Middlewares {
	return appendNonNil(nil, mws)
}

// Handler wraps h with the chain. It panics if h is nil.
func (mws Middlewares) Handler(h http.Handler) http.Handler {
	if h == nil {
		panic("httpx: nil endpoint handler")
	}
	// Snapshot so later mutation of mws does not change the built handler.
	snapshot := appendNonNil(nil, mws)
	for i := len(snapshot) - 1; i >= 0; i-- {
		h = snapshot[i](h)
	}
	return h
}

// Wrap applies mws to h.
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	return Chain(mws...).Handler(h)
}

func appendNonNil(dst Middlewares, src []Middleware) Middlewares {
	for _, mw := range src {
		if mw != nil {
			dst = append(dst, mw)
		}
	}
	return dst
}

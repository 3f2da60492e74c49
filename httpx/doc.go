// Package httpx provides the net/http middleware used by the control server.
//
// Middlewares compose with Chain:
//
//	h := httpx.Chain(
//		httpx.Recover(httpx.WithPanicLogger(logger)),
//		httpx.RequestID(),
//		httpx.AccessLog(logger),
//		httpx.BodyLimit(4<<10),
//	).Handler(router)
//
// Chain(a, b, c).Handler(h) returns a(b(c(h))): the first middleware is the
// outermost one.
package httpx

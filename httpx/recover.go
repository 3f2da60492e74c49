package httpx

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
)

// RecoverOption configures Recover.
type RecoverOption func(*recoverConfig)

type recoverConfig struct {
	logger *slog.Logger
}

// WithPanicLogger sets the logger recovered panics are reported to.
// Default is slog.Default().
func WithPanicLogger(l *slog.Logger) RecoverOption {
	return func(c *recoverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Recover returns a middleware that recovers panics from downstream handlers
// and keeps the server alive.
//
// http.ErrAbortHandler is re-panicked to preserve net/http semantics. If the
// response has not started, a 500 is written; otherwise the response is left
// as is.
func Recover(opts ...RecoverOption) Middleware {
	cfg := recoverConfig{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("httpx: nil next handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &startedWriter{ResponseWriter: w}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				id, _ := RequestIDFromRequest(r)
				cfg.logger.Error("httpx: handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", id,
					"panic", fmt.Sprint(p),
					"stack", string(debug.Stack()),
				)
				if !sw.started {
					http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// startedWriter records whether the response has started. It forwards
// Flush and Hijack so streaming and websocket upgrades keep working.
type startedWriter struct {
	http.ResponseWriter
	started bool
	status  int
}

func (w *startedWriter) WriteHeader(code int) {
	if !w.started {
		w.started = true
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *startedWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *startedWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *startedWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.started = true
		f.Flush()
	}
}

func (w *startedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("httpx: underlying ResponseWriter does not support hijacking")
	}
	c, rw, err := h.Hijack()
	if err == nil {
		w.started = true
		w.status = http.StatusSwitchingProtocols
	}
	return c, rw, err
}

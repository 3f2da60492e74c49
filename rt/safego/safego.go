package safego

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

type config struct {
	name    string
	logger  *slog.Logger
	finally []func()
}

// Option configures a single Go/Run call.
type Option func(*config)

// WithName names the goroutine in reports.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger sets the logger for reports. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFinally registers fn to run when execution finishes, LIFO like defer.
// A panicking finalizer is reported, not rethrown.
func WithFinally(fn func()) Option {
	return func(c *config) {
		if fn != nil {
			c.finally = append(c.finally, fn)
		}
	}
}

// Go runs fn in a new goroutine. See Run.
func Go(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	go Run(ctx, fn, opts...)
}

// Run executes fn synchronously. A panic is recovered and logged at ERROR; a
// returned error is logged at ERROR unless it is a context cancellation.
func Run(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	defer runFinalizers(ctx, c)
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		c.logger.ErrorContext(ctx, "safego: panic",
			"name", c.name,
			"panic", fmt.Sprint(p),
			"stack", string(debug.Stack()),
		)
	}()

	err := fn(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.logger.ErrorContext(ctx, "safego: error", "name", c.name, "err", err)
}

func runFinalizers(ctx context.Context, c config) {
	for i := len(c.finally) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if p := recover(); p != nil {
					c.logger.ErrorContext(ctx, "safego: finalizer panic",
						"name", c.name,
						"panic", fmt.Sprint(p),
					)
				}
			}()
			c.finally[i]()
		}()
	}
}

package client

import (
	"context"
	"net"
	"net/http"
	"time"
)

type config struct {
	timeout     time.Duration
	socketPath  string
	middlewares []Middleware
}

// Option configures New.
type Option func(*config)

// WithTimeout sets http.Client.Timeout. Default is 0 (callers use contexts).
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithUnixSocket dials every request to the unix socket at path.
func WithUnixSocket(path string) Option {
	return func(c *config) { c.socketPath = path }
}

// WithMiddlewares appends RoundTripper middlewares.
func WithMiddlewares(mws ...Middleware) Option {
	return func(c *config) { c.middlewares = append(c.middlewares, mws...) }
}

// New builds a *http.Client with an independent transport.
func New(opts ...Option) *http.Client {
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	t := cloneDefaultTransport()
	if cfg.socketPath != "" {
		path := cfg.socketPath
		var d net.Dialer
		t.Proxy = nil
		t.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.DialContext(ctx, "unix", path)
		}
	}

	return &http.Client{
		Transport: Chain(t, cfg.middlewares...),
		Timeout:   cfg.timeout,
	}
}

func cloneDefaultTransport() *http.Transport {
	if t, ok := http.DefaultTransport.(*http.Transport); ok && t != nil {
		return t.Clone()
	}
	return &http.Transport{}
}

// Package client builds the *http.Client a controller uses to talk to a
// target's control socket.
//
// The client never mutates http.DefaultClient or http.DefaultTransport. With
// WithUnixSocket every request is dialed to the given socket regardless of the
// URL host, so URLs such as "http://levelctl/healthz" work as-is.
//
//	c := client.New(
//		client.WithUnixSocket("/tmp/levelctl-4242.sock"),
//		client.WithTimeout(10*time.Second),
//		client.WithMiddlewares(client.RequestID()),
//	)
package client

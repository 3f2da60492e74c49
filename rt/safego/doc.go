// Package safego runs functions with panic recovery and error reporting.
//
// It is used for the control server's background goroutines (serving,
// websocket pumps) so that a panic there is logged instead of taking the
// target process down.
package safego

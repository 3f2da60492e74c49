// Package levelctl changes the log threshold of a running Go process from the
// outside, addressing the process only by its pid.
//
// A process opts in by running a target Service. The service owns a loop that
// logs on a named logger (by default "main", starting at WARNING) and serves a
// control socket at <socket-dir>/levelctl-<pid>.sock. The levelctl command
// synthesizes a small level-change script, persists it as a temp file and
// hands it to the process over that socket; the loop applies it between
// iterations and acknowledges the old and new levels.
//
// # Quick start
//
//	svc := levelctl.NewTargetService(levelctl.TargetSpec{
//		Interval: 5 * time.Second,
//	})
//	_ = svc.Run(context.Background())
//
// Then, from a shell:
//
//	levelctl --pid 12345 --log-level DEBUG
//
// # Subpackages
//
//   - loglevel: the severity enumeration and the registry of named loggers
//   - script: script synthesis, validation and persistence
//   - target: the emitting loop and its safe-point request queue
//   - control: the control socket listener and HTTP routes
//   - inject: the controller side (pid probe, socket dial, acknowledgement)
//   - logsink: in-memory output buffer behind /log/tail and /log/watch
//   - audit: optional SQLite history of applied changes
//   - config: JSON5/TOML configuration files
//   - httpx, httpx/client: server and client middleware
//   - rt/safego: goroutines with panic reporting
//
// # Signals
//
// Run stops on SIGINT/SIGTERM (os.Interrupt elsewhere). On Unix, SIGUSR1 moves
// the main logger one level toward DEBUG and SIGUSR2 one level toward ERROR;
// both go through the same queue as remote requests.
package levelctl

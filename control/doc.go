// Package control serves a target's control endpoints over its control socket.
//
// A process opts in to remote log-level control by listening on
// SocketPath(dir, pid) and serving Handler. Nothing else is exposed: there is
// no general code execution, only the level-change script grammar of package
// script and a few read-only views.
//
// # Routes
//
//   - GET  /healthz                          liveness
//   - GET  /log/level?logger=main            current threshold of one logger
//   - GET  /log/levels                       every registered logger
//   - POST /log/level/set?logger=&level=     lenient level names (debug, warn, err, ...)
//   - POST /script/exec[?wait=0]             body is a script; JSON acknowledgement
//   - GET  /log/tail?n=100                   recent output, gzip negotiated
//   - GET  /log/watch                        websocket stream of new output
//   - GET  /audit?logger=&limit=50           applied-change history
//
// Text and JSON renderings are selected per request with ?format=text|json.
// Text output is line based: <section>\t<key>\t<value>.
//
// # Security notes
//
// The socket is created with mode 0600, so only the owning user (and root) can
// connect. On Linux the peer's pid and uid are read with SO_PEERCRED and
// recorded with every applied change.
package control

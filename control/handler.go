package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/evan-idocoding/levelctl/audit"
	"github.com/evan-idocoding/levelctl/httpx"
	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/logsink"
	"github.com/evan-idocoding/levelctl/script"
	"github.com/evan-idocoding/levelctl/target"
)

// DefaultExecTimeout bounds how long a waiting request may sit in the
// target's queue.
const DefaultExecTimeout = 10 * time.Second

// Executor applies level-change requests at the target's safe point.
// *target.Loop implements it.
type Executor interface {
	Submit(ctx context.Context, req target.Request) (target.Result, error)
}

// AuditLister lists applied changes, newest first. *audit.Store implements it.
type AuditLister interface {
	List(ctx context.Context, logger string, limit int) ([]audit.Entry, error)
}

// Config configures Handler.
type Config struct {
	// Registry is read by the level views. Required.
	Registry *loglevel.Registry
	// Executor applies changes. Required.
	Executor Executor
	// Sink backs /log/tail and /log/watch. Those routes are absent when nil.
	Sink *logsink.Sink
	// Audit backs /audit. The route is absent when nil.
	Audit AuditLister
	// Logger receives access logs and recovered panics. Default slog.Default().
	Logger *slog.Logger

	// DefaultLogger is used when a request does not name a logger. Default "main".
	DefaultLogger string
	// DefaultFormat is used when a request has no ?format=. Default FormatText.
	DefaultFormat Format
	// MaxScriptBytes caps /script/exec bodies. Default script.MaxSize.
	MaxScriptBytes int64
	// ExecTimeout bounds waiting executions. Default DefaultExecTimeout.
	ExecTimeout time.Duration
}

type handlers struct {
	cfg      Config
	upgrader websocket.Upgrader
}

// Handler returns the control router. It panics on a nil Registry or Executor.
func Handler(cfg Config) http.Handler {
	if cfg.Registry == nil {
		panic("control: nil Registry")
	}
	if cfg.Executor == nil {
		panic("control: nil Executor")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultLogger == "" {
		cfg.DefaultLogger = script.DefaultLogger
	}
	if cfg.DefaultFormat != FormatText && cfg.DefaultFormat != FormatJSON {
		cfg.DefaultFormat = FormatText
	}
	if cfg.MaxScriptBytes <= 0 {
		cfg.MaxScriptBytes = script.MaxSize
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}

	h := &handlers{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// Only local peers can reach the socket; there is no browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, formatFromRequest(r, cfg.DefaultFormat), http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, formatFromRequest(r, cfg.DefaultFormat), http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", h.healthz)
	r.Get("/log/level", h.getLevel)
	r.Get("/log/levels", h.listLevels)
	r.Post("/log/level/set", h.setLevel)
	r.Method(http.MethodPost, "/script/exec",
		httpx.Wrap(http.HandlerFunc(h.execScript), httpx.BodyLimit(cfg.MaxScriptBytes)))
	if cfg.Sink != nil {
		r.Method(http.MethodGet, "/log/tail", httpx.Wrap(http.HandlerFunc(h.tail), gzipHandler))
		r.Get("/log/watch", h.watch)
	}
	if cfg.Audit != nil {
		r.Get("/audit", h.listAudit)
	}
	return httpx.Chain(
		httpx.Recover(httpx.WithPanicLogger(cfg.Logger)),
		httpx.RequestID(),
		httpx.AccessLog(cfg.Logger),
	).Handler(r)
}

func gzipHandler(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, r, http.StatusOK, "ok\n")
}

func (h *handlers) loggerParam(r *http.Request) string {
	if name := r.URL.Query().Get("logger"); name != "" {
		return name
	}
	return h.cfg.DefaultLogger
}

// submit applies req with the handler's timeout and the caller's identity.
func (h *handlers) submit(r *http.Request, req target.Request) (target.Result, error) {
	req.ID, _ = httpx.RequestIDFromRequest(r)
	req.Peer = PeerFromContext(r.Context())
	ctx := r.Context()
	if req.Wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.ExecTimeout)
		defer cancel()
	}
	return h.cfg.Executor.Submit(ctx, req)
}

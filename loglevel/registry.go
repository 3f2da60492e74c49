package loglevel

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Logger is a named logger with its own mutable severity threshold.
//
// The embedded *slog.Logger is safe for concurrent use; the threshold is
// backed by a slog.LevelVar.
type Logger struct {
	*slog.Logger
	name string
	lv   *slog.LevelVar
}

// Name returns the registry name of l.
func (l *Logger) Name() string { return l.name }

// Level returns the current threshold of l.
func (l *Logger) Level() Level { return FromSlog(l.lv.Level()) }

// LevelVar exposes the underlying slog.LevelVar.
func (l *Logger) LevelVar() *slog.LevelVar { return l.lv }

// SetLevel changes the threshold of l and returns the previous one.
// Invalid levels are ignored.
func (l *Logger) SetLevel(v Level) (old Level) {
	old = l.Level()
	if !v.Valid() {
		return old
	}
	l.lv.Set(v.Slog())
	return old
}

// Snapshot is a point-in-time view of a logger threshold.
type Snapshot struct {
	Logger string `json:"logger"`
	// Level is always one of DEBUG/INFO/WARNING/ERROR.
	Level string `json:"level"`
	// LevelValue is the underlying numeric slog level (Debug=-4, Info=0, Warn=4, Error=8).
	LevelValue int `json:"level_value"`
}

// Snapshot returns the current state of l.
func (l *Logger) Snapshot() Snapshot {
	v := l.lv.Level()
	return Snapshot{
		Logger:     l.name,
		Level:      FromSlog(v).String(),
		LevelValue: int(v),
	}
}

// Registry is a process-wide table of named loggers sharing one output handler.
type Registry struct {
	base slog.Handler
	def  Level

	mu      sync.Mutex
	loggers map[string]*Logger
}

// Option configures NewRegistry.
type Option func(*Registry)

// WithDefaultLevel sets the threshold new loggers start with. Default is WARNING.
func WithDefaultLevel(l Level) Option {
	return func(r *Registry) {
		if l.Valid() {
			r.def = l
		}
	}
}

// NewRegistry creates a registry whose loggers write through base.
//
// The level of base is not consulted: each logger filters records with its own
// threshold before handing them to base.
func NewRegistry(base slog.Handler, opts ...Option) *Registry {
	if base == nil {
		panic("loglevel: nil base handler")
	}
	r := &Registry{
		base:    base,
		def:     Default,
		loggers: make(map[string]*Logger),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// GetLogger returns the logger registered under name, creating it with the
// default threshold if it does not exist yet.
func (r *Registry) GetLogger(name string) *Logger {
	l, _ := r.Ensure(name)
	return l
}

// Ensure is like GetLogger but also reports whether the logger was created by
// this call.
func (r *Registry) Ensure(name string) (l *Logger, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[name]; ok {
		return l, false
	}
	lv := new(slog.LevelVar)
	lv.Set(r.def.Slog())
	h := &levelHandler{lv: lv, next: r.base.WithAttrs([]slog.Attr{slog.String("logger", name)})}
	l = &Logger{Logger: slog.New(h), name: name, lv: lv}
	r.loggers[name] = l
	return l, true
}

// Lookup returns the logger registered under name without creating it.
func (r *Registry) Lookup(name string) (*Logger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loggers[name]
	return l, ok
}

// Snapshots returns the state of every registered logger, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.loggers))
	for _, l := range r.loggers {
		out = append(out, l.Snapshot())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Logger < out[j].Logger })
	return out
}

// levelHandler gates records with a per-logger LevelVar.
type levelHandler struct {
	lv   *slog.LevelVar
	next slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.lv.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{lv: h.lv, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{lv: h.lv, next: h.next.WithGroup(name)}
}

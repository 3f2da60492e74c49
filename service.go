package levelctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/evan-idocoding/levelctl/audit"
	"github.com/evan-idocoding/levelctl/control"
	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/logsink"
	"github.com/evan-idocoding/levelctl/rt/safego"
	"github.com/evan-idocoding/levelctl/script"
	"github.com/evan-idocoding/levelctl/target"
)

var (
	// ErrAlreadyStarted indicates Start/Run was called more than once.
	ErrAlreadyStarted = errors.New("levelctl: service already started")
	// ErrNotStarted indicates Wait was called before Start.
	ErrNotStarted = errors.New("levelctl: service not started")
)

// DiagLogger is the registry name of the service's own diagnostics logger.
const DiagLogger = "levelctl"

// Service is an assembled target process: the emitting loop plus its control
// socket, output buffer and optional audit trail.
type Service struct {
	// Assembly outputs.
	Registry       *loglevel.Registry
	Loop           *target.Loop
	Sink           *logsink.Sink
	ControlHandler http.Handler
	ControlServer  *http.Server
	// SocketPath is where the control socket is created by Start.
	SocketPath string
	// Audit is nil unless TargetSpec.Audit or TargetSpec.AuditDB was set.
	// A store opened from AuditDB is only available after Start.
	Audit *audit.Store

	// --- internals ---

	diag            *loglevel.Logger
	hooks           ServiceHooks
	signals         SignalSpec
	stepSignals     bool
	shutdownTimeout time.Duration
	maxConns        int
	auditPath       string
	ownsAudit       bool

	mu          sync.Mutex
	started     bool
	startCtx    context.Context
	startStop   context.CancelFunc
	stopping    bool
	listener    net.Listener
	loopDone    chan struct{}
	loopStarted bool
	stopSteps   func()

	primaryErr error

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error

	doneCh  chan struct{}
	waitErr error
}

// NewTargetService assembles a target Service.
//
// Assembly errors are fail-fast and will panic.
// Runtime errors are returned from Start/Wait/Run/Shutdown.
func NewTargetService(spec TargetSpec) *Service {
	if spec.Level != 0 && !spec.Level.Valid() {
		panic(fmt.Sprintf("levelctl: TargetSpec.Level: invalid level %d", int(spec.Level)))
	}
	if spec.Audit != nil && spec.AuditDB != "" {
		panic("levelctl: TargetSpec: Audit and AuditDB are mutually exclusive")
	}
	level := spec.Level
	if level == 0 {
		level = loglevel.Default
	}
	out := spec.Output
	if out == nil {
		out = os.Stderr
	}
	pid := spec.PID
	if pid <= 0 {
		pid = os.Getpid()
	}

	s := &Service{
		Sink:            logsink.New(spec.TailLines),
		SocketPath:      control.SocketPath(spec.SocketDir, pid),
		Audit:           spec.Audit,
		hooks:           spec.Hooks,
		signals:         spec.Signals,
		stepSignals:     !spec.DisableStepSignals,
		shutdownTimeout: resolveDuration(spec.ShutdownTimeout, 30*time.Second),
		maxConns:        spec.MaxConns,
		auditPath:       spec.AuditDB,
		shutdownCh:      make(chan struct{}),
		doneCh:          make(chan struct{}),
		loopDone:        make(chan struct{}),
	}

	s.Registry = loglevel.NewRegistry(
		slog.NewTextHandler(io.MultiWriter(out, s.Sink), nil),
		loglevel.WithDefaultLevel(level),
	)
	s.diag = s.Registry.GetLogger(DiagLogger)
	s.diag.SetLevel(loglevel.Info)

	s.Loop = target.New(target.Config{
		Registry: s.Registry,
		Logger:   spec.Logger,
		Interval: spec.Interval,
		Banner:   spec.Banner,
		Recorder: target.RecorderFunc(s.record),
		Diag:     s.diag.Logger,
	})

	ccfg := control.Config{
		Registry:      s.Registry,
		Executor:      s.Loop,
		Sink:          s.Sink,
		Logger:        s.diag.Logger,
		DefaultLogger: s.Loop.Logger().Name(),
	}
	if spec.Audit != nil || spec.AuditDB != "" {
		ccfg.Audit = auditLister{s}
	}
	s.ControlHandler = control.Handler(ccfg)
	s.ControlServer = &http.Server{
		Handler:           s.ControlHandler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ConnContext:       control.ConnContext,
		BaseContext: func(net.Listener) context.Context {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.startCtx
		},
	}
	return s
}

// Run is equivalent to Start → wait for exit condition → Shutdown → return.
//
// It is NOT idempotent. If called after Start, it returns ErrAlreadyStarted.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	sigCh, stopSignals := s.runSignalWatcher()
	defer stopSignals()

	select {
	case <-s.doneCh:
		return s.Wait()
	case <-ctx.Done():
		s.recordPrimary(ctx.Err())
		_ = s.Shutdown(context.Background())
		return s.Wait()
	case sig := <-sigCh:
		s.diag.Info("shutting down", "signal", sig.String())
		_ = s.Shutdown(context.Background())
		return s.Wait()
	}
}

// Start opens the control socket and starts the loop. It is NOT idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.startCtx, s.startStop = context.WithCancel(ctx)
	s.mu.Unlock()

	fail := func(err error) error {
		s.recordPrimary(err)
		s.initiateShutdown()
		return err
	}

	// 1) OnStart hooks.
	for i, h := range s.hooks.OnStart {
		if h == nil {
			continue
		}
		if err := safeCallHook(s.startCtx, h); err != nil {
			return fail(fmt.Errorf("levelctl: OnStart[%d]: %w", i, err))
		}
	}

	// 2) audit store
	if s.auditPath != "" {
		st, err := audit.Open(s.auditPath)
		if err != nil {
			return fail(fmt.Errorf("levelctl: %w", err))
		}
		s.mu.Lock()
		s.Audit = st
		s.ownsAudit = true
		s.mu.Unlock()
	}

	// 3) control socket, opened before the banner announces the start
	ln, err := control.Listen(s.SocketPath, s.maxConns)
	if err != nil {
		return fail(fmt.Errorf("levelctl: %w", err))
	}
	s.mu.Lock()
	s.listener = ln
	s.loopStarted = true
	s.mu.Unlock()

	// 4) loop, then serve
	safego.Go(s.startCtx, s.Loop.Run,
		safego.WithName("target.loop"), safego.WithLogger(s.diag.Logger),
		safego.WithFinally(func() { close(s.loopDone) }))
	go func() {
		err := s.ControlServer.Serve(ln)
		s.onServeExit(err)
	}()

	// 5) step signals
	if s.stepSignals {
		stop := s.watchStepSignals()
		s.mu.Lock()
		s.stopSteps = stop
		s.mu.Unlock()
	}

	s.diag.Info("remote log level control enabled", "socket", s.SocketPath)
	return nil
}

// Wait waits until the service fully stops.
//
// It is idempotent. If Start was never called, it returns ErrNotStarted.
func (s *Service) Wait() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	ch := s.doneCh
	s.mu.Unlock()

	<-ch

	s.mu.Lock()
	err := s.waitErr
	s.mu.Unlock()
	return err
}

// Shutdown triggers shutdown. It is idempotent.
//
// If Start was never called, Shutdown returns nil.
// If Shutdown is already in progress, calling it again waits again using the new ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	shutdownCh := s.shutdownCh
	s.mu.Unlock()

	s.initiateShutdown()

	select {
	case <-shutdownCh:
		s.mu.Lock()
		err := s.shutdownErr
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record is the loop's audit recorder. Changes are dropped silently while no
// store is configured.
func (s *Service) record(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	st := s.Audit
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.Record(ctx, e)
}

// auditLister serves /audit from whatever store the service holds.
type auditLister struct{ s *Service }

func (a auditLister) List(ctx context.Context, logger string, limit int) ([]audit.Entry, error) {
	a.s.mu.Lock()
	st := a.s.Audit
	a.s.mu.Unlock()
	if st == nil {
		return nil, errors.New("audit trail not open")
	}
	return st.List(ctx, logger, limit)
}

func (s *Service) watchStepSignals() func() {
	steps := stepSignals()
	if len(steps) == 0 {
		return func() {}
	}
	sigs := make([]os.Signal, 0, len(steps))
	for sig := range steps {
		sigs = append(sigs, sig)
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	ctx := s.startCtx
	safego.Go(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-done:
				return nil
			case sig := <-ch:
				_, err := s.Loop.Submit(ctx, target.Request{
					Script: script.Script{Logger: s.Loop.Logger().Name()},
					Step:   steps[sig],
					Source: target.SourceSignal,
					Peer:   target.UnknownPeer,
				})
				if err != nil {
					s.diag.Warn("step signal dropped", "signal", sig.String(), "err", err)
				}
			}
		}
	}, safego.WithName("step.signals"), safego.WithLogger(s.diag.Logger))

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

func (s *Service) onServeExit(err error) {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	// During shutdown the listener may be closed under Serve.
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return
	}
	err = fmt.Errorf("levelctl: control server: %w", err)
	s.recordPrimary(err)
	if s.hooks.OnServeError != nil {
		s.hooks.OnServeError(err)
	}
	s.initiateShutdown()
}

func (s *Service) recordPrimary(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.primaryErr == nil {
		s.primaryErr = err
	}
	s.mu.Unlock()
}

func (s *Service) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		go s.doShutdown()
	})
}

func (s *Service) doShutdown() {
	// Make shutdown observable to in-flight contexts (including watch streams) ASAP.
	s.mu.Lock()
	stop := s.startStop
	s.stopping = true
	ln := s.listener
	stopSteps := s.stopSteps
	loopStarted := s.loopStarted
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if stopSteps != nil {
		stopSteps()
	}

	ctx := context.Background()
	cancel := func() {}
	if s.shutdownTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout)
	}
	defer cancel()

	var errs []error

	// 1) control server; closing the listener unlinks the socket.
	if ln != nil {
		if err := s.ControlServer.Shutdown(ctx); err != nil {
			_ = s.ControlServer.Close()
			errs = append(errs, fmt.Errorf("control server shutdown: %w", err))
		}
		_ = ln.Close()
		if err := os.Remove(s.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove socket: %w", err))
		}
	}

	// 2) loop
	if loopStarted {
		select {
		case <-s.loopDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("loop shutdown: %w", ctx.Err()))
		}
	}

	// 3) OnShutdown hooks (sequential; best-effort run all)
	for i, h := range s.hooks.OnShutdown {
		if h == nil {
			continue
		}
		if err := safeCallHook(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("OnShutdown[%d]: %w", i, err))
		}
	}

	// 4) audit store, if this service opened it
	s.mu.Lock()
	st, owns := s.Audit, s.ownsAudit
	s.mu.Unlock()
	if owns && st != nil {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit close: %w", err))
		}
	}

	shutdownErr := errors.Join(errs...)

	s.mu.Lock()
	s.shutdownErr = shutdownErr
	primary := s.primaryErr
	s.waitErr = errors.Join(primary, shutdownErr)
	s.mu.Unlock()

	s.diag.Info("stopped")
	close(s.shutdownCh)
	close(s.doneCh)
}

func (s *Service) runSignalWatcher() (<-chan os.Signal, func()) {
	// No signals requested.
	if s.signals.Disable {
		return nil, func() {}
	}
	sigs := s.signals.Signals
	if len(sigs) == 0 {
		sigs = defaultSignals()
	}
	if len(sigs) == 0 {
		return nil, func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	stop := func() {
		signal.Stop(ch)
	}
	return ch, stop
}

// --- spec types ---

// TargetSpec describes a target Service.
type TargetSpec struct {
	// Logger is the name of the logger the loop emits on. Default "main".
	Logger string
	// Level is the initial threshold of every logger. Zero means WARNING.
	Level loglevel.Level
	// Interval between emissions. <= 0 means target.DefaultInterval.
	Interval time.Duration

	// Output receives formatted log records in addition to the in-memory
	// buffer. Default os.Stderr.
	Output io.Writer
	// Banner receives the startup line. Default os.Stdout.
	Banner io.Writer
	// TailLines sizes the in-memory buffer. <= 0 means logsink.DefaultLines.
	TailLines int

	// SocketDir is where the control socket is created. Default os.TempDir().
	SocketDir string
	// PID names the control socket. <= 0 means os.Getpid().
	PID int
	// MaxConns caps concurrent control connections.
	MaxConns int

	// Audit and AuditDB are mutually exclusive. AuditDB is opened at Start and
	// closed at shutdown; a provided Audit store is left open.
	Audit   *audit.Store
	AuditDB string

	// Signals controls whether Run() listens for OS signals and triggers shutdown.
	//
	// If Disable is false and Signals is nil/empty, a small default set is used:
	//   - Unix: SIGINT + SIGTERM
	//   - Non-Unix: os.Interrupt
	Signals SignalSpec

	// DisableStepSignals turns off SIGUSR1 (one level more verbose) and
	// SIGUSR2 (one level less verbose) on Unix.
	DisableStepSignals bool

	// ShutdownTimeout controls the overall shutdown timeout.
	//
	// <= 0 means using a conservative default (currently 30s).
	ShutdownTimeout time.Duration

	Hooks ServiceHooks
}

type SignalSpec struct {
	// Disable disables signal handling in Run().
	Disable bool

	// Signals declares which signals Run() listens to. nil/empty means using defaults.
	Signals []os.Signal
}

type ServiceHooks struct {
	// OnStart runs before the control socket is opened.
	// Hooks are executed sequentially. Any error fails Start/Run.
	OnStart []func(context.Context) error

	// OnShutdown runs during shutdown, after the control server and loop stopped.
	// Hooks are executed sequentially; errors are aggregated.
	OnShutdown []func(context.Context) error

	// OnServeError is called when the control server exits unexpectedly.
	OnServeError func(err error)
}

// --- helpers ---

// Conservative default timeouts for the control server.
const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

func resolveDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func safeCallHook(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

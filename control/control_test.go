package control

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evan-idocoding/levelctl/audit"
	"github.com/evan-idocoding/levelctl/httpx"
	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/logsink"
	"github.com/evan-idocoding/levelctl/script"
	"github.com/evan-idocoding/levelctl/target"
)

type fixture struct {
	reg  *loglevel.Registry
	sink *logsink.Sink
	loop *target.Loop
	h    http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	sink := logsink.New(200)
	reg := loglevel.NewRegistry(slog.NewTextHandler(sink, &slog.HandlerOptions{Level: slog.LevelDebug}))
	loop := target.New(target.Config{
		Registry: reg,
		Interval: time.Hour,
		Banner:   io.Discard,
		Diag:     discardLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	deadline := time.Now().Add(2 * time.Second)
	for !loop.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not start")
		}
		time.Sleep(time.Millisecond)
	}

	cfg := Config{Registry: reg, Executor: loop, Sink: sink, Logger: discardLogger()}
	if mutate != nil {
		mutate(&cfg)
	}
	return &fixture{reg: reg, sink: sink, loop: loop, h: Handler(cfg)}
}

func (f *fixture) do(method, target string, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	return rr
}

func TestHandler_PanicsOnMissingDeps(t *testing.T) {
	for name, cfg := range map[string]Config{
		"registry": {Executor: executorFunc(nil)},
		"executor": {Registry: loglevel.NewRegistry(slog.NewTextHandler(io.Discard, nil))},
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			Handler(cfg)
		})
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.do(http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(httpx.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestGetLevel(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(http.MethodGet, "/log/level", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "main\tlevel\tWARNING\n") {
		t.Fatalf("body=%q", rr.Body.String())
	}

	rr = f.do(http.MethodGet, "/log/level?format=json", "")
	var resp levelGetResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !resp.OK || resp.Log.Logger != "main" || resp.Log.Level != "WARNING" || resp.Log.LevelValue != 4 {
		t.Fatalf("resp=%+v", resp)
	}

	rr = f.do(http.MethodGet, "/log/level?logger=nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown logger code=%d", rr.Code)
	}
	if _, ok := f.reg.Lookup("nope"); ok {
		t.Fatalf("reading a level must not create the logger")
	}
}

func TestListLevels(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.GetLogger("db")
	rr := f.do(http.MethodGet, "/log/levels?format=json", "")
	var resp levelListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Loggers) != 2 || resp.Loggers[0].Logger != "db" || resp.Loggers[1].Logger != "main" {
		t.Fatalf("loggers=%+v", resp.Loggers)
	}
}

func TestSetLevel(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(http.MethodPost, "/log/level/set?level=Debug", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "log\told_level\tWARNING\n") || !strings.Contains(body, "log\tnew_level\tDEBUG\n") {
		t.Fatalf("body=%q", body)
	}
	if got := f.loop.Logger().Level(); got != loglevel.Debug {
		t.Fatalf("level=%v, want DEBUG", got)
	}

	rr = f.do(http.MethodPost, "/log/level/set?level=err&format=json", "")
	var resp levelSetResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !resp.OK || resp.Old != "DEBUG" || resp.New != "ERROR" || resp.Created {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestSetLevel_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	if rr := f.do(http.MethodPost, "/log/level/set?level=verbose", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid level code=%d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/log/level/set?level=debug", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code=%d", rr.Code)
	}
	if got := f.loop.Logger().Level(); got != loglevel.Warning {
		t.Fatalf("level changed: %v", got)
	}
}

func decodeAck(t *testing.T, b []byte) Ack {
	t.Helper()
	var ack Ack
	if err := json.Unmarshal(b, &ack); err != nil {
		t.Fatalf("ack json %q: %v", b, err)
	}
	return ack
}

func TestExecScript(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(http.MethodPost, "/script/exec", script.Synthesize(loglevel.Debug))
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	ack := decodeAck(t, rr.Body.Bytes())
	if !ack.OK || !ack.Applied || ack.Logger != "main" || ack.OldLevel != "WARNING" || ack.NewLevel != "DEBUG" || ack.Created {
		t.Fatalf("ack=%+v", ack)
	}
	if ack.ID == "" {
		t.Fatalf("ack has no id")
	}
	if got := f.loop.Logger().Level(); got != loglevel.Debug {
		t.Fatalf("level=%v", got)
	}
}

func TestExecScript_NoWait(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.do(http.MethodPost, "/script/exec?wait=0", script.Synthesize(loglevel.Info))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	ack := decodeAck(t, rr.Body.Bytes())
	if !ack.OK || ack.Applied {
		t.Fatalf("ack=%+v", ack)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.loop.Logger().Level() != loglevel.Info {
		if time.Now().After(deadline) {
			t.Fatalf("hand-off never applied")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExecScript_UnknownLoggerReportsCreated(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.do(http.MethodPost, "/script/exec", script.SynthesizeFor("mian", loglevel.Debug))
	ack := decodeAck(t, rr.Body.Bytes())
	if !ack.OK || !ack.Created || ack.Logger != "mian" {
		t.Fatalf("ack=%+v", ack)
	}
	if f.loop.Logger().Level() != loglevel.Warning {
		t.Fatalf("main changed by a script for another logger")
	}
}

func TestExecScript_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name string
		body string
		code int
	}{
		{"garbage", "os.system('rm -rf /')", http.StatusBadRequest},
		{"bad level", `{"version":1,"logger":"main","level":"TRACE"}`, http.StatusBadRequest},
		{"too large", `{"version":1,"logger":"` + strings.Repeat("x", script.MaxSize) + `","level":"DEBUG"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/script/exec", tc.body)
			if rr.Code != tc.code {
				t.Fatalf("code=%d, want %d (body=%q)", rr.Code, tc.code, rr.Body.String())
			}
			if tc.code == http.StatusRequestEntityTooLarge {
				return
			}
			if ack := decodeAck(t, rr.Body.Bytes()); ack.OK || ack.Error == "" {
				t.Fatalf("ack=%+v", ack)
			}
		})
	}
	if f.loop.Logger().Level() != loglevel.Warning {
		t.Fatalf("level changed by rejected script")
	}
}

type executorFunc func(ctx context.Context, req target.Request) (target.Result, error)

func (f executorFunc) Submit(ctx context.Context, req target.Request) (target.Result, error) {
	return f(ctx, req)
}

func TestExecScript_ExecutorErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{target.ErrBusy, http.StatusServiceUnavailable},
		{target.ErrNotRunning, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := Handler(Config{
			Registry: loglevel.NewRegistry(slog.NewTextHandler(io.Discard, nil)),
			Executor: executorFunc(func(context.Context, target.Request) (target.Result, error) {
				return target.Result{}, tc.err
			}),
			Logger: discardLogger(),
		})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/script/exec", strings.NewReader(script.Synthesize(loglevel.Debug))))
		if rr.Code != tc.code {
			t.Fatalf("%v: code=%d, want %d", tc.err, rr.Code, tc.code)
		}
	}
}

func TestExecScript_PassesRequestID(t *testing.T) {
	var got target.Request
	h := Handler(Config{
		Registry: loglevel.NewRegistry(slog.NewTextHandler(io.Discard, nil)),
		Executor: executorFunc(func(_ context.Context, req target.Request) (target.Result, error) {
			got = req
			return target.Result{ID: req.ID, Logger: req.Script.Logger, NewLevel: req.Script.Level, Applied: true}, nil
		}),
		Logger: discardLogger(),
	})
	req := httptest.NewRequest(http.MethodPost, "/script/exec", strings.NewReader(script.Synthesize(loglevel.Error)))
	req.Header.Set(httpx.RequestIDHeader, "ctl-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got.ID != "ctl-123" || got.Source != target.SourceScript || !got.Wait {
		t.Fatalf("request=%+v", got)
	}
	if got.Peer != target.UnknownPeer {
		t.Fatalf("peer=%+v, want unknown", got.Peer)
	}
	if ack := decodeAck(t, rr.Body.Bytes()); ack.ID != "ctl-123" {
		t.Fatalf("ack id=%q", ack.ID)
	}
}

func TestHandler_MiddlewareWrapsEveryRoute(t *testing.T) {
	h := Handler(Config{
		Registry: loglevel.NewRegistry(slog.NewTextHandler(io.Discard, nil)),
		Executor: executorFunc(func(context.Context, target.Request) (target.Result, error) {
			panic("executor exploded")
		}),
		Logger: discardLogger(),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/script/exec", strings.NewReader(script.Synthesize(loglevel.Debug))))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("panic: code=%d, want 500", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route: code=%d, want 404", rr.Code)
	}
	if rr.Header().Get(httpx.RequestIDHeader) == "" {
		t.Fatalf("unknown route: missing request id header")
	}
}

func TestTail(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 50; i++ {
		f.reg.GetLogger("main").Error("tail line with some padding to get past the gzip threshold")
	}

	rr := f.do(http.MethodGet, "/log/tail?n=3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	if n := strings.Count(rr.Body.String(), "\n"); n != 3 {
		t.Fatalf("lines=%d, want 3", n)
	}

	req := httptest.NewRequest(http.MethodGet, "/log/tail", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr = httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding=%q", rr.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := bytes.Count(plain, []byte("\n")); n != 50 {
		t.Fatalf("lines=%d, want 50", n)
	}

	if rr := f.do(http.MethodGet, "/log/tail?n=x", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid n code=%d", rr.Code)
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Sink = nil })
	for _, p := range []string{"/log/tail", "/log/watch", "/audit"} {
		if rr := f.do(http.MethodGet, p, ""); rr.Code != http.StatusNotFound {
			t.Fatalf("%s code=%d, want 404", p, rr.Code)
		}
	}
}

func TestAudit(t *testing.T) {
	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	for _, lvl := range []string{"DEBUG", "ERROR"} {
		if err := store.Record(ctx, audit.Entry{ID: lvl, Logger: "main", OldLevel: "WARNING", NewLevel: lvl, Source: "script", PeerUID: -1}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	f := newFixture(t, func(c *Config) { c.Audit = store })

	rr := f.do(http.MethodGet, "/audit?format=json&limit=1", "")
	var resp auditResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].NewLevel != "ERROR" {
		t.Fatalf("entries=%+v", resp.Entries)
	}

	rr = f.do(http.MethodGet, "/audit", "")
	if !strings.Contains(rr.Body.String(), "change\tWARNING -> DEBUG") {
		t.Fatalf("body=%q", rr.Body.String())
	}
	if rr := f.do(http.MethodGet, "/audit?limit=0", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 code=%d", rr.Code)
	}
}

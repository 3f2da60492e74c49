package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evan-idocoding/levelctl/loglevel"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_JSON5(t *testing.T) {
	path := writeFile(t, "levelctl.json5", `{
  // comments and trailing commas are fine
  target: {
    interval: "250ms",
    level: "warn",
    max_conns: 4,
    audit_db: "/var/lib/levelctl/audit.db",
  },
  controller: {timeout: "3s", no_wait: true},
}`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Target.Interval != "250ms" || f.Target.MaxConns != 4 || f.Target.AuditDB != "/var/lib/levelctl/audit.db" {
		t.Fatalf("target=%+v", f.Target)
	}
	if !f.Controller.NoWait || f.Controller.Timeout != "3s" {
		t.Fatalf("controller=%+v", f.Controller)
	}
	if got := Level(f.Target.Level, loglevel.Default); got != loglevel.Warning {
		t.Fatalf("level=%v", got)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "levelctl.TOML", `
[target]
logger = "main"
interval = "1s"
tail_lines = 50

[controller]
script_dir = "/tmp/scripts"
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Target.Logger != "main" || f.Target.TailLines != 50 || f.Controller.ScriptDir != "/tmp/scripts" {
		t.Fatalf("file=%+v", f)
	}
	d, err := Duration(f.Target.Interval, time.Hour)
	if err != nil || d != time.Second {
		t.Fatalf("interval=%v err=%v", d, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad.json":  `{target: {level: "verbose"}}`,
		"dur.json":  `{controller: {timeout: "soon"}}`,
		"neg.json":  `{target: {interval: "-1s"}}`,
		"max.toml":  "[target]\nmax_conns = -1\n",
		"syntax.js": `{target: `,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, name, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.HasPrefix(err.Error(), "config: ") {
		t.Fatalf("err=%v", err)
	}
}

func TestDuration(t *testing.T) {
	if d, err := Duration("", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	if _, err := Duration("0s", time.Second); err == nil {
		t.Fatalf("zero accepted")
	}
}

func TestLevel(t *testing.T) {
	if got := Level("", loglevel.Error); got != loglevel.Error {
		t.Fatalf("got %v", got)
	}
	if got := Level("Debug", loglevel.Error); got != loglevel.Debug {
		t.Fatalf("got %v", got)
	}
}

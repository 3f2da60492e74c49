package loglevel

import (
	"flag"
	"io"
	"log/slog"
	"testing"
)

func TestParseLevel_Strict(t *testing.T) {
	for _, name := range []string{"DEBUG", "INFO", "WARNING", "ERROR"} {
		l, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q) err=%v", name, err)
		}
		if l.String() != name {
			t.Fatalf("ParseLevel(%q)=%v, want %s", name, l, name)
		}
	}
	for _, bad := range []string{"", "debug", "WARN", "TRACE", " INFO", "CRITICAL"} {
		if _, err := ParseLevel(bad); err == nil {
			t.Fatalf("ParseLevel(%q) err=nil, want error", bad)
		}
	}
}

func TestNormalizeLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", Debug, true},
		{" Info ", Info, true},
		{"warn", Warning, true},
		{"WARNING", Warning, true},
		{"err", Error, true},
		{"error", Error, true},
		{"fatal", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := NormalizeLevel(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizeLevel(%q)=(%v,%v), want (%v,%v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestLevel_SlogRoundTrip(t *testing.T) {
	for _, l := range Levels() {
		if got := FromSlog(l.Slog()); got != l {
			t.Fatalf("FromSlog(%v.Slog())=%v", l, got)
		}
	}
	if got := FromSlog(slog.LevelDebug - 4); got != Debug {
		t.Fatalf("FromSlog(-8)=%v, want DEBUG", got)
	}
	if got := FromSlog(slog.LevelWarn + 1); got != Warning {
		t.Fatalf("FromSlog(5)=%v, want WARNING", got)
	}
	if got := FromSlog(slog.LevelError + 4); got != Error {
		t.Fatalf("FromSlog(12)=%v, want ERROR", got)
	}
}

func TestLevel_Step(t *testing.T) {
	if got := Warning.Step(-1); got != Info {
		t.Fatalf("WARNING.Step(-1)=%v", got)
	}
	if got := Debug.Step(-1); got != Debug {
		t.Fatalf("DEBUG.Step(-1)=%v, want clamp", got)
	}
	if got := Error.Step(3); got != Error {
		t.Fatalf("ERROR.Step(3)=%v, want clamp", got)
	}
	if got := Level(0).Step(1); got != Error {
		t.Fatalf("invalid.Step(1)=%v, want ERROR (from default)", got)
	}
}

func TestLevel_Flag(t *testing.T) {
	var l Level
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&l, "log-level", "")
	if err := fs.Parse([]string{"--log-level", "INFO"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if l != Info {
		t.Fatalf("l=%v, want INFO", l)
	}
	fs = flag.NewFlagSet("x", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&l, "log-level", "")
	if err := fs.Parse([]string{"--log-level", "VERBOSE"}); err == nil {
		t.Fatalf("parse VERBOSE err=nil, want error")
	}
}

func TestLevel_Text(t *testing.T) {
	b, err := Error.MarshalText()
	if err != nil || string(b) != "ERROR" {
		t.Fatalf("MarshalText=%q,%v", b, err)
	}
	var l Level
	if err := l.UnmarshalText([]byte("warn")); err != nil || l != Warning {
		t.Fatalf("UnmarshalText(warn)=%v,%v", l, err)
	}
	if _, err := Level(9).MarshalText(); err == nil {
		t.Fatalf("MarshalText(9) err=nil")
	}
}

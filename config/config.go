// Package config loads optional levelctl configuration files.
//
// Files ending in .toml are decoded as TOML; anything else as JSON5, so plain
// JSON works too. Durations are Go duration strings ("5s", "250ms"). Command
// line flags override file values; see the cmd packages.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/titanous/json5"

	"github.com/evan-idocoding/levelctl/loglevel"
)

// Target configures the target process.
type Target struct {
	// Logger is the name of the logger the loop emits on.
	Logger string `json:"logger" toml:"logger"`
	// Level is the initial threshold of every logger. Lenient names are accepted.
	Level string `json:"level" toml:"level"`
	// Interval between emissions.
	Interval string `json:"interval" toml:"interval"`
	// SocketDir is where the control socket is created.
	SocketDir string `json:"socket_dir" toml:"socket_dir"`
	// MaxConns caps concurrent control connections.
	MaxConns int `json:"max_conns" toml:"max_conns"`
	// TailLines is the size of the in-memory output buffer.
	TailLines int `json:"tail_lines" toml:"tail_lines"`
	// AuditDB, when set, records applied changes in a SQLite database.
	AuditDB string `json:"audit_db" toml:"audit_db"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout string `json:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Controller configures the levelctl CLI.
type Controller struct {
	Logger    string `json:"logger" toml:"logger"`
	ScriptDir string `json:"script_dir" toml:"script_dir"`
	SocketDir string `json:"socket_dir" toml:"socket_dir"`
	Timeout   string `json:"timeout" toml:"timeout"`
	NoWait    bool   `json:"no_wait" toml:"no_wait"`
}

// File is the top-level layout of a configuration file.
type File struct {
	Target     Target     `json:"target" toml:"target"`
	Controller Controller `json:"controller" toml:"controller"`
}

// Load reads and validates the file at path.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	f, err := Parse(b, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return File{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes b as TOML when isTOML is set, JSON5 otherwise, and validates
// the result.
func Parse(b []byte, isTOML bool) (File, error) {
	var f File
	var err error
	if isTOML {
		err = toml.Unmarshal(b, &f)
	} else {
		err = json5.Unmarshal(b, &f)
	}
	if err != nil {
		return File{}, err
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks every set field.
func (f File) Validate() error {
	var errs []error
	if f.Target.Level != "" {
		if _, ok := loglevel.NormalizeLevel(f.Target.Level); !ok {
			errs = append(errs, fmt.Errorf("target.level: invalid level %q", f.Target.Level))
		}
	}
	for name, v := range map[string]string{
		"target.interval":         f.Target.Interval,
		"target.shutdown_timeout": f.Target.ShutdownTimeout,
		"controller.timeout":      f.Controller.Timeout,
	} {
		if _, err := Duration(v, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if f.Target.MaxConns < 0 {
		errs = append(errs, errors.New("target.max_conns: must not be negative"))
	}
	if f.Target.TailLines < 0 {
		errs = append(errs, errors.New("target.tail_lines: must not be negative"))
	}
	return errors.Join(errs...)
}

// Duration parses s, returning def for an empty string. Negative and zero
// values are rejected.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// Level returns the lenient level parsed from s, or def for an empty string.
func Level(s string, def loglevel.Level) loglevel.Level {
	if l, ok := loglevel.NormalizeLevel(s); ok {
		return l
	}
	return def
}

package loglevel

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is a severity threshold drawn from a fixed enumeration.
//
// The zero value is not a valid level; use one of the constants below.
type Level int

const (
	Debug Level = iota + 1
	Info
	Warning
	Error
)

// Default is the threshold a named logger starts with.
const Default = Warning

var levelNames = [...]string{
	Debug:   "DEBUG",
	Info:    "INFO",
	Warning: "WARNING",
	Error:   "ERROR",
}

// Levels returns all valid levels, most verbose first.
func Levels() []Level {
	return []Level{Debug, Info, Warning, Error}
}

// Names returns the canonical names of all valid levels, most verbose first.
func Names() []string {
	out := make([]string, 0, len(levelNames)-1)
	for _, l := range Levels() {
		out = append(out, l.String())
	}
	return out
}

// Valid reports whether l is one of the enumerated levels.
func (l Level) Valid() bool {
	return l >= Debug && l <= Error
}

// String returns the canonical (uppercase) name of l.
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Slog maps l onto the equivalent slog level.
func (l Level) Slog() slog.Level {
	switch l {
	case Debug:
		return slog.LevelDebug
	case Info:
		return slog.LevelInfo
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Step returns the neighbouring level delta steps away, clamped to the
// enumeration. Negative deltas move toward Debug.
func (l Level) Step(delta int) Level {
	if !l.Valid() {
		l = Default
	}
	n := l + Level(delta)
	if n < Debug {
		return Debug
	}
	if n > Error {
		return Error
	}
	return n
}

// FromSlog buckets an arbitrary slog level into the enumeration:
//
//	<  info  => DEBUG
//	<  warn  => INFO
//	<  error => WARNING
//	>= error => ERROR
func FromSlog(l slog.Level) Level {
	if l < slog.LevelInfo {
		return Debug
	}
	if l < slog.LevelWarn {
		return Info
	}
	if l < slog.LevelError {
		return Warning
	}
	return Error
}

// ParseLevel parses a canonical level name. It is strict: only the exact
// names returned by Names are accepted.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels() {
		if s == levelNames[l] {
			return l, nil
		}
	}
	return 0, fmt.Errorf("loglevel: invalid level %q (want one of: %s)", s, strings.Join(Names(), ", "))
}

// NormalizeLevel parses a level leniently: case-insensitive, surrounding
// space ignored, and the aliases "warn" and "err" accepted.
func NormalizeLevel(s string) (Level, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "WARN":
		s = "WARNING"
	case "ERR":
		s = "ERROR"
	}
	l, err := ParseLevel(s)
	if err != nil {
		return 0, false
	}
	return l, true
}

// Set implements flag.Value so a Level can be bound to a command-line flag.
func (l *Level) Set(s string) error {
	v, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("loglevel: invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the lenient
// forms understood by NormalizeLevel.
func (l *Level) UnmarshalText(b []byte) error {
	v, ok := NormalizeLevel(string(b))
	if !ok {
		return fmt.Errorf("loglevel: invalid level %q", string(b))
	}
	*l = v
	return nil
}

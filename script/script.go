// Package script builds, persists and validates level-change scripts.
//
// A script is a one-line JSON document naming a logger and the threshold it
// should be set to:
//
//	{"version":1,"logger":"main","level":"DEBUG"}
//
// Synthesis is pure text generation. Persist is the only function here that
// touches the filesystem. Parse is the strict validator a target runs before
// applying anything: unknown keys, unknown versions and levels outside the
// fixed enumeration are rejected.
package script

import (
	"errors"
	"fmt"
	"os"

	"github.com/valyala/fastjson"

	"github.com/evan-idocoding/levelctl/loglevel"
)

// Version is the only script format version understood by Parse.
const Version = 1

// DefaultLogger is the logger name scripts address unless told otherwise.
const DefaultLogger = "main"

// Suffix is the file suffix used by Persist.
const Suffix = ".json"

// MaxSize bounds the size of a script accepted by Parse and Load.
const MaxSize = 4 << 10

// ErrInvalid is wrapped by every validation error returned by Parse.
var ErrInvalid = errors.New("script: invalid script")

// Script is a validated level-change request.
type Script struct {
	Logger string
	Level  loglevel.Level
}

// Synthesize returns the script text that sets the "main" logger to level.
func Synthesize(level loglevel.Level) string {
	return SynthesizeFor(DefaultLogger, level)
}

// SynthesizeFor returns the script text that sets the named logger to level.
//
// The caller is responsible for passing a valid level; SynthesizeFor does no
// validation of its own.
func SynthesizeFor(logger string, level loglevel.Level) string {
	var a fastjson.Arena
	o := a.NewObject()
	o.Set("version", a.NewNumberInt(Version))
	o.Set("logger", a.NewString(logger))
	o.Set("level", a.NewString(level.String()))
	return string(o.MarshalTo(nil)) + "\n"
}

// String renders s as script text.
func (s Script) String() string {
	return SynthesizeFor(s.Logger, s.Level)
}

var parserPool fastjson.ParserPool

// Parse validates b and returns the script it describes.
func Parse(b []byte) (Script, error) {
	if len(b) > MaxSize {
		return Script{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalid, len(b), MaxSize)
	}
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(b)
	if err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	o, err := v.Object()
	if err != nil {
		return Script{}, fmt.Errorf("%w: top level must be an object", ErrInvalid)
	}

	var unknown string
	o.Visit(func(key []byte, _ *fastjson.Value) {
		switch string(key) {
		case "version", "logger", "level":
		default:
			if unknown == "" {
				unknown = string(key)
			}
		}
	})
	if unknown != "" {
		return Script{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, unknown)
	}

	vv := o.Get("version")
	if vv == nil {
		return Script{}, fmt.Errorf("%w: missing version", ErrInvalid)
	}
	ver, err := vv.Int()
	if err != nil || ver != Version {
		return Script{}, fmt.Errorf("%w: unsupported version %s", ErrInvalid, vv.String())
	}

	lv := o.Get("logger")
	if lv == nil {
		return Script{}, fmt.Errorf("%w: missing logger", ErrInvalid)
	}
	name, err := lv.StringBytes()
	if err != nil || len(name) == 0 {
		return Script{}, fmt.Errorf("%w: logger must be a non-empty string", ErrInvalid)
	}

	levv := o.Get("level")
	if levv == nil {
		return Script{}, fmt.Errorf("%w: missing level", ErrInvalid)
	}
	levs, err := levv.StringBytes()
	if err != nil {
		return Script{}, fmt.Errorf("%w: level must be a string", ErrInvalid)
	}
	level, err := loglevel.ParseLevel(string(levs))
	if err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return Script{Logger: string(name), Level: level}, nil
}

// Persist writes text to a new temporary file in dir (os.TempDir() when dir is
// empty) and returns its path. The file is left in place.
func Persist(dir, text string) (string, error) {
	f, err := os.CreateTemp(dir, "levelctl-*"+Suffix)
	if err != nil {
		return "", fmt.Errorf("script: create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return path, fmt.Errorf("script: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("script: close %s: %w", path, err)
	}
	return path, nil
}

// Load reads and validates the script stored at path.
func Load(path string) (Script, []byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Script{}, nil, fmt.Errorf("script: %w", err)
	}
	if fi.Size() > MaxSize {
		return Script{}, nil, fmt.Errorf("%w: %s is %d bytes", ErrInvalid, path, fi.Size())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, nil, fmt.Errorf("script: %w", err)
	}
	s, err := Parse(b)
	if err != nil {
		return Script{}, nil, err
	}
	return s, b, nil
}

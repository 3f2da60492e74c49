// Command levelctl-target is a demo target: it logs one DEBUG and one ERROR
// record on logger "main" every interval, starting at WARNING, and accepts
// level changes from levelctl on its control socket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/evan-idocoding/levelctl"
	"github.com/evan-idocoding/levelctl/config"
	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/script"
	"github.com/evan-idocoding/levelctl/target"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	spec, err := parseSpec(args, stdout, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := levelctl.NewTargetService(spec).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "levelctl-target:", err)
		return 1
	}
	return 0
}

func parseSpec(args []string, stdout, stderr io.Writer) (levelctl.TargetSpec, error) {
	var (
		spec       levelctl.TargetSpec
		level      = loglevel.Default
		configPath string
	)
	fs := flag.NewFlagSet("levelctl-target", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&spec.Logger, "logger", script.DefaultLogger, "name of the emitting logger")
	fs.Var(&level, "level", "initial level of every logger: "+fmt.Sprint(loglevel.Names()))
	fs.DurationVar(&spec.Interval, "interval", target.DefaultInterval, "emission interval")
	fs.StringVar(&spec.SocketDir, "socket-dir", "", "directory for the control socket (default: OS temp dir)")
	fs.IntVar(&spec.MaxConns, "max-conns", 0, "maximum concurrent control connections (0: default)")
	fs.IntVar(&spec.TailLines, "tail-lines", 0, "lines kept for /log/tail (0: default)")
	fs.StringVar(&spec.AuditDB, "audit-db", "", "SQLite file recording applied changes (empty: disabled)")
	fs.DurationVar(&spec.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout (0: default)")
	fs.StringVar(&configPath, "config", "", "optional JSON5 or TOML config file")
	if err := fs.Parse(args); err != nil {
		return spec, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "levelctl-target: unexpected arguments:", fs.Args())
		fs.Usage()
		return spec, errors.New("unexpected arguments")
	}

	if configPath != "" {
		f, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return spec, err
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if err := applyConfig(&spec, &level, set, f.Target); err != nil {
			fmt.Fprintln(stderr, err)
			return spec, err
		}
	}

	spec.Level = level
	spec.Output = stderr
	spec.Banner = stdout
	return spec, nil
}

// applyConfig fills fields the command line left unset.
func applyConfig(spec *levelctl.TargetSpec, level *loglevel.Level, set map[string]bool, c config.Target) error {
	if !set["logger"] && c.Logger != "" {
		spec.Logger = c.Logger
	}
	if !set["level"] {
		*level = config.Level(c.Level, *level)
	}
	if !set["interval"] {
		d, err := config.Duration(c.Interval, spec.Interval)
		if err != nil {
			return fmt.Errorf("config: target.interval: %w", err)
		}
		spec.Interval = d
	}
	if !set["shutdown-timeout"] {
		d, err := config.Duration(c.ShutdownTimeout, spec.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("config: target.shutdown_timeout: %w", err)
		}
		spec.ShutdownTimeout = d
	}
	if !set["socket-dir"] && c.SocketDir != "" {
		spec.SocketDir = c.SocketDir
	}
	if !set["max-conns"] && c.MaxConns > 0 {
		spec.MaxConns = c.MaxConns
	}
	if !set["tail-lines"] && c.TailLines > 0 {
		spec.TailLines = c.TailLines
	}
	if !set["audit-db"] && c.AuditDB != "" {
		spec.AuditDB = c.AuditDB
	}
	return nil
}

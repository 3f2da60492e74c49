// Command levelctl changes the log level of a running target process.
//
//	levelctl -p <pid> --log-level DEBUG
//	levelctl get -p <pid>
//	levelctl watch -p <pid>
//
// The target must run a levelctl target service, which serves a control
// socket named after its pid.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/evan-idocoding/levelctl/config"
	"github.com/evan-idocoding/levelctl/inject"
	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/script"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	pid       int
	level     loglevel.Level
	logger    string
	scriptDir string
	socketDir string
	timeout   time.Duration
	noWait    bool
	config    string
	verbose   bool
}

type commandFunc func(ctx context.Context, opts *options, stdout, stderr io.Writer) int

type subcommand struct {
	command     string
	description string
	needsLevel  bool
	cmdFunc     commandFunc
}

var subcommands = []subcommand{
	{"set", "change a logger's level (default command)", true, setSubcommand},
	{"get", "print a logger's current level", false, getSubcommand},
	{"watch", "stream the target's log output", false, watchSubcommand},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	sub := subcommands[0]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		found := false
		for _, sc := range subcommands {
			if sc.command == args[0] {
				sub, found = sc, true
				break
			}
		}
		if !found {
			fmt.Fprintf(stderr, "levelctl: unknown command %q\n", args[0])
			printCommands(stderr)
			return exitUsage
		}
		args = args[1:]
	}

	opts, fs, err := parseFlags(sub, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		return usageError(fs, stderr, fmt.Sprintf("unexpected arguments: %s", strings.Join(fs.Args(), " ")))
	}
	if opts.pid <= 0 {
		return usageError(fs, stderr, "missing required flag --pid")
	}
	if sub.needsLevel && !opts.level.Valid() {
		return usageError(fs, stderr, "missing required flag --log-level (one of: "+strings.Join(loglevel.Names(), ", ")+")")
	}
	return sub.cmdFunc(ctx, opts, stdout, stderr)
}

func parseFlags(sub subcommand, args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet("levelctl "+sub.command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.pid, "pid", 0, "PID of the target process (required)")
	fs.IntVar(&opts.pid, "p", 0, "shorthand for --pid")
	if sub.needsLevel {
		fs.Var(&opts.level, "log-level", "new level: "+strings.Join(loglevel.Names(), "|")+" (required)")
	}
	fs.StringVar(&opts.logger, "logger", script.DefaultLogger, "name of the logger in the target")
	fs.StringVar(&opts.socketDir, "socket-dir", "", "directory of control sockets (default: OS temp dir)")
	fs.DurationVar(&opts.timeout, "timeout", inject.DefaultTimeout, "request timeout")
	fs.StringVar(&opts.config, "config", "", "optional JSON5 or TOML config file")
	fs.BoolVar(&opts.verbose, "v", false, "log request details to stderr")
	if sub.needsLevel {
		fs.StringVar(&opts.scriptDir, "script-dir", "", "directory for the script file (default: OS temp dir)")
		fs.BoolVar(&opts.noWait, "no-wait", false, "return once the target has queued the script")
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: levelctl [%s] [flags...]\n", commandNames())
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
		printCommands(stderr)
	}
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}

	if opts.config != "" {
		f, err := config.Load(opts.config)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return nil, fs, err
		}
		if err := applyConfig(opts, fs, f.Controller); err != nil {
			fmt.Fprintln(stderr, err)
			return nil, fs, err
		}
	}
	return opts, fs, nil
}

// applyConfig fills options the command line left unset.
func applyConfig(opts *options, fs *flag.FlagSet, c config.Controller) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["logger"] && c.Logger != "" {
		opts.logger = c.Logger
	}
	if !set["script-dir"] && c.ScriptDir != "" {
		opts.scriptDir = c.ScriptDir
	}
	if !set["socket-dir"] && c.SocketDir != "" {
		opts.socketDir = c.SocketDir
	}
	if !set["no-wait"] && c.NoWait {
		opts.noWait = true
	}
	if !set["timeout"] {
		d, err := config.Duration(c.Timeout, opts.timeout)
		if err != nil {
			return fmt.Errorf("config: controller.timeout: %w", err)
		}
		opts.timeout = d
	}
	return nil
}

func usageError(fs *flag.FlagSet, stderr io.Writer, msg string) int {
	fmt.Fprintln(stderr, "levelctl:", msg)
	fs.Usage()
	return exitUsage
}

func commandNames() string {
	names := make([]string, 0, len(subcommands))
	for _, sc := range subcommands {
		names = append(names, sc.command)
	}
	return strings.Join(names, "|")
}

func printCommands(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, sc := range subcommands {
		fmt.Fprintf(w, "  %-6s %s\n", sc.command, sc.description)
	}
}

func (o *options) injector(stderr io.Writer) *inject.Injector {
	lvl := slog.LevelWarn
	if o.verbose {
		lvl = slog.LevelDebug
	}
	return &inject.Injector{
		SocketDir: o.socketDir,
		Timeout:   o.timeout,
		NoWait:    o.noWait,
		Logger:    slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl})),
	}
}

func setSubcommand(ctx context.Context, opts *options, stdout, stderr io.Writer) int {
	text := script.SynthesizeFor(opts.logger, opts.level)
	path, err := script.Persist(opts.scriptDir, text)
	if err != nil {
		fmt.Fprintln(stderr, "levelctl:", err)
		return exitFailure
	}

	fmt.Fprintln(stdout, "Injecting script to change log level to", opts.level)
	ack, err := opts.injector(stderr).Inject(ctx, opts.pid, path)
	if err != nil {
		fmt.Fprintln(stderr, "levelctl:", err)
		fmt.Fprintln(stderr, "levelctl: script left at", path)
		return exitFailure
	}
	if !ack.Applied {
		fmt.Fprintf(stdout, "Script handed off to pid %d\n", opts.pid)
		return exitOK
	}
	if ack.Created {
		fmt.Fprintf(stderr, "levelctl: warning: pid %d had no logger %q; a new one was created and existing output is unaffected\n",
			opts.pid, ack.Logger)
	}
	fmt.Fprintf(stdout, "Log level changed (%s: %s -> %s)\n", ack.Logger, ack.OldLevel, ack.NewLevel)
	return exitOK
}

func getSubcommand(ctx context.Context, opts *options, stdout, stderr io.Writer) int {
	snap, err := opts.injector(stderr).Get(ctx, opts.pid, opts.logger)
	if err != nil {
		fmt.Fprintln(stderr, "levelctl:", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "%s\t%s\n", snap.Logger, snap.Level)
	return exitOK
}

func watchSubcommand(ctx context.Context, opts *options, stdout, stderr io.Writer) int {
	if err := opts.injector(stderr).Watch(ctx, opts.pid, stdout); err != nil {
		fmt.Fprintln(stderr, "levelctl:", err)
		return exitFailure
	}
	return exitOK
}

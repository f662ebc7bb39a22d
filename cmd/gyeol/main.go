// Package main is the gyeol command line tool.
//
// gyeol manages a portfolio data directory: the document (profile, worlds,
// characters, creatures, settings), its images, and its revision history. It
// exports and imports the portable zip and embedded JSON formats.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/gyeol/internal/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// errUsage reports a command line error; usage was already printed.
var errUsage = errors.New("invalid usage")

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "gyeol: %v\n", err)
		}
		os.Exit(1)
	}
}

func mainImpl() error {
	defaultDir := os.Getenv(config.EnvPrefix + "DATA_DIR")
	if defaultDir == "" {
		defaultDir = "./data"
	}
	dataDir := flag.String("data-dir", defaultDir, "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	blobBackend := flag.String("blob-backend", config.BackendSQLite, "Image store (sqlite, dir, memory)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		return errUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	name, args := flag.Arg(0), flag.Args()[1:]
	if name == "version" {
		printVersion()
		return nil
	}
	if name == "schema" {
		return cmdSchema(args)
	}
	cmd, ok := commands[name]
	if !ok {
		usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		return err
	}
	// Flags win over config.yaml and the environment, but only when set.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["blob-backend"] {
		cfg.BlobBackend = *blobBackend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ll.Set(cfg.Level())
	return cmd(ctx, cfg, args)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: gyeol [flags] <command> [args]

Commands:
  show                          Summarize the stored portfolio
  export [-format zip|json] [-o path]
                                Export the portfolio
  import <file.zip|file.json>   Replace the portfolio with an export
  reset -yes                    Delete all images and restore defaults
  schema                        Print the JSON Schema of the document
  log [-n N]                    List document revisions
  restore <hash>                Restore a document revision
  backup -o dir [-watch]        Write an archive, optionally on every change
  version                       Print version

Flags:
`)
	flag.PrintDefaults()
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("gyeol %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// Package main is the entry point for the debug bridge server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/debugbridge/server/internal/adapter"
	"github.com/debugbridge/server/internal/bridgeconfig"
	"github.com/debugbridge/server/internal/eventbus"
	"github.com/debugbridge/server/internal/logx"
	"github.com/debugbridge/server/internal/process"
	"github.com/debugbridge/server/internal/registry"
	"github.com/debugbridge/server/internal/toolserver"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := bridgeconfig.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	log := logx.New(logx.Config{Level: cfg.LogLevelParsed(), Prefix: "debugbridge"})
	log.Debug("stderr is a terminal: %v", term.IsTerminal(int(os.Stderr.Fd())))

	bus := eventbus.New()
	supervisor := process.NewSupervisor()
	reg := registry.New(cfg.ListenPortBase)
	adapters := adapter.NewRegistry()
	if cfg.PythonPath != "" {
		adapters.Register(adapter.NewPythonAdapter(cfg.PythonPath))
	}

	dispatcher := toolserver.New(reg, supervisor, adapters, bus, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Info("received shutdown signal")
		cancel()
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- dispatcher.Serve(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case err := <-serveErr:
		shutdown(log, reg, supervisor)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
		shutdown(log, reg, supervisor)
		return 0
	}
}

func shutdown(log *logx.Logger, reg *registry.Registry, supervisor *process.Supervisor) {
	log.Info("shutting down: terminating %d session(s)", reg.Count())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	reg.Shutdown(shutdownCtx)
	supervisor.Shutdown(shutdownGrace)
}

const shutdownGrace = 5 * time.Second

type options struct {
	ConfigPath string
	LogLevel   string
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.ConfigPath, "config", "debugbridge.toml", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "debugbridge.toml", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "debugbridge - JSON-RPC bridge to a DAP debug adapter\n\n")
		fmt.Fprintf(os.Stderr, "Usage: debugbridge [options]\n\n")
		fmt.Fprintf(os.Stderr, "Reads tool calls as newline-delimited JSON on stdin, writes replies on stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("debugbridge %s (%s)\n", version, commit)
		os.Exit(0)
	}

	return opts
}

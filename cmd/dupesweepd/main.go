// Command dupesweepd keeps a near-duplicate report fresh for a set of
// directories and serves it to the dupesweep CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cache"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/daemon"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/manifest"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/watcher"
)

var logger = logging.Get("dupesweepd")

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile  string
	httpAddr string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "dupesweepd [dirs...]",
	Short: "Near-duplicate image daemon",
	Long: `dupesweepd scans its directories, keeps the latest duplicate report and
rescans when images change. The dupesweep CLI talks to it over a unix socket.

Directories given here replace daemon.roots from the config.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/dupesweep/config.yaml)")
	rootCmd.Flags().StringVar(&httpAddr, "http-addr", "", "serve the read-only HTTP API on this address (overrides daemon.http_addr)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "mirror debug logs to stderr")
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dupesweepd: %v\n", err)
	}
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if verbose {
		lc.ConsoleLevel = "debug"
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("failed to start logging: %w", err)
	}

	cacheDir := ""
	if cfg.Cache.Enabled {
		cacheDir = cfg.Cache.Path
	}
	if err := daemon.RecoverStale(cfg.Daemon.PIDPath, cfg.Daemon.SocketPath, cacheDir); err != nil {
		return err
	}

	roots := cfg.Daemon.Roots
	if len(args) > 0 {
		roots = args
	}
	if roots, err = absRoots(roots); err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.Daemon.HTTPAddr = httpAddr
	}

	opts, err := cfg.ScanOptions()
	if err != nil {
		return err
	}
	if cfg.Cache.Enabled {
		hc, err := cache.Open(cfg.Cache.Path, opts.Algorithm)
		if err != nil {
			return fmt.Errorf("failed to open hash cache: %w", err)
		}
		defer func() {
			if err := hc.Close(); err != nil {
				logger.Warn("closing hash cache", "error", err)
			}
		}()
		opts.Cache = hc
	}

	sc, err := scanner.New(opts)
	if err != nil {
		return err
	}
	defer sc.Close()

	var history *manifest.Manifest
	if cfg.Manifest.Enabled {
		if history, err = manifest.New(cfg.Manifest.Path); err != nil {
			logger.Warn("history disabled", "error", err)
			history = nil
		}
	}

	svc := daemon.NewService(sc, roots, history)
	defer svc.Close()

	srv, err := daemon.NewServer(daemon.Config{
		SocketPath: cfg.Daemon.SocketPath,
		HTTPAddr:   cfg.Daemon.HTTPAddr,
	}, svc)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Daemon.PIDPath), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := daemon.WritePIDFile(cfg.Daemon.PIDPath); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePIDFile(cfg.Daemon.PIDPath); err != nil {
			logger.Warn("failed to remove PID file", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(roots) > 0 {
		if err := watchRoots(ctx, cfg, roots, svc); err != nil {
			logger.Warn("watching disabled", "error", err)
		}
		svc.Start(roots)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := srv.Close(); err != nil {
			logger.Warn("error during shutdown", "error", err)
		}
	}()

	logger.Info("dupesweepd starting", "socket", cfg.Daemon.SocketPath, "http", srv.HTTPAddr(), "roots", roots)
	if err := srv.Serve(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// watchRoots rescans through svc whenever images under roots settle after a
// change. The watcher stops with ctx.
func watchRoots(ctx context.Context, cfg *config.Config, roots []string, svc *daemon.Service) error {
	w, err := watcher.New(watcher.Options{Debounce: cfg.Daemon.Debounce, Match: decode.IsImage})
	if err != nil {
		return err
	}
	var errs []error
	for _, root := range roots {
		if err := w.Watch(root); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", root, err))
		}
	}
	logger.Info("watching", "directories", w.Watched(), "debounce", cfg.Daemon.Debounce)

	go func() {
		defer w.Close()
		w.Run(ctx, svc.Rescan)
	}()
	return errors.Join(errs...)
}

// absRoots expands and absolutises roots, dropping ones that are not
// directories.
func absRoots(roots []string) ([]string, error) {
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		expanded, err := config.ExpandPath(root)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			logger.Warn("skipping root", "path", abs, "error", err)
			continue
		}
		out = append(out, abs)
	}
	return out, nil
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/output"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dirs...]",
	Short: "Rescan whenever images change",
	Long: `Watch runs a scan, then watches the directories and rescans once image
changes have settled for the debounce period. Each rescan prints a fresh
report. Unchanged files are served from the hash cache.

Press Ctrl+C to stop.`,
	Args: cobra.ArbitraryArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a rescan (default from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roots, err := resolveRoots(args)
	if err != nil {
		return err
	}

	outFormat := viper.GetString("output")
	if outFormat == "" {
		outFormat = "plain"
	}
	formatter, err := output.Get(outFormat)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", outFormat, output.Available())
	}

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rescan := func(ctx context.Context) error {
		rep, err := scanWithProgress(ctx, e.scanner, roots, progressWriter())
		if err != nil {
			return err
		}
		e.record(rep)

		var buf bytes.Buffer
		if err := formatter.Format(&buf, output.NewResult(rep)); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(buf.String())
		return exportReport(rep)
	}

	if err := rescan(ctx); err != nil {
		if errors.Is(err, types.ErrScanCancelled) {
			return nil
		}
		return err
	}

	debounce := watchDebounce
	if debounce <= 0 {
		debounce = cfg.Daemon.Debounce
	}
	w, err := watcher.New(watcher.Options{Debounce: debounce, Match: decode.IsImage})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	for _, root := range roots {
		if err := w.Watch(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}
	printInfo("Watching %d directories, press Ctrl+C to stop", w.Watched())

	w.Run(ctx, func(ctx context.Context, changed []string) {
		printInfo("%d images changed, rescanning...", len(changed))
		printVerbose("changed: %v", changed)
		if err := rescan(ctx); err != nil && !errors.Is(err, types.ErrScanCancelled) {
			printError("%v", err)
		}
	})
	return nil
}

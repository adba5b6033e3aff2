package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jamesainslie/dupesweep/cmd/dupesweep/tui"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cache"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/export"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/manifest"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/output"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/trash"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dirs...]",
	Short: "Scan directories for near-duplicate images",
	Long: `Scan hashes every image under the given directories (default: the current
directory), groups near-duplicates and prints a keep/delete recommendation for
each group. It is the same as running dupesweep with no subcommand.`,
	Args: cobra.ArbitraryArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// engine bundles a scanner with the resources it holds open.
type engine struct {
	cfg     *config.Config
	scanner *scanner.Scanner
	cache   *cache.HashCache
	history *manifest.Manifest
}

// newEngine builds a scanner from cfg. A cache that cannot be opened, for
// example because the daemon holds it, only costs speed.
func newEngine(cfg *config.Config) (*engine, error) {
	opts, err := cfg.ScanOptions()
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg}
	if cfg.Cache.Enabled && !viper.GetBool("no_cache") {
		hc, err := cache.Open(cfg.Cache.Path, opts.Algorithm)
		if err != nil {
			printVerbose("hash cache unavailable, hashing everything: %v", err)
		} else {
			e.cache = hc
			opts.Cache = hc
		}
	}

	sc, err := scanner.New(opts)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.scanner = sc

	if cfg.Manifest.Enabled {
		m, err := manifest.New(cfg.Manifest.Path)
		if err != nil {
			printVerbose("history disabled: %v", err)
		} else {
			e.history = m
		}
	}

	printVerbose("algorithm %s, threshold %d, index %s, workers %d..%d, strategy %s",
		opts.Algorithm, opts.Threshold, opts.Index,
		opts.Tuner.WorkerFloor, opts.Tuner.WorkerCeiling, opts.Tuner.Strategy)
	return e, nil
}

// Close releases the scanner and flushes the cache.
func (e *engine) Close() {
	if e.scanner != nil {
		e.scanner.Close()
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			printVerbose("closing hash cache: %v", err)
		}
	}
}

// record logs a finished scan to history and trims old entries.
func (e *engine) record(rep *types.Report) {
	if e.history == nil {
		return
	}
	if _, err := e.history.LogScan(rep); err != nil {
		printVerbose("failed to record scan: %v", err)
	}
	if removed, err := e.history.Cleanup(e.cfg.Manifest.RetentionDays); err == nil && removed > 0 {
		printVerbose("removed %d old history entries", removed)
	}
}

// runScan is the main scan command handler.
func runScan(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	roots, err := resolveRoots(args)
	if err != nil {
		return err
	}

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	outFormat := viper.GetString("output")
	interactive := !viper.GetBool("no_interactive") &&
		(outFormat == "" || outFormat == "pretty") &&
		isTerminal(os.Stdout) && isTerminal(os.Stdin)

	if interactive {
		return runInteractiveScan(e, roots)
	}
	return runNonInteractiveScan(e, roots, outFormat)
}

// resolveRoots expands, absolutizes and checks every directory argument.
func resolveRoots(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to expand path: %w", err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path does not exist: %s", abs)
			}
			return nil, fmt.Errorf("cannot access path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", abs)
		}
		roots = append(roots, abs)
	}
	return roots, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// runInteractiveScan runs the TUI: live progress, then the set browser.
func runInteractiveScan(e *engine, roots []string) error {
	opts := tui.Options{
		Scanner: e.scanner,
		Roots:   roots,
		Title:   "dupesweep " + version,
		Skip:    viper.GetStringSlice("skip"),
	}
	if viper.GetBool("trash") {
		opts.Trasher = trash.NewSystem()
	}

	out, warnings, trashErr := tui.Run(opts)
	if errors.Is(trashErr, types.ErrScanCancelled) {
		printInfo("Scan cancelled")
		return nil
	}
	if out.Report == nil {
		return trashErr
	}

	for _, w := range warnings {
		printInfo("warning: %s", w)
	}
	e.record(out.Report)
	if out.Applied != nil {
		recordTrash(e, out.Plan, *out.Applied)
	}
	if err := exportReport(out.Report); err != nil {
		return err
	}
	if trashErr != nil {
		return fmt.Errorf("trash failed: %w", trashErr)
	}

	printInfo("%d duplicate sets, %s reclaimable (%s)",
		len(out.Report.Sets), types.FormatSize(out.Plan.QueuedBytes()), out.Report.Elapsed.Round(time.Millisecond))
	if out.Applied != nil {
		printInfo("Moved %d files (%s) to the trash", len(out.Applied.Trashed), types.FormatSize(out.Applied.Bytes))
	}
	return nil
}

// runNonInteractiveScan prints the report in the chosen format and
// optionally trashes the delete queue.
func runNonInteractiveScan(e *engine, roots []string, outFormat string) error {
	if outFormat == "" {
		outFormat = "pretty"
	}
	formatter, err := output.Get(outFormat)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", outFormat, output.Available())
	}

	ctx, cancel := signalContext()
	defer cancel()

	printVerbose("Scanning %s", strings.Join(roots, ", "))
	rep, err := scanWithProgress(ctx, e.scanner, roots, progressWriter())
	if err != nil {
		if errors.Is(err, types.ErrScanCancelled) {
			printInfo("Scan cancelled")
			return nil
		}
		return fmt.Errorf("scan failed: %w", err)
	}
	e.record(rep)

	plan := scanner.NewPlan(rep)
	result := output.NewResult(rep)
	result.Warnings = applySkips(plan, viper.GetStringSlice("skip"))
	result.SkippedSets = plan.Skipped()

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(buf.String())

	if err := exportReport(rep); err != nil {
		return err
	}

	if !viper.GetBool("trash") {
		return nil
	}
	return trashQueue(ctx, e, plan, os.Stdin)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			printInfo("\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// progressWriter is where the progress bar draws, or nil when it should
// stay hidden.
func progressWriter() io.Writer {
	if getQuiet() || !isTerminal(os.Stderr) {
		return nil
	}
	return os.Stderr
}

// scanWithProgress runs a scan, drawing a progress bar on w when w is not nil.
func scanWithProgress(ctx context.Context, sc *scanner.Scanner, roots []string, w io.Writer) (*types.Report, error) {
	if w == nil {
		return sc.Scan(ctx, roots)
	}

	sub := sc.Subscribe()
	if sub == nil {
		return sc.Scan(ctx, roots)
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Discovering"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
	)

	drawn := make(chan struct{})
	go func() {
		defer close(drawn)
		var total int64
		for p := range sub.Events {
			if p.FilesTotal > 0 && p.FilesTotal != total {
				total = p.FilesTotal
				bar.ChangeMax64(total)
			}
			bar.Describe(phaseDescription(p.Phase))
			_ = bar.Set64(p.FilesDone)
		}
	}()

	rep, err := sc.Scan(ctx, roots)
	sc.Progress().Unsubscribe(sub.ID)
	<-drawn
	_ = bar.Finish()
	return rep, err
}

func phaseDescription(p types.Phase) string {
	if p == "" {
		return "Discovering"
	}
	s := string(p)
	return strings.ToUpper(s[:1]) + s[1:]
}

// applySkips resolves --skip values against the plan. Unknown or
// ambiguous IDs become warnings.
func applySkips(plan *scanner.Plan, ids []string) []string {
	var warnings []string
	for _, id := range ids {
		full, err := plan.Resolve(id)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		_ = plan.Skip(full)
	}
	return warnings
}

// trashQueue moves the delete queue to the trash after confirmation.
func trashQueue(ctx context.Context, e *engine, plan *scanner.Plan, in io.Reader) error {
	queue := plan.DeleteQueue()
	if len(queue) == 0 {
		printInfo("Nothing to trash.")
		return nil
	}

	if !viper.GetBool("yes") {
		prompt := fmt.Sprintf("Move %d files (%s) to the trash?", len(queue), types.FormatSize(plan.QueuedBytes()))
		if !confirm(prompt, in, os.Stderr) {
			printInfo("Aborted.")
			return nil
		}
	}

	res, err := plan.Apply(ctx, trash.NewSystem())
	recordTrash(e, plan, res)
	for _, f := range res.Failed {
		printInfo("warning: %s: %s", f.Path, f.Error)
	}
	printInfo("Moved %d files (%s) to the trash", len(res.Trashed), types.FormatSize(res.Bytes))
	if err != nil {
		return fmt.Errorf("trash interrupted: %w", err)
	}
	return nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(prompt string, in io.Reader, out io.Writer) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// recordTrash writes the files that reached the trash to history.
func recordTrash(e *engine, plan *scanner.Plan, res scanner.ApplyResult) {
	if e.history == nil || (len(res.Trashed) == 0 && len(res.Failed) == 0) {
		return
	}
	if _, err := e.history.LogTrash(trashRecords(plan, res, time.Now()), res.Failed); err != nil {
		printVerbose("failed to record trash: %v", err)
	}
}

// trashRecords describes every trashed file with the set it came from.
func trashRecords(plan *scanner.Plan, res scanner.ApplyResult, at time.Time) []manifest.FileRecord {
	setOf := make(map[string]string)
	for _, set := range plan.Report().Sets {
		for _, m := range set.Members {
			setOf[m.Path] = set.ID
		}
	}
	trashed := make(map[string]bool, len(res.Trashed))
	for _, p := range res.Trashed {
		trashed[p] = true
	}

	var records []manifest.FileRecord
	for _, s := range plan.DeleteQueue() {
		if !trashed[s.Record.Path] {
			continue
		}
		records = append(records, manifest.FileRecord{
			Path:      s.Record.Path,
			Size:      s.Record.Size,
			ModTime:   s.Record.ModTime,
			SetID:     setOf[s.Record.Path],
			TrashedAt: at,
		})
	}
	return records
}

// exportReport writes the report to the --export-db database.
func exportReport(rep *types.Report) error {
	path := viper.GetString("export_db")
	if path == "" {
		return nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	id, err := export.Export(context.Background(), expanded, rep)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	printInfo("Exported scan %d to %s", id, expanded)
	return nil
}

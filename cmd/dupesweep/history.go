package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/manifest"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View scan and trash history",
	Long: `View the history of scans and trash actions.

Every completed scan records its duplicate sets, and every trash action
records the files that were moved, so a trashed file can always be traced back
to the set and the copy that was kept.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove entries older than the retention period",
	RunE:  runHistoryClean,
}

var (
	historyLimit     int
	historyShowLimit int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyShowCmd.Flags().IntVarP(&historyShowLimit, "limit", "l", 50, "maximum number of sets or files to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory returns the manifest, falling back to the default location
// when the configuration cannot be loaded.
func openHistory() (*manifest.Manifest, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		printVerbose("using default history location: %v", err)
		cfg = config.Default()
	}
	m, err := manifest.New(cfg.Manifest.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return m, cfg, nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	m, _, err := openHistory()
	if err != nil {
		return err
	}

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'dupesweep [dirs...]' to scan for duplicates.")
		return nil
	}

	fmt.Printf("\n%-34s  %-6s  %-14s  %5s  %6s  %10s\n", "ID", "TYPE", "WHEN", "SETS", "FILES", "SIZE")
	fmt.Println(strings.Repeat("-", 84))
	for _, entry := range entries {
		fmt.Printf("%-34s  %-6s  %-14s  %5d  %6d  %10s\n",
			truncateString(entry.ID, 34),
			entry.Operation,
			truncateString(humanize.Time(entry.Timestamp), 14),
			entry.Summary.SetCount,
			entry.Summary.TotalFiles,
			types.FormatSize(entry.Summary.TotalBytes),
		)
	}
	fmt.Println(strings.Repeat("-", 84))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'dupesweep history show <id>' for details on a specific entry.")
	return nil
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	m, _, err := openHistory()
	if err != nil {
		return err
	}

	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	fmt.Println("\nEntry Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Operation:  %s\n", entry.Operation)
	if len(entry.Roots) > 0 {
		fmt.Printf("Roots:      %s\n", strings.Join(entry.Roots, ", "))
	}
	if entry.Operation == manifest.OpScan {
		s := entry.Summary
		fmt.Printf("Hash:       %s (threshold %d)\n", s.Algorithm, s.Threshold)
		fmt.Printf("Files:      %d seen, %d hashed, %d skipped\n", s.FilesSeen, s.Hashed, s.Skipped)
		fmt.Printf("Sets:       %d\n", s.SetCount)
		fmt.Printf("Elapsed:    %s\n", time.Duration(s.ElapsedSecs*float64(time.Second)).Round(time.Millisecond))
	}
	fmt.Printf("Files:      %d\n", entry.Summary.TotalFiles)
	fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Summary.TotalBytes))

	if len(entry.Sets) > 0 {
		fmt.Println("\nSets:")
		fmt.Println(strings.Repeat("-", 60))
		limit := min(historyShowLimit, len(entry.Sets))
		for _, set := range entry.Sets[:limit] {
			fmt.Printf("%s  %d files  %s\n", truncateString(set.ID, 8), len(set.Members), types.FormatSize(set.Bytes))
			for _, member := range set.Members {
				mark := "  delete"
				if member == set.Keep {
					mark = "  keep  "
				}
				fmt.Printf("%s  %s\n", mark, member)
			}
		}
		if len(entry.Sets) > limit {
			fmt.Printf("\n... and %d more sets\n", len(entry.Sets)-limit)
		}
	}

	if len(entry.Files) > 0 {
		fmt.Println("\nFiles:")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-10s  %-8s  %s\n", "SIZE", "SET", "PATH")
		limit := min(historyShowLimit, len(entry.Files))
		for _, file := range entry.Files[:limit] {
			fmt.Printf("%-10s  %-8s  %s\n", types.FormatSize(file.Size), truncateString(file.SetID, 8), file.Path)
		}
		if len(entry.Files) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Files)-limit)
		}
	}

	if len(entry.Failures) > 0 {
		fmt.Println("\nFailures:")
		for _, f := range entry.Failures {
			fmt.Printf("  %s: %s\n", f.Path, f.Error)
		}
	}
	return nil
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	m, cfg, err := openHistory()
	if err != nil {
		return err
	}

	retentionDays := cfg.Manifest.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)
	removed, err := m.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d entries.", removed)
	return nil
}

// truncateString cuts s to maxLen bytes without an ellipsis. IDs and
// relative times are still recognisable by their prefix.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

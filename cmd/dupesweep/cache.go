package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cache"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the hash cache",
	Long: `Commands for managing the perceptual hash cache.

The cache stores one hash per file and algorithm, validated by file size and
modification time, so unchanged images are not decoded again on the next scan.
It lives in the XDG cache directory (typically ~/.cache/dupesweep/hashes).

The cache cannot be opened while dupesweepd is running.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached hash",
	Long:  `Removes all cached hashes. The next scan decodes and hashes every image.`,
	RunE:  runCacheClear,
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Println(cachePath())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cachePath() string {
	cfg, err := loadConfig()
	if err != nil {
		return config.DefaultCacheDir()
	}
	return cfg.Cache.Path
}

func runCacheStats(_ *cobra.Command, _ []string) error {
	path := cachePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("Cache: empty (never written)")
		fmt.Printf("Cache location: %s\n", path)
		return nil
	}

	store, err := cache.OpenStore(path)
	if err != nil {
		return fmt.Errorf("failed to open cache (is dupesweepd running?): %w", err)
	}
	defer store.Close()

	counts, err := store.Count()
	if err != nil {
		return fmt.Errorf("failed to count cache entries: %w", err)
	}
	lsm, vlog := store.Size()

	fmt.Printf("Cache location: %s\n", path)
	fmt.Printf("Cache size:     %s (index %s, values %s)\n",
		types.FormatSize(uint64(lsm+vlog)), types.FormatSize(uint64(lsm)), types.FormatSize(uint64(vlog)))
	total := 0
	for _, algo := range types.Algorithms {
		if n := counts[algo]; n > 0 {
			fmt.Printf("  %-6s %d hashes\n", algo, n)
			total += n
		}
	}
	fmt.Printf("Total entries:  %d\n", total)
	return nil
}

func runCacheClear(_ *cobra.Command, _ []string) error {
	path := cachePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("Cache is already empty.")
		return nil
	}

	store, err := cache.OpenStore(path)
	if err != nil {
		return fmt.Errorf("failed to open cache (is dupesweepd running?): %w", err)
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Println("Cache cleared.")
	return nil
}

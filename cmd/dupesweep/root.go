package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "dupesweep [dirs...]",
		Short: "Find visually near-duplicate images",
		Long: `Dupesweep hashes every image under the given directories with a perceptual
hash, groups images whose hashes are within a Hamming distance threshold and
recommends which copy of each group to keep.

Nothing is removed unless --trash is given, and even then files are moved to
the system trash after confirmation.

Examples:
  dupesweep ~/Pictures                 # Scan with the interactive TUI
  dupesweep -t 4 -a dhash ~/Pictures   # Stricter threshold, dHash
  dupesweep -n -o json ~/Pictures      # Non-interactive JSON report
  dupesweep -n --trash ~/Pictures      # Trash the delete queue after confirming
  dupesweep watch ~/Pictures           # Rescan when files change
  dupesweep history                    # View past scans and trash actions`,
		Args:          cobra.ArbitraryArgs,
		RunE:          runScan,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/dupesweep/config.yaml)")
	flags.IntP("threshold", "t", config.DefaultThreshold, "maximum Hamming distance between near-duplicates")
	flags.StringP("algorithm", "a", config.DefaultAlgorithm, "hash algorithm (phash, dct, dhash, ahash)")
	flags.Int("workers-floor", 1, "minimum hashing workers")
	flags.Int("workers-ceiling", 0, "maximum hashing workers (0=logical cores)")
	flags.String("strategy", config.DefaultStrategy, "resource strategy (balanced, performance, memory)")
	flags.String("index", config.DefaultIndex, "neighbour index (bktree, bands)")
	flags.StringSliceP("exclude", "e", nil, "exclude glob patterns (can be specified multiple times)")
	flags.StringSlice("include", nil, "include glob patterns (can be specified multiple times)")
	flags.StringP("output", "o", "", "output format (pretty, plain, json, jsonl, yaml, paths, null)")
	flags.BoolP("no-interactive", "n", false, "disable TUI, use text output")
	flags.Bool("no-cache", false, "bypass the hash cache")
	flags.Bool("trash", false, "move the delete queue to the trash")
	flags.BoolP("yes", "y", false, "do not ask before trashing")
	flags.StringSlice("skip", nil, "duplicate set IDs (or ID prefixes) to leave untouched")
	flags.String("export-db", "", "write the report to a SQLite database")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "debug output")

	// Flags that mirror config keys bind to the config key so the usual
	// flag > env > file > default precedence applies.
	bind("hash.threshold", "threshold")
	bind("hash.algorithm", "algorithm")
	bind("workers.floor", "workers-floor")
	bind("workers.ceiling", "workers-ceiling")
	bind("resources.strategy", "strategy")
	bind("cluster.index", "index")
	bind("exclude", "exclude")
	bind("include", "include")
	bind("output", "output")
	bind("no_interactive", "no-interactive")
	bind("no_cache", "no-cache")
	bind("trash", "trash")
	bind("yes", "yes")
	bind("skip", "skip")
	bind("export_db", "export-db")
	bind("quiet", "quiet")
	bind("verbose", "verbose")
}

func bind(key, flag string) {
	_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

// initConfig points the global viper at the config search path, the
// environment and the defaults. The file is read by loadConfig.
func initConfig() {
	config.Setup(viper.GetViper(), cfgFile)
}

// loadConfig decodes and validates the configuration and starts logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		printVerbose("logging disabled: %v", err)
	}
	if f := viper.ConfigFileUsed(); f != "" {
		printVerbose("using config file %s", f)
	}
	return cfg, nil
}

// initLogging starts file logging. Verbose mode mirrors debug records to
// stderr; otherwise the console is left to the TUI and the report.
func initLogging(cfg *config.Config) error {
	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if getVerbose() && !getQuiet() {
		lc.ConsoleLevel = "debug"
	}
	return logging.Init(lc)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr unless quiet mode is enabled. The
// report itself goes to stdout so it can be piped.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/client"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/daemon"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/output"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the dupesweepd daemon",
	Long: `Manage dupesweepd, the background daemon that keeps a duplicate report
fresh for a set of directories.

The daemon watches its roots and rescans when images change. Query it for the
latest report without waiting for a scan.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start [dirs...]",
	Short: "Start the daemon in the background",
	Long:  `Start dupesweepd in the background. Directories given here replace daemon.roots from the config.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

var daemonScanCmd = &cobra.Command{
	Use:   "scan [dirs...]",
	Short: "Ask the daemon to rescan",
	Long:  `Start a scan in the daemon. Without directories the daemon's roots are rescanned.`,
	RunE:  runDaemonScan,
}

var daemonReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the daemon's latest report",
	RunE:  runDaemonReport,
}

var (
	daemonHTTPAddr string
	daemonWait     bool
)

func init() {
	daemonStartCmd.Flags().StringVar(&daemonHTTPAddr, "http-addr", "", "also serve the read-only HTTP API on this address")
	daemonScanCmd.Flags().BoolVarP(&daemonWait, "wait", "w", false, "wait for the scan to finish and print the report")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonScanCmd)
	daemonCmd.AddCommand(daemonReportCmd)
	rootCmd.AddCommand(daemonCmd)
}

func daemonPaths() (client.DaemonPaths, error) {
	cfg, err := loadConfig()
	if err != nil {
		return client.DaemonPaths{}, err
	}
	return client.DaemonPaths{Socket: cfg.Daemon.SocketPath, PID: cfg.Daemon.PIDPath}, nil
}

// connect dials the running daemon.
func connect(ctx context.Context) (*client.Client, error) {
	paths, err := daemonPaths()
	if err != nil {
		return nil, err
	}
	if !client.IsDaemonRunning(paths) {
		return nil, errors.New("daemon is not running (start it with 'dupesweep daemon start')")
	}
	printVerbose("connecting to %s", paths.Socket)
	return client.ConnectWithContext(ctx, paths.Socket)
}

func runDaemonStart(_ *cobra.Command, args []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}
	if client.IsDaemonRunning(paths) {
		printInfo("Daemon already running")
		return nil
	}

	var daemonArgs []string
	if f := viper.ConfigFileUsed(); f != "" {
		daemonArgs = append(daemonArgs, "--config", f)
	}
	if daemonHTTPAddr != "" {
		daemonArgs = append(daemonArgs, "--http-addr", daemonHTTPAddr)
	}
	if len(args) > 0 {
		roots, err := resolveRoots(args)
		if err != nil {
			return err
		}
		daemonArgs = append(daemonArgs, roots...)
	}

	printVerbose("starting %s %v", client.DaemonBinary, daemonArgs)
	if err := client.StartDaemon(paths, daemonArgs...); err != nil {
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}
	if !client.IsDaemonRunning(paths) {
		return errors.New("daemon is not running")
	}

	pid, err := daemon.ReadPIDFile(paths.PID)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find daemon process: %w", err)
	}
	printVerbose("sending SIGTERM to %d", pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for range 50 {
		if !client.IsDaemonRunning(paths) {
			printInfo("Daemon stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("daemon did not stop within timeout")
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	fmt.Println("Daemon Status")
	fmt.Println("-------------")
	fmt.Printf("Running:     %t\n", st.Running)
	fmt.Printf("Uptime:      %s\n", (time.Duration(st.UptimeSeconds) * time.Second).String())
	fmt.Printf("Memory:      %s\n", types.FormatSize(st.MemoryBytes))
	fmt.Printf("Roots:       %v\n", st.Roots)
	if st.Scanning {
		fmt.Printf("Scanning:    %s %d/%d files\n", st.Progress.Phase, st.Progress.FilesDone, st.Progress.FilesTotal)
	} else {
		fmt.Println("Scanning:    no")
	}
	if !st.LastScan.IsZero() {
		fmt.Printf("Last scan:   %s\n", st.LastScan.Format(time.RFC3339))
		fmt.Printf("Sets:        %d\n", st.Sets)
		fmt.Printf("Reclaimable: %s\n", types.FormatSize(st.Reclaimable))
	}
	if st.LastError != "" {
		fmt.Printf("Last error:  %s\n", st.LastError)
	}
	return nil
}

func runDaemonScan(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var roots []string
	if len(args) > 0 {
		var err error
		if roots, err = resolveRoots(args); err != nil {
			return err
		}
	}

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Scan(ctx, roots); err != nil {
		return err
	}
	if !daemonWait {
		printInfo("Scan started")
		return nil
	}

	// A scan that already finished yields its final update and closes.
	events, err := c.WatchProgress(ctx)
	if err != nil {
		return err
	}
	for p := range events {
		printVerbose("%s %d/%d", p.Phase, p.FilesDone, p.FilesTotal)
	}
	return printDaemonReport(ctx, c)
}

func runDaemonReport(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return printDaemonReport(ctx, c)
}

func printDaemonReport(ctx context.Context, c *client.Client) error {
	rep, err := c.Report(ctx)
	if err != nil {
		return fmt.Errorf("failed to get report: %w", err)
	}

	outFormat := viper.GetString("output")
	if outFormat == "" {
		outFormat = "pretty"
	}
	formatter, err := output.Get(outFormat)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", outFormat, output.Available())
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, output.NewResult(rep)); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(buf.String())
	return exportReport(rep)
}

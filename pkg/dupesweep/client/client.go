// Package client connects to the dupesweepd daemon over its unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	dupesweepv1 "github.com/jamesainslie/dupesweep/pkg/dupesweep/api/v1"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/daemon"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("client")

// DaemonBinary is the daemon executable name.
const DaemonBinary = "dupesweepd"

// Client is a connection to dupesweepd.
type Client struct {
	conn   *grpc.ClientConn
	client *dupesweepv1.DaemonClient
}

// Connect connects with a 5 second timeout.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext connects and waits until the connection is ready or
// ctx ends.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	conn.Connect()
	for state := conn.GetState(); state != connectivity.Ready; state = conn.GetState() {
		if !conn.WaitForStateChange(ctx, state) {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to connect to daemon: %w", ctx.Err())
		}
	}

	return &Client{conn: conn, client: dupesweepv1.NewDaemonClient(conn)}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Scan asks the daemon to scan roots, or its configured roots when empty.
func (c *Client) Scan(ctx context.Context, roots []string) error {
	resp, err := c.client.Scan(ctx, &dupesweepv1.ScanRequest{Roots: roots})
	if err != nil {
		return fmt.Errorf("Scan RPC failed: %w", err)
	}
	if !resp.Started {
		return fmt.Errorf("scan not started: %s", resp.Message)
	}
	return nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*dupesweepv1.DaemonStatus, error) {
	st, err := c.client.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status RPC failed: %w", err)
	}
	return st, nil
}

// Report returns the daemon's latest report.
func (c *Client) Report(ctx context.Context) (*types.Report, error) {
	r, err := c.client.Report(ctx)
	if err != nil {
		return nil, fmt.Errorf("Report RPC failed: %w", err)
	}
	return r, nil
}

// WatchProgress streams progress of the running scan. The channel closes
// when the scan finishes, the stream fails or ctx ends.
func (c *Client) WatchProgress(ctx context.Context) (<-chan types.ScanProgress, error) {
	recv, err := c.client.WatchProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("WatchProgress RPC failed: %w", err)
	}

	events := make(chan types.ScanProgress, 16)
	go func() {
		defer close(events)
		for {
			p, err := recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					logger.Debug("progress stream ended", "error", err)
				}
				return
			}
			select {
			case events <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// DaemonPaths configures daemon operations. Empty fields use defaults.
type DaemonPaths struct {
	Binary string
	Socket string
	PID    string
}

func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// IsDaemonRunning reports whether the daemon named by the PID file is alive.
func IsDaemonRunning(paths DaemonPaths) bool {
	return daemon.IsRunning(paths.withDefaults().PID)
}

// StartDaemon starts dupesweepd in the background and waits for its socket.
// It returns nil if the daemon is already running.
func StartDaemon(paths DaemonPaths, args ...string) error {
	paths = paths.withDefaults()
	if daemon.IsRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", DaemonBinary, err)
	}

	// The daemon must outlive the caller, so no CommandContext.
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is resolved above
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if _, err := os.Stat(paths.Socket); err == nil {
			return nil
		}
	}
	return errors.New("daemon did not become ready within timeout")
}

// resolveBinary finds the daemon: the configured path, then next to the
// running executable, then PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), DaemonBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(DaemonBinary); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found", DaemonBinary)
}

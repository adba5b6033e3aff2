package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dupesweepv1 "github.com/jamesainslie/dupesweep/pkg/dupesweep/api/v1"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// mockDaemon implements dupesweepv1.DaemonServer for testing.
type mockDaemon struct {
	started  bool
	report   *types.Report
	progress []types.ScanProgress
	roots    []string
}

func (m *mockDaemon) Scan(_ context.Context, req *dupesweepv1.ScanRequest) (*dupesweepv1.ScanResponse, error) {
	m.roots = req.Roots
	if m.started {
		return &dupesweepv1.ScanResponse{Started: false, Message: "already scanning"}, nil
	}
	m.started = true
	return &dupesweepv1.ScanResponse{Started: true, Message: "scan started"}, nil
}

func (m *mockDaemon) Status(context.Context) (*dupesweepv1.DaemonStatus, error) {
	return &dupesweepv1.DaemonStatus{Running: true, UptimeSeconds: 42, Scanning: m.started, Sets: 3}, nil
}

func (m *mockDaemon) Report(context.Context) (*types.Report, error) {
	if m.report == nil {
		return nil, status.Error(codes.NotFound, "no completed scan")
	}
	return m.report, nil
}

func (m *mockDaemon) WatchProgress(_ context.Context, send func(types.ScanProgress) error) error {
	for _, p := range m.progress {
		if err := send(p); err != nil {
			return err
		}
	}
	return nil
}

func startMock(t *testing.T, m *mockDaemon) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dsc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")

	lis, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := grpc.NewServer()
	dupesweepv1.RegisterDaemonServer(srv, m)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return sock
}

func TestConnect_MissingSocket(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "none.sock"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket not found")
}

func TestClient_ScanAndStatus(t *testing.T) {
	m := &mockDaemon{}
	c, err := Connect(startMock(t, m))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Scan(ctx, []string{"/photos"}))
	assert.Equal(t, []string{"/photos"}, m.roots)

	err = c.Scan(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already scanning")

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.True(t, st.Scanning)
	assert.Equal(t, int64(42), st.UptimeSeconds)
	assert.Equal(t, 3, st.Sets)
}

func TestClient_Report(t *testing.T) {
	h := types.Hash{Bits: 0xfedcba9876543210, Width: 64, Algorithm: types.AlgorithmPHash}
	m := &mockDaemon{report: &types.Report{
		Roots: []string{"/photos"},
		Sets: []types.DuplicateSet{{
			ID:      "set",
			Members: []types.ImageRecord{{Path: "/photos/a.jpg", Hash: h}, {Path: "/photos/b.jpg", Hash: h}},
		}},
	}}
	c, err := Connect(startMock(t, m))
	require.NoError(t, err)
	defer c.Close()

	report, err := c.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Sets, 1)
	assert.Equal(t, h, report.Sets[0].Members[0].Hash, "64-bit hashes survive the wire")

	m.report = nil
	_, err = c.Report(context.Background())
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestClient_WatchProgress(t *testing.T) {
	m := &mockDaemon{progress: []types.ScanProgress{
		{Phase: types.PhaseHashing, FilesTotal: 10, FilesDone: 4, Elapsed: time.Second},
		{Phase: types.PhaseDone, FilesTotal: 10, FilesDone: 10},
	}}
	c, err := Connect(startMock(t, m))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := c.WatchProgress(ctx)
	require.NoError(t, err)

	var got []types.ScanProgress
	for p := range events {
		got = append(got, p)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].FilesDone)
	assert.Equal(t, time.Second, got[0].Elapsed)
	assert.Equal(t, types.PhaseDone, got[1].Phase)
}

func TestResolveBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), DaemonBinary)
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	got, err := resolveBinary(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = resolveBinary(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsDaemonRunning_NoPIDFile(t *testing.T) {
	assert.False(t, IsDaemonRunning(DaemonPaths{PID: filepath.Join(t.TempDir(), "none.pid")}))
}

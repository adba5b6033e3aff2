package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

type recordingTrasher struct {
	paths []string
	fail  map[string]bool
}

func (r *recordingTrasher) Trash(ctx context.Context, path string) error {
	if r.fail[path] {
		return errors.New("permission denied")
	}
	r.paths = append(r.paths, path)
	return nil
}

func statRecord(t *testing.T, path string) types.ImageRecord {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return types.ImageRecord{Path: path, Size: uint64(info.Size()), ModTime: info.ModTime()}
}

func planReport(t *testing.T) (*types.Report, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	p := map[string]string{}
	for _, n := range []string{"a", "a2", "b", "b2", "b3"} {
		p[n] = filepath.Join(dir, n+".jpg")
	}
	rec := func(n string) types.ImageRecord { return statRecord(t, p[n]) }

	a, a2, b, b2, b3 := rec("a"), rec("a2"), rec("b"), rec("b2"), rec("b3")
	return &types.Report{
		Sets: []types.DuplicateSet{
			{ID: "set-a", Members: []types.ImageRecord{a, a2}},
			{ID: "set-b", Members: []types.ImageRecord{b, b2, b3}},
		},
		Scores: map[string][]types.SelectionScore{
			"set-a": {
				{Record: a, Score: 1, Action: types.ActionKeep},
				{Record: a2, Score: 0.5, Action: types.ActionDelete},
			},
			"set-b": {
				{Record: b, Score: 0.7, Action: types.ActionDelete},
				{Record: b2, Score: 1, Action: types.ActionKeep},
				{Record: b3, Score: 0.2, Action: types.ActionDelete},
			},
		},
	}, p
}

func queuePaths(q []types.SelectionScore) []string {
	out := make([]string, len(q))
	for i, s := range q {
		out[i] = s.Record.Path
	}
	return out
}

func TestPlan_DeleteQueueAndSkip(t *testing.T) {
	report, p := planReport(t)
	plan := NewPlan(report)

	assert.Equal(t, []string{p["a2"], p["b"], p["b3"]}, queuePaths(plan.DeleteQueue()))

	require.NoError(t, plan.Skip("set-b"))
	assert.True(t, plan.IsSkipped("set-b"))
	assert.Equal(t, []string{p["a2"]}, queuePaths(plan.DeleteQueue()))
	assert.Equal(t, uint64(len("a2.jpg")), plan.QueuedBytes())

	assert.Error(t, plan.Skip("nope"))
}

func TestPlan_ToggleAndResolve(t *testing.T) {
	report, p := planReport(t)
	plan := NewPlan(report)

	skipped, err := plan.Toggle("set-a")
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, map[string]bool{"set-a": true}, plan.Skipped())

	skipped, err = plan.Toggle("set-a")
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, []string{p["a2"], p["b"], p["b3"]}, queuePaths(plan.DeleteQueue()))

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "set-b", want: "set-b"},
		{in: "set-a", want: "set-a"},
		{in: "set-", wantErr: true},
		{in: "zzz", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := plan.Resolve(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	assert.Same(t, report, plan.Report())
}

func TestPlan_Apply(t *testing.T) {
	report, p := planReport(t)
	plan := NewPlan(report)

	// b3 changes after the scan and must be left alone.
	require.NoError(t, os.WriteFile(p["b3"], []byte("edited since the scan"), 0o644))

	tr := &recordingTrasher{fail: map[string]bool{p["b"]: true}}
	res, err := plan.Apply(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, []string{p["a2"]}, res.Trashed)
	assert.Equal(t, []string{p["a2"]}, tr.paths)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, p["b"], res.Failed[0].Path)
	assert.Equal(t, p["b3"], res.Failed[1].Path)
	assert.Contains(t, res.Failed[1].Error, "changed since the scan")
}

func TestPlan_ApplyCancelled(t *testing.T) {
	report, _ := planReport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &recordingTrasher{}
	res, err := NewPlan(report).Apply(ctx, tr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Trashed)
	assert.Empty(t, tr.paths)
}

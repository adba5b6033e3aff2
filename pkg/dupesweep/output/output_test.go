package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

func testReport() *types.Report {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hash := types.Hash{Bits: 0xf0f0, Width: 64, Algorithm: types.AlgorithmPHash}

	keep := types.ImageRecord{Path: "/photos/IMG_0001.jpg", Size: 4 << 20, Width: 4000, Height: 3000, ModTime: t0, Hash: hash}
	dup := types.ImageRecord{Path: "/photos/IMG_0001 copy.jpg", Size: 1 << 20, Width: 2000, Height: 1500, ModTime: t0.Add(time.Hour), Hash: hash}
	other := types.ImageRecord{Path: "/photos/beach.png", Size: 2 << 20, Width: 800, Height: 600, ModTime: t0.Add(2 * time.Hour), Hash: hash}
	otherDup := types.ImageRecord{Path: "/photos/beach (1).png", Size: 2 << 20, Width: 800, Height: 600, ModTime: t0.Add(3 * time.Hour), Hash: hash}

	return &types.Report{
		Roots:     []string{"/photos"},
		Algorithm: types.AlgorithmPHash,
		Threshold: 6,
		StartedAt: t0,
		FilesSeen: 5,
		Hashed:    4,
		Skipped:   []types.SkippedFile{{Path: "/photos/broken.jpg", Reason: "unexpected EOF"}},
		Clustered: 4,
		Sets: []types.DuplicateSet{
			{ID: "aaaaaaaa-0000-5000-8000-000000000001", Members: []types.ImageRecord{keep, dup}, RepresentativeHash: hash},
			{ID: "bbbbbbbb-0000-5000-8000-000000000002", Members: []types.ImageRecord{other, otherDup}, RepresentativeHash: hash},
		},
		Scores: map[string][]types.SelectionScore{
			"aaaaaaaa-0000-5000-8000-000000000001": {
				{Record: keep, Score: 1, Action: types.ActionKeep},
				{Record: dup, Score: 0.31, Action: types.ActionDelete},
			},
			"bbbbbbbb-0000-5000-8000-000000000002": {
				{Record: other, Score: 1, Action: types.ActionKeep},
				{Record: otherDup, Score: 0.6, Action: types.ActionDelete},
			},
		},
		Budget:  types.ResourceBudget{MaxWorkers: 4},
		Elapsed: 1500 * time.Millisecond,
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "jsonl", "null", "paths", "plain", "pretty", "yaml"}, Available())

	_, err := Get("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown formatter")

	r := NewRegistry()
	r.Register("x", func() Formatter { return &PlainFormatter{} })
	f, err := r.Get("x")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, f)
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, NewResult(testReport())))

	var got reportView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.Summary.Sets)
	assert.Equal(t, uint64(3<<20), got.Summary.Reclaimable)
	require.Len(t, got.Sets, 2)
	assert.Equal(t, types.ActionKeep, got.Sets[0].Members[0].Action)
	assert.Equal(t, types.ActionDelete, got.Sets[0].Members[1].Action)
	assert.InDelta(t, 0.31, got.Sets[0].Members[1].Score, 1e-9)
	assert.Len(t, got.Skipped, 1)
}

func TestJSONLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONLFormatter{}).Format(&buf, NewResult(testReport())))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		var m memberView
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		assert.NotEmpty(t, m.SetID)
		assert.NotEmpty(t, m.Path)
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, NewResult(testReport())))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Contains(t, got, "summary")
	assert.Contains(t, got, "sets")
	assert.NotContains(t, buf.String(), "set_id")
}

func TestPlainFormatter(t *testing.T) {
	res := NewResult(testReport())
	res.SkippedSets["bbbbbbbb-0000-5000-8000-000000000002"] = true

	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, res))
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "SET"))
	assert.Contains(t, lines[1], "keep")
	assert.Contains(t, lines[2], "delete")
	assert.Contains(t, lines[3], "skip")
	assert.Contains(t, lines[2], "/photos/IMG_0001 copy.jpg")
	assert.Contains(t, lines[1], "aaaaaaaa ")
}

func TestPathsFormatters(t *testing.T) {
	res := NewResult(testReport())

	var buf bytes.Buffer
	require.NoError(t, (&PathsFormatter{}).Format(&buf, res))
	assert.Equal(t, "/photos/IMG_0001 copy.jpg\n/photos/beach (1).png\n", buf.String())

	res.SkippedSets["aaaaaaaa-0000-5000-8000-000000000001"] = true
	buf.Reset()
	require.NoError(t, (&NullFormatter{}).Format(&buf, res))
	assert.Equal(t, "/photos/beach (1).png\x00", buf.String())
}

func TestPrettyFormatter(t *testing.T) {
	res := NewResult(testReport())
	res.Warnings = []string{"telemetry unavailable; using a static budget"}

	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "/photos/IMG_0001.jpg")
	assert.Contains(t, out, "Set 1")
	assert.Contains(t, out, "Set 2")
	assert.Contains(t, out, "keep")
	assert.Contains(t, out, "delete")
	assert.Contains(t, out, "/photos/broken.jpg")
	assert.Contains(t, out, "Warnings:")
	assert.Contains(t, out, "1.5s")
}

func TestPrettyFormatterNoSets(t *testing.T) {
	rep := &types.Report{Roots: []string{"/empty"}, Algorithm: types.AlgorithmDHash}

	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, NewResult(rep)))
	assert.Contains(t, buf.String(), "No duplicate images found")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestPadLeft(t *testing.T) {
	assert.Equal(t, "   ab", padLeft("ab", 5))
	assert.Equal(t, "abcdef", padLeft("abcdef", 3))
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

func testPlan() *scanner.Plan {
	rec := func(path string, size uint64) types.ImageRecord {
		return types.ImageRecord{Path: path, Size: size}
	}
	a, a2 := rec("/p/a.jpg", 100), rec("/p/a (1).jpg", 90)
	b, b2 := rec("/p/b.jpg", 200), rec("/p/b copy.jpg", 150)
	return scanner.NewPlan(&types.Report{
		Sets: []types.DuplicateSet{
			{ID: "aaaaaaaa-1111", Members: []types.ImageRecord{a, a2}},
			{ID: "bbbbbbbb-2222", Members: []types.ImageRecord{b, b2}},
		},
		Scores: map[string][]types.SelectionScore{
			"aaaaaaaa-1111": {
				{Record: a, Score: 1, Action: types.ActionKeep},
				{Record: a2, Score: 0.4, Action: types.ActionDelete},
			},
			"bbbbbbbb-2222": {
				{Record: b, Score: 0.9, Action: types.ActionKeep},
				{Record: b2, Score: 0.3, Action: types.ActionDelete},
			},
		},
	})
}

func TestResolveRoots(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	roots, err := resolveRoots([]string{dir})
	if err != nil {
		t.Fatalf("resolveRoots() error = %v", err)
	}
	if len(roots) != 1 || roots[0] != dir {
		t.Errorf("resolveRoots() = %v, want [%s]", roots, dir)
	}

	roots, err = resolveRoots(nil)
	if err != nil {
		t.Fatalf("resolveRoots(nil) error = %v", err)
	}
	if len(roots) != 1 || !filepath.IsAbs(roots[0]) {
		t.Errorf("resolveRoots(nil) = %v, want the absolute working directory", roots)
	}

	tests := []struct {
		name string
		arg  string
		want string
	}{
		{"missing", filepath.Join(dir, "nope"), "does not exist"},
		{"file", file, "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveRoots([]string{tt.arg})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("resolveRoots(%q) error = %v, want it to mention %q", tt.arg, err, tt.want)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm("Trash?", strings.NewReader(tt.input), &out)
		if got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Trash? [y/N] " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestApplySkips(t *testing.T) {
	plan := testPlan()
	warnings := applySkips(plan, []string{"bbbb", "zzzz"})

	if !plan.Skipped()["bbbbbbbb-2222"] {
		t.Error("prefix bbbb should skip the second set")
	}
	if len(plan.Skipped()) != 1 {
		t.Errorf("skipped = %v, want one set", plan.Skipped())
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "zzzz") {
		t.Errorf("warnings = %v, want one about zzzz", warnings)
	}
	if q := plan.DeleteQueue(); len(q) != 1 || q[0].Record.Path != "/p/a (1).jpg" {
		t.Errorf("delete queue = %v", q)
	}
}

func TestTrashRecords(t *testing.T) {
	plan := testPlan()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := scanner.ApplyResult{
		Trashed: []string{"/p/a (1).jpg"},
		Bytes:   90,
		Failed:  []types.ScanError{{Path: "/p/b copy.jpg", Error: "changed since scan"}},
	}

	records := trashRecords(plan, res, at)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Path != "/p/a (1).jpg" || r.SetID != "aaaaaaaa-1111" || r.Size != 90 || !r.TrashedAt.Equal(at) {
		t.Errorf("record = %+v", r)
	}
}

func TestPhaseDescription(t *testing.T) {
	tests := []struct {
		phase types.Phase
		want  string
	}{
		{"", "Discovering"},
		{types.PhaseHashing, "Hashing"},
		{types.PhaseClustering, "Clustering"},
	}
	for _, tt := range tests {
		if got := phaseDescription(tt.phase); got != tt.want {
			t.Errorf("phaseDescription(%q) = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestEffectiveSettings(t *testing.T) {
	v := viper.New()
	v.Set("hash.threshold", 4)
	v.Set("output", "json")
	v.Set("quiet", true)

	settings := effectiveSettings(v)
	if _, ok := settings["hash"]; !ok {
		t.Error("hash section should be kept")
	}
	for _, k := range []string{"output", "quiet"} {
		if _, ok := settings[k]; ok {
			t.Errorf("CLI-only key %q should be dropped", k)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdef", 4); got != "abcd" {
		t.Errorf("truncateString() = %q", got)
	}
	if got := truncateString("abc", 4); got != "abc" {
		t.Errorf("truncateString() = %q", got)
	}
}

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

func newTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := New(filepath.Join(t.TempDir(), "manifests"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func sampleReport() *types.Report {
	a := types.ImageRecord{Path: "/p/a.jpg", Size: 300}
	b := types.ImageRecord{Path: "/p/a copy.jpg", Size: 200}
	return &types.Report{
		Roots:     []string{"/p"},
		Algorithm: types.AlgorithmPHash,
		Threshold: 6,
		FilesSeen: 10,
		Hashed:    9,
		Skipped:   []types.SkippedFile{{Path: "/p/bad.jpg", Reason: "corrupt"}},
		Clustered: 2,
		Sets:      []types.DuplicateSet{{ID: "s1", Members: []types.ImageRecord{a, b}}},
		Scores: map[string][]types.SelectionScore{
			"s1": {
				{Record: a, Score: 1, Action: types.ActionKeep},
				{Record: b, Score: 0.4, Action: types.ActionDelete},
			},
		},
		Elapsed: 1500 * time.Millisecond,
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New() error = nil, want error for empty directory")
	}
}

func TestManifest_LogScan(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	entry, err := m.LogScan(sampleReport())
	if err != nil {
		t.Fatalf("LogScan() error = %v", err)
	}
	if !strings.HasPrefix(entry.ID, "scan-") {
		t.Errorf("ID = %q, want scan- prefix", entry.ID)
	}
	if entry.Summary.SetCount != 1 || entry.Summary.Skipped != 1 || entry.Summary.TotalBytes != 200 {
		t.Errorf("unexpected summary %+v", entry.Summary)
	}
	if len(entry.Sets) != 1 || entry.Sets[0].Keep != "/p/a.jpg" {
		t.Errorf("unexpected sets %+v", entry.Sets)
	}

	got, err := m.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Sets[0].Bytes != 500 {
		t.Errorf("set bytes = %d, want 500", got.Sets[0].Bytes)
	}
}

func TestManifest_LogTrash(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	files := []FileRecord{{Path: "/p/a copy.jpg", Size: 200, SetID: "s1"}, {Path: "/p/b.jpg", Size: 50}}
	failures := []types.ScanError{{Path: "/p/c.jpg", Error: "no usable trash"}}

	entry, err := m.LogTrash(files, failures)
	if err != nil {
		t.Fatalf("LogTrash() error = %v", err)
	}
	if entry.Operation != OpTrash || entry.Summary.TotalFiles != 2 || entry.Summary.TotalBytes != 250 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if len(entry.Failures) != 1 {
		t.Errorf("failures = %d, want 1", len(entry.Failures))
	}
}

func TestManifest_ListNewestFirst(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if _, err := m.LogTrash(nil, nil); err != nil {
			t.Fatalf("LogTrash() error = %v", err)
		}
	}
	// A corrupt file is ignored.
	if err := os.WriteFile(filepath.Join(m.Dir(), "junk.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := m.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() = %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Errorf("entries not sorted newest first")
		}
	}

	limited, _ := m.List(2)
	if len(limited) != 2 {
		t.Errorf("List(2) = %d entries", len(limited))
	}
}

func TestManifest_ListMissingDir(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	entries, err := m.List(0)
	if err != nil || entries == nil || len(entries) != 0 {
		t.Errorf("List() = %v, %v; want empty slice", entries, err)
	}
}

func TestManifest_GetErrors(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	if _, err := m.Get("scan-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get("../etc/passwd"); err == nil {
		t.Error("Get(traversal) error = nil")
	}
}

func TestManifest_Cleanup(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	for _, age := range []int{40, 31, 2} {
		m.now = func() time.Time { return now.AddDate(0, 0, -age) }
		if _, err := m.LogTrash(nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	m.now = func() time.Time { return now }

	removed, err := m.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Cleanup() removed %d, want 2", removed)
	}
	entries, _ := m.List(0)
	if len(entries) != 1 {
		t.Errorf("remaining = %d, want 1", len(entries))
	}
}

func TestManifest_ConcurrentWrites(t *testing.T) {
	t.Parallel()
	m := newTestManifest(t)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.LogTrash(nil, nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	entries, _ := m.List(0)
	if len(entries) != 10 {
		t.Errorf("List() = %d entries, want 10", len(entries))
	}
}

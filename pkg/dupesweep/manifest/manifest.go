package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/selector"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("manifest entry not found")

// Manifest manages operation logging to the filesystem.
type Manifest struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New creates a new Manifest with the given directory.
// The directory is not created until EnsureDir is called.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{dir: dir, now: time.Now}, nil
}

// Dir returns the manifest directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// EnsureDir creates the manifest directory if it does not exist.
func (m *Manifest) EnsureDir() error {
	return os.MkdirAll(m.dir, 0o755)
}

// LogScan records a completed scan.
func (m *Manifest) LogScan(r *types.Report) (*Entry, error) {
	entry := &Entry{
		Operation: OpScan,
		Roots:     r.Roots,
		Summary: Summary{
			Algorithm:   r.Algorithm,
			Threshold:   r.Threshold,
			FilesSeen:   r.FilesSeen,
			Hashed:      r.Hashed,
			Skipped:     len(r.Skipped),
			SetCount:    len(r.Sets),
			TotalFiles:  r.Clustered,
			TotalBytes:  r.ReclaimableBytes(),
			ElapsedSecs: r.Elapsed.Seconds(),
		},
	}
	for _, set := range r.Sets {
		rec := SetRecord{ID: set.ID, Members: set.Paths(), Bytes: set.TotalSize()}
		if keep, ok := selector.Keep(r.Scores[set.ID]); ok {
			rec.Keep = keep.Record.Path
		}
		entry.Sets = append(entry.Sets, rec)
	}
	return m.write(entry)
}

// LogTrash records files moved to the trash and any that failed.
func (m *Manifest) LogTrash(files []FileRecord, failures []types.ScanError) (*Entry, error) {
	var total uint64
	for _, f := range files {
		total += f.Size
	}
	return m.write(&Entry{
		Operation: OpTrash,
		Files:     files,
		Failures:  failures,
		Summary:   Summary{TotalFiles: len(files), TotalBytes: total},
	})
}

func (m *Manifest) write(entry *Entry) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Timestamp = m.now().UTC()
	entry.ID = generateID(entry.Operation, entry.Timestamp)

	if err := m.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write manifest entry: %w", err)
	}
	return entry, nil
}

// writeEntry writes an entry atomically using a temp file and rename.
func (m *Manifest) writeEntry(entry *Entry) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}
	filePath := filepath.Join(m.dir, entry.ID+".json")

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries newest first. If limit is 0 or negative, all
// entries are returned. Unparseable files are ignored.
func (m *Manifest) List(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := m.readEntryFile(f.Name())
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get retrieves a specific entry by ID.
func (m *Manifest) Get(id string) (*Entry, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid entry ID %q", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.readEntryFile(id + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, err
}

func (m *Manifest) readEntryFile(filename string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed. A non-positive retention keeps everything.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := m.readEntryFile(f.Name())
		if err != nil || !entry.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// generateID creates an ID like "scan-2024-06-15T10-30-00-1b4e28ba".
func generateID(op OperationType, ts time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s-%s", op, ts.Format("2006-01-02T15-04-05"), suffix)
}

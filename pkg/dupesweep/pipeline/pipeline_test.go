package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/broadcaster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cache"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/fingerprint"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

type fakeBudget struct {
	mu sync.Mutex
	b  types.ResourceBudget
}

func newFakeBudget(workers int, inFlight uint64) *fakeBudget {
	return &fakeBudget{b: types.ResourceBudget{MaxWorkers: workers, BatchSize: 10, MaxInFlightBytes: inFlight}}
}

func (f *fakeBudget) CurrentBudget() types.ResourceBudget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.b
}

// fakeDecoder reports fixed dimensions and records decode concurrency.
// Paths containing "bad" fail to decode.
type fakeDecoder struct {
	w, h  int
	delay time.Duration

	active  atomic.Int64
	peak    atomic.Int64
	decodes atomic.Int64
}

func (d *fakeDecoder) Probe(path string) (decode.Config, error) {
	return decode.Config{Width: d.w, Height: d.h, Format: "fake"}, nil
}

func (d *fakeDecoder) Decode(path string) (image.Image, error) {
	d.decodes.Add(1)
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(d.delay)
	if strings.Contains(filepath.Base(path), "bad") {
		return nil, &types.DecodeFailure{Path: path, Reason: "corrupt"}
	}
	return image.NewGray(image.Rect(0, 0, d.w, d.h)), nil
}

type fakeHasher struct{}

func (fakeHasher) Compute(img image.Image) (types.Hash, error) {
	return types.Hash{Bits: uint64(img.Bounds().Dx()), Width: types.HashWidth, Algorithm: types.AlgorithmPHash}, nil
}

func (fakeHasher) Algorithm() types.Algorithm { return types.AlgorithmPHash }

type fakeCache struct {
	mu       sync.Mutex
	hits     map[string]*cache.Entry
	recorded []string
}

func (c *fakeCache) Lookup(path string, size uint64, modTime time.Time) (*cache.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.hits[path]
	return e, ok
}

func (c *fakeCache) Record(r types.ImageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorded = append(c.recorded, r.Path)
}

// emptyFiles creates n placeholder files so os.Stat succeeds.
func emptyFiles(t *testing.T, n int, bad ...int) []string {
	t.Helper()
	dir := t.TempDir()
	isBad := make(map[int]bool)
	for _, b := range bad {
		isBad[b] = true
	}
	paths := make([]string, n)
	for i := range n {
		name := fmt.Sprintf("img%03d.png", i)
		if isBad[i] {
			name = fmt.Sprintf("bad%03d.png", i)
		}
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("x"), 0o644))
	}
	return paths
}

func collect(ch <-chan types.ImageRecord) []types.ImageRecord {
	var out []types.ImageRecord
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func writePNG(t *testing.T, path string, seed int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{uint8((x * seed) % 256), uint8((y + seed) % 256), uint8(x ^ y), 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestRun_OneCorruptFileAmongHundred(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 99 {
		p := filepath.Join(dir, fmt.Sprintf("photo%03d.png", i))
		writePNG(t, p, i)
		paths = append(paths, p)
	}
	corrupt := filepath.Join(dir, "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("\x89PNG not really"), 0o644))
	paths = append(paths, corrupt)

	hasher, err := fingerprint.New(types.AlgorithmPHash)
	require.NoError(t, err)

	p := New(Options{Decoder: decode.New(), Hasher: hasher, Budget: newFakeBudget(4, 64*types.MiB)})
	records := collect(p.Run(context.Background(), paths))

	require.Len(t, records, 100)
	var skipped []types.ImageRecord
	for _, r := range records {
		if r.Skipped() {
			skipped = append(skipped, r)
			continue
		}
		assert.Equal(t, uint32(32), r.Width)
		assert.Equal(t, types.AlgorithmPHash, r.Hash.Algorithm)
	}
	require.Len(t, skipped, 1)
	assert.Equal(t, corrupt, skipped[0].Path)

	var failure *types.DecodeFailure
	assert.ErrorAs(t, skipped[0].DecodeError, &failure)

	stats := p.Stats()
	assert.Equal(t, int64(99), stats.Hashed)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(100), stats.Done)
}

func TestRun_RespectsWorkerBudget(t *testing.T) {
	dec := &fakeDecoder{w: 8, h: 8, delay: 5 * time.Millisecond}
	p := New(Options{Decoder: dec, Hasher: fakeHasher{}, Budget: newFakeBudget(3, 0)})

	records := collect(p.Run(context.Background(), emptyFiles(t, 40)))

	assert.Len(t, records, 40)
	assert.LessOrEqual(t, dec.peak.Load(), int64(3))
	assert.LessOrEqual(t, p.Stats().PeakWorkers, int64(3))
}

func TestRun_InFlightBytesBackpressure(t *testing.T) {
	// 1000x1000 RGBA is ~4MB per image; allow two at a time.
	dec := &fakeDecoder{w: 1000, h: 1000, delay: 5 * time.Millisecond}
	perImage := decode.Config{Width: 1000, Height: 1000}.EstimatedBytes()
	p := New(Options{Decoder: dec, Hasher: fakeHasher{}, Budget: newFakeBudget(8, 2*perImage)})

	records := collect(p.Run(context.Background(), emptyFiles(t, 20)))

	assert.Len(t, records, 20)
	assert.LessOrEqual(t, dec.peak.Load(), int64(2))
	assert.LessOrEqual(t, p.Stats().PeakInFlightBytes, 2*perImage)
}

func TestRun_BudgetShrinkDuringRun(t *testing.T) {
	dec := &fakeDecoder{w: 8, h: 8, delay: 2 * time.Millisecond}
	budget := newFakeBudget(6, 0)
	p := New(Options{Decoder: dec, Hasher: fakeHasher{}, Budget: budget})

	ch := p.Run(context.Background(), emptyFiles(t, 60))
	n := 0
	for range ch {
		n++
		if n == 10 {
			budget.mu.Lock()
			budget.b.MaxWorkers = 1
			budget.mu.Unlock()
		}
	}

	assert.Equal(t, 60, n)
	assert.Equal(t, int64(60), p.Stats().Hashed)
}

func TestRun_CacheHitSkipsDecode(t *testing.T) {
	paths := emptyFiles(t, 3)
	c := &fakeCache{hits: map[string]*cache.Entry{
		paths[0]: {Version: cache.Version, Bits: 42, Width: types.HashWidth, Algorithm: string(types.AlgorithmPHash), PixelW: 10, PixelH: 20},
	}}
	dec := &fakeDecoder{w: 8, h: 8}

	p := New(Options{Decoder: dec, Hasher: fakeHasher{}, Budget: newFakeBudget(2, 0), Cache: c})
	records := collect(p.Run(context.Background(), paths))

	require.Len(t, records, 3)
	for _, r := range records {
		if r.Path == paths[0] {
			assert.True(t, r.CacheHit)
			assert.Equal(t, uint64(42), r.Hash.Bits)
			assert.Equal(t, uint32(20), r.Height)
		}
	}
	assert.Equal(t, int64(2), dec.decodes.Load())
	assert.Equal(t, int64(1), p.Stats().CacheHits)
	assert.ElementsMatch(t, paths[1:], c.recorded)
}

func TestRun_MissingFileIsSkipped(t *testing.T) {
	paths := emptyFiles(t, 2)
	require.NoError(t, os.Remove(paths[1]))

	p := New(Options{Decoder: &fakeDecoder{w: 4, h: 4}, Hasher: fakeHasher{}, Budget: newFakeBudget(1, 0)})
	records := collect(p.Run(context.Background(), paths))

	require.Len(t, records, 2)
	for _, r := range records {
		if r.Path == paths[1] {
			assert.True(t, r.Skipped())
			assert.ErrorIs(t, r.DecodeError, os.ErrNotExist)
		}
	}
}

func TestRun_Cancellation(t *testing.T) {
	dec := &fakeDecoder{w: 8, h: 8, delay: 10 * time.Millisecond}
	p := New(Options{Decoder: dec, Hasher: fakeHasher{}, Budget: newFakeBudget(2, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	ch := p.Run(ctx, emptyFiles(t, 100))

	<-ch
	cancel()
	rest := collect(ch)

	assert.Less(t, len(rest)+1, 100)
	assert.Less(t, dec.decodes.Load(), int64(100))
}

func TestRun_PublishesFinalProgress(t *testing.T) {
	b := broadcaster.New()
	defer b.Close()
	sub := b.Subscribe()

	p := New(Options{
		Decoder:  &fakeDecoder{w: 4, h: 4},
		Hasher:   fakeHasher{},
		Budget:   newFakeBudget(2, 0),
		Progress: b,
	})
	collect(p.Run(context.Background(), emptyFiles(t, 5, 2)))

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, types.PhaseHashing, last.Phase)
	assert.Equal(t, int64(5), last.FilesTotal)
	assert.Equal(t, int64(5), last.FilesDone)
	assert.Equal(t, int64(1), last.Skipped)
	assert.InDelta(t, 1.0, last.Fraction(), 1e-9)
	assert.NotEmpty(t, sub.Events)
}

func TestByteGate(t *testing.T) {
	g := newByteGate()
	limit := func() uint64 { return 10 }

	// Oversized reservation is admitted when nothing is in flight.
	require.NoError(t, g.acquire(context.Background(), 50, limit))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := g.acquire(ctx, 1, limit)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	done := make(chan error, 1)
	go func() { done <- g.acquire(context.Background(), 5, limit) }()
	time.Sleep(10 * time.Millisecond)
	g.release(50)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by release")
	}

	inFlight, peak := g.load()
	assert.Equal(t, uint64(5), inFlight)
	assert.Equal(t, uint64(50), peak)
}

package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

func record(path string, size uint64, mod time.Time, bits uint64) types.ImageRecord {
	return types.ImageRecord{
		Path:    path,
		Size:    size,
		ModTime: mod,
		Width:   640,
		Height:  480,
		Hash:    types.Hash{Bits: bits, Width: types.HashWidth, Algorithm: types.AlgorithmPHash},
	}
}

func TestStore_GetPutDelete(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	mod := time.Unix(1_700_000_000, 42)
	entry := NewEntry(record("/p/a.jpg", 10, mod, 0xabc))

	require.NoError(t, store.Put(types.AlgorithmPHash, "/p/a.jpg", entry))

	got, err := store.Get(types.AlgorithmPHash, "/p/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	_, err = store.Get(types.AlgorithmDHash, "/p/a.jpg")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Delete(types.AlgorithmPHash, "/p/a.jpg"))
	_, err = store.Get(types.AlgorithmPHash, "/p/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CountAndClear(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	mod := time.Now()
	require.NoError(t, store.PutBatch(types.AlgorithmPHash, map[string]*Entry{
		"/a": NewEntry(record("/a", 1, mod, 1)),
		"/b": NewEntry(record("/b", 1, mod, 2)),
	}))
	require.NoError(t, store.Put(types.AlgorithmDHash, "/a", NewEntry(record("/a", 1, mod, 3))))

	counts, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, map[types.Algorithm]int{types.AlgorithmPHash: 2, types.AlgorithmDHash: 1}, counts)

	require.NoError(t, store.Clear())
	counts, err = store.Count()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestHashCache_LookupValidatesMetadata(t *testing.T) {
	c, err := Open(t.TempDir(), types.AlgorithmPHash)
	require.NoError(t, err)
	defer c.Close()

	mod := time.Unix(1_700_000_000, 0)
	c.Record(record("/img/a.png", 2048, mod, 0xfeed))

	// Served from the pending batch before any flush.
	e, ok := c.Lookup("/img/a.png", 2048, mod)
	require.True(t, ok)
	assert.Equal(t, uint64(0xfeed), e.Hash().Bits)

	require.NoError(t, c.Flush())

	e, ok = c.Lookup("/img/a.png", 2048, mod)
	require.True(t, ok)
	assert.Equal(t, uint32(640), e.PixelW)

	_, ok = c.Lookup("/img/a.png", 4096, mod)
	assert.False(t, ok, "size changed")

	_, ok = c.Lookup("/img/a.png", 2048, mod.Add(time.Second))
	assert.False(t, ok, "mtime changed")

	_, ok = c.Lookup("/img/missing.png", 1, mod)
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(3), misses)
}

func TestHashCache_IgnoresSkippedRecords(t *testing.T) {
	c, err := Open(t.TempDir(), types.AlgorithmPHash)
	require.NoError(t, err)
	defer c.Close()

	r := record("/bad.jpg", 1, time.Now(), 0)
	r.DecodeError = errors.New("corrupt")
	c.Record(r)

	_, ok := c.Lookup("/bad.jpg", 1, r.ModTime)
	assert.False(t, ok)
}

func TestHashCache_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	mod := time.Unix(1_600_000_000, 0)

	c, err := Open(dir, types.AlgorithmDCT)
	require.NoError(t, err)
	r := record("/x.jpg", 99, mod, 7)
	r.Hash.Algorithm = types.AlgorithmDCT
	c.Record(r)
	require.NoError(t, c.Close())

	c, err = Open(dir, types.AlgorithmDCT)
	require.NoError(t, err)
	defer c.Close()

	e, ok := c.Lookup("/x.jpg", 99, mod)
	require.True(t, ok)
	assert.Equal(t, types.AlgorithmDCT, e.Hash().Algorithm)
}

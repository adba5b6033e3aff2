// Package cache persists perceptual hashes between scans so unchanged files
// are not decoded again. Entries are keyed by algorithm and path and are
// trusted only while the file's size and modification time are unchanged.
package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("cache")

// flushThreshold is the number of pending entries that triggers a write.
const flushThreshold = 512

// HashCache is a write-behind cache over a Store for one algorithm.
// It is safe for concurrent use by hashing workers.
type HashCache struct {
	store     *Store
	algorithm types.Algorithm

	mu      sync.Mutex
	pending map[string]*Entry

	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens the store in dir (creating it) and returns a cache for algorithm.
func Open(dir string, algorithm types.Algorithm) (*HashCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	store, err := OpenStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return New(store, algorithm), nil
}

// New wraps an open store.
func New(store *Store, algorithm types.Algorithm) *HashCache {
	return &HashCache{
		store:     store,
		algorithm: algorithm,
		pending:   make(map[string]*Entry),
	}
}

// Lookup returns the cached entry for path when it is still valid.
func (c *HashCache) Lookup(path string, size uint64, modTime time.Time) (*Entry, bool) {
	c.mu.Lock()
	entry, ok := c.pending[path]
	c.mu.Unlock()

	if !ok {
		var err error
		entry, err = c.store.Get(c.algorithm, path)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				logger.Warn("cache read failed", "path", path, "error", err)
			}
			c.misses.Add(1)
			return nil, false
		}
	}

	if !entry.Matches(size, modTime) || entry.Algorithm != string(c.algorithm) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry, true
}

// Record queues a successfully hashed record for persistence.
func (c *HashCache) Record(r types.ImageRecord) {
	if r.Skipped() || r.Hash.IsZero() {
		return
	}

	c.mu.Lock()
	c.pending[r.Path] = NewEntry(r)
	full := len(c.pending) >= flushThreshold
	c.mu.Unlock()

	if full {
		if err := c.Flush(); err != nil {
			logger.Warn("cache flush failed", "error", err)
		}
	}
}

// Flush writes pending entries.
func (c *HashCache) Flush() error {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[string]*Entry)
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := c.store.PutBatch(c.algorithm, batch); err != nil {
		return fmt.Errorf("writing %d cache entries: %w", len(batch), err)
	}
	logger.Debug("cache flushed", "entries", len(batch))
	return nil
}

// Stats returns hit and miss counts since the cache was opened.
func (c *HashCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Store returns the underlying store.
func (c *HashCache) Store() *Store {
	return c.store
}

// Close flushes and closes the store.
func (c *HashCache) Close() error {
	flushErr := c.Flush()
	closeErr := c.store.Close()
	return errors.Join(flushErr, closeErr)
}

package cache

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// Version is bumped when the entry encoding changes.
const Version = 1

// KeySeparator separates the algorithm from the path in keys.
const KeySeparator = '\x00'

// Entry is a cached hash. It is valid only while the file's size and
// modification time still match.
type Entry struct {
	Version   int
	Size      uint64
	ModTime   int64 // UnixNano
	Bits      uint64
	Width     uint8
	Algorithm string
	PixelW    uint32
	PixelH    uint32
}

// NewEntry captures a successfully hashed record.
func NewEntry(r types.ImageRecord) *Entry {
	return &Entry{
		Version:   Version,
		Size:      r.Size,
		ModTime:   r.ModTime.UnixNano(),
		Bits:      r.Hash.Bits,
		Width:     r.Hash.Width,
		Algorithm: string(r.Hash.Algorithm),
		PixelW:    r.Width,
		PixelH:    r.Height,
	}
}

// Matches reports whether the entry still describes a file with this size
// and modification time.
func (e *Entry) Matches(size uint64, modTime time.Time) bool {
	return e.Version == Version && e.Size == size && e.ModTime == modTime.UnixNano()
}

// Hash returns the cached hash.
func (e *Entry) Hash() types.Hash {
	return types.Hash{Bits: e.Bits, Width: e.Width, Algorithm: types.Algorithm(e.Algorithm)}
}

// Encode serializes the entry with gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the entry.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey builds <algorithm>\x00<path>.
func MakeKey(algorithm types.Algorithm, path string) []byte {
	return append(MakeKeyPrefix(algorithm), path...)
}

// MakeKeyPrefix returns the prefix shared by every key of an algorithm.
func MakeKeyPrefix(algorithm types.Algorithm) []byte {
	return []byte(string(algorithm) + string(KeySeparator))
}

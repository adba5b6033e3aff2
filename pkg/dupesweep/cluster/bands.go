package cluster

import "github.com/jamesainslie/dupesweep/pkg/dupesweep/types"

// bandIndex implements multi-index hashing. The hash is split into
// threshold+1 disjoint bands; by pigeonhole two hashes within threshold
// agree exactly on at least one band. Candidates sharing a band are
// verified with the full distance.
type bandIndex struct {
	width     int
	threshold int
	bands     []band
	tables    []map[uint64][]int
	hashes    map[int]types.Hash
}

type band struct {
	shift uint
	mask  uint64
}

func newBandIndex(width, threshold int) *bandIndex {
	n := min(threshold+1, width)
	idx := &bandIndex{
		width:     width,
		threshold: threshold,
		bands:     make([]band, n),
		tables:    make([]map[uint64][]int, n),
		hashes:    make(map[int]types.Hash),
	}

	// Spread width bits over n bands, the first width%n bands one bit wider.
	base, extra := width/n, width%n
	shift := 0
	for i := range n {
		size := base
		if i < extra {
			size++
		}
		idx.bands[i] = band{shift: uint(shift), mask: lowBits(size)}
		idx.tables[i] = make(map[uint64][]int)
		shift += size
	}
	return idx
}

func lowBits(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

func (b band) key(h types.Hash) uint64 {
	return (h.Bits >> b.shift) & b.mask
}

func (idx *bandIndex) add(id int, h types.Hash) {
	idx.hashes[id] = h
	for i, b := range idx.bands {
		k := b.key(h)
		idx.tables[i][k] = append(idx.tables[i][k], id)
	}
}

func (idx *bandIndex) near(h types.Hash, fn func(id int)) {
	seen := make(map[int]struct{})
	for i, b := range idx.bands {
		for _, id := range idx.tables[i][b.key(h)] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if idx.hashes[id].Distance(h) <= idx.threshold {
				fn(id)
			}
		}
	}
}

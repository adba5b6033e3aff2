package cluster

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(path string, bits uint64, age int) types.ImageRecord {
	return types.ImageRecord{
		Path:    path,
		Hash:    types.Hash{Bits: bits, Width: types.HashWidth, Algorithm: types.AlgorithmPHash},
		Size:    1000,
		ModTime: epoch.Add(time.Duration(age) * time.Hour),
	}
}

func paths(s types.DuplicateSet) []string { return s.Paths() }

func TestCluster_TransitiveChain(t *testing.T) {
	// A-B = 2, B-C = 3, A-C = 5. At threshold 3 A and C are only linked via B.
	a := rec("/a.jpg", 0b0000_0000, 0)
	b := rec("/b.jpg", 0b0000_0011, 1)
	c := rec("/c.jpg", 0b0001_1111, 2)
	require.Equal(t, 2, a.Hash.Distance(b.Hash))
	require.Equal(t, 3, b.Hash.Distance(c.Hash))
	require.Equal(t, 5, a.Hash.Distance(c.Hash))

	for _, idx := range Indexes {
		t.Run(string(idx), func(t *testing.T) {
			res, err := Cluster([]types.ImageRecord{c, a, b}, 3, Options{Index: idx})
			require.NoError(t, err)
			require.Len(t, res.Sets, 1)
			assert.Equal(t, []string{"/a.jpg", "/b.jpg", "/c.jpg"}, paths(res.Sets[0]))
			assert.Equal(t, 3, res.Clustered)
		})
	}
}

func TestCluster_ThresholdSeparates(t *testing.T) {
	a := rec("/a.jpg", 0, 0)
	b := rec("/b.jpg", 0b111, 1)    // distance 3 from a
	c := rec("/c.jpg", ^uint64(0), 2) // far from both

	tests := []struct {
		threshold int
		wantSets  int
	}{
		{threshold: 2, wantSets: 0},
		{threshold: 3, wantSets: 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("threshold=%d", tt.threshold), func(t *testing.T) {
			res, err := Cluster([]types.ImageRecord{a, b, c}, tt.threshold, Options{})
			require.NoError(t, err)
			assert.Len(t, res.Sets, tt.wantSets)
		})
	}
}

func TestCluster_NoSingletonsAndOrdering(t *testing.T) {
	records := []types.ImageRecord{
		rec("/new1.jpg", 0xff00, 10),
		rec("/new2.jpg", 0xff01, 11),
		rec("/old1.jpg", 0x00ff_0000_0000, 1),
		rec("/old2.jpg", 0x00ff_0000_0001, 0),
		rec("/lonely.jpg", 0xf0f0_f0f0_f0f0_f0f0, 5),
	}

	res, err := Cluster(records, 2, Options{})
	require.NoError(t, err)
	require.Len(t, res.Sets, 2)

	// Oldest set first; members oldest first.
	assert.Equal(t, []string{"/old2.jpg", "/old1.jpg"}, paths(res.Sets[0]))
	assert.Equal(t, []string{"/new1.jpg", "/new2.jpg"}, paths(res.Sets[1]))
	for _, s := range res.Sets {
		assert.GreaterOrEqual(t, len(s.Members), 2)
	}
}

func TestCluster_OrderInsensitive(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var records []types.ImageRecord
	for g := range 20 {
		base := rng.Uint64()
		for m := range 1 + g%4 {
			bits := base ^ (uint64(1) << uint(rng.IntN(64))) ^ (uint64(1) << uint(m))
			records = append(records, rec(fmt.Sprintf("/g%02d/m%d.jpg", g, m), bits, rng.IntN(1000)))
		}
	}

	want, err := Cluster(records, 4, Options{})
	require.NoError(t, err)

	for i := range 5 {
		shuffled := append([]types.ImageRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Cluster(shuffled, 4, Options{})
		require.NoError(t, err, "shuffle %d", i)
		assert.Equal(t, want.Sets, got.Sets, "shuffle %d", i)
	}
}

func TestCluster_IndexesAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))
	var records []types.ImageRecord
	for i := range 400 {
		bits := rng.Uint64()
		if i%3 != 0 && len(records) > 0 {
			// Near copy of an earlier record.
			src := records[rng.IntN(len(records))].Hash.Bits
			bits = src ^ (uint64(1) << uint(rng.IntN(64))) ^ (uint64(1) << uint(rng.IntN(64)))
		}
		records = append(records, rec(fmt.Sprintf("/img/%04d.jpg", i), bits, i))
	}

	for _, threshold := range []int{0, 2, 6, 10} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			bk, err := Cluster(records, threshold, Options{Index: IndexBKTree})
			require.NoError(t, err)
			bands, err := Cluster(records, threshold, Options{Index: IndexBands})
			require.NoError(t, err)
			assert.Equal(t, bk.Sets, bands.Sets)
		})
	}
}

func TestCluster_SkipsFailedRecords(t *testing.T) {
	bad := types.ImageRecord{Path: "/bad.jpg", DecodeError: &types.DecodeFailure{Path: "/bad.jpg", Reason: "corrupt"}}

	res, err := Cluster([]types.ImageRecord{rec("/a.jpg", 1, 0), rec("/b.jpg", 1, 1), bad}, 1, Options{})
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "/bad.jpg", res.Skipped[0].Path)
	assert.Contains(t, res.Skipped[0].Reason, "corrupt")
	assert.Len(t, res.Sets, 1)
}

func TestCluster_MismatchedHashes(t *testing.T) {
	odd := rec("/odd.jpg", 1, 0)
	odd.Hash.Algorithm = types.AlgorithmDHash

	_, err := Cluster([]types.ImageRecord{rec("/a.jpg", 1, 0), odd}, 2, Options{})
	var idxErr *types.ClusteringIndexError
	require.True(t, errors.As(err, &idxErr))
	assert.Equal(t, "/odd.jpg", idxErr.Path)

	narrow := rec("/narrow.jpg", 1, 0)
	narrow.Hash.Width = 32
	_, err = Cluster([]types.ImageRecord{rec("/a.jpg", 1, 0), narrow}, 2, Options{})
	assert.ErrorAs(t, err, &idxErr)
}

func TestCluster_InvalidOptions(t *testing.T) {
	var cfgErr *types.ConfigurationError

	_, err := Cluster(nil, -1, Options{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "hash.threshold", cfgErr.Field)

	_, err = Cluster([]types.ImageRecord{rec("/a", 0, 0)}, 65, Options{})
	require.ErrorAs(t, err, &cfgErr)

	_, err = Cluster(nil, 3, Options{Index: "kdtree"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "cluster.index", cfgErr.Field)
}

func TestSetID_StableAndOrderFree(t *testing.T) {
	a, b := rec("/a", 0, 0), rec("/b", 0, 1)
	id := SetID([]types.ImageRecord{a, b})
	assert.Equal(t, id, SetID([]types.ImageRecord{b, a}))
	assert.NotEqual(t, id, SetID([]types.ImageRecord{a, rec("/c", 0, 0)}))
	assert.Len(t, id, 36)
}

func TestRepresentativeHash(t *testing.T) {
	members := []types.ImageRecord{
		rec("/1", 0b1011, 0),
		rec("/2", 0b0011, 0),
		rec("/3", 0b1001, 0),
	}
	assert.Equal(t, uint64(0b1011), RepresentativeHash(members).Bits)

	// A 1-1 split resolves to 0.
	tie := []types.ImageRecord{rec("/1", 0b01, 0), rec("/2", 0b10, 0)}
	assert.Equal(t, uint64(0), RepresentativeHash(tie).Bits)
}

func TestBandLayoutCoversWidth(t *testing.T) {
	idx := newBandIndex(64, 6)
	require.Len(t, idx.bands, 7)

	var covered uint64
	for _, b := range idx.bands {
		m := b.mask << b.shift
		assert.Zero(t, covered&m, "bands overlap")
		covered |= m
	}
	assert.Equal(t, ^uint64(0), covered)
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(2, 3)
	uf.union(1, 3)

	assert.Equal(t, uf.find(0), uf.find(2))
	assert.NotEqual(t, uf.find(0), uf.find(4))
	assert.Equal(t, uf.find(5), 5)
}

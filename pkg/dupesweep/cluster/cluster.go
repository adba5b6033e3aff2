// Package cluster groups perceptually similar images into duplicate sets.
//
// Two hashes are linked when their Hamming distance is at most the
// threshold, and duplicate sets are the connected components of that graph.
// Membership is therefore transitive: A and C share a set whenever a chain
// A-B-C of links exists, even if A and C are farther apart than the
// threshold. Results do not depend on the order records arrive in.
package cluster

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("cluster")

// Index selects the neighbour index used to find candidate pairs.
type Index string

// Available indexes.
const (
	// IndexBKTree prunes with the triangle inequality; good at any threshold.
	IndexBKTree Index = "bktree"

	// IndexBands uses exact-match lookups on threshold+1 hash bands; fastest
	// at small thresholds.
	IndexBands Index = "bands"
)

// Indexes lists the valid index names.
var Indexes = []Index{IndexBKTree, IndexBands}

// Valid reports whether i names a known index.
func (i Index) Valid() bool {
	return slices.Contains(Indexes, i)
}

// DefaultThreshold is the default maximum Hamming distance for 64-bit hashes.
const DefaultThreshold = 6

// setNamespace scopes set IDs so they never collide with other UUIDv5 users.
var setNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jamesainslie/dupesweep/duplicate-set"))

// Options configures clustering.
type Options struct {
	Index Index
}

// Result is the output of Cluster.
type Result struct {
	// Sets holds components of two or more members, ordered by the
	// modification time of their oldest member, then path.
	Sets []types.DuplicateSet

	// Skipped lists records excluded because they carry no hash.
	Skipped []types.SkippedFile

	// Clustered counts the records that ended up in some set.
	Clustered int
}

type neighbourIndex interface {
	add(id int, h types.Hash)
	near(h types.Hash, fn func(id int))
}

// Cluster groups records whose hashes are within threshold of each other,
// directly or through a chain. Records with a decode error are reported as
// skipped. A hash whose width or algorithm differs from the rest aborts with
// a *types.ClusteringIndexError.
func Cluster(records []types.ImageRecord, threshold int, opts Options) (Result, error) {
	if opts.Index == "" {
		opts.Index = IndexBKTree
	}
	if !opts.Index.Valid() {
		return Result{}, &types.ConfigurationError{Field: "cluster.index", Value: opts.Index, Reason: "unknown index"}
	}
	if threshold < 0 {
		return Result{}, &types.ConfigurationError{Field: "hash.threshold", Value: threshold, Reason: "must not be negative"}
	}

	var res Result
	hashed := make([]types.ImageRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Skipped() || r.Hash.IsZero() {
			reason := "no hash"
			if r.DecodeError != nil {
				reason = r.DecodeError.Error()
			}
			res.Skipped = append(res.Skipped, types.SkippedFile{Path: r.Path, Reason: reason})
			continue
		}
		if _, dup := seen[r.Path]; dup {
			continue
		}
		seen[r.Path] = struct{}{}
		hashed = append(hashed, r)
	}
	slices.SortFunc(res.Skipped, func(a, b types.SkippedFile) int { return cmp.Compare(a.Path, b.Path) })

	if len(hashed) == 0 {
		return res, nil
	}

	// Insertion order is fixed by path so union-find roots are reproducible.
	slices.SortFunc(hashed, func(a, b types.ImageRecord) int { return cmp.Compare(a.Path, b.Path) })

	ref := hashed[0].Hash
	width := int(ref.Width)
	if threshold > width {
		return Result{}, &types.ConfigurationError{
			Field:  "hash.threshold",
			Value:  threshold,
			Reason: fmt.Sprintf("must not exceed the %d-bit hash width", width),
		}
	}
	for _, r := range hashed[1:] {
		if !r.Hash.Compatible(ref) {
			return Result{}, &types.ClusteringIndexError{
				Path: r.Path,
				Reason: fmt.Sprintf("hash %s/%d bits does not match %s/%d bits",
					r.Hash.Algorithm, r.Hash.Width, ref.Algorithm, ref.Width),
			}
		}
	}

	idx := newIndex(opts.Index, width, threshold)
	uf := newUnionFind(len(hashed))
	for i, r := range hashed {
		idx.near(r.Hash, func(j int) { uf.union(i, j) })
		idx.add(i, r.Hash)
	}

	groups := make(map[int][]types.ImageRecord)
	for i, r := range hashed {
		root := uf.find(i)
		groups[root] = append(groups[root], r)
	}

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		res.Sets = append(res.Sets, newSet(members))
		res.Clustered += len(members)
	}
	slices.SortFunc(res.Sets, func(a, b types.DuplicateSet) int {
		return compareRecords(a.Members[0], b.Members[0])
	})

	logger.Info("clustering complete",
		"records", len(hashed),
		"sets", len(res.Sets),
		"clustered", res.Clustered,
		"threshold", threshold,
		"index", opts.Index)
	return res, nil
}

func newIndex(kind Index, width, threshold int) neighbourIndex {
	if kind == IndexBands && threshold < width {
		return newBandIndex(width, threshold)
	}
	return newBKTree(threshold)
}

// compareRecords orders by modification time, then path.
func compareRecords(a, b types.ImageRecord) int {
	if c := a.ModTime.Compare(b.ModTime); c != 0 {
		return c
	}
	return cmp.Compare(a.Path, b.Path)
}

func newSet(members []types.ImageRecord) types.DuplicateSet {
	slices.SortFunc(members, compareRecords)
	return types.DuplicateSet{
		ID:                 SetID(members),
		Members:            members,
		RepresentativeHash: RepresentativeHash(members),
	}
}

// SetID derives a stable identifier from the member paths, independent of
// member order.
func SetID(members []types.ImageRecord) string {
	paths := make([]string, len(members))
	for i, m := range members {
		paths[i] = m.Path
	}
	slices.Sort(paths)
	return uuid.NewSHA1(setNamespace, []byte(strings.Join(paths, "\x00"))).String()
}

// RepresentativeHash is the per-bit majority of the member hashes. A bit
// set in exactly half the members resolves to 0.
func RepresentativeHash(members []types.ImageRecord) types.Hash {
	if len(members) == 0 {
		return types.Hash{}
	}
	ref := members[0].Hash
	out := types.Hash{Width: ref.Width, Algorithm: ref.Algorithm}
	for bit := range int(ref.Width) {
		ones := 0
		for _, m := range members {
			if m.Hash.Bit(bit) {
				ones++
			}
		}
		if 2*ones > len(members) {
			out.Bits |= 1 << uint(bit)
		}
	}
	return out
}

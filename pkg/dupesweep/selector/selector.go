// Package selector ranks the members of a duplicate set and recommends
// which copy to keep. Recommendations are advisory; nothing is removed
// without confirmation.
package selector

import (
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// tieEpsilon separates tied runners-up from the single top score.
const tieEpsilon = 1e-9

// Score ranks every member of set, in member order. Scores are normalized
// so the best member has exactly 1.0, and exactly one member does: ties go
// to the earliest modification time, then the lexically first path.
// The best member is marked keep and every other member delete.
func Score(set types.DuplicateSet, cfg Config) []types.SelectionScore {
	members := set.Members
	if len(members) == 0 {
		return nil
	}
	if cfg.SizeCap < 1 {
		cfg.SizeCap = DefaultSizeCap
	}

	quality := qualitySignals(members)
	size := sizeSignals(members, cfg.SizeCap)
	filename := filenameSignals(members, cfg.Patterns)

	w := cfg.Weights
	scores := make([]types.SelectionScore, len(members))
	var top float64
	for i, m := range members {
		s := w.Quality*quality[i] + w.Size*size[i] + w.Filename*filename[i]
		scores[i] = types.SelectionScore{
			Record: m,
			Score:  s,
			Signals: types.Signals{
				Quality:  quality[i],
				Size:     size[i],
				Filename: filename[i],
			},
		}
		top = max(top, s)
	}

	for i := range scores {
		if top > 0 {
			scores[i].Score /= top
		} else {
			scores[i].Score = 1
		}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if better(scores[i], scores[best]) {
			best = i
		}
	}

	for i := range scores {
		if i == best {
			scores[i].Score = 1
			scores[i].Action = types.ActionKeep
			continue
		}
		scores[i].Score = min(scores[i].Score, 1-tieEpsilon)
		scores[i].Action = types.ActionDelete
	}
	return scores
}

func better(a, b types.SelectionScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := a.Record.ModTime.Compare(b.Record.ModTime); c != 0 {
		return c < 0
	}
	return a.Record.Path < b.Record.Path
}

// Keep returns the recommended member.
func Keep(scores []types.SelectionScore) (types.SelectionScore, bool) {
	for _, s := range scores {
		if s.Action == types.ActionKeep {
			return s, true
		}
	}
	return types.SelectionScore{}, false
}

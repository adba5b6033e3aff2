package selector

import (
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var (
	resolutionRe = regexp.MustCompile(`(\d{2,5})[xX](\d{2,5})`)

	// copyIndicators each count once per filename.
	copyIndicators = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|[^a-z])copy(?:[^a-z]|$)`),
		regexp.MustCompile(`(?i)(?:^|[^a-z])dup(?:[^a-z]|$)`),
		regexp.MustCompile(`(?i)(?:^|[^a-z])duplicate(?:[^a-z]|$)`),
		regexp.MustCompile(`(?i)(?:^|[^a-z])backup(?:[^a-z]|$)`),
		regexp.MustCompile(`\(\d+\)`),
		// A lone trailing digit after a separator, as in "photo_2". Dates
		// and zero-padded counters like "IMG_07" end in a digit group and
		// do not count.
		regexp.MustCompile(`(?:^|\D)[ _-][1-9]$`),
	}

	// qualityMarkers are checked in order; the first tier found applies.
	qualityMarkers = []struct {
		re    *regexp.Regexp
		bonus float64
	}{
		{regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:4k|uhd|2160p?)(?:[^a-z0-9]|$)`), 0.40},
		{regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:hd|1080p?)(?:[^a-z0-9]|$)`), 0.30},
		{regexp.MustCompile(`(?i)(?:^|[^a-z0-9])720p?(?:[^a-z0-9]|$)`), 0.15},
		{regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:low|480p?|lq)(?:[^a-z0-9]|$)`), -0.20},
	}
)

const (
	copyPenalty = 0.5

	// nearlyEqualSpread is the relative size range under which size
	// differences are treated as noise.
	nearlyEqualSpread = 0.05
	sizeDamping       = 0.375

	patternScale = 1.2
)

// stem returns the base name without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// pixels returns the record's pixel count, falling back to a WxH token in
// the filename.
func pixels(r types.ImageRecord) uint64 {
	if p := r.Pixels(); p > 0 {
		return p
	}
	m := resolutionRe.FindStringSubmatch(stem(r.Path))
	if m == nil {
		return 0
	}
	w, _ := strconv.ParseUint(m[1], 10, 32)
	h, _ := strconv.ParseUint(m[2], 10, 32)
	return w * h
}

func qualitySignals(members []types.ImageRecord) []float64 {
	px := make([]uint64, len(members))
	var maxPx uint64
	for i, m := range members {
		px[i] = pixels(m)
		maxPx = max(maxPx, px[i])
	}

	out := make([]float64, len(members))
	for i, m := range members {
		var q float64
		if maxPx > 0 {
			q = float64(px[i]) / float64(maxPx)
		}
		q += markerBonus(stem(m.Path))
		out[i] = clamp01(q)
	}
	return out
}

func markerBonus(name string) float64 {
	for _, qm := range qualityMarkers {
		if qm.re.MatchString(name) {
			return qm.bonus
		}
	}
	return 0
}

func sizeSignals(members []types.ImageRecord, sizeCap float64) []float64 {
	sizes := make([]uint64, len(members))
	for i, m := range members {
		sizes[i] = m.Size
	}
	sorted := slices.Clone(sizes)
	slices.Sort(sorted)

	median := medianOf(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]

	damping := 1.0
	if hi > 0 && float64(hi-lo)/float64(hi) < nearlyEqualSpread {
		damping = sizeDamping
	}

	out := make([]float64, len(members))
	for i, s := range sizes {
		if median <= 0 {
			continue
		}
		ratio := min(float64(s)/median, sizeCap)
		out[i] = ratio / sizeCap * damping
	}
	return out
}

func medianOf(sorted []uint64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}

// copyIndicatorCount counts distinct copy indicators in a filename stem.
func copyIndicatorCount(name string) int {
	n := 0
	for _, re := range copyIndicators {
		if re.MatchString(name) {
			n++
		}
	}
	return n
}

func filenameSignals(members []types.ImageRecord, patterns []Pattern) []float64 {
	out := make([]float64, len(members))
	var top float64
	for i, m := range members {
		name := stem(m.Path)
		f := max(1-copyPenalty*float64(copyIndicatorCount(name)), 0)
		for _, p := range patterns {
			if strings.Contains(name, p.Pattern) {
				f += p.Weight / 100 * patternScale
			}
		}
		out[i] = f
		top = max(top, f)
	}

	// Preferences can lift a name above 1; rescale so the set stays in [0,1].
	if top > 1 {
		for i := range out {
			out[i] /= top
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

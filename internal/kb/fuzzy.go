package kb

// The index scorer is a weighted, normalized edit distance rather than a
// search-library relevance score: the coverage tiers below are fixed
// absolute cutoffs, so the per-page score has to be a distance in [0,1]
// that does not drift with index size.
//
// Per field: the infix edit distance between the candidate phrase and the
// field text (deletions before and after the matched region are free, which
// makes the metric location-independent), normalized by the phrase length.
// A verbatim occurrence inside a longer field picks up a small length
// penalty so an exact field match always ranks first. Distances above
// MatchThreshold count as no match.
//
// Per page: the product of the field distances raised to the field weights
// (weights sum to 1). Unmatched fields contribute a neutral factor of 1;
// matched fields pull the product down, and a zero distance is floored at
// a small epsilon so the product stays meaningful.

const (
	// MatchThreshold is the maximum per-field distance still treated as a
	// match. Empirically chosen upstream; do not re-derive.
	MatchThreshold = 0.45

	// Coverage tier cutoffs over the best page score.
	HighCoverageThreshold    = 0.22
	PartialCoverageThreshold = 0.38

	minMatchLength = 2
	exactEpsilon   = 0.001
	lengthPenalty  = 0.1

	// maxErrorBudget bounds the absolute edit distance of a match. The
	// proportional threshold alone would let very long phrases match
	// unrelated text.
	maxErrorBudget = 6
)

// fieldDistance scores pattern against a single field text. Both arguments
// must already be normalized. 0 means an exact field match, 1 means no
// match.
func fieldDistance(pattern, text string) float64 {
	plen := len([]rune(pattern))
	if plen < minMatchLength || text == "" {
		return 1
	}
	if pattern == text {
		return 0
	}

	dist := infixEditDistance(pattern, text)
	if dist > maxErrorBudget {
		return 1
	}
	raw := float64(dist) / float64(plen)
	if raw > MatchThreshold {
		return 1
	}

	// Penalize matches buried in long fields so "ADHD" prefers the ADHD
	// page title over a passing mention elsewhere.
	ratio := float64(plen) / float64(len([]rune(text)))
	if ratio > 1 {
		ratio = 1
	}
	d := raw + lengthPenalty*(1-ratio)
	if d < exactEpsilon {
		d = exactEpsilon
	}
	if d > MatchThreshold {
		return 1
	}
	return d
}

// bestDistance scores pattern against a multi-valued field.
func bestDistance(pattern string, values []string) float64 {
	best := 1.0
	for _, v := range values {
		if d := fieldDistance(pattern, v); d < best {
			best = d
		}
	}
	return best
}

// infixEditDistance is the Levenshtein distance between pattern and the
// best-matching substring of text. The first row of the usual edit matrix
// is zero so the match may start anywhere, and the result is the minimum of
// the final row so it may end anywhere.
func infixEditDistance(pattern, text string) int {
	p := []rune(pattern)
	t := []rune(text)

	prev := make([]int, len(t)+1)
	cur := make([]int, len(t)+1)

	for i := 1; i <= len(p); i++ {
		cur[0] = i
		for j := 1; j <= len(t); j++ {
			cost := 1
			if p[i-1] == t[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	best := prev[0]
	for _, v := range prev[1:] {
		if v < best {
			best = v
		}
	}
	return best
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func normalizeAll(values []string, normalize func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

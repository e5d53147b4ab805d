package search

import (
	"sort"
	"strings"
)

// earlyPositionWindow is the leading fraction of a chunk within which a
// match earns a position bonus.
const earlyPositionWindow = 0.3

// exactWordThreshold is the fraction of query words that must appear in
// a chunk for a multi-word query to earn the exact bonus without a
// literal substring hit.
const exactWordThreshold = 0.7

// candidate is one merged chunk with its raw per-source scores.
type candidate struct {
	chunkID  string
	path     string
	cosine   float64
	bm25     float64
	inVector bool
	inLex    bool
}

// fusionWeights are the configured signal weights.
type fusionWeights struct {
	bm25     float64
	cosine   float64
	exact    float64
	earlyPos float64
}

// scored is a candidate with its computed breakdown.
type scored struct {
	chunkID   string
	path      string
	text      string
	breakdown ScoreBreakdown
}

// mergeCandidates unions the two candidate sets by chunk id, capped at
// mergeK entries. When truncating, candidates with the highest single
// normalized score survive, so a strong one-source hit is never pushed
// out by weak two-source hits. Scores are min-max normalized per source
// before the union, which makes the merge independent of input order.
func mergeCandidates(vecScores, lexScores map[string]float64, paths map[string]string, mergeK int) []candidate {
	vecNorm := normalizeScores(vecScores)
	lexNorm := normalizeScores(lexScores)

	byID := make(map[string]*candidate, len(vecNorm)+len(lexNorm))
	for id, s := range vecNorm {
		byID[id] = &candidate{chunkID: id, path: paths[id], cosine: s, inVector: true}
	}
	for id, s := range lexNorm {
		if c, ok := byID[id]; ok {
			c.bm25 = s
			c.inLex = true
			continue
		}
		byID[id] = &candidate{chunkID: id, path: paths[id], bm25: s, inLex: true}
	}

	merged := make([]candidate, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, *c)
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := bestSignal(merged[i]), bestSignal(merged[j])
		if a != b {
			return a > b
		}
		return merged[i].chunkID < merged[j].chunkID
	})

	if mergeK > 0 && len(merged) > mergeK {
		merged = merged[:mergeK]
	}
	return merged
}

func bestSignal(c candidate) float64 {
	if c.cosine > c.bm25 {
		return c.cosine
	}
	return c.bm25
}

// normalizeScores maps raw scores onto [0,1] with min-max
// normalization. A uniform set is returned unchanged, matching the
// established retriever behavior.
func normalizeScores(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return map[string]float64{}
	}

	first := true
	var minScore, maxScore float64
	for _, s := range scores {
		if first {
			minScore, maxScore = s, s
			first = false
			continue
		}
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make(map[string]float64, len(scores))
	if maxScore == minScore {
		for id, s := range scores {
			out[id] = s
		}
		return out
	}
	for id, s := range scores {
		out[id] = (s - minScore) / (maxScore - minScore)
	}
	return out
}

// scoreCandidates applies the fusion formula to merged candidates whose
// text is known. Candidates missing from texts (deleted between the
// candidate fetch and the text fetch) are dropped.
func scoreCandidates(query string, merged []candidate, texts map[string]string, w fusionWeights, caseSensitive bool) []scored {
	results := make([]scored, 0, len(merged))
	for _, c := range merged {
		text, ok := texts[c.chunkID]
		if !ok || text == "" {
			continue
		}

		exact := exactMatchBonus(query, text, caseSensitive)
		position := positionBonus(query, text, caseSensitive)
		final := w.bm25*c.bm25 + w.cosine*c.cosine + w.exact*exact + w.earlyPos*position

		results = append(results, scored{
			chunkID: c.chunkID,
			path:    c.path,
			text:    text,
			breakdown: ScoreBreakdown{
				Cosine:        c.cosine,
				BM25:          c.bm25,
				Exact:         exact,
				PositionBonus: position,
				Final:         final,
			},
		})
	}
	return results
}

// exactMatchBonus returns 1.0 for a literal substring hit. For
// multi-word queries without a substring hit, the word-overlap ratio is
// returned when at least exactWordThreshold of the query words occur in
// the chunk, else 0.
func exactMatchBonus(query, text string, caseSensitive bool) float64 {
	q, t := foldPair(query, text, caseSensitive)
	if q == "" {
		return 0
	}
	if strings.Contains(t, q) {
		return 1.0
	}

	queryWords := strings.Fields(q)
	if len(queryWords) == 0 {
		return 0
	}
	textWords := make(map[string]bool)
	for _, w := range strings.Fields(t) {
		textWords[w] = true
	}

	matches := 0
	seen := make(map[string]bool, len(queryWords))
	unique := 0
	for _, w := range queryWords {
		if seen[w] {
			continue
		}
		seen[w] = true
		unique++
		if textWords[w] {
			matches++
		}
	}

	ratio := float64(matches) / float64(unique)
	if ratio >= exactWordThreshold {
		return ratio
	}
	return 0
}

// positionBonus decays linearly from 1.0 for a match at the very start
// of the chunk to 0.0 as the match falls past the early-position
// window.
func positionBonus(query, text string, caseSensitive bool) float64 {
	q, t := foldPair(query, text, caseSensitive)
	if q == "" || t == "" {
		return 0
	}

	pos := strings.Index(t, q)
	if pos == -1 {
		return 0
	}

	ratio := float64(pos) / float64(len(t))
	if ratio <= earlyPositionWindow {
		return 1.0 - ratio
	}
	return 0
}

func foldPair(query, text string, caseSensitive bool) (string, string) {
	query = strings.TrimSpace(query)
	if caseSensitive {
		return query, text
	}
	return strings.ToLower(query), strings.ToLower(text)
}

// sortHits establishes the total result ordering: final score
// descending, then path ascending. The path tie-break makes pagination
// reproducible across identical queries.
func sortHits(hits []scored) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].breakdown.Final != hits[j].breakdown.Final {
			return hits[i].breakdown.Final > hits[j].breakdown.Final
		}
		if hits[i].path != hits[j].path {
			return hits[i].path < hits[j].path
		}
		return hits[i].chunkID < hits[j].chunkID
	})
}

// dedupeByFile keeps the best maxPerFile chunks for each path. Input
// must already be sorted by sortHits; output ordering is preserved.
func dedupeByFile(hits []scored, maxPerFile int) []scored {
	if maxPerFile <= 0 {
		maxPerFile = 1
	}

	kept := make([]scored, 0, len(hits))
	perFile := make(map[string]int)
	for _, h := range hits {
		if perFile[h.path] >= maxPerFile {
			continue
		}
		perFile[h.path]++
		kept = append(kept, h)
	}
	return kept
}

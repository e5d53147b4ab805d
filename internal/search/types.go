// Package search implements the hybrid retriever: vector and lexical
// candidates fetched concurrently, fused by weighted scoring, deduped
// per file, paginated, and served through an LRU result cache.
package search

import "time"

// ScoreBreakdown exposes the individual fusion signals behind a hit's
// final score.
type ScoreBreakdown struct {
	// Cosine is the min-max normalized vector similarity, 0 when the
	// chunk was not a vector candidate.
	Cosine float64 `json:"cosine"`

	// BM25 is the min-max normalized lexical rank, 0 when the chunk was
	// not a lexical candidate.
	BM25 float64 `json:"bm25"`

	// Exact is the exact-match bonus in [0,1].
	Exact float64 `json:"exact"`

	// PositionBonus is the early-position bonus in [0,1].
	PositionBonus float64 `json:"position_bonus"`

	// Final is the weighted combination of the above.
	Final float64 `json:"final"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	ChunkID string         `json:"chunk_id"`
	Path    string         `json:"path"`
	Score   ScoreBreakdown `json:"score"`
	Snippet string         `json:"snippet,omitempty"`
}

// Flags are the user-facing search toggles.
type Flags struct {
	// CaseSensitive makes the exact-match and position signals match
	// case exactly instead of folding.
	CaseSensitive bool

	// ExactOnly drops hits whose chunk text does not contain the
	// literal query substring.
	ExactOnly bool

	// ShowContext wraps matched query words in the snippet with
	// highlight markers.
	ShowContext bool
}

// Options control one query.
type Options struct {
	// Page is 1-based.
	Page int

	// PerPage is the page size. Defaults to 10.
	PerPage int

	Flags Flags

	// MaxResultsPerFile bounds hits kept per file after dedupe.
	// 0 uses the configured default.
	MaxResultsPerFile int

	// SnippetRadius overrides the configured snippet radius when > 0.
	SnippetRadius int
}

// Result is one served result page with pagination metadata.
type Result struct {
	Query      string        `json:"query"`
	Hits       []SearchHit   `json:"items"`
	TotalHits  int           `json:"total_hits"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
	CacheHit   bool          `json:"cache_hit"`
	Duration   time.Duration `json:"-"`

	// Canceled marks a page cut short by caller cancellation before any
	// candidate source answered. Canceled pages are never cached.
	Canceled bool `json:"canceled,omitempty"`

	// Candidate counts feed the search_stats audit row.
	vectorCandidates  int
	lexicalCandidates int
}

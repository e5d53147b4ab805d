package search

import (
	"regexp"
	"strings"
)

// maxSnippetLength bounds the rendered snippet after clipping.
const maxSnippetLength = 200

var whitespaceRe = regexp.MustCompile(`\s+`)

// makeSnippet extracts a window of text centered on the best query
// match, clipped to radius characters on each side. Clipped edges get
// ellipses. When the query does not occur, the head of the chunk is
// returned.
func makeSnippet(text, query string, radius int, caseSensitive bool) string {
	if text == "" {
		return ""
	}
	if radius <= 0 {
		radius = 50
	}
	if query == "" {
		return clipHead(text, radius*2)
	}

	pos := findBestMatch(text, query, caseSensitive)
	if pos == -1 {
		return clipHead(text, radius*2)
	}

	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + len(query) + radius
	if end > len(text) {
		end = len(text)
	}

	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet = snippet + "..."
	}
	return snippet
}

func clipHead(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}

// findBestMatch returns the byte offset of the query in text: the
// literal phrase when present, otherwise the earliest occurrence of any
// query word, otherwise -1.
func findBestMatch(text, query string, caseSensitive bool) int {
	q, t := foldPair(query, text, caseSensitive)

	if pos := strings.Index(t, q); pos != -1 {
		return pos
	}

	earliest := -1
	for _, word := range strings.Fields(q) {
		pos := strings.Index(t, word)
		if pos != -1 && (earliest == -1 || pos < earliest) {
			earliest = pos
		}
	}
	return earliest
}

// cleanSnippet collapses runs of whitespace so multi-line chunks render
// as one line.
func cleanSnippet(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// truncateSnippet bounds the snippet length, preferring a word boundary
// near the cut.
func truncateSnippet(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > int(float64(maxLen)*0.8) {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// highlightQuery wraps whole-word occurrences of the query words in
// **markers**.
func highlightQuery(snippet, query string) string {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return snippet
	}

	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	if err != nil {
		return snippet
	}
	return re.ReplaceAllString(snippet, "**$1**")
}

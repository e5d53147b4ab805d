// Package chunk splits extracted text into overlapping token windows.
//
// Tokens are tiktoken cl100k_base tokens when the encoding is available,
// with a whitespace-word fallback so chunking never fails. Windows cover
// the full token stream with no gaps: each window starts max-overlap
// tokens after the previous one.
package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

const (
	DefaultMaxTokens = 1200
	DefaultOverlap   = 80
)

// Chunker produces overlapping token-window chunks for a file.
type Chunker struct {
	maxTokens int
	overlap   int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// New creates a Chunker. overlap must be smaller than maxTokens.
func New(maxTokens, overlap int) (*Chunker, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxTokens {
		return nil, fmt.Errorf("overlap (%d) must be smaller than max tokens (%d)", overlap, maxTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap}, nil
}

// encoding lazily loads cl100k_base. A load failure (offline first run
// without a cached BPE file) falls back to whitespace tokens.
func (c *Chunker) encoding() *tiktoken.Tiktoken {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

// Chunk splits text into overlapping windows and returns store.Chunk
// records with deterministic chunk IDs derived from fileID and index.
func (c *Chunker) Chunk(ctx context.Context, fileID string, text string) ([]store.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tokens := c.tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.maxTokens - c.overlap
	chunks := make([]store.Chunk, 0, (len(tokens)+step-1)/step)

	for start, idx := 0, 0; start < len(tokens); start, idx = start+step, idx+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		window := c.detokenize(tokens[start:end])
		if strings.TrimSpace(window) == "" {
			break
		}

		chunks = append(chunks, store.Chunk{
			ChunkID:    store.ChunkID(fileID, idx),
			FileID:     fileID,
			Idx:        idx,
			TokenStart: start,
			TokenEnd:   end,
			Text:       window,
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks, nil
}

// token is either a tiktoken ID or a whitespace word, depending on
// which tokenizer produced it.
type token struct {
	id   int
	word string
}

func (c *Chunker) tokenize(text string) []token {
	if enc := c.encoding(); enc != nil {
		ids := enc.Encode(text, nil, nil)
		tokens := make([]token, len(ids))
		for i, id := range ids {
			tokens[i] = token{id: id}
		}
		return tokens
	}

	words := strings.Fields(text)
	tokens := make([]token, len(words))
	for i, w := range words {
		tokens[i] = token{word: w}
	}
	return tokens
}

func (c *Chunker) detokenize(tokens []token) string {
	if enc := c.encoding(); enc != nil {
		ids := make([]int, len(tokens))
		for i, t := range tokens {
			ids[i] = t.id
		}
		return enc.Decode(ids)
	}

	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.word
	}
	return strings.Join(words, " ")
}

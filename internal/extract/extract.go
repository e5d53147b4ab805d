// Package extract converts files on disk into plain text for chunking.
//
// Extractors are selected by file extension. Formats that would need a
// native parsing library (PDF, DOCX, RTF) are reported as unsupported so
// the indexer can count them as skips rather than errors.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// Extractor converts a single file into plain text.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Supports reports whether the extractor handles the extension.
	// The extension includes the leading dot and is lowercase.
	Supports(ext string) bool

	// Extract reads the file and returns its plain text content.
	Extract(ctx context.Context, path string) (string, error)
}

// unsupportedExts are recognized document formats we cannot parse.
// They get a distinct error code so callers can tell "skipped format"
// from "broken file".
var unsupportedExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".rtf":  true,
}

// Chain dispatches to the first extractor that supports a file's
// extension, falling back to plain text for unknown extensions.
type Chain struct {
	extractors []Extractor
	fallback   Extractor
}

// NewChain builds the default extraction chain: HTML for markup files,
// plain text for everything else.
func NewChain() *Chain {
	return &Chain{
		extractors: []Extractor{
			NewHTML(),
		},
		fallback: NewPlainText(),
	}
}

// Extract converts path to plain text, honoring ctx cancellation.
func (c *Chain) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", cerrors.New(cerrors.ErrCodeExtractTimeout,
			fmt.Sprintf("extraction canceled for %s", path), err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if unsupportedExts[ext] {
		return "", cerrors.New(cerrors.ErrCodeExtractUnsupported,
			fmt.Sprintf("unsupported format %s: %s", ext, path), nil).
			WithSuggestion("convert the file to plain text, markdown, or HTML")
	}

	for _, e := range c.extractors {
		if e.Supports(ext) {
			return e.Extract(ctx, path)
		}
	}
	return c.fallback.Extract(ctx, path)
}

// IsUnsupported reports whether err marks a recognized-but-unparseable
// format. The indexer counts these as skips.
func IsUnsupported(err error) bool {
	return cerrors.GetCode(err) == cerrors.ErrCodeExtractUnsupported
}

// IsBinary reports whether err marks binary (non-text) content.
func IsBinary(err error) bool {
	return cerrors.GetCode(err) == cerrors.ErrCodeExtractBinary
}

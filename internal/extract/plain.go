package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// binarySniffLen is how many leading bytes are checked for null bytes.
const binarySniffLen = 8192

// PlainText reads a file as UTF-8 text. Invalid byte sequences are
// dropped rather than failing the file, matching lenient text readers.
type PlainText struct{}

var _ Extractor = (*PlainText)(nil)

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (p *PlainText) Name() string { return "plaintext" }

func (p *PlainText) Supports(ext string) bool {
	// Plain text is the fallback for any extension.
	return true
}

func (p *PlainText) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", cerrors.New(cerrors.ErrCodeExtractTimeout,
			fmt.Sprintf("extraction canceled for %s", path), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", cerrors.New(cerrors.ErrCodeExtractFailed,
			fmt.Sprintf("read %s", path), err)
	}

	if isBinary(data) {
		return "", cerrors.New(cerrors.ErrCodeExtractBinary,
			fmt.Sprintf("binary content: %s", path), nil)
	}

	return sanitizeUTF8(data), nil
}

// isBinary sniffs the leading bytes for a null byte, the same heuristic
// git uses to classify blobs.
func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

// sanitizeUTF8 returns data as a string with invalid sequences removed.
func sanitizeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var b bytes.Buffer
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r != utf8.RuneError || size > 1 {
			b.WriteRune(r)
		}
		data = data[size:]
	}
	return b.String()
}

package store

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// FileID generates a stable file ID from path, modification time, and size.
func FileID(path string, mtime int64, size int64) string {
	content := fmt.Sprintf("%s|%d|%d", path, mtime, size)
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ChunkID generates a deterministic chunk ID from a file ID and chunk index.
// Deterministic UUIDs keep re-chunking idempotent across runs.
func ChunkID(fileID string, idx int) string {
	content := fmt.Sprintf("%s_%d", fileID, idx)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(content)).String()
}

// HashFile computes the SHA256 content hash of a file, streaming to handle
// large files.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

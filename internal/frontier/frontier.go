// Package frontier persists breadth-first traversal state so an
// indexing run can stop at any batch boundary and resume without
// missing directories or re-walking visited nodes.
//
// Visited nodes are identified by a device:inode pair rather than by
// path, which is what terminates traversal over symlink cycles and
// hard-link duplicates.
package frontier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// State is the persisted checkpoint document.
type State struct {
	// Queue is the ordered list of paths not yet processed. Items for
	// the current level come before items discovered for the next.
	Queue []string `json:"queue"`

	// Seen maps durable node identities ("device:inode") to true.
	Seen map[string]bool `json:"seen"`

	// Level is the current BFS depth.
	Level int `json:"level"`

	// ProcessedCount is the number of work items completed so far.
	ProcessedCount int `json:"processedCount"`

	// LastCheckpoint is the RFC 3339 time of the last save.
	LastCheckpoint string `json:"lastCheckpoint"`
}

// Manager owns the frontier state for one indexing run.
//
// Not safe for concurrent use; the indexing run is the sole owner.
type Manager struct {
	path   string
	logger *slog.Logger

	state State

	// next accumulates children discovered while the current level is
	// being drained. It swaps into the queue when the level empties.
	next []string
}

// Load reads the checkpoint at path, or returns a fresh frontier when
// no checkpoint exists. A corrupt checkpoint is reported and treated as
// fresh, never fatal.
func Load(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:   path,
		logger: logger,
		state:  State{Seen: make(map[string]bool)},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		ce := cerrors.New(cerrors.ErrCodeCheckpointCorrupt,
			fmt.Sprintf("checkpoint %s is corrupt, starting fresh", path), err)
		logger.Warn("checkpoint_corrupt",
			slog.String("path", path),
			slog.String("error", ce.Error()))
		return m, nil
	}
	if loaded.Seen == nil {
		loaded.Seen = make(map[string]bool)
	}

	m.state = loaded
	logger.Info("checkpoint_loaded",
		slog.String("path", path),
		slog.Int("queue_len", len(loaded.Queue)),
		slog.Int("level", loaded.Level),
		slog.Int("processed", loaded.ProcessedCount))
	return m, nil
}

// Save atomically persists the current state. Children accumulated for
// the next level are written after the current level's remainder so a
// resumed run keeps BFS order.
func (m *Manager) Save() error {
	m.state.LastCheckpoint = time.Now().UTC().Format(time.RFC3339)

	snapshot := m.state
	snapshot.Queue = make([]string, 0, len(m.state.Queue)+len(m.next))
	snapshot.Queue = append(snapshot.Queue, m.state.Queue...)
	snapshot.Queue = append(snapshot.Queue, m.next...)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Enqueue adds paths to the next BFS level.
func (m *Manager) Enqueue(paths ...string) {
	m.next = append(m.next, paths...)
}

// EnqueueRoots seeds the queue at level zero. Only effective when the
// frontier is empty, so resuming a run does not re-add roots.
func (m *Manager) EnqueueRoots(roots ...string) {
	if len(m.state.Queue) > 0 || len(m.next) > 0 {
		return
	}
	m.state.Queue = append(m.state.Queue, roots...)
}

// DequeueBatch removes and returns up to max items from the current
// level, along with the level number. It never spans a level boundary:
// when the current level empties, the next call swaps in the
// accumulated children and increments the level. max <= 0 means the
// whole remaining level.
func (m *Manager) DequeueBatch(max int) ([]string, int) {
	if len(m.state.Queue) == 0 {
		if len(m.next) == 0 {
			return nil, m.state.Level
		}
		m.state.Queue = m.next
		m.next = nil
		m.state.Level++
	}

	n := len(m.state.Queue)
	if max > 0 && max < n {
		n = max
	}

	items := m.state.Queue[:n]
	m.state.Queue = m.state.Queue[n:]
	return items, m.state.Level
}

// DequeueLevel removes and returns the whole current level.
func (m *Manager) DequeueLevel() ([]string, int) {
	return m.DequeueBatch(0)
}

// MarkSeen records a node identity. Returns false if it was already
// seen, meaning the node must not be processed again.
func (m *Manager) MarkSeen(id string) bool {
	if m.state.Seen[id] {
		return false
	}
	m.state.Seen[id] = true
	return true
}

// AddProcessed increments the processed-items counter.
func (m *Manager) AddProcessed(n int) {
	m.state.ProcessedCount += n
}

// Empty reports whether no work remains.
func (m *Manager) Empty() bool {
	return len(m.state.Queue) == 0 && len(m.next) == 0
}

// Level returns the current BFS level.
func (m *Manager) Level() int {
	return m.state.Level
}

// ProcessedCount returns the number of completed work items.
func (m *Manager) ProcessedCount() int {
	return m.state.ProcessedCount
}

// Reset discards the persisted checkpoint and in-memory state.
func (m *Manager) Reset() error {
	m.state = State{Seen: make(map[string]bool)}
	m.next = nil
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// NodeID returns a durable identity for a filesystem node, preferring
// device:inode. Falls back to the path when stat identity is
// unavailable.
func NodeID(path string, info os.FileInfo) string {
	if info != nil {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			return fmt.Sprintf("%d:%d", st.Dev, st.Ino)
		}
	}
	return "path:" + path
}

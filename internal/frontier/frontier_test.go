package frontier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkpointPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "frontier.json")
}

func TestLoad_MissingFileStartsFresh(t *testing.T) {
	m, err := Load(checkpointPath(t), nil)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.Zero(t, m.Level())
	assert.Zero(t, m.ProcessedCount())
}

func TestLoad_CorruptFileStartsFresh(t *testing.T) {
	path := checkpointPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m, err := Load(path, nil)
	require.NoError(t, err)
	assert.True(t, m.Empty())
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := checkpointPath(t)

	m, err := Load(path, nil)
	require.NoError(t, err)
	m.EnqueueRoots("/data")
	items, level := m.DequeueBatch(0)
	require.Equal(t, []string{"/data"}, items)
	assert.Equal(t, 0, level)

	m.Enqueue("/data/a", "/data/b")
	m.MarkSeen("1:100")
	m.AddProcessed(1)
	require.NoError(t, m.Save())

	resumed, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.ProcessedCount())
	assert.False(t, resumed.MarkSeen("1:100"))

	items, _ = resumed.DequeueBatch(0)
	assert.Equal(t, []string{"/data/a", "/data/b"}, items)
}

func TestSave_WritesExpectedFields(t *testing.T) {
	path := checkpointPath(t)

	m, err := Load(path, nil)
	require.NoError(t, err)
	m.EnqueueRoots("/data")
	m.MarkSeen("1:100")
	m.AddProcessed(3)
	require.NoError(t, m.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "queue")
	assert.Contains(t, doc, "seen")
	assert.Contains(t, doc, "level")
	assert.Contains(t, doc, "processedCount")
	assert.Contains(t, doc, "lastCheckpoint")
	assert.NotEmpty(t, doc["lastCheckpoint"])
	assert.EqualValues(t, 3, doc["processedCount"])
}

func TestDequeueBatch_LevelBoundaries(t *testing.T) {
	m, err := Load(checkpointPath(t), nil)
	require.NoError(t, err)

	m.EnqueueRoots("/root")
	items, level := m.DequeueBatch(10)
	assert.Equal(t, []string{"/root"}, items)
	assert.Equal(t, 0, level)

	m.Enqueue("/root/a", "/root/b", "/root/c")

	// A batch never mixes levels even when the cap allows more.
	items, level = m.DequeueBatch(2)
	assert.Equal(t, []string{"/root/a", "/root/b"}, items)
	assert.Equal(t, 1, level)

	items, level = m.DequeueBatch(2)
	assert.Equal(t, []string{"/root/c"}, items)
	assert.Equal(t, 1, level)

	items, _ = m.DequeueBatch(2)
	assert.Empty(t, items)
	assert.True(t, m.Empty())
}

func TestEnqueueRoots_IgnoredWhenResuming(t *testing.T) {
	m, err := Load(checkpointPath(t), nil)
	require.NoError(t, err)

	m.EnqueueRoots("/first")
	m.EnqueueRoots("/second")

	items, _ := m.DequeueBatch(0)
	assert.Equal(t, []string{"/first"}, items)
}

func TestMarkSeen_DetectsRevisits(t *testing.T) {
	m, err := Load(checkpointPath(t), nil)
	require.NoError(t, err)

	assert.True(t, m.MarkSeen("8:42"))
	assert.False(t, m.MarkSeen("8:42"))
	assert.True(t, m.MarkSeen("8:43"))
}

func TestReset_ClearsStateAndFile(t *testing.T) {
	path := checkpointPath(t)

	m, err := Load(path, nil)
	require.NoError(t, err)
	m.EnqueueRoots("/data")
	m.AddProcessed(5)
	require.NoError(t, m.Save())

	require.NoError(t, m.Reset())
	assert.True(t, m.Empty())
	assert.Zero(t, m.ProcessedCount())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNodeID_StableForSameFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	info1, err := os.Stat(path)
	require.NoError(t, err)
	info2, err := os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, NodeID(path, info1), NodeID(path, info2))

	other := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))
	infoOther, err := os.Stat(other)
	require.NoError(t, err)
	assert.NotEqual(t, NodeID(path, info1), NodeID(other, infoOther))
}

func TestNodeID_HardLinksShareIdentity(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.txt")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.WriteFile(orig, []byte("x"), 0o644))
	require.NoError(t, os.Link(orig, link))

	origInfo, err := os.Stat(orig)
	require.NoError(t, err)
	linkInfo, err := os.Stat(link)
	require.NoError(t, err)

	assert.Equal(t, NodeID(orig, origInfo), NodeID(link, linkInfo))
}

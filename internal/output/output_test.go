package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Warlord437/Context-Based-File-Search/internal/index"
	"github.com/Warlord437/Context-Based-File-Search/internal/search"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Loading index...")

	// Then: output contains icon and message
	output := buf.String()
	assert.Contains(t, output, "🔍")
	assert.Contains(t, output, "Loading index...")
}

func TestWriter_Success_PrintsCheckmark(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Index complete!")

	output := buf.String()
	assert.Contains(t, output, "✅")
	assert.Contains(t, output, "Index complete!")
}

func TestWriter_Warning_PrintsWarningIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warning("vector store unavailable")

	output := buf.String()
	assert.Contains(t, output, "⚠️")
	assert.Contains(t, output, "vector store unavailable")
}

func TestWriter_NonTerminalOutputHasNoANSI(t *testing.T) {
	// Given: a buffer target, which is never a terminal
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing styled messages
	w.Success("done")
	w.Error("failed")

	// Then: no escape sequences leak into piped output
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestWriter_QuietSuppressesStatusButNotErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, WithQuiet(true))

	w.Status("🔍", "scanning")
	w.Success("done")
	w.Field("Files", 10)
	w.Progress(1, 2, "half")
	w.Error("store locked")

	output := buf.String()
	assert.NotContains(t, output, "scanning")
	assert.NotContains(t, output, "done")
	assert.NotContains(t, output, "Files")
	assert.NotContains(t, output, "half")
	assert.Contains(t, output, "store locked")
}

func TestWriter_JSONModeSuppressesStatus(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, WithJSON(true))

	w.Status("🔍", "scanning")
	w.Successf("indexed %d files", 3)

	assert.Empty(t, buf.String())
}

func TestWriter_IndexSummary_PlainMode(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.IndexSummary(&index.Result{
		FilesProcessed: 12,
		ChunksCreated:  40,
		FilesSkipped:   3,
		Errors:         1,
		Duration:       1500 * time.Millisecond,
	})

	output := buf.String()
	assert.Contains(t, output, "Indexing complete")
	assert.Contains(t, output, "Files processed:")
	assert.Contains(t, output, "12")
	assert.Contains(t, output, "Chunks created:")
	assert.Contains(t, output, "40")
	assert.Contains(t, output, "Errors:")
	assert.Contains(t, output, "1.5s")
}

func TestWriter_IndexSummary_InterruptedShowsResumeHint(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.IndexSummary(&index.Result{FilesProcessed: 5, Interrupted: true})

	output := buf.String()
	assert.Contains(t, output, "interrupted")
	assert.Contains(t, output, "resume")
}

func TestWriter_IndexSummary_JSONMode(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, WithJSON(true))

	w.IndexSummary(&index.Result{
		FilesProcessed: 7,
		ChunksCreated:  21,
		Duration:       2 * time.Second,
		Interrupted:    true,
	})

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, float64(7), payload["files_processed"])
	assert.Equal(t, float64(21), payload["chunks_created"])
	assert.Equal(t, float64(2000), payload["duration_ms"])
	assert.Equal(t, true, payload["interrupted"])
	assert.Equal(t, "interrupted", payload["status"])
}

func searchFixture() *search.Result {
	return &search.Result{
		Query: "config parser",
		Hits: []search.SearchHit{
			{
				ChunkID: "c1",
				Path:    "internal/config/config.go",
				Score:   search.ScoreBreakdown{Final: 0.912},
				Snippet: "...the **config** **parser** loads defaults...",
			},
			{
				ChunkID: "c2",
				Path:    "docs/setup.md",
				Score:   search.ScoreBreakdown{Final: 0.455},
				Snippet: "see the config reference",
			},
		},
		TotalHits:  12,
		Page:       2,
		PerPage:    2,
		TotalPages: 6,
		HasNext:    true,
		HasPrev:    true,
		CacheHit:   true,
		Duration:   8 * time.Millisecond,
	}
}

func TestWriter_SearchResults_PlainMode(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.SearchResults(searchFixture())

	output := buf.String()
	// Ranks continue across pages: page 2 with 2 per page starts at 3.
	assert.Contains(t, output, " 3. internal/config/config.go")
	assert.Contains(t, output, " 4. docs/setup.md")
	assert.Contains(t, output, "(score 0.912)")
	assert.Contains(t, output, "the **config** **parser** loads defaults")
	assert.Contains(t, output, "12 results — page 2/6")
	assert.Contains(t, output, "[cached]")
	assert.Contains(t, output, "--page 3")
}

func TestWriter_SearchResults_NoHits(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.SearchResults(&search.Result{Query: "nothing here", Page: 1, PerPage: 10})

	assert.Contains(t, buf.String(), `No results for "nothing here"`)
}

func TestWriter_SearchResults_QuietPrintsPathsOnly(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, WithQuiet(true))

	w.SearchResults(searchFixture())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"internal/config/config.go", "docs/setup.md"}, lines)
}

func TestWriter_SearchResults_JSONMode(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf, WithJSON(true))

	w.SearchResults(searchFixture())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "config parser", payload["query"])
	assert.Equal(t, float64(12), payload["total_hits"])
	items, ok := payload["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestWriter_Field_AlignsLabelAndValue(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Field("Files", 42)
	w.Field("Duration", "3s")

	output := buf.String()
	assert.Contains(t, output, "Files:")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "Duration:")
	assert.Contains(t, output, "3s")
}

func TestWriter_Progress_RendersBar(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(15, 30, "halfway")

	output := buf.String()
	assert.Contains(t, output, "█")
	assert.Contains(t, output, "░")
	assert.Contains(t, output, "50%")
	assert.Contains(t, output, "halfway")
}

func TestWriter_Progress_CompletesWithNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(10, 10, "done")

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestRenderProgressBar_Bounds(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(0, 0, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderProgressBar(20, 10, 10))
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(0, 10, 10))
}

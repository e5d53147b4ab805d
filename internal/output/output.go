// Package output provides consistent CLI output formatting with colors and progress indicators.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Warlord437/Context-Based-File-Search/internal/index"
	"github.com/Warlord437/Context-Based-File-Search/internal/search"
)

// styles holds the lipgloss styles used by the renderer. Plain mode
// (pipes, --quiet, NO_COLOR) uses zero-value styles which render text
// unchanged.
type styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Path    lipgloss.Style
	Score   lipgloss.Style
	Dim     lipgloss.Style
}

func colorStyles() styles {
	return styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("154")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Path:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("154")),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

func plainStyles() styles {
	return styles{}
}

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	quiet    bool
	json     bool
	useColor bool
	styles   styles
}

// Option configures a Writer.
type Option func(*Writer)

// WithQuiet suppresses everything except errors and JSON payloads.
func WithQuiet(quiet bool) Option {
	return func(w *Writer) { w.quiet = quiet }
}

// WithJSON switches result rendering to JSON and silences status chatter.
func WithJSON(jsonMode bool) Option {
	return func(w *Writer) { w.json = jsonMode }
}

// WithColor overrides TTY auto-detection.
func WithColor(color bool) Option {
	return func(w *Writer) { w.useColor = color }
}

// New creates a Writer. Color is enabled only when out is a terminal.
func New(out io.Writer, opts ...Option) *Writer {
	w := &Writer{
		out:      out,
		useColor: isTerminal(out),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.quiet || w.json {
		w.useColor = false
	}
	if w.useColor {
		w.styles = colorStyles()
	} else {
		w.styles = plainStyles()
	}
	return w
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if w.quiet || w.json {
		return
	}
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message. Errors bypass quiet and JSON modes.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "❌ %s\n", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Field prints an aligned "label: value" line for status listings.
func (w *Writer) Field(label string, value any) {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintf(w.out, "  %-18s %v\n", label+":", value)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// JSON encodes v with indentation. Used for --json result payloads.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// IndexSummary renders the outcome of an indexing run.
func (w *Writer) IndexSummary(res *index.Result) {
	if w.json {
		_ = w.JSON(struct {
			FilesProcessed int    `json:"files_processed"`
			ChunksCreated  int    `json:"chunks_created"`
			FilesSkipped   int    `json:"files_skipped"`
			Errors         int    `json:"errors"`
			DurationMs     int64  `json:"duration_ms"`
			Interrupted    bool   `json:"interrupted"`
			Status         string `json:"status"`
		}{
			FilesProcessed: res.FilesProcessed,
			ChunksCreated:  res.ChunksCreated,
			FilesSkipped:   res.FilesSkipped,
			Errors:         res.Errors,
			DurationMs:     res.Duration.Milliseconds(),
			Interrupted:    res.Interrupted,
			Status:         indexStatus(res),
		})
		return
	}
	if w.quiet {
		return
	}

	if res.Interrupted {
		w.Warning("Indexing interrupted — checkpoint saved, rerun to resume")
	} else {
		w.Success("Indexing complete")
	}
	w.Field("Files processed", res.FilesProcessed)
	w.Field("Chunks created", res.ChunksCreated)
	w.Field("Files skipped", res.FilesSkipped)
	if res.Errors > 0 {
		w.Field("Errors", w.styles.Error.Render(fmt.Sprintf("%d", res.Errors)))
	}
	w.Field("Duration", res.Duration.Round(10*time.Millisecond))
}

func indexStatus(res *index.Result) string {
	if res.Interrupted {
		return "interrupted"
	}
	return "complete"
}

// SearchResults renders one page of search hits.
func (w *Writer) SearchResults(res *search.Result) {
	if w.json {
		_ = w.JSON(res)
		return
	}
	if w.quiet {
		for _, hit := range res.Hits {
			_, _ = fmt.Fprintln(w.out, hit.Path)
		}
		return
	}

	if res.TotalHits == 0 {
		_, _ = fmt.Fprintf(w.out, "No results for %q\n", res.Query)
		return
	}

	rank := (res.Page-1)*res.PerPage + 1
	for _, hit := range res.Hits {
		_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n",
			rank,
			w.styles.Path.Render(hit.Path),
			w.styles.Score.Render(fmt.Sprintf("(score %.3f)", hit.Score.Final)))
		if hit.Snippet != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", hit.Snippet)
		}
		rank++
	}

	_, _ = fmt.Fprintln(w.out)
	summary := fmt.Sprintf("%d results — page %d/%d (%s)",
		res.TotalHits, res.Page, res.TotalPages, res.Duration.Round(time.Millisecond))
	if res.CacheHit {
		summary += " [cached]"
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(summary))
	if res.HasNext {
		_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(
			fmt.Sprintf("Use --page %d for more", res.Page+1)))
	}
}

// Progress prints a progress bar with message.
// Carriage-return updates only make sense on a terminal.
func (w *Writer) Progress(current, total int, msg string) {
	if w.quiet || w.json || total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone completes a progress line with newline.
func (w *Writer) ProgressDone() {
	if w.quiet || w.json {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

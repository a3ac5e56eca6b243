// Package output renders CLI results: answers with citations, source
// listings, index statistics, and progress lines.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/keepmark/recall/internal/answer"
	"github.com/keepmark/recall/internal/store"
)

// Writer renders formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a writer with styles matching the destination.
func New(out io.Writer) *Writer {
	return &Writer{out: out, styles: StylesFor(out)}
}

// NewPlain creates a writer that never emits color codes.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out, styles: PlainStyles()}
}

// Write errors on console output are intentionally ignored throughout.

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Plainf prints an unstyled line.
func (w *Writer) Plainf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Answer renders a query result: the answer text, then the cited
// sources with scores, then the confidence line.
func (w *Writer) Answer(result *answer.Result) {
	_, _ = fmt.Fprintln(w.out, result.Answer)

	if len(result.Sources) > 0 {
		_, _ = fmt.Fprintln(w.out)
		_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Sources"))
		for i, src := range result.Sources {
			label := src.Title
			if label == "" {
				label = src.SourceID
			}
			line := fmt.Sprintf("  [%d] %s", i+1, w.styles.Accent.Render(label))
			if src.URL != "" {
				line += " " + w.styles.Dim.Render(src.URL)
			}
			line += " " + w.styles.Score.Render(fmt.Sprintf("(%.2f)", src.Score))
			_, _ = fmt.Fprintln(w.out, line)
		}
	}

	_, _ = fmt.Fprintln(w.out)
	mode := "snippets"
	if result.Synthesized {
		mode = "synthesized"
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Label.Render(
		fmt.Sprintf("confidence %.2f · %s · %dms", result.Confidence, mode, result.ProcessingTimeMs)))
}

// Sources renders the source listing with per-source status.
func (w *Writer) Sources(metas []*store.SourceMeta) {
	if len(metas) == 0 {
		w.Plainf("No sources indexed.")
		return
	}

	for _, meta := range metas {
		status := string(meta.Status)
		switch meta.Status {
		case store.StatusIndexed:
			status = w.styles.Success.Render(status)
		case store.StatusPartial, store.StatusFailed:
			status = w.styles.Warning.Render(status)
		}
		line := fmt.Sprintf("%-20s %s  %d chunks", meta.SourceID, status, meta.ChunkCount)
		if len(meta.FailedChunks) > 0 {
			line += w.styles.Warning.Render(fmt.Sprintf("  (%d failed)", len(meta.FailedChunks)))
		}
		if meta.Title != "" {
			line += "  " + w.styles.Dim.Render(meta.Title)
		}
		_, _ = fmt.Fprintln(w.out, line)
	}
}

// Stats renders index statistics.
func (w *Writer) Stats(stats *store.IndexStats) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Index"))
	w.Plainf("  sources:  %d", stats.TotalSources)
	w.Plainf("  chunks:   %d (%d embedded)", stats.TotalChunks, stats.EmbeddedChunks)
	w.Plainf("  dims:     %d", stats.Dimensions)
	if !stats.LastUpdated.IsZero() {
		w.Plainf("  updated:  %s", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	if len(stats.SourcesByStatus) > 0 {
		statuses := make([]string, 0, len(stats.SourcesByStatus))
		for s := range stats.SourcesByStatus {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		parts := make([]string, 0, len(statuses))
		for _, s := range statuses {
			parts = append(parts, fmt.Sprintf("%s=%d", s, stats.SourcesByStatus[store.SourceStatus(s)]))
		}
		w.Plainf("  status:   %s", strings.Join(parts, " "))
	}
}

// Progress renders a one-line progress update in place.
func (w *Writer) Progress(done, total int, label string) {
	if total <= 0 {
		return
	}
	pct := float64(done) / float64(total) * 100
	_, _ = fmt.Fprintf(w.out, "\r%s %3.0f%% (%d/%d)", label, pct, done, total)
	if done >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepmark/recall/internal/output"
	"github.com/keepmark/recall/internal/store"
)

// sourceDoc is the JSON shape accepted by the index command.
type sourceDoc struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Text  string `json:"text"`
}

func (d sourceDoc) item() store.SourceItem {
	return store.SourceItem{
		ID:           d.ID,
		Title:        d.Title,
		URL:          d.URL,
		CombinedText: d.Text,
	}
}

func newIndexCmd() *cobra.Command {
	var (
		file  string
		title string
		url   string
		text  string
	)

	cmd := &cobra.Command{
		Use:   "index [source-id]",
		Short: "Index bookmarks and notes for semantic search",
		Long: `Index one source or a batch of sources.

A batch is a JSON array of {"id", "title", "url", "text"} objects read
from --file (or stdin with --file -). A single source is given by its
ID with --text, or with the text piped on stdin.

Unchanged sources are skipped; changed sources are re-indexed in place
without a window where they are missing from search.

Examples:
  recall index --file bookmarks.json
  cat bookmarks.json | recall index --file -
  recall index bm-42 --title "GC tuning" --url https://example.com --text "..."
  pbpaste | recall index bm-42`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := collectDocs(cmd, args, file, title, url, text)
			if err != nil {
				return err
			}
			return runIndex(cmd.Context(), cmd, docs)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with sources to index ('-' for stdin)")
	cmd.Flags().StringVar(&title, "title", "", "Source title (single-source mode)")
	cmd.Flags().StringVar(&url, "url", "", "Source URL (single-source mode)")
	cmd.Flags().StringVar(&text, "text", "", "Source text (single-source mode; stdin when omitted)")

	return cmd
}

func collectDocs(cmd *cobra.Command, args []string, file, title, url, text string) ([]sourceDoc, error) {
	if file != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("--file and a source ID are mutually exclusive")
		}
		return readDocs(cmd, file)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("provide a source ID or --file")
	}

	if text == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read source text from stdin: %w", err)
		}
		text = string(data)
	}

	return []sourceDoc{{ID: args[0], Title: title, URL: url, Text: text}}, nil
}

func readDocs(cmd *cobra.Command, file string) ([]sourceDoc, error) {
	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open sources file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var docs []sourceDoc
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("parse sources JSON: %w", err)
	}
	return docs, nil
}

func runIndex(ctx context.Context, cmd *cobra.Command, docs []sourceDoc) error {
	engine, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := output.New(cmd.OutOrStdout())

	for _, doc := range docs {
		if err := engine.Submit(doc.item()); err != nil {
			return err
		}
	}

	total := len(docs)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		progress := engine.Progress()
		out.Progress(total-progress.Pending, total, "indexing")
		if progress.Pending == 0 {
			break
		}
		select {
		case <-ctx.Done():
			out.Warningf("interrupted; committed work is preserved")
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := engine.Close(); err != nil {
		return err
	}

	progress := engine.Progress()
	out.Successf("indexed %d source(s): %d ok, %d partial, %d failed, %d unchanged",
		total, progress.Indexed, progress.Partial, progress.Failed, progress.Skipped)
	if progress.Partial > 0 {
		out.Warningf("run 'recall retry' to re-embed failed chunks")
	}
	if progress.Failed > 0 {
		return fmt.Errorf("%d source(s) failed to index", progress.Failed)
	}
	return nil
}

// Package validation checks user-supplied input before it reaches the
// index or the providers.
package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/internal/store"
)

// Input limits. Queries beyond maxQueryLen add cost without adding
// signal; source text is capped well above any realistic bookmark.
const (
	maxQueryLen      = 1000
	maxSourceIDLen   = 256
	maxSourceTextLen = 1 << 20 // 1MiB
)

// Query validates a search query and returns it trimmed.
func Query(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", recallerr.New(recallerr.ErrCodeQueryEmpty, "query must not be empty", nil).
			WithSuggestion("provide a question or topic to search for")
	}
	if !utf8.ValidString(trimmed) {
		return "", recallerr.New(recallerr.ErrCodeInvalidInput, "query is not valid UTF-8", nil)
	}
	if utf8.RuneCountInString(trimmed) > maxQueryLen {
		return "", recallerr.New(recallerr.ErrCodeInvalidInput, "query is too long", nil).
			WithDetail("max_runes", "1000")
	}
	return trimmed, nil
}

// Source validates a source item before indexing. Empty combined text is
// allowed; it indexes as zero chunks.
func Source(item store.SourceItem) error {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return recallerr.New(recallerr.ErrCodeSourceEmpty, "source ID must not be empty", nil)
	}
	if len(id) > maxSourceIDLen {
		return recallerr.New(recallerr.ErrCodeInvalidInput, "source ID is too long", nil)
	}
	if strings.ContainsAny(id, "\n\r\t") {
		return recallerr.New(recallerr.ErrCodeInvalidInput, "source ID must not contain whitespace control characters", nil)
	}
	if !utf8.ValidString(item.CombinedText) {
		return recallerr.New(recallerr.ErrCodeInvalidInput, "source text is not valid UTF-8", nil)
	}
	if len(item.CombinedText) > maxSourceTextLen {
		return recallerr.New(recallerr.ErrCodeInvalidInput, "source text exceeds the 1MiB limit", nil).
			WithSuggestion("split oversized sources before indexing")
	}
	return nil
}

// SourceID validates a bare source ID, for removal and retry operations.
func SourceID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", recallerr.New(recallerr.ErrCodeSourceEmpty, "source ID must not be empty", nil)
	}
	if len(trimmed) > maxSourceIDLen {
		return "", recallerr.New(recallerr.ErrCodeInvalidInput, "source ID is too long", nil)
	}
	return trimmed, nil
}

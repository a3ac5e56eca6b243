// Package chunk splits normalized source text into overlapping windows.
//
// Chunk boundaries are a pure function of (text, window, overlap): identical
// input always yields identical chunks. Reindexing depends on this — chunk
// IDs are derived from the source ID, chunk index, and content hash, so an
// unchanged source reproduces the exact same chunk set.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/keepmark/recall/internal/store"
)

// Chunker produces fixed-size overlapping windows over rune offsets.
type Chunker struct {
	window  int
	overlap int
}

// New creates a Chunker. window must be positive and strictly greater than
// overlap; overlap must be non-negative.
func New(window, overlap int) (*Chunker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("chunk window must be positive, got %d", window)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", overlap)
	}
	if overlap >= window {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than window (%d)", overlap, window)
	}
	return &Chunker{window: window, overlap: overlap}, nil
}

// Window returns the configured window size in runes.
func (c *Chunker) Window() int { return c.window }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Fingerprint returns the content hash used for idempotence checks and
// chunk ID derivation.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// chunkID derives a stable chunk identifier from the source, position, and
// content fingerprint.
func chunkID(sourceID string, index int, contentHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", sourceID, index, contentHash)))
	return hex.EncodeToString(sum[:])[:16]
}

// Split chunks the text into windows of Window() runes advancing by
// Window()-Overlap() runes. Offsets are rune offsets into the input.
//
// Text shorter than one window yields a single chunk spanning the whole
// text. Empty or whitespace-only text yields no chunks; an empty source is
// valid, it simply has nothing to retrieve. The window reaching the end of
// the text is emitted exactly once: further strides would produce windows
// fully contained in it, which would break the fixed-overlap guarantee
// between consecutive chunks.
func (c *Chunker) Split(sourceID, text string) []*store.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	hash := Fingerprint(text)
	stride := c.window - c.overlap

	var chunks []*store.Chunk
	for offset := 0; offset < len(runes); offset += stride {
		end := offset + c.window
		if end > len(runes) {
			end = len(runes)
		}

		idx := len(chunks)
		chunks = append(chunks, &store.Chunk{
			ID:          chunkID(sourceID, idx, hash),
			SourceID:    sourceID,
			Index:       idx,
			Text:        string(runes[offset:end]),
			StartOffset: offset,
			EndOffset:   end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

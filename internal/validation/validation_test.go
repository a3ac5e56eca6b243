package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/internal/store"
)

func TestQuery_TrimsAndAccepts(t *testing.T) {
	got, err := Query("  how do I tune GC?  ")
	require.NoError(t, err)
	assert.Equal(t, "how do I tune GC?", got)
}

func TestQuery_RejectsEmpty(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := Query(q)
		require.Error(t, err, "query %q", q)
		assert.Equal(t, recallerr.ErrCodeQueryEmpty, recallerr.GetCode(err))
	}
}

func TestQuery_RejectsOversized(t *testing.T) {
	_, err := Query(strings.Repeat("x", maxQueryLen+1))
	require.Error(t, err)
	assert.Equal(t, recallerr.ErrCodeInvalidInput, recallerr.GetCode(err))
}

func TestQuery_RejectsInvalidUTF8(t *testing.T) {
	_, err := Query("abc\xff\xfe")
	assert.Error(t, err)
}

func TestSource_AcceptsEmptyText(t *testing.T) {
	err := Source(store.SourceItem{ID: "bm-1", CombinedText: ""})
	assert.NoError(t, err)
}

func TestSource_RejectsEmptyID(t *testing.T) {
	err := Source(store.SourceItem{ID: "  ", CombinedText: "text"})
	require.Error(t, err)
	assert.Equal(t, recallerr.ErrCodeSourceEmpty, recallerr.GetCode(err))
}

func TestSource_RejectsControlCharactersInID(t *testing.T) {
	err := Source(store.SourceItem{ID: "bm\n1", CombinedText: "text"})
	assert.Error(t, err)
}

func TestSource_RejectsOversizedText(t *testing.T) {
	err := Source(store.SourceItem{
		ID:           "bm-1",
		CombinedText: strings.Repeat("a", maxSourceTextLen+1),
	})
	assert.Error(t, err)
}

func TestSourceID_Trims(t *testing.T) {
	got, err := SourceID(" bm-1 ")
	require.NoError(t, err)
	assert.Equal(t, "bm-1", got)
}

func TestSourceID_RejectsEmpty(t *testing.T) {
	_, err := SourceID("")
	assert.Error(t, err)
}

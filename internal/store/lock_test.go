package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLock_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	l := NewDirLock(dir)

	acquired, err := l.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, l.Unlock())

	// Reacquirable after release.
	acquired, err = l.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, l.Unlock())
}

func TestDirLock_UnlockWithoutLockIsSafe(t *testing.T) {
	l := NewDirLock(t.TempDir())
	assert.NoError(t, l.Unlock())
}

func TestDirLock_CreatesMissingDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/data"
	l := NewDirLock(dir)

	acquired, err := l.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, l.Unlock())
}

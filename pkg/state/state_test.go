package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureStateDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureStateDirs(root))

	p := PathsFor(root)
	for _, dir := range []string{p.Store, p.Tmp, p.Crash, p.SideEffects} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}

	// idempotent
	require.NoError(t, EnsureStateDirs(root))
}

func TestStorePath(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, StorePath(root))

	require.NoError(t, EnsureStateDirs(root))
	assert.Equal(t, filepath.Join(root, "store"), StorePath(root))
	assert.Equal(t, PathsFor(root).Store, StorePath(PathsFor(root).Store))
}

func TestEnsureStateDirsRejectsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "store"), []byte("x"), 0o600))
	assert.Error(t, EnsureStateDirs(root))
}

func TestFailedSideEffectWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewFailedSideEffectWriter(dir)
	require.NoError(t, w.Write("sendMessage", "activities", map[string]any{"type": "message_sent"}, errors.New("disk full")))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())

	var rec FailedSideEffect
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, "sendMessage", rec.Trigger)
	assert.Equal(t, "disk full", rec.Error)
	assert.Equal(t, "message_sent", rec.Fields["type"])
}

func TestDiskUsage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("statfs not available")
	}
	used, total, err := DiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, total, uint64(0))
	assert.LessOrEqual(t, used, total)
}

package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentlab/internal/errors"
)

func TestAcquire_CreatesWorkspaceAndLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "workspace_runs")

	l, err := Acquire(dir, "run-1", nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, LockFileName))
	assert.Equal(t, os.Getpid(), l.PID)

	held, ok := Holder(dir)
	require.True(t, ok)
	assert.Equal(t, "run-1", held.RunID)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, filepath.Join(dir, LockFileName))
	require.NoError(t, l.Release(), "second release is a no-op")
}

func TestAcquire_LiveHolderBlocks(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, "run-1", nil)
	require.NoError(t, err)
	defer func() { _ = first.Release() }()

	_, err = Acquire(dir, "run-2", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))
	assert.Contains(t, err.Error(), "run-1")
}

func TestAcquire_ReplacesStaleLock(t *testing.T) {
	dir := t.TempDir()
	host, _ := os.Hostname()
	data, err := json.Marshal(Lock{RunID: "dead", PID: 99999999, Hostname: host})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0o644))

	_, ok := Holder(dir)
	assert.False(t, ok)

	l, err := Acquire(dir, "run-2", nil)
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	held, err := Read(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Equal(t, "run-2", held.RunID)
}

func TestRelease_LeavesForeignLock(t *testing.T) {
	dir := t.TempDir()
	mine, err := Acquire(dir, "run-1", nil)
	require.NoError(t, err)

	// Another run took over the file.
	data, err := json.Marshal(Lock{RunID: "run-2", PID: os.Getpid()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0o644))

	require.NoError(t, mine.Release())
	assert.FileExists(t, filepath.Join(dir, LockFileName))
}

func TestRelease_NilLock(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}

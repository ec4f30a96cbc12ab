package configstore

import (
	"os"
	"testing"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVersionMissingFile(t *testing.T) {
	dir := t.TempDir()
	v, state, pid, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, 0, pid)
}

func TestWriteThenReadVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteVersion(dir, 1, StateBusy, os.Getpid()))

	v, state, pid, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateBusy, state)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLockAndLoadFromIdle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteVersion(dir, 5, StateIdle, 0))

	v, err := LockAndLoad(dir, "ic-csd")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, state, pid, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, StateBusy, state)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLockAndLoadRejectsLiveOwner(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteVersion(dir, 5, StateBusy, os.Getpid()))

	_, err := LockAndLoad(dir, "ic-csd")
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.CouldNotLockConfiguration))
}

func TestLockAndLoadReclaimsDeadOwner(t *testing.T) {
	dir := t.TempDir()
	// A pid that (almost certainly) does not name a live process.
	const deadPid = 1 << 30
	require.NoError(t, WriteVersion(dir, 5, StateBusy, deadPid))

	v, err := LockAndLoad(dir, "ic-csd")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestReleaseLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteVersion(dir, 3, StateBusy, os.Getpid()))
	require.NoError(t, ReleaseLock(dir, 3))

	_, state, pid, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, 0, pid)
}

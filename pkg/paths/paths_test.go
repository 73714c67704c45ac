package paths

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHonorsEnvOverrides(t *testing.T) {
	root := t.TempDir()
	socket := filepath.Join(t.TempDir(), "custom.sock")
	t.Setenv(EnvStateRoot, root)
	t.Setenv(EnvDaemonSocket, socket)

	p, err := Resolve()
	require.NoError(t, err)

	assert.Equal(t, root, p.Root)
	assert.Equal(t, socket, p.SocketPath)
	assert.Equal(t, filepath.Join(root, "registry.json"), p.RegistryFile)
	assert.Equal(t, filepath.Join(root, "runtime-counters.json"), p.CountersFile)
}

func TestResolveCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", ".hack")
	t.Setenv(EnvStateRoot, root)
	t.Setenv(EnvDaemonSocket, "")

	p, err := Resolve()
	require.NoError(t, err)

	info, err := os.Stat(p.Root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestReadPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackd.pid")

	_, ok := ReadPIDFile(path)
	assert.False(t, ok, "missing file")

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, ok = ReadPIDFile(path)
	assert.False(t, ok, "unparseable content")

	require.NoError(t, os.WriteFile(path, []byte("12345\n"), 0o644))
	pid, ok := ReadPIDFile(path)
	assert.True(t, ok)
	assert.Equal(t, 12345, pid)
}

func TestAcquireAndReleaseLock(t *testing.T) {
	p := rootPaths(t)

	lock, err := AcquireLock(p)
	require.NoError(t, err)

	pid, ok := ReadPIDFile(p.PIDFile)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)

	lock.Release()
	_, ok = ReadPIDFile(p.PIDFile)
	assert.False(t, ok)
}

func TestAcquireLockRemovesDeadOwner(t *testing.T) {
	p := rootPaths(t)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.NoError(t, os.WriteFile(p.PIDFile, []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o644))

	lock, err := AcquireLock(p)
	require.NoError(t, err)
	defer lock.Release()

	pid, ok := ReadPIDFile(p.PIDFile)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
}

func TestClearStaleIsIdempotent(t *testing.T) {
	p := rootPaths(t)
	require.NoError(t, os.WriteFile(p.PIDFile, []byte("99999999\n"), 0o644))
	require.NoError(t, os.WriteFile(p.SocketPath, nil, 0o600))

	require.NoError(t, ClearStale(p))
	require.NoError(t, ClearStale(p))

	_, err := os.Stat(p.PIDFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(p.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, ProcessAlive(cmd.Process.Pid))
}

func rootPaths(t *testing.T) *Paths {
	t.Helper()
	root := t.TempDir()
	return &Paths{
		Root:       root,
		PIDFile:    filepath.Join(root, "hackd.pid"),
		SocketPath: filepath.Join(root, "hackd.sock"),
		LogFile:    filepath.Join(root, "hackd.log"),
	}
}

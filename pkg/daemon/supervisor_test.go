package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstack/hack/pkg/client"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/types"
)

func testPaths(t *testing.T) *paths.Paths {
	t.Helper()
	root := t.TempDir()
	return &paths.Paths{
		Root:         root,
		PIDFile:      filepath.Join(root, "hackd.pid"),
		SocketPath:   filepath.Join(root, "hackd.sock"),
		LogFile:      filepath.Join(root, "hackd.log"),
		RegistryFile: filepath.Join(root, "registry.json"),
		TokensFile:   filepath.Join(root, "tokens.json"),
		CountersFile: filepath.Join(root, "runtime-counters.json"),
		ConfigFile:   filepath.Join(root, "config.yaml"),
	}
}

func testSupervisor(t *testing.T, p *paths.Paths) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(p)
	require.NoError(t, err)
	return s
}

func writePID(t *testing.T, p *paths.Paths, pid int) {
	t.Helper()
	require.NoError(t, os.WriteFile(p.PIDFile, []byte(fmt.Sprintf("%d\n", pid)), 0o644))
}

// deadPID returns the pid of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

// serveStatus answers the status endpoint on the daemon socket.
func serveStatus(t *testing.T, p *paths.Paths) {
	t.Helper()
	listener, err := net.Listen("unix", p.SocketPath)
	require.NoError(t, err)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.StatusSnapshot{Version: 1})
	})}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
}

func TestStatusStopped(t *testing.T) {
	s := testSupervisor(t, testPaths(t))

	report := s.Status(context.Background())
	assert.Equal(t, "stopped", report.Status)
	assert.False(t, report.ProcessRunning)
	assert.False(t, report.SocketExists)
}

func TestStatusRunning(t *testing.T) {
	p := testPaths(t)
	serveStatus(t, p)
	writePID(t, p, os.Getpid())

	report := testSupervisor(t, p).Status(context.Background())
	assert.Equal(t, "running", report.Status)
	assert.True(t, report.APIOk)
	assert.Equal(t, os.Getpid(), report.PID)
}

func TestStatusStartingWhenPingFails(t *testing.T) {
	p := testPaths(t)
	// The socket path exists but nothing answers.
	require.NoError(t, os.WriteFile(p.SocketPath, nil, 0o600))
	writePID(t, p, os.Getpid())

	report := testSupervisor(t, p).Status(context.Background())
	assert.Equal(t, "starting", report.Status)
	assert.False(t, report.APIOk)
}

func TestStatusStaleSocketOnly(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, os.WriteFile(p.SocketPath, nil, 0o600))

	report := testSupervisor(t, p).Status(context.Background())
	assert.Equal(t, "stale", report.Status)
	assert.Equal(t, "socket-only", report.StaleReason)
}

func TestStatusStalePIDNotRunning(t *testing.T) {
	p := testPaths(t)
	writePID(t, p, deadPID(t))

	report := testSupervisor(t, p).Status(context.Background())
	assert.Equal(t, "stale", report.Status)
	assert.Equal(t, "pid-not-running", report.StaleReason)
}

func TestStartIsNoOpWhenHealthy(t *testing.T) {
	p := testPaths(t)
	serveStatus(t, p)

	// A responsive daemon short-circuits before any spawn.
	require.NoError(t, testSupervisor(t, p).Start(context.Background()))
}

func TestStopWithoutDaemonClearsState(t *testing.T) {
	p := testPaths(t)
	require.NoError(t, os.WriteFile(p.SocketPath, nil, 0o600))
	writePID(t, p, deadPID(t))

	require.NoError(t, testSupervisor(t, p).Stop(context.Background()))

	_, err := os.Stat(p.SocketPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(p.PIDFile)
	assert.True(t, os.IsNotExist(err))
}

func TestPingThroughClient(t *testing.T) {
	p := testPaths(t)
	serveStatus(t, p)

	c := client.New(p.SocketPath)
	snap, err := c.Status(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
}

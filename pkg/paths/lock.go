package paths

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/types"
)

// Lock is held by the daemon process for the lifetime of its pidfile.
type Lock struct {
	paths *Paths
	pid   int
}

// AcquireLock claims pidfile exclusivity for the current process.
//
// A pre-existing pidfile whose process is dead (or whose command line no
// longer matches the daemon binary) is treated as stale and removed. A
// pidfile held by a live daemon fails with already-running. A responsive
// socket without any pidfile fails with stale-state: another process is
// bound but did not record itself, and guessing would race it.
func AcquireLock(p *Paths) (*Lock, error) {
	if err := p.Writable(); err != nil {
		return nil, err
	}

	logger := log.WithComponent("paths")

	if pid, ok := ReadPIDFile(p.PIDFile); ok {
		if ProcessAlive(pid) && processMatchesDaemon(pid) {
			return nil, types.NewCodedError(types.CodeAlreadyRunning,
				"daemon already running with pid %d", pid).WithDetail("pid", pid)
		}
		logger.Warn().Int("pid", pid).Msg("removing stale pidfile")
		os.Remove(p.PIDFile)
	} else if SocketResponsive(p.SocketPath, 250*time.Millisecond) {
		return nil, types.NewCodedError(types.CodeStaleState,
			"socket %s is responsive but no pidfile is present", p.SocketPath)
	}

	// A leftover socket with nobody behind it would make the bind fail.
	if !SocketResponsive(p.SocketPath, 250*time.Millisecond) {
		os.Remove(p.SocketPath)
	}

	pid := os.Getpid()
	if err := writePIDFile(p.PIDFile, pid); err != nil {
		return nil, fmt.Errorf("write pidfile: %w", err)
	}

	return &Lock{paths: p, pid: pid}, nil
}

// Release removes the pidfile and socket if this process still owns them.
func (l *Lock) Release() {
	if pid, ok := ReadPIDFile(l.paths.PIDFile); ok && pid == l.pid {
		os.Remove(l.paths.PIDFile)
	}
	os.Remove(l.paths.SocketPath)
}

// ClearStale removes pid/socket files when no live daemon is detected.
// It is idempotent and refuses to touch state held by a live process.
func ClearStale(p *Paths) error {
	if pid, ok := ReadPIDFile(p.PIDFile); ok && ProcessAlive(pid) && processMatchesDaemon(pid) {
		return types.NewCodedError(types.CodeAlreadyRunning,
			"daemon running with pid %d, refusing to clear", pid)
	}
	os.Remove(p.PIDFile)
	if !SocketResponsive(p.SocketPath, 250*time.Millisecond) {
		os.Remove(p.SocketPath)
	}
	return nil
}

// ReadPIDFile parses the pidfile, returning the recorded pid.
func ReadPIDFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// writePIDFile writes "<pid>\n" through a temp-file-then-rename so a
// crashed write never leaves a truncated pidfile behind.
func writePIDFile(path string, pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hackd.pid.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ProcessAlive reports whether a process with the given pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return err == syscall.EPERM
}

// processMatchesDaemon guards against pid reuse: the recorded pid must
// belong to a process whose command line mentions the daemon binary.
// When the command line cannot be read the check passes open, since a
// false "stale" verdict would kill a live daemon's state.
func processMatchesDaemon(pid int) bool {
	cmdline, ok := processCommandLine(pid)
	if !ok {
		return true
	}
	return strings.Contains(cmdline, "hack")
}

func processCommandLine(pid int) (string, bool) {
	if runtime.GOOS == "linux" {
		data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			return "", false
		}
		return strings.ReplaceAll(string(data), "\x00", " "), true
	}
	out, err := runPS(pid)
	if err != nil {
		return "", false
	}
	return out, true
}

// SocketResponsive reports whether something is accepting connections on
// the unix socket at path.
func SocketResponsive(path string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

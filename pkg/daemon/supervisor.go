package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/hackstack/hack/pkg/client"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/types"
)

const (
	// startDeadline bounds the readiness wait after spawning the child.
	startDeadline = 2 * time.Second
	// startPoll is the readiness polling interval.
	startPoll = 150 * time.Millisecond
	// stopDeadline bounds the graceful-termination wait before the kill
	// escalation.
	stopDeadline = 2 * time.Second
	// pingTimeout bounds the status ping used by readiness and liveness
	// checks.
	pingTimeout = 500 * time.Millisecond
)

// Supervisor manages the daemon as a background process.
type Supervisor struct {
	paths  *paths.Paths
	client *client.Client
	binary string
}

// NewSupervisor creates a supervisor. The daemon child re-execs the
// current binary in foreground mode.
func NewSupervisor(p *paths.Paths) (*Supervisor, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &Supervisor{
		paths:  p,
		client: client.New(p.SocketPath),
		binary: binary,
	}, nil
}

// Start brings the daemon up. A daemon already answering its status
// endpoint makes this a no-op; otherwise stale state is cleared, a
// detached child is spawned and readiness is polled for up to two
// seconds.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.client.Ping(ctx, pingTimeout) {
		return nil
	}

	if err := paths.ClearStale(s.paths); err != nil {
		return err
	}
	if err := s.spawn(); err != nil {
		return err
	}

	deadline := time.Now().Add(startDeadline)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startPoll):
		}
		if _, err := os.Stat(s.paths.SocketPath); err != nil {
			continue
		}
		if s.client.Ping(ctx, pingTimeout) {
			return nil
		}
	}
	return types.NewCodedError(types.CodeNotReady,
		"daemon did not become ready within %s", startDeadline)
}

// spawn launches the daemon child detached from this process: its own
// session, stdio pointed at the daemon log file.
func (s *Supervisor) spawn() error {
	logFile, err := os.OpenFile(s.paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(s.binary, "daemon", "run")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	log.WithComponent("supervisor").Debug().Int("pid", cmd.Process.Pid).Msg("daemon spawned")
	return cmd.Process.Release()
}

// Stop terminates the daemon: TERM, a bounded wait, then KILL, then
// pidfile and socket removal.
func (s *Supervisor) Stop(ctx context.Context) error {
	pid, ok := paths.ReadPIDFile(s.paths.PIDFile)
	if !ok || !paths.ProcessAlive(pid) {
		return paths.ClearStale(s.paths)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopDeadline)
	for time.Now().Before(deadline) {
		if !paths.ProcessAlive(pid) {
			return paths.ClearStale(s.paths)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	log.WithComponent("supervisor").Warn().Int("pid", pid).Msg("daemon ignored TERM, killing")
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return paths.ClearStale(s.paths)
}

// Restart is stop followed by start.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

// Status combines pid liveness, socket existence and a status ping into
// one report.
func (s *Supervisor) Status(ctx context.Context) *types.SupervisorStatus {
	pid, havePID := paths.ReadPIDFile(s.paths.PIDFile)
	processRunning := havePID && paths.ProcessAlive(pid)

	_, sockErr := os.Stat(s.paths.SocketPath)
	socketExists := sockErr == nil
	_, logErr := os.Stat(s.paths.LogFile)

	report := &types.SupervisorStatus{
		ProcessRunning: processRunning,
		SocketExists:   socketExists,
		LogExists:      logErr == nil,
	}
	if havePID {
		report.PID = pid
	}
	if socketExists {
		report.APIOk = s.client.Ping(ctx, pingTimeout)
	}

	switch {
	case processRunning && report.APIOk:
		report.Status = "running"
	case processRunning && socketExists:
		report.Status = "starting"
	case socketExists && !processRunning:
		report.Status = "stale"
		report.StaleReason = "socket-only"
	case havePID && !processRunning:
		report.Status = "stale"
		report.StaleReason = "pid-not-running"
	case processRunning:
		// Alive but the socket is not up yet.
		report.Status = "starting"
	default:
		report.Status = "stopped"
	}
	return report
}

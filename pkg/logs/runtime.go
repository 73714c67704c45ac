package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/hackstack/hack/pkg/types"
)

// ComposeSource streams live logs by spawning the runtime's compose logs
// command. The subprocess is scoped to ctx: cancellation signals it and
// both stdio pipes are closed on every exit path.
type ComposeSource struct {
	binary     string
	workingDir string
	sel        Selector
}

// NewComposeSource builds a live source for the compose project rooted at
// workingDir.
func NewComposeSource(binary, workingDir string, sel Selector) *ComposeSource {
	if binary == "" {
		binary = "docker"
	}
	return &ComposeSource{binary: binary, workingDir: workingDir, sel: sel}
}

// Run spawns the logs command and pumps both pipes until they drain.
func (s *ComposeSource) Run(ctx context.Context, emit func(types.LogEntry)) (string, error) {
	args := []string{"compose", "logs", "--timestamps", "--no-color"}
	if s.sel.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(s.sel.Tail))
	}
	if s.sel.Follow {
		args = append(args, "--follow")
	}
	args = append(args, s.sel.Services...)

	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Dir = s.workingDir
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "eof", fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "eof", fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "eof", fmt.Errorf("start %s logs: %w", s.binary, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pump(stdout, "stdout", emit)
	}()
	go func() {
		defer wg.Done()
		s.pump(stderr, "stderr", emit)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	if waitErr == nil || ctx.Err() != nil {
		return "eof", nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return fmt.Sprintf("exit:%d", exitErr.ExitCode()), nil
	}
	return "eof", waitErr
}

// pump reads one pipe line by line, preserving source order within the
// pipe.
func (s *ComposeSource) pump(pipe io.Reader, stream string, emit func(types.LogEntry)) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		service, instance, payload, ok := SplitComposeLine(line)
		if !ok {
			continue
		}
		entry := Normalize(types.SourceContainerRuntime, service, instance, stream, payload)
		entry.Project = s.sel.Project
		// Raw carries the line exactly as the runtime printed it, container
		// name prefix and timestamp included.
		entry.Raw = line
		emit(entry)
	}
}

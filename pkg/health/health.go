package health

import (
	"context"
	"sync"
	"time"

	"github.com/hackstack/hack/pkg/types"
)

// Status grades a probe outcome.
type Status string

const (
	StatusOK    Status = "ok"
	StatusWarn  Status = "warn"
	StatusError Status = "error"
)

// Result is the outcome of a single probe.
type Result struct {
	Status   Status
	Message  string
	Duration time.Duration
}

// Probe is a stateless health predicate.
type Probe interface {
	// Name identifies the probe in snapshots and logs.
	Name() string

	// Check evaluates the probe. Implementations must honor ctx.
	Check(ctx context.Context) Result
}

const (
	// DefaultTimeout bounds a single probe check.
	DefaultTimeout = 1500 * time.Millisecond

	// MaxTimeout caps any per-probe override.
	MaxTimeout = 5 * time.Second
)

// clampTimeout applies the default and the hard cap.
func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// RunAll evaluates probes concurrently, each under its clamped timeout.
// A probe that exceeds its deadline reports warn "timed out", never
// error: a slow dependency is suspicious, not proven broken. Results come
// back in probe order.
func RunAll(ctx context.Context, timeout time.Duration, probes []Probe) []types.ProbeOutcome {
	timeout = clampTimeout(timeout)
	outcomes := make([]types.ProbeOutcome, len(probes))

	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			outcomes[i] = runOne(ctx, timeout, probe)
		}(i, probe)
	}
	wg.Wait()
	return outcomes
}

func runOne(ctx context.Context, timeout time.Duration, probe Probe) types.ProbeOutcome {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- probe.Check(checkCtx)
	}()

	select {
	case res := <-done:
		if checkCtx.Err() != nil && res.Status == StatusError {
			// Deadline expiry downgraded: timeouts are warnings.
			res = Result{Status: StatusWarn, Message: "timed out", Duration: time.Since(start)}
		}
		return outcome(probe, res)
	case <-checkCtx.Done():
		return outcome(probe, Result{
			Status:   StatusWarn,
			Message:  "timed out",
			Duration: time.Since(start),
		})
	}
}

func outcome(probe Probe, res Result) types.ProbeOutcome {
	return types.ProbeOutcome{
		Name:       probe.Name(),
		Status:     string(res.Status),
		Message:    res.Message,
		DurationMs: res.Duration.Milliseconds(),
	}
}

package health

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowProbe blocks past any deadline.
type slowProbe struct{}

func (slowProbe) Name() string { return "slow" }
func (slowProbe) Check(ctx context.Context) Result {
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	return Result{Status: StatusError, Message: "should have been downgraded"}
}

func TestRunAllTimeoutIsWarn(t *testing.T) {
	outcomes := RunAll(context.Background(), 30*time.Millisecond, []Probe{slowProbe{}})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "slow", outcomes[0].Name)
	assert.Equal(t, string(StatusWarn), outcomes[0].Status)
	assert.Equal(t, "timed out", outcomes[0].Message)
}

func TestRunAllPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(present, nil, 0o644))

	probes := []Probe{
		NewFileProbe("first", present),
		NewFileProbe("second", filepath.Join(dir, "absent")),
	}
	outcomes := RunAll(context.Background(), 0, probes)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "first", outcomes[0].Name)
	assert.Equal(t, string(StatusOK), outcomes[0].Status)
	assert.Equal(t, "second", outcomes[1].Name)
	assert.Equal(t, string(StatusError), outcomes[1].Status)
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, clampTimeout(0))
	assert.Equal(t, MaxTimeout, clampTimeout(time.Minute))
	assert.Equal(t, time.Second, clampTimeout(time.Second))
}

func TestTCPProbe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	res := NewTCPProbe("listener", lis.Addr().String()).Check(context.Background())
	assert.Equal(t, StatusOK, res.Status)

	lis.Close()
	res = NewTCPProbe("closed", lis.Addr().String()).Check(context.Background())
	assert.Equal(t, StatusError, res.Status)
}

func TestBinaryProbe(t *testing.T) {
	res := NewBinaryProbe("shell", "sh").Check(context.Background())
	assert.Equal(t, StatusOK, res.Status)

	res = NewBinaryProbe("ghost", "no-such-binary-zzz").Check(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "not found")
}

func TestFileProbe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")

	res := NewFileProbe("ca", path).Check(context.Background())
	assert.Equal(t, StatusError, res.Status)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	res = NewFileProbe("ca", path).Check(context.Background())
	assert.Equal(t, StatusOK, res.Status)
}

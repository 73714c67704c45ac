package logs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstack/hack/pkg/types"
)

// writeRuntimeStub drops an executable shell script that stands in for
// the container runtime binary.
func writeRuntimeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func runComposeSource(t *testing.T, src *ComposeSource) ([]types.LogEntry, string) {
	t.Helper()
	var mu sync.Mutex
	var entries []types.LogEntry
	reason, err := src.Run(context.Background(), func(e types.LogEntry) {
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
	})
	require.NoError(t, err)
	return entries, reason
}

func TestComposeSourceKeepsOriginalLine(t *testing.T) {
	stub := writeRuntimeStub(t, "#!/bin/sh\n"+
		"echo 'api-1  | listening on :8080'\n"+
		"echo 'no delimiter here'\n")

	src := NewComposeSource(stub, t.TempDir(), Selector{Project: "webshop"})
	entries, reason := runComposeSource(t, src)

	assert.Equal(t, "eof", reason)
	require.Len(t, entries, 1, "lines without the compose delimiter are skipped")

	e := entries[0]
	assert.Equal(t, "webshop", e.Project)
	assert.Equal(t, "api", e.Service)
	assert.Equal(t, "1", e.Instance)
	assert.Equal(t, "stdout", e.Stream)
	assert.Equal(t, "listening on :8080", e.Message)
	assert.Equal(t, "api-1  | listening on :8080", e.Raw,
		"raw keeps the container name prefix")
}

func TestComposeSourceReportsExitCode(t *testing.T) {
	stub := writeRuntimeStub(t, "#!/bin/sh\nexit 3\n")

	src := NewComposeSource(stub, t.TempDir(), Selector{Project: "webshop"})
	entries, reason := runComposeSource(t, src)

	assert.Empty(t, entries)
	assert.Equal(t, "exit:3", reason)
}

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/events"
	"github.com/hackstack/hack/pkg/logs"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/runtime"
	"github.com/hackstack/hack/pkg/status"
	"github.com/hackstack/hack/pkg/token"
	"github.com/hackstack/hack/pkg/types"
)

type staticLogSource struct{ entries []types.LogEntry }

func (s staticLogSource) Run(_ context.Context, emit func(types.LogEntry)) (string, error) {
	for _, e := range s.entries {
		emit(e)
	}
	return "eof", nil
}

func testServer(t *testing.T) *Server {
	return testServerWithRuntime(t, "hackd-no-such-runtime")
}

func testServerWithRuntime(t *testing.T, runtimeBinary string) *Server {
	t.Helper()
	root := t.TempDir()
	p := paths.Paths{
		Root:         root,
		PIDFile:      filepath.Join(root, "hackd.pid"),
		SocketPath:   filepath.Join(root, "hackd.sock"),
		LogFile:      filepath.Join(root, "hackd.log"),
		RegistryFile: filepath.Join(root, "registry.json"),
		TokensFile:   filepath.Join(root, "tokens.json"),
		CountersFile: filepath.Join(root, "runtime-counters.json"),
		ConfigFile:   filepath.Join(root, "config.yaml"),
	}
	cfg, err := config.Load(p.ConfigFile)
	require.NoError(t, err)

	reg := registry.NewStore(p.RegistryFile)
	tok := token.NewStore(p.TokensFile)
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	reconciler := status.New(status.Options{
		Paths:     p,
		Registry:  reg,
		Tokens:    tok,
		Runtime:   runtime.NewClient(runtimeBinary, root),
		Config:    cfg,
		Broker:    broker,
		StartedAt: time.Now(),
	})

	pipeline := logs.NewPipeline(func(logs.Selector) logs.Source {
		ts := time.Now()
		return staticLogSource{entries: []types.LogEntry{{
			Source:    types.SourceContainerRuntime,
			Service:   "api",
			Message:   "hello",
			Level:     types.LevelInfo,
			Timestamp: &ts,
			Raw:       "hello",
		}}}
	}, nil, 0)

	return NewServer(Options{
		Paths:      p,
		Registry:   reg,
		Tokens:     tok,
		Reconciler: reconciler,
		Pipeline:   pipeline,
		Broker:     broker,
		Config:     cfg,
	})
}

func registerDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "webshop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestStatusEndpoint(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	var snap types.StatusSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.GreaterOrEqual(t, snap.Version, uint64(1))
	assert.False(t, snap.Runtime.OK)
}

func TestProjectLifecycle(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	dir := registerDir(t)
	body, _ := json.Marshal(map[string]string{"repoRoot": dir, "projectDir": dir})
	resp, err := http.Post(ts.URL+"/v1/projects", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result registry.UpsertResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, registry.StatusInserted, result.Status)
	assert.Equal(t, "webshop", result.Project.Name)

	// Same name from a different repo root conflicts.
	other := registerDir(t)
	body, _ = json.Marshal(map[string]string{"repoRoot": other, "projectDir": other, "name": "webshop"})
	resp, err = http.Post(ts.URL+"/v1/projects", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var errBody errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, types.CodeProjectConflict, errBody.Code)
	assert.Contains(t, errBody.Details, "incumbent")

	// Listing returns the registered project.
	resp, err = http.Get(ts.URL + "/v1/projects")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list projectList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Projects, 1)

	// Pruning an unknown id is a no-op.
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/projects/not-an-id", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestProjectValidation(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/projects", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, types.CodeInvalidRequest, errBody.Code)
}

func TestTokenLifecycle(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"label": "ci", "scope": "read"})
	resp, err := http.Post(ts.URL+"/v1/tokens", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var minted mintResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&minted))
	assert.Len(t, minted.Secret, 64)
	assert.Empty(t, minted.Token.Hash)

	// Listing never includes hashes.
	resp, err = http.Get(ts.URL + "/v1/tokens")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list tokenList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Tokens, 1)
	assert.Empty(t, list.Tokens[0].Hash)

	// Revoke, then revoking an unknown id is 404.
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/tokens/"+minted.Token.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/tokens/missing", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidScopeRejected(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"scope": "admin"})
	resp, err := http.Post(ts.URL+"/v1/tokens", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, types.CodeInvalidScope, errBody.Code)
}

func TestGatewayRequiresBearerToken(t *testing.T) {
	srv := testServer(t)
	trusted := httptest.NewServer(srv.routes(true))
	defer trusted.Close()
	gateway := httptest.NewServer(srv.routes(false))
	defer gateway.Close()

	// No token: uniform 401.
	resp, err := http.Get(gateway.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errBody errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, types.CodeUnauthorized, errBody.Code)

	// Mint a read token over the trusted listener.
	body, _ := json.Marshal(map[string]string{"label": "viewer", "scope": "read"})
	resp, err = http.Post(trusted.URL+"/v1/tokens", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var minted mintResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&minted))
	resp.Body.Close()

	// Read scope covers GET.
	req, _ := http.NewRequest(http.MethodGet, gateway.URL+"/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+minted.Secret)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Read scope does not cover writes.
	dir := registerDir(t)
	body, _ = json.Marshal(map[string]string{"repoRoot": dir, "projectDir": dir})
	req, _ = http.NewRequest(http.MethodPost, gateway.URL+"/v1/projects", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+minted.Secret)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRevokedTokenRejected(t *testing.T) {
	srv := testServer(t)
	trusted := httptest.NewServer(srv.routes(true))
	defer trusted.Close()
	gateway := httptest.NewServer(srv.routes(false))
	defer gateway.Close()

	body, _ := json.Marshal(map[string]string{"label": "temp", "scope": "read"})
	resp, err := http.Post(trusted.URL+"/v1/tokens", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var minted mintResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&minted))
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, trusted.URL+"/v1/tokens/"+minted.Token.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodGet, gateway.URL+"/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+minted.Secret)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogsStream(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/logs?project=webshop")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []logs.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev logs.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		got = append(got, ev)
	}

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, logs.EventStart, got[0].Type)
	assert.Equal(t, logs.EventLog, got[1].Type)
	assert.Equal(t, "hello", got[1].Entry.Message)
	assert.Equal(t, logs.EventEnd, got[len(got)-1].Type)
	assert.Equal(t, "eof", got[len(got)-1].Reason)
}

func TestMetricsView(t *testing.T) {
	ts := httptest.NewServer(testServer(t).routes(true))
	defer ts.Close()

	// Generate some traffic first.
	resp, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view CountersView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.NotEmpty(t, view.Requests)
	assert.GreaterOrEqual(t, view.StatusSnapshots.Generations, uint64(1))
}

func TestStatusRequestDeadlineYieldsTimeout(t *testing.T) {
	// A runtime stub slower than the request deadline. exec replaces the
	// shell so cancellation kills the sleep itself.
	stub := filepath.Join(t.TempDir(), "runtime")
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\nexec sleep 1\n"), 0o755))

	ts := httptest.NewServer(testServerWithRuntime(t, stub).routes(true))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderDeadline, "50")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Less(t, time.Since(start), time.Second, "expiry must not wait out the stub")

	var errBody errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, types.CodeTimeout, errBody.Code)
}

func TestDeadlineExpiryMapsToTimeout(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)

	writeError(rec, req, fmt.Errorf("gather: %w", context.DeadlineExceeded))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var errBody errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, types.CodeTimeout, errBody.Code)
}

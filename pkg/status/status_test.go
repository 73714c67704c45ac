package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/events"
	"github.com/hackstack/hack/pkg/health"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/runtime"
	"github.com/hackstack/hack/pkg/token"
	"github.com/hackstack/hack/pkg/types"
)

type staticProbe struct {
	name   string
	status health.Status
}

func (p staticProbe) Name() string { return p.name }
func (p staticProbe) Check(context.Context) health.Result {
	return health.Result{Status: p.status}
}

func testReconciler(t *testing.T, probes []health.Probe) (*Reconciler, paths.Paths) {
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

	return New(Options{
		Paths:    p,
		Registry: registry.NewStore(p.RegistryFile),
		Tokens:   token.NewStore(p.TokensFile),
		// The binary does not exist, so the inventory reports the
		// runtime unavailable without failing the snapshot.
		Runtime:   runtime.NewClient("hackd-no-such-runtime", root),
		Config:    cfg,
		Probes:    probes,
		StartedAt: time.Now(),
	}), p
}

func registerProject(t *testing.T, p paths.Paths, name string, services string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if services != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "compose.yaml"), []byte(services), 0o644))
	}

	store := registry.NewStore(p.RegistryFile)
	res, err := store.Upsert(registry.ProjectContext{RepoRoot: dir, ProjectDir: dir, Name: name})
	require.NoError(t, err)
	require.Equal(t, registry.StatusInserted, res.Status)
	return dir
}

func TestSnapshotRuntimeUnavailableIsNotFatal(t *testing.T) {
	r, _ := testReconciler(t, nil)

	snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	assert.False(t, snap.Runtime.OK)
	assert.NotEmpty(t, snap.Runtime.Error)
	assert.False(t, snap.Summary.Runtime)
	assert.False(t, snap.Summary.OK)
	// Probe-backed subsystems default to healthy when unprobed.
	assert.True(t, snap.Summary.Proxy)
	assert.True(t, snap.Summary.Logging)
}

func TestSnapshotExpiredDeadlineIsFatal(t *testing.T) {
	r, _ := testReconciler(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	// All sections degrade quietly under an expired context, so the
	// snapshot must fail with the deadline error instead of succeeding
	// with hollow sections.
	_, err := r.Snapshot(ctx, SnapshotOptions{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSnapshotVersionIsMonotonic(t *testing.T) {
	r, _ := testReconciler(t, nil)

	first, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)
	second, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.Version+1, second.Version)
	assert.Equal(t, second.Version, r.Version())
}

func TestSnapshotProjectProjection(t *testing.T) {
	r, p := testReconciler(t, nil)
	registerProject(t, p, "webshop", "services:\n  api: {}\n  db: {}\n")

	snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	require.Len(t, snap.Projects, 1)
	proj := snap.Projects[0]
	assert.Equal(t, "webshop", proj.Name)
	assert.NotEmpty(t, proj.ID)
	assert.Equal(t, []string{"api", "db"}, proj.DefinedServices)
	// No containers anywhere, but the project dir exists on disk.
	assert.Equal(t, types.ProjectStopped, proj.Status)
	assert.Equal(t, 0, proj.RunningCount)
}

func TestInfraProjectsNeverProjected(t *testing.T) {
	r, _ := testReconciler(t, nil)

	inv := &runtime.Inventory{Projects: map[string]*runtime.ProjectInventory{
		"hack-proxy": {Label: "hack-proxy", Infra: true},
		"webshop":    {Label: "webshop"},
	}}

	out := r.projectSections(nil, inv, SnapshotOptions{IncludeUnregistered: true})
	require.Len(t, out, 1)
	assert.Equal(t, "webshop", out[0].Name)
	assert.Equal(t, types.ProjectUnregistered, out[0].Status)
}

func TestSnapshotMissingProjectDir(t *testing.T) {
	r, p := testReconciler(t, nil)
	dir := registerProject(t, p, "ghost", "")
	require.NoError(t, os.RemoveAll(dir))

	snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	require.Len(t, snap.Projects, 1)
	assert.Equal(t, types.ProjectMissing, snap.Projects[0].Status)
}

func TestSnapshotSummaryConjunction(t *testing.T) {
	cases := []struct {
		name   string
		probes []health.Probe
		wantOK bool
	}{
		{"all healthy", []health.Probe{
			staticProbe{ProbeProxy, health.StatusOK},
			staticProbe{ProbeLogging, health.StatusOK},
			staticProbe{ProbeNetworks, health.StatusOK},
		}, false}, // runtime is down in this harness, so ok stays false
		{"proxy error", []health.Probe{
			staticProbe{ProbeProxy, health.StatusError},
		}, false},
		{"warn does not flip summary", []health.Probe{
			staticProbe{ProbeLogging, health.StatusWarn},
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := testReconciler(t, tc.probes)
			snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
			require.NoError(t, err)

			conjunction := snap.Summary.Runtime && snap.Summary.Proxy &&
				snap.Summary.Logging && snap.Summary.Networks
			assert.Equal(t, conjunction, snap.Summary.OK)
			assert.Equal(t, tc.wantOK, snap.Summary.OK)
		})
	}
}

func TestSnapshotWarnProbeKeepsSubsystemHealthy(t *testing.T) {
	r, _ := testReconciler(t, []health.Probe{
		staticProbe{ProbeLogging, health.StatusWarn},
	})

	snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	assert.True(t, snap.Summary.Logging)
	require.Len(t, snap.Probes, 1)
	assert.Equal(t, "warn", snap.Probes[0].Status)
}

func TestSnapshotPublishesChangeEvent(t *testing.T) {
	r, _ := testReconciler(t, nil)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	r.opts.Broker = broker

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	select {
	case event := <-sub:
		assert.Equal(t, snap.Version, event.Version)
	case <-time.After(time.Second):
		t.Fatal("no change event published")
	}
}

func TestSnapshotGatewaySection(t *testing.T) {
	r, p := testReconciler(t, nil)

	ts := token.NewStore(p.TokensFile)
	_, err := ts.Mint(token.MintRequest{Label: "ci", Scope: types.ScopeRead})
	require.NoError(t, err)

	snap, err := r.Snapshot(context.Background(), SnapshotOptions{})
	require.NoError(t, err)

	assert.False(t, snap.Gateway.Enabled)
	assert.Equal(t, 1, snap.Gateway.TokensLive)
	assert.Equal(t, 1, snap.Gateway.TokensTotal)
	require.Len(t, snap.Gateway.Exposures, 3)
	for _, exp := range snap.Gateway.Exposures {
		assert.Equal(t, types.ExposureDisabled, exp.State, string(exp.Kind))
	}
}

package status

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/events"
	"github.com/hackstack/hack/pkg/health"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/metrics"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/runtime"
	"github.com/hackstack/hack/pkg/token"
	"github.com/hackstack/hack/pkg/types"
)

// GatherBudget caps the wall-clock spent assembling one snapshot.
const GatherBudget = 3 * time.Second

// Canonical probe names the summary rollup keys on. Probes with other
// names still appear in the snapshot but do not drive summary flags.
const (
	ProbeRuntime  = "runtime"
	ProbeProxy    = "proxy"
	ProbeDNS      = "dns"
	ProbeLogging  = "log-store"
	ProbeNetworks = "networks"
)

// Options wires the reconciler's collaborators.
type Options struct {
	Paths     paths.Paths
	Registry  *registry.Store
	Tokens    *token.Store
	Runtime   *runtime.Client
	Config    *config.Config
	Probes    []health.Probe
	Broker    *events.Broker
	StartedAt time.Time
}

// SnapshotOptions are per-request knobs.
type SnapshotOptions struct {
	// IncludeUnregistered surfaces compose projects the runtime knows
	// about but the registry does not.
	IncludeUnregistered bool
}

// Reconciler assembles StatusSnapshots from the registry, the container
// inventory, the token store, the gateway config and the probe set.
type Reconciler struct {
	opts     Options
	counters *counterStore
	version  atomic.Uint64
}

// New creates a reconciler. The runtime-health counters persist to the
// counters sidecar under the state root so they survive restarts.
func New(opts Options) *Reconciler {
	return &Reconciler{
		opts:     opts,
		counters: newCounterStore(opts.Paths.CountersFile),
	}
}

// Version returns the most recently issued snapshot version.
func (r *Reconciler) Version() uint64 {
	return r.version.Load()
}

// Snapshot gathers all sections in parallel and assembles a versioned
// snapshot. Section failures degrade the snapshot rather than failing it;
// only context exhaustion before any section completes is fatal.
func (r *Reconciler) Snapshot(ctx context.Context, snapOpts SnapshotOptions) (*types.StatusSnapshot, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, GatherBudget)
	defer cancel()

	var (
		inv       *runtime.Inventory
		projects  []*types.Project
		outcomes  []types.ProbeOutcome
		live, tot int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inv, err = r.opts.Runtime.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = r.registeredProjects()
		return err
	})
	g.Go(func() error {
		outcomes = health.RunAll(gctx, health.DefaultTimeout, r.opts.Probes)
		return nil
	})
	g.Go(func() error {
		var err error
		live, tot, err = r.opts.Tokens.Counts()
		if err != nil {
			log.WithComponent("status").Warn().Err(err).Msg("token counts unavailable")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Sections killed by an expired caller deadline report themselves as
	// degraded with a nil error, so the deadline has to be checked here to
	// surface as a timeout instead of a hollow snapshot.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if inv == nil {
		inv = &runtime.Inventory{Projects: map[string]*runtime.ProjectInventory{}}
	}

	snap := &types.StatusSnapshot{
		Version:     r.version.Add(1),
		GeneratedAt: started,
		Daemon:      r.daemonSection(),
		Runtime:     r.runtimeSection(inv, outcomes, started),
		Projects:    r.projectSections(projects, inv, snapOpts),
		Gateway:     r.gatewaySection(live, tot),
		Probes:      outcomes,
	}
	snap.Summary = summarize(snap.Runtime.OK, outcomes)

	metrics.StatusSnapshotVersion.Set(float64(snap.Version))
	metrics.StatusGenerationDuration.Observe(time.Since(started).Seconds())
	if r.opts.Broker != nil {
		r.opts.Broker.Publish(snap.Version)
	}
	return snap, nil
}

func (r *Reconciler) registeredProjects() ([]*types.Project, error) {
	listed, err := r.opts.Registry.List()
	if err != nil {
		log.WithComponent("status").Warn().Err(err).Msg("registry listing unavailable")
		return nil, nil
	}
	return listed, nil
}

func (r *Reconciler) daemonSection() types.DaemonSection {
	_, pidErr := os.Stat(r.opts.Paths.PIDFile)
	_, sockErr := os.Stat(r.opts.Paths.SocketPath)
	return types.DaemonSection{
		PID:           os.Getpid(),
		Ready:         true,
		PIDFileExists: pidErr == nil,
		SocketExists:  sockErr == nil,
		StartedAt:     r.opts.StartedAt,
	}
}

// runtimeSection folds the inventory result and the proxy probe into the
// persisted health counters. Runtime health is down when the inventory is
// unavailable or the reverse proxy probes as error.
func (r *Reconciler) runtimeSection(inv *runtime.Inventory, outcomes []types.ProbeOutcome, now time.Time) types.RuntimeSection {
	ok := inv.Unavailable == ""
	if probeFailed(outcomes, ProbeProxy) {
		ok = false
	}

	section, reset, err := r.counters.observe(ok, now)
	if err != nil {
		log.WithComponent("status").Warn().Err(err).Msg("runtime counters not persisted")
	}
	if reset {
		metrics.RuntimeResetsTotal.Inc()
	}
	section.Error = inv.Unavailable
	return section
}

// projectSections merges the registry listing with the container
// inventory. Registered projects always appear; inventory-only compose
// projects appear as unregistered when the caller opts in, and the
// stack's own infra projects never appear here.
func (r *Reconciler) projectSections(projects []*types.Project, inv *runtime.Inventory, opts SnapshotOptions) []types.ProjectProjection {
	out := make([]types.ProjectProjection, 0, len(projects))
	claimed := make(map[string]bool)

	for _, p := range projects {
		entry := matchInventory(inv, p.Name)
		if entry != nil {
			claimed[entry.Label] = true
		}
		out = append(out, projectProjection(p, entry))
	}

	if opts.IncludeUnregistered {
		for _, entry := range inv.SortedProjects() {
			// Infra stacks (proxy, DNS, log store) surface through the
			// probe set and summary flags, never as projections, even
			// when unregistered projections were requested.
			if claimed[entry.Label] || entry.Infra {
				continue
			}
			out = append(out, types.ProjectProjection{
				Name:            entry.Label,
				Status:          types.ProjectUnregistered,
				RuntimeServices: entry.ServiceNames(),
				RunningCount:    entry.RunningServices(),
				Containers:      entry.ContainerCount(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func projectProjection(p *types.Project, entry *runtime.ProjectInventory) types.ProjectProjection {
	proj := types.ProjectProjection{
		ID:       p.ID,
		Name:     p.Name,
		RepoRoot: p.RepoRoot,
		DevHost:  p.DevHost,
	}

	if composePath := runtime.FindComposeFile(p.ProjectDir); composePath != "" {
		if services, err := runtime.ComposeServices(composePath); err == nil {
			proj.DefinedServices = services
		}
	}
	if entry != nil {
		proj.RuntimeServices = entry.ServiceNames()
		proj.RunningCount = entry.RunningServices()
		proj.Containers = entry.ContainerCount()
	}

	switch {
	case !dirExists(p.ProjectDir):
		proj.Status = types.ProjectMissing
	case proj.RunningCount > 0:
		proj.Status = types.ProjectRunning
	default:
		proj.Status = types.ProjectStopped
	}
	return proj
}

// matchInventory resolves a registered project to its compose project by
// label. Compose project names are the slug the registry minted, so an
// exact fold-insensitive match suffices.
func matchInventory(inv *runtime.Inventory, name string) *runtime.ProjectInventory {
	if entry, ok := inv.Projects[name]; ok {
		return entry
	}
	lower := strings.ToLower(name)
	for label, entry := range inv.Projects {
		if strings.ToLower(label) == lower {
			return entry
		}
	}
	return nil
}

func (r *Reconciler) gatewaySection(live, total int) types.GatewaySection {
	gw := r.opts.Config.Gateway
	section := types.GatewaySection{
		Enabled:     gw.Enabled,
		AllowWrites: gw.AllowWrites,
		TokensLive:  live,
		TokensTotal: total,
	}
	if gw.Enabled {
		section.Bind = gw.Bind
		section.Port = gw.Port
	}
	section.Exposures = evaluateExposures(r.opts.Config, true, lookPath)
	return section
}

// summarize computes the per-subsystem rollup. A probe counts as healthy
// unless it reports error; warn (including timeouts) degrades the probe
// listing without flipping the summary. OK is the conjunction of the four
// subsystem flags.
func summarize(runtimeOk bool, outcomes []types.ProbeOutcome) types.SummarySection {
	s := types.SummarySection{
		Runtime:  runtimeOk,
		Proxy:    !probeFailed(outcomes, ProbeProxy),
		Logging:  !probeFailed(outcomes, ProbeLogging),
		Networks: !probeFailed(outcomes, ProbeNetworks),
	}
	s.OK = s.Runtime && s.Proxy && s.Logging && s.Networks
	return s
}

func probeFailed(outcomes []types.ProbeOutcome, name string) bool {
	for _, o := range outcomes {
		if o.Name == name && o.Status == string(health.StatusError) {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

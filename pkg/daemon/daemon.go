package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/hackstack/hack/pkg/api"
	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/events"
	"github.com/hackstack/hack/pkg/health"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/logs"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/runtime"
	"github.com/hackstack/hack/pkg/status"
	"github.com/hackstack/hack/pkg/token"
)

// RunOptions configures a foreground daemon run.
type RunOptions struct {
	Paths   *paths.Paths
	Config  *config.Config
	Version string
}

// Run executes the daemon in the foreground until ctx is canceled. It
// owns the pidfile lock and the socket for its lifetime.
func Run(ctx context.Context, opts RunOptions) error {
	lock, err := paths.AcquireLock(opts.Paths)
	if err != nil {
		return err
	}
	defer lock.Release()

	logFile, err := log.InitDaemon(opts.Paths.LogFile, log.Level(opts.Config.LogLevel))
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := log.WithComponent("daemon")
	logger.Info().Str("version", opts.Version).Str("root", opts.Paths.Root).Msg("daemon starting")

	reg := registry.NewStore(opts.Paths.RegistryFile)
	tok := token.NewStore(opts.Paths.TokensFile)
	rt := runtime.NewClient(opts.Config.RuntimeBinary, opts.Paths.Root)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	reconciler := status.New(status.Options{
		Paths:     *opts.Paths,
		Registry:  reg,
		Tokens:    tok,
		Runtime:   rt,
		Config:    opts.Config,
		Probes:    defaultProbes(opts.Config, rt),
		Broker:    broker,
		StartedAt: time.Now(),
	})

	pipeline := logs.NewPipeline(
		func(sel logs.Selector) logs.Source {
			return logs.NewComposeSource(opts.Config.RuntimeBinary, projectWorkingDir(reg, sel.Project), sel)
		},
		logStoreClient(opts.Config),
		logs.DefaultQueueSize,
	)

	server := api.NewServer(api.Options{
		Paths:      *opts.Paths,
		Registry:   reg,
		Tokens:     tok,
		Reconciler: reconciler,
		Pipeline:   pipeline,
		Broker:     broker,
		Config:     opts.Config,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("daemon shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// defaultProbes builds the probe set behind the snapshot summary: the
// runtime binary and socket, the reverse proxy, DNS, the log store and
// the shared network.
func defaultProbes(cfg *config.Config, rt *runtime.Client) []health.Probe {
	probes := []health.Probe{
		health.NewRuntimeProbe(status.ProbeRuntime, rt),
		health.NewTCPProbe(status.ProbeProxy, cfg.ProxyAddr),
		health.NewDNSProbe(status.ProbeDNS, cfg.DNSAddr, "hack.localhost.", nil),
		health.NewNetworkProbe(status.ProbeNetworks, cfg.RuntimeBinary, "hack-shared", ""),
	}
	if host := hostPort(cfg.LogStoreURL); host != "" {
		probes = append(probes, health.NewTCPProbe(status.ProbeLogging, host))
	}
	return probes
}

// projectWorkingDir resolves a project name to the directory its compose
// stack runs from. Unknown names fall back to the name itself so the
// runtime reports its own error.
func projectWorkingDir(reg *registry.Store, project string) string {
	if project == "" {
		return "."
	}
	if p, err := reg.ResolveByName(project); err == nil && p != nil {
		return p.ProjectDir
	}
	return project
}

func logStoreClient(cfg *config.Config) *logs.StoreClient {
	if cfg.LogStoreURL == "" {
		return nil
	}
	return logs.NewStoreClient(cfg.LogStoreURL)
}

func hostPort(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	return host
}

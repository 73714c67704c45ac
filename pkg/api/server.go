package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/events"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/logs"
	"github.com/hackstack/hack/pkg/metrics"
	"github.com/hackstack/hack/pkg/paths"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/status"
	"github.com/hackstack/hack/pkg/token"
)

// RequestCap is the server-wide handler deadline. Stream endpoints are
// exempt.
const RequestCap = 5 * time.Second

// Options wires the server's collaborators.
type Options struct {
	Paths      paths.Paths
	Registry   *registry.Store
	Tokens     *token.Store
	Reconciler *status.Reconciler
	Pipeline   *logs.Pipeline
	Broker     *events.Broker
	Config     *config.Config
}

// Server is the daemon's HTTP surface: a UDS listener trusted by file
// permissions, plus an optional TCP gateway listener that requires bearer
// tokens.
type Server struct {
	opts    Options
	uds     *http.Server
	gateway *http.Server
}

// NewServer builds the server. Nothing listens until Start.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts}
	s.uds = &http.Server{Handler: s.routes(true)}
	if opts.Config.Gateway.Enabled {
		s.gateway = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", opts.Config.Gateway.Bind, opts.Config.Gateway.Port),
			Handler: s.routes(false),
		}
	}
	return s
}

// Start opens the socket listeners and serves until Shutdown. The unix
// socket is recreated on every start and restricted to the owning user.
func (s *Server) Start() error {
	logger := log.WithComponent("api")

	if err := os.Remove(s.opts.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.opts.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Paths.SocketPath, err)
	}
	if err := os.Chmod(s.opts.Paths.SocketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("socket", s.opts.Paths.SocketPath).Msg("api listening")
		if err := s.uds.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	if s.gateway != nil {
		go func() {
			logger.Info().Str("addr", s.gateway.Addr).Msg("gateway listening")
			if err := s.gateway.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	return <-errCh
}

// Shutdown drains in-flight requests and removes the socket.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.uds.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if s.gateway != nil {
		if err := s.gateway.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := os.Remove(s.opts.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// routes assembles the router. trusted marks the UDS listener, whose
// callers are authenticated by socket file permissions; the gateway
// listener requires bearer tokens instead.
func (s *Server) routes(trusted bool) http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.instrument)
	if !trusted {
		r.Use(s.authenticate)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.deadline)

			r.Get("/status", s.handleStatus)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/projects", s.handleListProjects)
			r.Post("/projects", s.handleUpsertProject)
			r.Delete("/projects/{id}", s.handleRemoveProject)
			r.Get("/tokens", s.handleListTokens)
			r.Post("/tokens", s.handleMintToken)
			r.Delete("/tokens/{id}", s.handleRevokeToken)
		})

		// Stream endpoints are exempt from the request cap; they end
		// on client disconnect.
		r.Get("/logs", s.handleLogs)
		r.Get("/events", s.handleEvents)
	})

	if trusted {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	return r
}

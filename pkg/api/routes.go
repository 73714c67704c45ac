package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackstack/hack/pkg/logs"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/status"
	"github.com/hackstack/hack/pkg/token"
	"github.com/hackstack/hack/pkg/types"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Reconciler.Snapshot(r.Context(), status.SnapshotOptions{
		IncludeUnregistered: r.URL.Query().Get("all") == "true",
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	view, err := gatherCounters()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type projectList struct {
	Projects []*types.Project `json:"projects"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	listed, err := s.opts.Registry.List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectList{Projects: listed})
}

type upsertRequest struct {
	RepoRoot          string `json:"repoRoot"`
	ProjectDir        string `json:"projectDir"`
	Name              string `json:"name,omitempty"`
	DevHost           string `json:"devHost,omitempty"`
	ConfigFingerprint string `json:"configFingerprint,omitempty"`
}

func (s *Server) handleUpsertProject(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, types.NewCodedError(types.CodeInvalidRequest, "invalid request body"))
		return
	}
	if req.RepoRoot == "" || req.ProjectDir == "" {
		writeError(w, r, types.NewCodedError(types.CodeInvalidRequest, "repoRoot and projectDir are required"))
		return
	}

	result, err := s.opts.Registry.Upsert(registry.ProjectContext{
		RepoRoot:          req.RepoRoot,
		ProjectDir:        req.ProjectDir,
		Name:              req.Name,
		DevHost:           req.DevHost,
		ConfigFingerprint: req.ConfigFingerprint,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Status == registry.StatusConflict {
		writeError(w, r, types.NewCodedError(types.CodeProjectConflict,
			"name %q is registered to a different repository", result.Incumbent.Name).
			WithDetail("incumbent", result.Incumbent).
			WithDetail("incoming", result.Incoming))
		return
	}

	code := http.StatusOK
	if result.Status == registry.StatusInserted {
		code = http.StatusCreated
	}
	writeJSON(w, code, result)
}

func (s *Server) handleRemoveProject(w http.ResponseWriter, r *http.Request) {
	// Removing an unknown id is a no-op, not an error.
	if err := s.opts.Registry.Remove([]string{chi.URLParam(r, "id")}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tokenList struct {
	Tokens []*types.GatewayToken `json:"tokens"`
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	listed, err := s.opts.Tokens.List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Hashes stay server-side.
	redacted := make([]*types.GatewayToken, 0, len(listed))
	for _, t := range listed {
		copied := *t
		copied.Hash = ""
		redacted = append(redacted, &copied)
	}
	writeJSON(w, http.StatusOK, tokenList{Tokens: redacted})
}

type mintRequest struct {
	Label     string           `json:"label,omitempty"`
	Scope     types.TokenScope `json:"scope"`
	ProjectID string           `json:"projectId,omitempty"`
}

type mintResponse struct {
	Token  *types.GatewayToken `json:"token"`
	Secret string              `json:"secret"`
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, types.NewCodedError(types.CodeInvalidRequest, "invalid request body"))
		return
	}

	result, err := s.opts.Tokens.Mint(token.MintRequest{
		Label:     req.Label,
		Scope:     req.Scope,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	record := *result.Record
	record.Hash = ""
	writeJSON(w, http.StatusCreated, mintResponse{Token: &record, Secret: result.Secret})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Tokens.Revoke(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogs streams pipeline events as one JSON object per line until
// the source ends or the client disconnects.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	sel, err := selectorFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, types.NewCodedError(types.CodeInternal, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reader := s.opts.Pipeline.Stream(r.Context(), sel)
	enc := json.NewEncoder(w)
	for {
		event, ok := reader.Next(r.Context())
		if !ok {
			return
		}
		if err := enc.Encode(event); err != nil {
			return
		}
		flusher.Flush()
		if event.Type == logs.EventEnd {
			return
		}
	}
}

func selectorFromQuery(r *http.Request) (logs.Selector, error) {
	q := r.URL.Query()
	sel := logs.Selector{
		Project:  q.Get("project"),
		Services: q["service"],
		Follow:   q.Get("follow") == "true",
	}
	if raw := q.Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return sel, types.NewCodedError(types.CodeInvalidRequest, "tail must be a non-negative integer")
		}
		sel.Tail = n
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return sel, types.NewCodedError(types.CodeInvalidRequest, "since must be an RFC3339 timestamp")
		}
		sel.Since = ts
	}
	return sel, nil
}

// handleEvents streams status-change notifications as one JSON object per
// line until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, types.NewCodedError(types.CodeInternal, "streaming unsupported"))
		return
	}

	sub := s.opts.Broker.Subscribe()
	defer s.opts.Broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case event, open := <-sub:
			if !open {
				return
			}
			if err := enc.Encode(event); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

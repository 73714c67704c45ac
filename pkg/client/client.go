package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hackstack/hack/pkg/events"
	"github.com/hackstack/hack/pkg/logs"
	"github.com/hackstack/hack/pkg/registry"
	"github.com/hackstack/hack/pkg/types"
)

// Client talks to the daemon over its unix socket. The host in request
// URLs is a placeholder; the transport always dials the socket.
type Client struct {
	httpc *http.Client
	base  string
}

// New creates a client for the daemon socket at socketPath.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		httpc: &http.Client{Transport: transport},
		base:  "http://hackd",
	}
}

// Ping reports whether the daemon answers its status endpoint within
// timeout.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var snap types.StatusSnapshot
	return c.get(ctx, "/v1/status", &snap) == nil
}

// Status fetches a fresh status snapshot.
func (c *Client) Status(ctx context.Context, includeAll bool) (*types.StatusSnapshot, error) {
	path := "/v1/status"
	if includeAll {
		path += "?all=true"
	}
	var snap types.StatusSnapshot
	if err := c.get(ctx, path, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Metrics fetches the JSON counters projection.
func (c *Client) Metrics(ctx context.Context) (map[string]any, error) {
	var view map[string]any
	if err := c.get(ctx, "/v1/metrics", &view); err != nil {
		return nil, err
	}
	return view, nil
}

// Projects lists the registry.
func (c *Client) Projects(ctx context.Context) ([]*types.Project, error) {
	var body struct {
		Projects []*types.Project `json:"projects"`
	}
	if err := c.get(ctx, "/v1/projects", &body); err != nil {
		return nil, err
	}
	return body.Projects, nil
}

// UpsertProject describes a project registration request.
type UpsertProject struct {
	RepoRoot   string `json:"repoRoot"`
	ProjectDir string `json:"projectDir"`
	Name       string `json:"name,omitempty"`
	DevHost    string `json:"devHost,omitempty"`
}

// RegisterProject upserts one project.
func (c *Client) RegisterProject(ctx context.Context, req UpsertProject) (*registry.UpsertResult, error) {
	var result registry.UpsertResult
	if err := c.post(ctx, "/v1/projects", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoveProject prunes one project by id. Unknown ids are a no-op.
func (c *Client) RemoveProject(ctx context.Context, id string) error {
	return c.delete(ctx, "/v1/projects/"+url.PathEscape(id))
}

// Tokens lists gateway tokens without secrets.
func (c *Client) Tokens(ctx context.Context) ([]*types.GatewayToken, error) {
	var body struct {
		Tokens []*types.GatewayToken `json:"tokens"`
	}
	if err := c.get(ctx, "/v1/tokens", &body); err != nil {
		return nil, err
	}
	return body.Tokens, nil
}

// MintedToken is a mint response: the record plus the plaintext secret,
// shown exactly once.
type MintedToken struct {
	Token  *types.GatewayToken `json:"token"`
	Secret string              `json:"secret"`
}

// MintToken creates a gateway token.
func (c *Client) MintToken(ctx context.Context, label string, scope types.TokenScope, projectID string) (*MintedToken, error) {
	req := map[string]string{"label": label, "scope": string(scope), "projectId": projectID}
	var minted MintedToken
	if err := c.post(ctx, "/v1/tokens", req, &minted); err != nil {
		return nil, err
	}
	return &minted, nil
}

// RevokeToken revokes a token by id.
func (c *Client) RevokeToken(ctx context.Context, id string) error {
	return c.delete(ctx, "/v1/tokens/"+url.PathEscape(id))
}

// StreamLogs opens the log stream for query and calls fn per event until
// the end event, an error, or ctx cancellation.
func (c *Client) StreamLogs(ctx context.Context, query url.Values, fn func(logs.Event) error) error {
	resp, err := c.open(ctx, "/v1/logs?"+query.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event logs.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return fmt.Errorf("decode log event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
		if event.Type == logs.EventEnd {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// StreamEvents follows status-change notifications until ctx ends.
func (c *Client) StreamEvents(ctx context.Context, fn func(events.Change) error) error {
	resp, err := c.open(ctx, "/v1/events")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var change events.Change
		if err := json.Unmarshal(scanner.Bytes(), &change); err != nil {
			return fmt.Errorf("decode change event: %w", err)
		}
		if err := fn(change); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// open performs a GET and leaves the body open for the caller.
func (c *Client) open(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// do executes the request and converts non-2xx responses into coded
// errors using the server's error envelope.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var body struct {
		Code    types.Code     `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return nil, types.NewCodedError(types.CodeInternal, "daemon returned %s", resp.Status)
	}
	return nil, &types.CodedError{Code: body.Code, Message: body.Message, Details: body.Details}
}

package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hackstack/hack/pkg/types"
)

// StoreClient queries the log store's HTTP endpoint for historical
// entries. The store answers with a stream of JSON tuples, one value per
// entry.
type StoreClient struct {
	baseURL string
	client  *http.Client
}

// NewStoreClient creates a client against the store's base URL.
func NewStoreClient(baseURL string) *StoreClient {
	return &StoreClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// storeTuple is one entry in the store's response stream.
type storeTuple struct {
	Labels      map[string]string `json:"labels"`
	TimestampNs json.Number       `json:"timestampNs"`
	Line        string            `json:"line"`
}

// Query drains the window described by sel. Entries come back in store
// order, each normalized through the same payload parsing as live lines.
func (c *StoreClient) Query(ctx context.Context, sel Selector) ([]types.LogEntry, error) {
	endpoint, err := url.Parse(c.baseURL + "/api/v1/query")
	if err != nil {
		return nil, fmt.Errorf("store url: %w", err)
	}
	params := endpoint.Query()
	if sel.Project != "" {
		params.Set("project", sel.Project)
	}
	if !sel.Since.IsZero() {
		params.Set("start", strconv.FormatInt(sel.Since.UnixNano(), 10))
	}
	if sel.Tail > 0 {
		params.Set("limit", strconv.Itoa(sel.Tail))
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query log store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("log store returned %s", resp.Status)
	}
	return decodeTuples(resp.Body, sel.Project)
}

// decodeTuples consumes a stream of JSON tuple values until EOF.
func decodeTuples(r io.Reader, project string) ([]types.LogEntry, error) {
	var entries []types.LogEntry
	dec := json.NewDecoder(r)
	for {
		var tuple storeTuple
		if err := dec.Decode(&tuple); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("decode store tuple: %w", err)
		}

		entry := Normalize(types.SourceLogStore,
			tuple.Labels["service"], tuple.Labels["instance"], "", tuple.Line)
		entry.Project = tuple.Labels["project"]
		if entry.Project == "" {
			entry.Project = project
		}
		if entry.Timestamp == nil {
			if ns, err := tuple.TimestampNs.Int64(); err == nil && ns > 0 {
				ts := time.Unix(0, ns)
				entry.Timestamp = &ts
			}
		}
		entries = append(entries, entry)
	}
}

package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Client implements API over the control-plane's HTTP surface.
type Client struct {
	baseURL   string
	token     string
	namespace string
	client    *http.Client
}

// NewClient creates a control-plane HTTP client from config.
func NewClient(cfg types.ClusterConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cluster URL required")
	}
	return &Client{
		baseURL:   cfg.URL,
		token:     cfg.Token,
		namespace: cfg.Namespace,
		client:    &http.Client{Timeout: cfg.RequestTimeout()},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	u := c.baseURL + path
	if c.namespace != "" {
		u += "?namespace=" + url.QueryEscape(c.namespace)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// GetWorkloadStatus returns replica counts for a workload.
func (c *Client) GetWorkloadStatus(ctx context.Context, name string) (WorkloadStatus, error) {
	var status WorkloadStatus
	err := c.do(ctx, http.MethodGet, "/v1/workloads/"+url.PathEscape(name)+"/status", nil, &status)
	return status, err
}

// Revisions returns the rollout history of a workload, oldest first.
func (c *Client) Revisions(ctx context.Context, name string) ([]Revision, error) {
	var out struct {
		Revisions []Revision `json:"revisions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/workloads/"+url.PathEscape(name)+"/revisions", nil, &out); err != nil {
		return nil, err
	}
	return out.Revisions, nil
}

// RevertWorkload rolls a workload back to the given revision ref.
func (c *Client) RevertWorkload(ctx context.Context, name, revisionRef string) error {
	body, err := json.Marshal(map[string]string{"revision": revisionRef})
	if err != nil {
		return fmt.Errorf("marshaling revert request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/v1/workloads/"+url.PathEscape(name)+"/revert", body, nil)
}

// ApplyManifest applies a manifest blob to the cluster.
func (c *Client) ApplyManifest(ctx context.Context, blob []byte) error {
	return c.do(ctx, http.MethodPost, "/v1/manifests", blob, nil)
}

// ExportManifests snapshots the current configuration/service manifests.
func (c *Client) ExportManifests(ctx context.Context) ([]byte, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/manifests/export", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks control-plane connectivity.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

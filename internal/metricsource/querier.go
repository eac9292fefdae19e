// Package metricsource pulls point-in-time metric values from the monitoring
// backend and from the cluster control-plane.
package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
)

// TimeRange bounds a metric query.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Querier pulls samples for one metric over a time range.
type Querier interface {
	Query(ctx context.Context, metric string, rng TimeRange) ([]types.MetricSample, error)
}

// PrometheusQuerier queries a Prometheus-compatible HTTP API.
type PrometheusQuerier struct {
	baseURL string
	client  *http.Client
	step    time.Duration
}

// NewPrometheusQuerier creates a querier against the configured backend.
func NewPrometheusQuerier(cfg types.MetricsBackendConfig) (*PrometheusQuerier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("metrics backend URL required")
	}
	return &PrometheusQuerier{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: cfg.QueryTimeout()},
		step:    15 * time.Second,
	}, nil
}

// rangeResponse mirrors the Prometheus query_range response shape.
type rangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Values [][2]json.RawMessage `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Query fetches samples for a metric over the range.
func (q *PrometheusQuerier) Query(ctx context.Context, metric string, rng TimeRange) ([]types.MetricSample, error) {
	params := url.Values{}
	params.Set("query", metric)
	params.Set("start", strconv.FormatInt(rng.Start.Unix(), 10))
	params.Set("end", strconv.FormatInt(rng.End.Unix(), 10))
	params.Set("step", strconv.FormatInt(int64(q.step.Seconds()), 10))

	u := q.baseURL + "/api/v1/query_range?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building metrics query: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying metric %s: %w", metric, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("metrics backend returned %d for %s: %s", resp.StatusCode, metric, string(msg))
	}

	var parsed rangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding metrics response for %s: %w", metric, err)
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("metrics backend reported status %q for %s", parsed.Status, metric)
	}

	var samples []types.MetricSample
	for _, series := range parsed.Data.Result {
		for _, pair := range series.Values {
			var ts float64
			if err := json.Unmarshal(pair[0], &ts); err != nil {
				continue
			}
			var raw string
			if err := json.Unmarshal(pair[1], &raw); err != nil {
				continue
			}
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			samples = append(samples, types.MetricSample{
				Metric:    metric,
				Value:     value,
				Timestamp: time.Unix(int64(ts), 0).UTC(),
			})
		}
	}
	return samples, nil
}

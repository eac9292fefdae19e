package metricsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Cluster metric names are prefixed so the router can distinguish them from
// backend queries. The remainder is the workload name, e.g.
// "cluster.ready_ratio/worker-embeddings".
const clusterPrefix = "cluster."

// ClusterQuerier derives point-in-time samples from control-plane state:
// replica counts and readiness ratios per workload.
type ClusterQuerier struct {
	api cluster.API
}

// NewClusterQuerier wraps a control-plane API as a Querier.
func NewClusterQuerier(api cluster.API) *ClusterQuerier {
	return &ClusterQuerier{api: api}
}

// Query resolves a cluster metric. The time range is ignored: control-plane
// reads are instantaneous, so one sample at the range end is returned.
func (q *ClusterQuerier) Query(ctx context.Context, metric string, rng TimeRange) ([]types.MetricSample, error) {
	kind, workload, ok := splitClusterMetric(metric)
	if !ok {
		return nil, fmt.Errorf("not a cluster metric: %q", metric)
	}

	status, err := q.api.GetWorkloadStatus(ctx, workload)
	if err != nil {
		return nil, fmt.Errorf("reading workload %s status: %w", workload, err)
	}

	var value float64
	switch kind {
	case "ready_replicas":
		value = float64(status.Ready)
	case "available_replicas":
		value = float64(status.Available)
	case "ready_ratio":
		if status.Desired > 0 {
			value = float64(status.Ready) / float64(status.Desired)
		}
	default:
		return nil, fmt.Errorf("unknown cluster metric kind %q", kind)
	}

	ts := rng.End
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return []types.MetricSample{{Metric: metric, Value: value, Timestamp: ts}}, nil
}

func splitClusterMetric(metric string) (kind, workload string, ok bool) {
	if !strings.HasPrefix(metric, clusterPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(metric, clusterPrefix)
	kind, workload, ok = strings.Cut(rest, "/")
	if !ok || kind == "" || workload == "" {
		return "", "", false
	}
	return kind, workload, true
}

// Router dispatches cluster.* metrics to the cluster querier and everything
// else to the metrics backend.
type Router struct {
	backend Querier
	cluster Querier
}

// NewRouter creates a metric router over the two sources.
func NewRouter(backend, clusterQ Querier) *Router {
	return &Router{backend: backend, cluster: clusterQ}
}

// Query routes by metric name prefix.
func (r *Router) Query(ctx context.Context, metric string, rng TimeRange) ([]types.MetricSample, error) {
	if strings.HasPrefix(metric, clusterPrefix) {
		return r.cluster.Query(ctx, metric, rng)
	}
	return r.backend.Query(ctx, metric, rng)
}

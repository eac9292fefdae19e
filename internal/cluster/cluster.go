// Package cluster defines the narrow control-plane interface the rollback
// engine consumes: workload status reads, revision reverts, and manifest
// application.
package cluster

import "context"

// WorkloadStatus is a point-in-time view of one workload's replicas.
type WorkloadStatus struct {
	Ready     int `json:"ready"`
	Desired   int `json:"desired"`
	Available int `json:"available"`
}

// Healthy reports whether the workload has converged.
func (s WorkloadStatus) Healthy() bool {
	return s.Desired > 0 && s.Ready >= s.Desired
}

// Revision is one recorded rollout revision of a workload.
type Revision struct {
	Number int    `json:"number"`
	Ref    string `json:"ref"`
}

// API is the cluster control-plane surface. Implementations live outside the
// core; tests use the fake in internal/testutil.
type API interface {
	// GetWorkloadStatus returns replica counts for a workload.
	GetWorkloadStatus(ctx context.Context, name string) (WorkloadStatus, error)
	// Revisions returns the rollout history of a workload, oldest first.
	Revisions(ctx context.Context, name string) ([]Revision, error)
	// RevertWorkload rolls a workload back to the given revision ref.
	RevertWorkload(ctx context.Context, name, revisionRef string) error
	// ApplyManifest applies a manifest blob to the cluster.
	ApplyManifest(ctx context.Context, blob []byte) error
	// ExportManifests snapshots the current configuration/service manifests.
	ExportManifests(ctx context.Context) ([]byte, error)
	// Ping checks control-plane connectivity.
	Ping(ctx context.Context) error
}

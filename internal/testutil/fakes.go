package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/database"
	"github.com/rollward-systems/rollward/internal/metricsource"
	"github.com/rollward-systems/rollward/internal/storage"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ cluster.API          = (*FakeCluster)(nil)
	_ storage.BlobStore    = (*FakeBlobStore)(nil)
	_ database.Adapter     = (*FakeDB)(nil)
	_ metricsource.Querier = (*FakeQuerier)(nil)
)

// Revert records one RevertWorkload call.
type Revert struct {
	Workload string
	Ref      string
}

// FakeCluster is an in-memory cluster control-plane for testing.
type FakeCluster struct {
	mu        sync.Mutex
	Statuses  map[string]cluster.WorkloadStatus
	History   map[string][]cluster.Revision
	Manifests []byte

	Reverts []Revert
	Applied [][]byte

	RevertErr error
	ApplyErr  error
	PingErr   error
	StatusErr error
}

// NewFakeCluster creates a fake cluster with healthy defaults for the named
// workloads and a two-entry rollout history each.
func NewFakeCluster(workloads ...string) *FakeCluster {
	f := &FakeCluster{
		Statuses:  make(map[string]cluster.WorkloadStatus),
		History:   make(map[string][]cluster.Revision),
		Manifests: []byte(`{"workloads":[]}`),
	}
	for _, name := range workloads {
		f.Statuses[name] = cluster.WorkloadStatus{Ready: 2, Desired: 2, Available: 2}
		f.History[name] = []cluster.Revision{
			{Number: 1, Ref: name + "-rev1"},
			{Number: 2, Ref: name + "-rev2"},
		}
	}
	return f
}

func (f *FakeCluster) GetWorkloadStatus(_ context.Context, name string) (cluster.WorkloadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return cluster.WorkloadStatus{}, f.StatusErr
	}
	status, ok := f.Statuses[name]
	if !ok {
		return cluster.WorkloadStatus{}, fmt.Errorf("workload %q not found", name)
	}
	return status, nil
}

func (f *FakeCluster) Revisions(_ context.Context, name string) ([]cluster.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.History[name], nil
}

func (f *FakeCluster) RevertWorkload(_ context.Context, name, revisionRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RevertErr != nil {
		return f.RevertErr
	}
	f.Reverts = append(f.Reverts, Revert{Workload: name, Ref: revisionRef})
	return nil
}

func (f *FakeCluster) ApplyManifest(_ context.Context, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	f.Applied = append(f.Applied, blob)
	return nil
}

func (f *FakeCluster) ExportManifests(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Manifests, nil
}

func (f *FakeCluster) Ping(_ context.Context) error { return f.PingErr }

// RevertedWorkloads returns the workload names reverted so far, in order.
func (f *FakeCluster) RevertedWorkloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.Reverts))
	for i, rev := range f.Reverts {
		names[i] = rev.Workload
	}
	return names
}

// FakeBlobStore is an in-memory blob store with injectable failures.
type FakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	WriteErr error
	ReadErr  error
}

// NewFakeBlobStore creates an empty fake blob store.
func NewFakeBlobStore() *FakeBlobStore {
	return &FakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *FakeBlobStore) Write(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return "", f.WriteErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.blobs[key] = buf
	return key, nil
}

func (f *FakeBlobStore) Read(_ context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	data, ok := f.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", locator)
	}
	return data, nil
}

func (f *FakeBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.blobs {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *FakeBlobStore) Delete(_ context.Context, locator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, locator)
	return nil
}

// FakeDB is an in-memory database adapter for testing.
type FakeDB struct {
	mu       sync.Mutex
	Dump     []byte
	Restored [][]byte

	DumpErr    error
	RestoreErr error
	VerifyErr  error
	PingErr    error
}

// NewFakeDB creates a fake database with a minimal valid schema dump.
func NewFakeDB() *FakeDB {
	return &FakeDB{Dump: []byte("CREATE TABLE \"orders\" (\n    \"id\" bigint NOT NULL\n);\n")}
}

func (f *FakeDB) DumpSchema(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DumpErr != nil {
		return nil, f.DumpErr
	}
	return f.Dump, nil
}

func (f *FakeDB) Restore(_ context.Context, dump []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RestoreErr != nil {
		return f.RestoreErr
	}
	f.Restored = append(f.Restored, dump)
	return nil
}

func (f *FakeDB) VerifyTables(_ context.Context, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.VerifyErr
}

func (f *FakeDB) Ping(_ context.Context) error { return f.PingErr }

// FakeQuerier serves scripted samples per metric name.
type FakeQuerier struct {
	mu      sync.Mutex
	Samples map[string][]types.MetricSample
	Err     error
	counts  map[string]int
}

// NewFakeQuerier creates an empty fake querier.
func NewFakeQuerier() *FakeQuerier {
	return &FakeQuerier{
		Samples: make(map[string][]types.MetricSample),
		counts:  make(map[string]int),
	}
}

func (f *FakeQuerier) Query(_ context.Context, metric string, _ metricsource.TimeRange) ([]types.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[metric]++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Samples[metric], nil
}

// SetSamples replaces the scripted samples for one metric.
func (f *FakeQuerier) SetSamples(metric string, samples []types.MetricSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples[metric] = samples
}

// QueryCount returns how many times one metric has been queried.
func (f *FakeQuerier) QueryCount(metric string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[metric]
}

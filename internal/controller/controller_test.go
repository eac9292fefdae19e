package controller_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/controller"
	"github.com/rollward-systems/rollward/internal/testutil"
	"github.com/rollward-systems/rollward/pkg/types"
)

type fixture struct {
	store   *testutil.MockStore
	blobs   *testutil.FakeBlobStore
	cluster *testutil.FakeCluster
	db      *testutil.FakeDB
	backups *backup.Manager
	alerts  *[]types.Alert
	ctrl    *controller.Controller
}

func newFixture(t *testing.T, class types.EnvironmentClass) *fixture {
	t.Helper()

	st := testutil.NewMockStore()
	blobs := testutil.NewFakeBlobStore()
	fc := testutil.NewFakeCluster("web", "worker", "grafana")
	db := testutil.NewFakeDB()

	backups := backup.New(st, blobs, db, fc, slog.Default(), "staging", types.RetentionConfig{})

	alerts := &[]types.Alert{}
	alertFn := func(a types.Alert) { *alerts = append(*alerts, a) }

	ctrl := controller.New(st, backups, fc, db, alertFn, slog.Default(), controller.Config{
		Environment: "staging",
		Class:       class,
		Workloads: types.WorkloadsConfig{
			Application: []string{"web", "worker"},
			Monitoring:  []string{"grafana"},
		},
		CoreTables: []string{"orders"},
	}).WithVerifyPolling(5*time.Millisecond, 100*time.Millisecond)

	return &fixture{store: st, blobs: blobs, cluster: fc, db: db, backups: backups, alerts: alerts, ctrl: ctrl}
}

func appRequest() types.RollbackRequest {
	return types.RollbackRequest{
		Type:        types.RollbackApplication,
		Target:      types.RollbackTarget{Kind: types.TargetPrevious},
		Reason:      "bad deploy",
		RequestedBy: "tester",
		AutoApprove: true,
	}
}

func TestApplicationRollbackSucceeds(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)

	exec, err := fix.ctrl.Run(context.Background(), appRequest())
	require.NoError(t, err)

	assert.Equal(t, types.PhaseCompleted, exec.Phase)
	assert.Equal(t, types.OutcomeSucceeded, exec.Outcome)
	require.NotNil(t, exec.CompletedAt)
	assert.NotEmpty(t, exec.BackupID)

	// Previous target resolves to the second-newest revision of each workload.
	require.Len(t, fix.cluster.Reverts, 2)
	assert.Equal(t, "web-rev1", fix.cluster.Reverts[0].Ref)
	assert.Equal(t, "worker-rev1", fix.cluster.Reverts[1].Ref)

	require.Len(t, exec.Components, 1)
	assert.Equal(t, types.ComponentApplication, exec.Components[0].Component)
	assert.True(t, exec.Components[0].Succeeded)

	completed := fix.store.EventsOfKind(types.EventRollbackCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, exec.ID, completed[0].ExecutionID)
}

func TestProductionFullRollbackRequiresForceAndReason(t *testing.T) {
	tests := []struct {
		name   string
		force  bool
		reason string
	}{
		{name: "no force", force: false, reason: "incident 4821"},
		{name: "no reason", force: true, reason: "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := newFixture(t, types.ClassProduction)

			req := types.RollbackRequest{
				Type:        types.RollbackFull,
				Target:      types.RollbackTarget{Kind: types.TargetPrevious},
				Reason:      tt.reason,
				RequestedBy: "tester",
				Force:       tt.force,
				AutoApprove: true,
			}
			exec, err := fix.ctrl.Run(context.Background(), req)
			if tt.reason == "   " {
				// A blank reason is rejected at submission.
				require.Error(t, err)
				assert.Equal(t, types.FailureConfiguration, controller.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, types.PhaseFailed, exec.Phase)
				assert.Equal(t, types.OutcomeFailed, exec.Outcome)
				assert.Equal(t, types.FailureConfiguration, exec.FailureKind)
			}

			// The guard aborts before anything destructive or even a backup.
			assert.Empty(t, fix.cluster.Reverts)
			assert.Empty(t, fix.cluster.Applied)
			assert.Empty(t, fix.db.Restored)
			assert.Empty(t, fix.store.EventsOfKind(types.EventBackupCreated))
		})
	}
}

func TestBackupFailureAbortsBeforeExecution(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)
	fix.blobs.WriteErr = fmt.Errorf("storage unreachable")

	exec, err := fix.ctrl.Run(context.Background(), appRequest())
	require.NoError(t, err)

	assert.Equal(t, types.PhaseFailed, exec.Phase)
	assert.Equal(t, types.FailureConnectivity, exec.FailureKind)
	assert.Empty(t, exec.BackupID)

	// No destructive executor ran.
	assert.Empty(t, fix.cluster.Reverts)
	assert.Empty(t, fix.cluster.Applied)
	assert.Empty(t, fix.db.Restored)
}

func TestVerificationFailureIsDistinctFromExecutionFailure(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)
	// Reverts succeed but the workloads never converge.
	fix.cluster.Statuses["web"] = cluster.WorkloadStatus{Ready: 0, Desired: 2}

	exec, err := fix.ctrl.Run(context.Background(), appRequest())
	require.NoError(t, err)

	assert.Equal(t, types.PhaseFailed, exec.Phase)
	assert.Equal(t, types.FailureVerification, exec.FailureKind)

	// The executor itself succeeded; only verification failed.
	require.Len(t, exec.Components, 1)
	assert.True(t, exec.Components[0].Succeeded)
	assert.NotEmpty(t, fix.cluster.Reverts)
}

func TestFullRollbackRunsInDependencyOrder(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)
	seedBackup(t, fix)

	exec, err := fix.ctrl.Run(context.Background(), types.RollbackRequest{
		Type:        types.RollbackFull,
		Target:      types.RollbackTarget{Kind: types.TargetPrevious},
		Reason:      "full restore drill",
		RequestedBy: "tester",
		AutoApprove: true,
	})
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSucceeded, exec.Outcome, exec.FailureDetail)

	require.Len(t, exec.Components, 4)
	assert.Equal(t, types.ComponentInfrastructure, exec.Components[0].Component)
	assert.Equal(t, types.ComponentDatabase, exec.Components[1].Component)
	assert.Equal(t, types.ComponentApplication, exec.Components[2].Component)
	assert.Equal(t, types.ComponentMonitoring, exec.Components[3].Component)

	assert.Len(t, fix.cluster.Applied, 1)
	assert.Len(t, fix.db.Restored, 1)
	assert.Equal(t, []string{"web", "worker", "grafana"}, fix.cluster.RevertedWorkloads())
}

func TestFullRollbackAbortsOnFirstFailureWithoutForce(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)
	seedBackup(t, fix)
	fix.cluster.ApplyErr = fmt.Errorf("apply rejected")

	exec, err := fix.ctrl.Run(context.Background(), types.RollbackRequest{
		Type:        types.RollbackFull,
		Target:      types.RollbackTarget{Kind: types.TargetPrevious},
		Reason:      "full restore drill",
		RequestedBy: "tester",
		AutoApprove: true,
	})
	require.NoError(t, err)

	assert.Equal(t, types.FailureExecution, exec.FailureKind)
	// Infrastructure failed first; nothing downstream ran.
	require.Len(t, exec.Components, 1)
	assert.Equal(t, types.ComponentInfrastructure, exec.Components[0].Component)
	assert.Empty(t, fix.db.Restored)
	assert.Empty(t, fix.cluster.Reverts)
}

func TestForcedFullRollbackAttemptsEveryComponent(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)
	seedBackup(t, fix)
	fix.cluster.ApplyErr = fmt.Errorf("apply rejected")

	exec, err := fix.ctrl.Run(context.Background(), types.RollbackRequest{
		Type:        types.RollbackFull,
		Target:      types.RollbackTarget{Kind: types.TargetPrevious},
		Reason:      "forced drill",
		RequestedBy: "tester",
		Force:       true,
		AutoApprove: true,
	})
	require.NoError(t, err)

	// Still a failure overall, but every component was attempted.
	assert.Equal(t, types.FailureExecution, exec.FailureKind)
	require.Len(t, exec.Components, 4)
	assert.False(t, exec.Components[0].Succeeded)
	assert.True(t, exec.Components[1].Succeeded)
	assert.NotEmpty(t, fix.db.Restored)
	assert.Equal(t, []string{"web", "worker", "grafana"}, fix.cluster.RevertedWorkloads())
}

func TestConfirmationGate(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		outcome types.Outcome
	}{
		{name: "exact phrase proceeds", answer: "rollback staging", outcome: types.OutcomeSucceeded},
		{name: "wrong phrase cancels", answer: "yes please", outcome: types.OutcomeCancelled},
		{name: "empty answer cancels", answer: "", outcome: types.OutcomeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := newFixture(t, types.ClassStaging)
			fix.ctrl.WithConfirm(func(string) (string, error) { return tt.answer, nil })

			req := appRequest()
			req.AutoApprove = false
			exec, err := fix.ctrl.Run(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.outcome, exec.Outcome)
			if tt.outcome == types.OutcomeCancelled {
				assert.Empty(t, fix.cluster.Reverts)
				assert.Len(t, fix.store.EventsOfKind(types.EventRollbackCancelled), 1)
			}
		})
	}
}

func TestAutomatedRequestSkipsConfirmation(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)
	// No confirm function is installed: an automated request must not prompt.

	req := appRequest()
	req.AutoApprove = false
	req.Automated = true
	exec, err := fix.ctrl.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, exec.Outcome)
}

func TestSkipBackupSkipsThePhase(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)

	req := appRequest()
	req.SkipBackup = true
	exec, err := fix.ctrl.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSucceeded, exec.Outcome)
	assert.Empty(t, exec.BackupID)
	assert.Empty(t, fix.store.EventsOfKind(types.EventBackupCreated))
}

func TestUnresolvableTargetFailsValidation(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)

	req := appRequest()
	req.Target = types.RollbackTarget{Kind: types.TargetRevision, Revision: 99}
	exec, err := fix.ctrl.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.FailureValidation, exec.FailureKind)
	assert.Empty(t, fix.cluster.Reverts)
}

func TestDatabaseRollbackWithoutDatabaseIsConfigurationFailure(t *testing.T) {
	st := testutil.NewMockStore()
	blobs := testutil.NewFakeBlobStore()
	fc := testutil.NewFakeCluster("web")
	backups := backup.New(st, blobs, nil, fc, slog.Default(), "staging", types.RetentionConfig{})

	ctrl := controller.New(st, backups, fc, nil, nil, slog.Default(), controller.Config{
		Environment: "staging",
		Class:       types.ClassStaging,
		Workloads:   types.WorkloadsConfig{Application: []string{"web"}},
	})

	exec, err := ctrl.Run(context.Background(), types.RollbackRequest{
		Type:        types.RollbackDatabase,
		Target:      types.RollbackTarget{Kind: types.TargetLatest},
		Reason:      "drill",
		RequestedBy: "tester",
		AutoApprove: true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.FailureConfiguration, exec.FailureKind)
}

func TestSubmitQueuesAndWorkerExecutes(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fix.ctrl.Start(ctx))
	defer func() { _ = fix.ctrl.Stop(context.Background()) }()

	req := appRequest()
	req.Automated = true
	req.RequestedBy = "trigger-monitor"
	id, err := fix.ctrl.Submit(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		exec, err := fix.store.GetExecution(ctx, id)
		return err == nil && exec != nil && exec.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	exec, err := fix.store.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, exec.Outcome)
}

// A second rollback against an environment whose lock is held is rejected
// with an error that names the in-flight rollback, not a generic validation
// failure.
func TestHeldEnvironmentLockRejectsWithClearReason(t *testing.T) {
	fix := newFixture(t, types.ClassStaging)

	ctx := context.Background()
	held, err := fix.store.AcquireLock(ctx, "rollback:staging", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	exec, err := fix.ctrl.Run(ctx, appRequest())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, exec.Outcome)
	assert.Equal(t, types.FailureValidation, exec.FailureKind)
	assert.Contains(t, exec.FailureDetail, "already in flight for environment staging")
	assert.Contains(t, exec.FailureDetail, "status command")
}

// seedBackup creates a pre-existing backup that full and database rollbacks
// resolve as their restore source.
func seedBackup(t *testing.T, fix *fixture) {
	t.Helper()
	_, err := fix.backups.Create(context.Background(), types.BackupManual, "")
	require.NoError(t, err)
}

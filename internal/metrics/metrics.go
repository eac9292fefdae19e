// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	MonitorTicks         = expvar.NewInt("monitor_ticks_total")
	MetricQueryErrors    = expvar.NewInt("metric_query_errors")
	TriggersFired        = expvar.NewInt("triggers_fired")
	TriggersCleared      = expvar.NewInt("triggers_cleared")
	RollbacksStarted     = expvar.NewInt("rollbacks_started")
	RollbacksSucceeded   = expvar.NewInt("rollbacks_succeeded")
	RollbacksFailed      = expvar.NewInt("rollbacks_failed")
	RollbacksCancelled   = expvar.NewInt("rollbacks_cancelled")
	VerificationFailures = expvar.NewInt("verification_failures")
	BackupsCreated       = expvar.NewInt("backups_created")
	BackupsPruned        = expvar.NewInt("backups_pruned")
	AlertsDispatched     = expvar.NewInt("alerts_dispatched")
	AlertsFailed         = expvar.NewInt("alerts_failed")
)

package types

// RollbackType selects which rollback strategy the controller executes.
type RollbackType string

// RollbackType values enumerate the supported rollback strategies.
const (
	RollbackApplication    RollbackType = "application"
	RollbackDatabase       RollbackType = "database"
	RollbackInfrastructure RollbackType = "infrastructure"
	RollbackMonitoring     RollbackType = "monitoring"
	RollbackPartial        RollbackType = "partial"
	RollbackFull           RollbackType = "full"
)

// Component identifies one rollback-able subsystem of a deployment.
type Component string

// Component values enumerate the subsystems a rollback can touch.
const (
	ComponentApplication    Component = "application"
	ComponentDatabase       Component = "database"
	ComponentInfrastructure Component = "infrastructure"
	ComponentMonitoring     Component = "monitoring"
)

// FullRollbackOrder is the declared dependency order for full rollbacks.
// Infrastructure is restored before the database it hosts, the database
// before the application that reads it, and monitoring last.
var FullRollbackOrder = []Component{
	ComponentInfrastructure,
	ComponentDatabase,
	ComponentApplication,
	ComponentMonitoring,
}

// TargetKind classifies the symbolic rollback target reference.
type TargetKind string

// TargetKind values enumerate the supported target references.
const (
	TargetPrevious   TargetKind = "previous"
	TargetLatest     TargetKind = "latest"
	TargetRevision   TargetKind = "revision"
	TargetBackup     TargetKind = "backup"
	TargetComponents TargetKind = "components"
)

// Comparison defines how an observed metric aggregate is compared to a threshold.
type Comparison string

const (
	LessThan    Comparison = "less-than"
	GreaterThan Comparison = "greater-than"
)

// Aggregation defines how window samples collapse into one observed value.
type Aggregation string

const (
	// AggregateLatest uses the newest sample; suited to instantaneous signals
	// such as health-check failure counts.
	AggregateLatest Aggregation = "latest"
	// AggregateMean averages the window; suited to rate-style signals such as
	// success percentages.
	AggregateMean Aggregation = "mean"
)

// PhaseState is one discrete stage of a rollback execution.
type PhaseState string

// PhaseState values enumerate the rollback state machine stages.
const (
	PhaseIdle                    PhaseState = "IDLE"
	PhaseValidatingPrerequisites PhaseState = "VALIDATING_PREREQUISITES"
	PhaseValidatingTarget        PhaseState = "VALIDATING_TARGET"
	PhaseCreatingBackup          PhaseState = "CREATING_BACKUP"
	PhaseAwaitingConfirmation    PhaseState = "AWAITING_CONFIRMATION"
	PhaseExecuting               PhaseState = "EXECUTING"
	PhaseVerifying               PhaseState = "VERIFYING"
	PhaseCompleted               PhaseState = "COMPLETED"
	PhaseFailed                  PhaseState = "FAILED"
)

// PhaseStatus is the progress marker for one phase inside a status snapshot.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "PENDING"
	PhaseInProgress PhaseStatus = "IN_PROGRESS"
	PhaseDone       PhaseStatus = "COMPLETED"
	PhaseErrored    PhaseStatus = "FAILED"
	PhaseSkipped    PhaseStatus = "SKIPPED"
)

// Outcome is the final result of a rollback execution.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeCancelled Outcome = "CANCELLED"
)

// FailureKind classifies why a rollback execution or monitor tick failed.
// The kinds stay distinct because operator remediation differs: a verification
// failure after a completed destructive step is not the same situation as an
// execution failure mid-step.
type FailureKind string

const (
	FailureConfiguration FailureKind = "CONFIGURATION"
	FailureConnectivity  FailureKind = "CONNECTIVITY"
	FailureValidation    FailureKind = "VALIDATION"
	FailureExecution     FailureKind = "EXECUTION"
	FailureVerification  FailureKind = "VERIFICATION"
)

// BackupKind distinguishes automatic pre-rollback snapshots from operator-requested ones.
type BackupKind string

const (
	BackupPreRollback BackupKind = "pre-rollback"
	BackupManual      BackupKind = "manual"
)

// EnvironmentClass drives safety gating; production requires force and a
// reason for the destructive rollback types.
type EnvironmentClass string

const (
	ClassProduction  EnvironmentClass = "production"
	ClassStaging     EnvironmentClass = "staging"
	ClassDevelopment EnvironmentClass = "development"
)

// AlertLevel is the severity of a dispatched notification.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// AlertType defines the notification sink type.
type AlertType string

const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// EventKind classifies an entry in the append-only event log.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventMonitorTick       EventKind = "MONITOR_TICK"
	EventTriggerFired      EventKind = "TRIGGER_FIRED"
	EventTriggerCleared    EventKind = "TRIGGER_CLEARED"
	EventRollbackRequested EventKind = "ROLLBACK_REQUESTED"
	EventPhaseTransition   EventKind = "PHASE_TRANSITION"
	EventBackupCreated     EventKind = "BACKUP_CREATED"
	EventBackupPruned      EventKind = "BACKUP_PRUNED"
	EventRollbackCompleted EventKind = "ROLLBACK_COMPLETED"
	EventRollbackFailed    EventKind = "ROLLBACK_FAILED"
	EventRollbackCancelled EventKind = "ROLLBACK_CANCELLED"
)

// Package types defines the public domain types for the Rollward rollback
// orchestration engine.
package types

import (
	"fmt"
	"strings"
	"time"
)

// RollbackTarget is the symbolic reference a rollback restores to. Exactly one
// of the optional fields is meaningful, selected by Kind.
type RollbackTarget struct {
	Kind       TargetKind  `yaml:"kind" json:"kind"`
	Revision   int         `yaml:"revision,omitempty" json:"revision,omitempty"`
	Backup     string      `yaml:"backup,omitempty" json:"backup,omitempty"`
	Components []Component `yaml:"components,omitempty" json:"components,omitempty"`
}

// String renders the target in the form operators pass on the command line.
func (t RollbackTarget) String() string {
	switch t.Kind {
	case TargetRevision:
		return fmt.Sprintf("revision:%d", t.Revision)
	case TargetBackup:
		return "backup:" + t.Backup
	case TargetComponents:
		parts := make([]string, len(t.Components))
		for i, c := range t.Components {
			parts[i] = string(c)
		}
		return "components:" + strings.Join(parts, ",")
	default:
		return string(t.Kind)
	}
}

// AutomatedAction is the rollback a fired trigger requests.
type AutomatedAction struct {
	Type   RollbackType   `yaml:"type" json:"type"`
	Target RollbackTarget `yaml:"target" json:"target"`
}

// TriggerDefinition is the immutable configuration of one rollback trigger.
// Loaded once at start; never mutated at runtime.
type TriggerDefinition struct {
	Name               string          `yaml:"name" json:"name"`
	Metric             string          `yaml:"metric" json:"metric"`
	Threshold          float64         `yaml:"threshold" json:"threshold"`
	Comparison         Comparison      `yaml:"comparison" json:"comparison"`
	Aggregation        Aggregation     `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
	Window             string          `yaml:"window" json:"window"`                         // e.g. "600s", "10m"
	EvaluationInterval string          `yaml:"evaluationInterval,omitempty" json:"evaluationInterval,omitempty"`
	MinSamples         int             `yaml:"minSamples,omitempty" json:"minSamples,omitempty"`
	Action             AutomatedAction `yaml:"action" json:"action"`
}

// WindowDuration parses the trigger's window length, defaulting to 10 minutes.
func (d TriggerDefinition) WindowDuration() time.Duration {
	if w, err := time.ParseDuration(d.Window); err == nil && w > 0 {
		return w
	}
	return 10 * time.Minute
}

// Interval parses the trigger's evaluation cadence. Zero means the trigger is
// evaluated on every monitor tick.
func (d TriggerDefinition) Interval() time.Duration {
	if i, err := time.ParseDuration(d.EvaluationInterval); err == nil && i > 0 {
		return i
	}
	return 0
}

// MinimumSamples returns the minimum window population before a trigger may
// fire. The floor of 3 avoids false positives on startup.
func (d TriggerDefinition) MinimumSamples() int {
	if d.MinSamples > 0 {
		return d.MinSamples
	}
	return 3
}

// MetricSample is one point-in-time metric observation. Ephemeral: it lives
// only inside the active evaluation window.
type MetricSample struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// RollbackRequest asks the controller to execute one rollback. Immutable after
// creation and consumed exactly once.
type RollbackRequest struct {
	Type           RollbackType   `json:"type"`
	Target         RollbackTarget `json:"target"`
	Reason         string         `json:"reason"`
	RequestedBy    string         `json:"requestedBy"`
	Force          bool           `json:"force,omitempty"`
	SkipValidation bool           `json:"skipValidation,omitempty"`
	SkipBackup     bool           `json:"skipBackup,omitempty"`
	AutoApprove    bool           `json:"autoApprove,omitempty"`
	Automated      bool           `json:"automated,omitempty"` // originated from the trigger monitor
	RequestedAt    time.Time      `json:"requestedAt"`
}

// BackupArtifact is one blob belonging to a backup (schema dump, manifest
// snapshot). Locator is the blob store reference.
type BackupArtifact struct {
	Name      string `json:"name"`
	Locator   string `json:"locator"`
	SizeBytes int64  `json:"sizeBytes"`
}

// BackupRecord is the append-only metadata record for one point-in-time
// snapshot. Never mutated after creation.
type BackupRecord struct {
	ID          string            `json:"id"`
	Kind        BackupKind        `json:"kind"`
	Environment string            `json:"environment"`
	ExecutionID string            `json:"executionId,omitempty"` // set for pre-rollback backups
	Artifacts   []BackupArtifact  `json:"artifacts"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ComponentResult is the outcome of one strategy executor inside a rollback.
type ComponentResult struct {
	Component   Component  `json:"component"`
	Succeeded   bool       `json:"succeeded"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RollbackExecution is the mutable run-record for one RollbackRequest. Owned
// by the controller for the lifetime of the rollback and archived on
// completion.
type RollbackExecution struct {
	ID            string            `json:"id"`
	Environment   string            `json:"environment"`
	Request       RollbackRequest   `json:"request"`
	Phase         PhaseState        `json:"phase"`
	BackupID      string            `json:"backupId,omitempty"`
	Components    []ComponentResult `json:"components,omitempty"`
	Outcome       Outcome           `json:"outcome,omitempty"`
	FailureKind   FailureKind       `json:"failureKind,omitempty"`
	FailureDetail string            `json:"failureDetail,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
}

// Terminal reports whether the execution has reached a final phase.
func (e *RollbackExecution) Terminal() bool {
	return e.Phase == PhaseCompleted || e.Phase == PhaseFailed
}

// Event is one append-only event log entry. One record is written per phase
// transition and per monitor fire/clear transition.
type Event struct {
	Kind        EventKind              `json:"kind"`
	ExecutionID string                 `json:"executionId,omitempty"`
	Trigger     string                 `json:"trigger,omitempty"`
	Phase       PhaseState             `json:"phase,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Detail      string                 `json:"detail,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Alert represents a notification to be dispatched. Fire-and-forget: sink
// failures are logged, never propagated.
type Alert struct {
	Level       AlertLevel             `json:"level"`
	Category    string                 `json:"category,omitempty"`
	ExecutionID string                 `json:"executionId,omitempty"`
	Trigger     string                 `json:"trigger,omitempty"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ParseRollbackType validates an operator-supplied rollback type string.
func ParseRollbackType(s string) (RollbackType, error) {
	switch RollbackType(s) {
	case RollbackApplication, RollbackDatabase, RollbackInfrastructure,
		RollbackMonitoring, RollbackPartial, RollbackFull:
		return RollbackType(s), nil
	}
	return "", fmt.Errorf("unknown rollback type %q", s)
}

// ParseComponent validates an operator-supplied component name.
func ParseComponent(s string) (Component, error) {
	switch Component(s) {
	case ComponentApplication, ComponentDatabase, ComponentInfrastructure, ComponentMonitoring:
		return Component(s), nil
	}
	return "", fmt.Errorf("unknown component %q", s)
}

// ParseTarget parses an operator-supplied target reference of the form
// "previous", "latest", "revision:3", "backup:20250120-143022", or
// "components:application,monitoring".
func ParseTarget(s string) (RollbackTarget, error) {
	switch {
	case s == "" || s == string(TargetPrevious):
		return RollbackTarget{Kind: TargetPrevious}, nil
	case s == string(TargetLatest):
		return RollbackTarget{Kind: TargetLatest}, nil
	case strings.HasPrefix(s, "revision:"):
		var n int
		if _, err := fmt.Sscanf(s, "revision:%d", &n); err != nil || n <= 0 {
			return RollbackTarget{}, fmt.Errorf("invalid revision target %q", s)
		}
		return RollbackTarget{Kind: TargetRevision, Revision: n}, nil
	case strings.HasPrefix(s, "backup:"):
		name := strings.TrimPrefix(s, "backup:")
		if name == "" {
			return RollbackTarget{}, fmt.Errorf("invalid backup target %q", s)
		}
		return RollbackTarget{Kind: TargetBackup, Backup: name}, nil
	case strings.HasPrefix(s, "components:"):
		var comps []Component
		for _, part := range strings.Split(strings.TrimPrefix(s, "components:"), ",") {
			c, err := ParseComponent(strings.TrimSpace(part))
			if err != nil {
				return RollbackTarget{}, err
			}
			comps = append(comps, c)
		}
		if len(comps) == 0 {
			return RollbackTarget{}, fmt.Errorf("empty component list in target %q", s)
		}
		return RollbackTarget{Kind: TargetComponents, Components: comps}, nil
	}
	return RollbackTarget{}, fmt.Errorf("unknown target %q", s)
}

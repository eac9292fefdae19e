package types

import "time"

// ProjectConfig represents the top-level rollward.yaml configuration. It is
// loaded once at process start and passed explicitly to constructors; there is
// no ambient mutable configuration.
type ProjectConfig struct {
	Environment string           `yaml:"environment"`
	Class       EnvironmentClass `yaml:"class,omitempty"`

	Metrics   MetricsBackendConfig `yaml:"metrics"`
	Cluster   ClusterConfig        `yaml:"cluster"`
	Redis     RedisConfig          `yaml:"redis"`
	Storage   StorageConfig        `yaml:"storage"`
	Database  *DatabaseConfig      `yaml:"database,omitempty"`
	Workloads WorkloadsConfig      `yaml:"workloads"`

	Monitor   MonitorConfig       `yaml:"monitor,omitempty"`
	Triggers  []TriggerDefinition `yaml:"triggers,omitempty"`
	Retention RetentionConfig     `yaml:"retention,omitempty"`
	Alerts    []AlertConfig       `yaml:"alerts,omitempty"`
	Server    *ServerConfig       `yaml:"server,omitempty"`
}

// MetricsBackendConfig points at the time-series backend triggers query.
type MetricsBackendConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout,omitempty"` // e.g. "10s"
}

// QueryTimeout parses the backend timeout, defaulting to 10 seconds.
func (c MetricsBackendConfig) QueryTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// ClusterConfig points at the cluster control-plane API.
type ClusterConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// RequestTimeout parses the control-plane timeout, defaulting to 15 seconds.
func (c ClusterConfig) RequestTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 15 * time.Second
}

// RedisConfig holds Redis/Valkey state store settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// StorageConfig selects the backup blob store backend.
type StorageConfig struct {
	Backend string           `yaml:"backend"` // "s3" or "file"
	S3      *S3Config        `yaml:"s3,omitempty"`
	File    *FileStoreConfig `yaml:"file,omitempty"`
}

// S3Config holds S3 blob store settings.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"` // for S3-compatible stores
}

// FileStoreConfig holds local filesystem blob store settings.
type FileStoreConfig struct {
	Dir string `yaml:"dir"`
}

// DatabaseConfig holds the application database connection used for schema
// dumps, restores, and post-rollback verification.
type DatabaseConfig struct {
	DSN        string   `yaml:"dsn"`
	CoreTables []string `yaml:"coreTables,omitempty"` // must exist after a database rollback
}

// WorkloadsConfig names the cluster workloads each component maps to.
type WorkloadsConfig struct {
	Application []string `yaml:"application"`
	Monitoring  []string `yaml:"monitoring,omitempty"`
}

// MonitorConfig configures the trigger monitor loop.
type MonitorConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TickInterval string `yaml:"tickInterval,omitempty"` // e.g. "30s"
}

// Interval parses the tick interval, defaulting to 30 seconds.
func (c MonitorConfig) Interval() time.Duration {
	if d, err := time.ParseDuration(c.TickInterval); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// RetentionConfig bounds how long backups are kept. Zero values disable the
// respective bound.
type RetentionConfig struct {
	MaxAge   string `yaml:"maxAge,omitempty"` // e.g. "720h"
	MaxCount int    `yaml:"maxCount,omitempty"`
}

// AgeLimit parses the age bound; zero means unbounded.
func (c RetentionConfig) AgeLimit() time.Duration {
	if d, err := time.ParseDuration(c.MaxAge); err == nil && d > 0 {
		return d
	}
	return 0
}

// AlertConfig defines a notification sink.
type AlertConfig struct {
	Type     AlertType `yaml:"type"`
	URL      string    `yaml:"url,omitempty"`
	Path     string    `yaml:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty"`
	Region   string    `yaml:"region,omitempty"`
}

// ServerConfig holds status HTTP server settings.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"apiKey,omitempty"`
}

// ExecutionTimeout returns the bound for the Executing phase of a rollback
// type. The bounds reflect how long each strategy can reasonably take.
func ExecutionTimeout(t RollbackType) time.Duration {
	switch t {
	case RollbackInfrastructure:
		return 5 * time.Minute
	case RollbackMonitoring:
		return 3 * time.Minute
	case RollbackFull:
		return 20 * time.Minute
	default:
		return 10 * time.Minute
	}
}

// ConfirmationPhrase is the exact acknowledgment an interactive rollback
// requires before entering the Executing phase.
func ConfirmationPhrase(environment string) string {
	return "rollback " + environment
}

// Package config handles loading and validation of rollward.yaml project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Load reads and parses rollward.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, "rollward.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Class == "" {
		cfg.Class = types.ClassDevelopment
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Backend == "file" && cfg.Storage.File == nil {
		cfg.Storage.File = &types.FileStoreConfig{Dir: "backups"}
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch cfg.Class {
	case types.ClassProduction, types.ClassStaging, types.ClassDevelopment:
	default:
		return fmt.Errorf("unknown environment class %q", cfg.Class)
	}
	if cfg.Cluster.URL == "" {
		return fmt.Errorf("cluster.url is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	switch cfg.Storage.Backend {
	case "s3":
		if cfg.Storage.S3 == nil || cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when backend is s3")
		}
	case "file":
		if cfg.Storage.File == nil || cfg.Storage.File.Dir == "" {
			return fmt.Errorf("storage.file.dir is required when backend is file")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Database != nil && cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database is configured")
	}

	if cfg.Monitor.Enabled {
		if cfg.Metrics.URL == "" {
			return fmt.Errorf("metrics.url is required when the monitor is enabled")
		}
		if len(cfg.Triggers) == 0 {
			return fmt.Errorf("at least one trigger is required when the monitor is enabled")
		}
	}

	names := make(map[string]bool, len(cfg.Triggers))
	for i, trig := range cfg.Triggers {
		if err := validateTrigger(trig); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
		if names[trig.Name] {
			return fmt.Errorf("duplicate trigger name %q", trig.Name)
		}
		names[trig.Name] = true
	}

	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole:
		case types.AlertWebhook:
			if a.URL == "" {
				return fmt.Errorf("alert %d: webhook URL is required", i)
			}
		case types.AlertFile:
			if a.Path == "" {
				return fmt.Errorf("alert %d: file path is required", i)
			}
		case types.AlertSNS:
			if a.TopicARN == "" {
				return fmt.Errorf("alert %d: SNS topic ARN is required", i)
			}
		default:
			return fmt.Errorf("alert %d: unknown type %q", i, a.Type)
		}
	}

	if cfg.Server != nil && cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is configured")
	}
	return nil
}

func validateTrigger(trig types.TriggerDefinition) error {
	if trig.Name == "" {
		return fmt.Errorf("name is required")
	}
	if trig.Metric == "" {
		return fmt.Errorf("metric is required")
	}
	switch trig.Comparison {
	case types.LessThan, types.GreaterThan:
	default:
		return fmt.Errorf("unknown comparison %q", trig.Comparison)
	}
	switch trig.Aggregation {
	case "", types.AggregateLatest, types.AggregateMean:
	default:
		return fmt.Errorf("unknown aggregation %q", trig.Aggregation)
	}
	if trig.Window != "" {
		if _, err := time.ParseDuration(trig.Window); err != nil {
			return fmt.Errorf("invalid window %q: %w", trig.Window, err)
		}
	}
	if trig.EvaluationInterval != "" {
		if _, err := time.ParseDuration(trig.EvaluationInterval); err != nil {
			return fmt.Errorf("invalid evaluationInterval %q: %w", trig.EvaluationInterval, err)
		}
	}
	if _, err := types.ParseRollbackType(string(trig.Action.Type)); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if trig.Action.Target.Kind == "" {
		return fmt.Errorf("action target kind is required")
	}
	return nil
}

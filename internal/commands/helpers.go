// Package commands implements the CLI subcommands for the rollward binary.
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rollward-systems/rollward/internal/alert"
	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/controller"
	"github.com/rollward-systems/rollward/internal/database"
	"github.com/rollward-systems/rollward/internal/metricsource"
	"github.com/rollward-systems/rollward/internal/storage"
	"github.com/rollward-systems/rollward/internal/store"
	redisstore "github.com/rollward-systems/rollward/internal/store/redis"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Exit codes for the rollback command. Scripts branch on these.
const (
	ExitOK           = 0
	ExitValidation   = 2
	ExitExecution    = 3
	ExitVerification = 4
)

// ExitCodeError carries a specific process exit code out of a command.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }

func (e *ExitCodeError) Unwrap() error { return e.Err }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ece *ExitCodeError
	if errors.As(err, &ece) {
		return ece.Code
	}
	return 1
}

// exitCodeFor maps a failure kind to the documented exit code.
func exitCodeFor(kind types.FailureKind) int {
	switch kind {
	case types.FailureConfiguration, types.FailureValidation:
		return ExitValidation
	case types.FailureVerification:
		return ExitVerification
	default:
		return ExitExecution
	}
}

// newStore connects the Redis state store.
func newStore(ctx context.Context, cfg *types.ProjectConfig) (store.Store, error) {
	st := redisstore.New(cfg.Redis)
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return st, nil
}

// newBlobStore creates the configured backup blob store.
func newBlobStore(ctx context.Context, cfg *types.ProjectConfig) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(ctx, *cfg.Storage.S3)
	case "file":
		return storage.NewFileStore(cfg.Storage.File.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// newDatabase connects the optional application database adapter.
func newDatabase(ctx context.Context, cfg *types.ProjectConfig) (database.Adapter, error) {
	if cfg.Database == nil {
		return nil, nil
	}
	return database.NewPostgres(ctx, cfg.Database.DSN)
}

// newQuerier builds the metric source stack: the time-series backend wrapped
// in a circuit breaker and bounded retry, routed together with the
// cluster-derived metrics.
func newQuerier(cfg *types.ProjectConfig, api cluster.API) (metricsource.Querier, error) {
	backend, err := metricsource.NewPrometheusQuerier(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating metrics querier: %w", err)
	}
	resilient := metricsource.NewRetryQuerier(metricsource.NewBreakerQuerier("metrics-backend", backend))
	return metricsource.NewRouter(resilient, metricsource.NewClusterQuerier(api)), nil
}

// newController wires the rollback controller from config.
func newController(st store.Store, backups *backup.Manager, api cluster.API, db database.Adapter, dispatcher *alert.Dispatcher, logger *slog.Logger, cfg *types.ProjectConfig) *controller.Controller {
	var coreTables []string
	if cfg.Database != nil {
		coreTables = cfg.Database.CoreTables
	}
	var alertFn func(types.Alert)
	if dispatcher != nil {
		alertFn = dispatcher.AlertFunc()
	}
	return controller.New(st, backups, api, db, alertFn, logger, controller.Config{
		Environment: cfg.Environment,
		Class:       cfg.Class,
		Workloads:   cfg.Workloads,
		CoreTables:  coreTables,
	})
}

// promptConfirm reads one line from stdin for the confirmation gate.
func promptConfirm(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

// newLogger builds the process logger writing key-value pairs to stderr.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rollward-systems/rollward/internal/alert"
	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/config"
	"github.com/rollward-systems/rollward/pkg/types"
)

// NewRollbackCmd creates the rollback command.
func NewRollbackCmd() *cobra.Command {
	var (
		rollbackType   string
		target         string
		reason         string
		force          bool
		skipBackup     bool
		skipValidation bool
		yes            bool
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Execute a rollback of the configured environment",
		Long: `Executes a rollback through the safety-gated state machine: prerequisite
validation, target validation, pre-rollback backup, confirmation, execution,
and post-rollback verification.

Only one rollback runs per environment at a time. A request made while
another process holds the environment's rollback lock is rejected; re-run it
once the in-flight rollback finishes (see "rollward status").

Exit codes: 0 success, 2 validation or configuration failure, 3 execution
failure, 4 verification failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runRollback(rollbackType, target, reason, force, skipBackup, skipValidation, yes, verbose)
		},
	}

	cmd.Flags().StringVar(&rollbackType, "type", "", "rollback type: application, database, infrastructure, monitoring, partial, full")
	cmd.Flags().StringVar(&target, "target", "previous", `target: "previous", "latest", "revision:N", "backup:ID", or "components:a,b"`)
	cmd.Flags().StringVar(&reason, "reason", "", "why this rollback is being executed")
	cmd.Flags().BoolVar(&force, "force", false, "required for full/database rollbacks in production")
	cmd.Flags().BoolVar(&skipBackup, "skip-backup", false, "skip the pre-rollback backup")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "skip prerequisite connectivity checks")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the interactive confirmation prompt")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runRollback(rollbackType, target, reason string, force, skipBackup, skipValidation, yes, verbose bool) error {
	cfg, err := config.Load(".")
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: fmt.Errorf("loading config: %w", err)}
	}

	parsedType, err := types.ParseRollbackType(rollbackType)
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: err}
	}
	parsedTarget, err := types.ParseTarget(target)
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: err}
	}

	logger := newLogger(verbose)

	// SIGINT cancels the rollback while it is still in a cancellable phase;
	// once execution starts it runs to completion.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return &ExitCodeError{Code: ExitExecution, Err: err}
	}
	defer func() { _ = st.Stop(context.Background()) }()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: err}
	}
	api, err := cluster.NewClient(cfg.Cluster)
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: err}
	}
	db, err := newDatabase(ctx, cfg)
	if err != nil {
		return &ExitCodeError{Code: ExitExecution, Err: err}
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: err}
	}

	backups := backup.New(st, blobs, db, api, logger, cfg.Environment, cfg.Retention)
	ctrl := newController(st, backups, api, db, dispatcher, logger, cfg).WithConfirm(promptConfirm)

	exec, err := ctrl.Run(ctx, types.RollbackRequest{
		Type:           parsedType,
		Target:         parsedTarget,
		Reason:         reason,
		RequestedBy:    "cli",
		Force:          force,
		SkipBackup:     skipBackup,
		SkipValidation: skipValidation,
		AutoApprove:    yes,
		RequestedAt:    time.Now().UTC(),
	})
	if err != nil {
		return &ExitCodeError{Code: ExitValidation, Err: err}
	}

	printReport(exec)
	switch exec.Outcome {
	case types.OutcomeSucceeded:
		return nil
	case types.OutcomeCancelled:
		return &ExitCodeError{Code: ExitValidation, Err: fmt.Errorf("rollback cancelled: %s", exec.FailureDetail)}
	default:
		return &ExitCodeError{
			Code: exitCodeFor(exec.FailureKind),
			Err:  fmt.Errorf("rollback failed (%s): %s", exec.FailureKind, exec.FailureDetail),
		}
	}
}

// printReport renders the final execution report.
func printReport(exec *types.RollbackExecution) {
	bold := color.New(color.Bold)

	fmt.Println()
	_, _ = bold.Printf("Rollback %s\n", exec.ID)
	fmt.Printf("  Type:        %s\n", exec.Request.Type)
	fmt.Printf("  Target:      %s\n", exec.Request.Target.String())
	fmt.Printf("  Environment: %s\n", exec.Environment)
	if exec.BackupID != "" {
		fmt.Printf("  Backup:      %s\n", exec.BackupID)
	}

	for _, result := range exec.Components {
		marker := color.GreenString("OK")
		if !result.Succeeded {
			marker = color.RedString("FAILED")
		}
		line := fmt.Sprintf("  %-16s %s", result.Component, marker)
		if result.Error != "" {
			line += "  " + result.Error
		}
		fmt.Println(line)
	}

	var outcome string
	switch exec.Outcome {
	case types.OutcomeSucceeded:
		outcome = color.GreenString(string(exec.Outcome))
	case types.OutcomeCancelled:
		outcome = color.YellowString(string(exec.Outcome))
	default:
		outcome = color.RedString(string(exec.Outcome))
	}
	if exec.CompletedAt != nil {
		fmt.Printf("  Outcome:     %s (%s)\n", outcome, exec.CompletedAt.Sub(exec.StartedAt).Round(time.Second))
	} else {
		fmt.Printf("  Outcome:     %s\n", outcome)
	}
	if exec.FailureDetail != "" {
		fmt.Printf("  Detail:      %s\n", exec.FailureDetail)
	}
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rollward-systems/rollward/internal/config"
	"github.com/rollward-systems/rollward/internal/lifecycle"
	"github.com/rollward-systems/rollward/internal/status"
	"github.com/rollward-systems/rollward/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		limit    int
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show rollback executions and monitor activity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(args) > 0 {
				return runExecutionStatus(args[0])
			}
			return runStatus(limit, watch, interval)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of recent executions to show")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-render the snapshot on an interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "refresh interval for --watch")
	return cmd
}

func runStatus(limit int, watch bool, interval time.Duration) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Stop(context.Background()) }()

	// Pull path: the snapshot is rebuilt from the stored event log, so this
	// command sees the same view the daemon builds incrementally.
	render := func() error {
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		agg := status.NewAggregator()
		if err := agg.Rebuild(rctx, st); err != nil {
			return fmt.Errorf("rebuilding status: %w", err)
		}
		renderSnapshot(os.Stdout, cfg, agg.Snapshot(), limit)
		return nil
	}

	if err := render(); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return watchLoop(ctx, interval, render)
}

// watchLoop re-invokes render every interval until the context is cancelled.
func watchLoop(ctx context.Context, interval time.Duration, render func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Println()
			if err := render(); err != nil {
				return err
			}
		}
	}
}

// renderSnapshot writes the aggregated view: monitor counters followed by the
// most recent executions.
func renderSnapshot(w io.Writer, cfg *types.ProjectConfig, snap status.Snapshot, limit int) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Environment: %s (%s)\n", cfg.Environment, cfg.Class)
	fmt.Fprintf(w, "Monitor ticks: %d   triggers fired: %d   cleared: %d\n",
		snap.Ticks, snap.TriggersFired, snap.TriggersCleared)
	fmt.Fprintf(w, "Backups created: %d   pruned: %d\n", snap.BackupsCreated, snap.BackupsPruned)
	fmt.Fprintln(w)

	if len(snap.Executions) == 0 {
		fmt.Fprintln(w, "No rollback executions recorded.")
		return
	}

	_, _ = bold.Fprintln(w, "Recent executions:")
	shown := snap.Executions
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, exec := range shown {
		line := fmt.Sprintf("  %s  %-10s %s", exec.ExecutionID, renderPhase(exec), exec.StartedAt.Format(time.RFC3339))
		if exec.Elapsed != "" {
			line += "  " + exec.Elapsed
		}
		fmt.Fprintln(w, line)
	}
}

func runExecutionStatus(id string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Stop(ctx) }()

	exec, err := st.GetExecution(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching execution: %w", err)
	}
	if exec == nil {
		return fmt.Errorf("execution %q not found", id)
	}

	agg := status.NewAggregator()
	events, err := st.ListEvents(ctx, id, 0)
	if err != nil {
		return fmt.Errorf("fetching events: %w", err)
	}
	for _, event := range events {
		agg.Ingest(event)
	}
	snap := agg.Snapshot()

	printReport(exec)
	fmt.Println()
	for _, es := range snap.Executions {
		if es.ExecutionID != id {
			continue
		}
		for _, phase := range lifecycle.Order {
			record := es.Phases[phase]
			fmt.Printf("  %-26s %s\n", phase, renderPhaseStatus(record.Status))
		}
		line := fmt.Sprintf("  Phases: %d completed, %d failed", es.CompletedPhases, es.FailedPhases)
		if es.Elapsed != "" {
			line += "  (" + es.Elapsed + " elapsed)"
		}
		fmt.Println(line)
	}
	return nil
}

func renderPhase(exec status.ExecutionStatus) string {
	switch exec.Outcome {
	case types.OutcomeSucceeded:
		return color.GreenString("COMPLETED")
	case types.OutcomeCancelled:
		return color.YellowString("CANCELLED")
	case types.OutcomeFailed:
		return color.RedString("FAILED")
	default:
		return color.CyanString(string(exec.Phase))
	}
}

func renderPhaseStatus(s types.PhaseStatus) string {
	switch s {
	case types.PhaseDone:
		return color.GreenString(string(s))
	case types.PhaseErrored:
		return color.RedString(string(s))
	case types.PhaseInProgress:
		return color.CyanString(string(s))
	case types.PhaseSkipped:
		return color.YellowString(string(s))
	default:
		return string(types.PhasePending)
	}
}

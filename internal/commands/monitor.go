package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rollward-systems/rollward/internal/alert"
	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/config"
	"github.com/rollward-systems/rollward/internal/monitor"
	"github.com/rollward-systems/rollward/internal/server"
	"github.com/rollward-systems/rollward/internal/status"
)

// NewMonitorCmd creates the monitor command.
func NewMonitorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the trigger monitor and rollback controller as a daemon",
		Long: `Continuously samples the configured metrics, evaluates rollback triggers
over sliding windows, and submits automated rollbacks when a trigger fires.
Also serves the status HTTP API when a server is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runMonitor(verbose)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	return cmd
}

func runMonitor(verbose bool) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Monitor.Enabled {
		return fmt.Errorf("monitor is not enabled in rollward.yaml")
	}

	logger := newLogger(verbose)
	ctx := context.Background()

	base, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = base.Stop(context.Background()) }()

	// Every event written through the tap also feeds the status aggregator,
	// so the HTTP snapshot stays current without re-reading the log.
	agg := status.NewAggregator()
	st := status.NewEventTap(base, agg)
	if err := agg.Rebuild(ctx, st); err != nil {
		return fmt.Errorf("rebuilding status from event log: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	api, err := cluster.NewClient(cfg.Cluster)
	if err != nil {
		return err
	}
	db, err := newDatabase(ctx, cfg)
	if err != nil {
		return err
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}

	backups := backup.New(st, blobs, db, api, logger, cfg.Environment, cfg.Retention)
	ctrl := newController(st, backups, api, db, dispatcher, logger, cfg)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	querier, err := newQuerier(cfg, api)
	if err != nil {
		return err
	}
	mon := monitor.New(querier, ctrl, st, dispatcher.AlertFunc(), logger, cfg.Monitor, cfg.Triggers)
	mon.Start(ctx)

	var srv *server.Server
	errCh := make(chan error, 1)
	if cfg.Server != nil {
		srv = server.New(*cfg.Server, st, agg, backups, ctrl, logger)
		go func() {
			errCh <- srv.Start()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if srv != nil {
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Error("server shutdown failed", "error", err)
			}
		}
		mon.Stop(shutdownCtx)
		if err := ctrl.Stop(shutdownCtx); err != nil {
			logger.Error("controller shutdown failed", "error", err)
		}
	}
	return nil
}

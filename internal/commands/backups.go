package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/config"
	"github.com/rollward-systems/rollward/pkg/types"
)

// NewBackupsCmd creates the backups command group.
func NewBackupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Manage rollback backups",
	}
	cmd.AddCommand(newBackupsListCmd(), newBackupsCreateCmd(), newBackupsPruneCmd())
	return cmd
}

// withBackupManager wires a backup manager and hands it to fn.
func withBackupManager(fn func(ctx context.Context, backups *backup.Manager) error) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Stop(context.Background()) }()

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

	return fn(ctx, backup.New(st, blobs, db, api, logger, cfg.Environment, cfg.Retention))
}

func newBackupsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return withBackupManager(func(ctx context.Context, backups *backup.Manager) error {
				records, err := backups.List(ctx, limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No backups recorded.")
					return nil
				}
				bold := color.New(color.Bold)
				_, _ = bold.Printf("%-17s %-14s %-10s %s\n", "ID", "KIND", "ARTIFACTS", "CREATED")
				for _, record := range records {
					fmt.Printf("%-17s %-14s %-10d %s\n",
						record.ID, record.Kind, len(record.Artifacts),
						record.CreatedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum backups to list (0 = all)")
	return cmd
}

func newBackupsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a manual backup now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return withBackupManager(func(ctx context.Context, backups *backup.Manager) error {
				record, err := backups.Create(ctx, types.BackupManual, "")
				if err != nil {
					return err
				}
				color.Green("Backup %s created with %d artifacts", record.ID, len(record.Artifacts))
				return nil
			})
		},
	}
}

func newBackupsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups beyond the retention policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return withBackupManager(func(ctx context.Context, backups *backup.Manager) error {
				pruned, err := backups.Prune(ctx)
				if err != nil {
					return err
				}
				if len(pruned) == 0 {
					fmt.Println("Nothing to prune.")
					return nil
				}
				for _, id := range pruned {
					fmt.Printf("pruned %s\n", id)
				}
				return nil
			})
		},
	}
}

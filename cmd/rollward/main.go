package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollward-systems/rollward/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "rollward",
		Short: "Trigger-monitored rollback orchestration for deployed environments",
		Long: `Rollward watches deployment health metrics, fires rollback triggers when
sustained degradation crosses a threshold, and executes rollbacks through a
safety-gated state machine: validation, backup, confirmation, execution, and
verification.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewMonitorCmd(),
		commands.NewRollbackCmd(),
		commands.NewStatusCmd(),
		commands.NewBackupsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCode(err))
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/engine"
	"github.com/outfit-dev/outfit/internal/log"
	"github.com/outfit-dev/outfit/internal/rollback"
	"github.com/outfit-dev/outfit/internal/statestore"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <tool>",
	Short: "Undo a tool's completed steps, in reverse completion order",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	tool := args[0]
	cfg := loadConfig()

	store, err := statestore.New(cfg.PlanStateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open state store: %v\n", err)
		exitWithCode(ExitGeneral)
	}
	defer store.Close()

	state, err := store.Load(tool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: no persisted plan for %q: %v\n", tool, err)
		exitWithCode(ExitNoPendingPlan)
	}

	ctx := globalCtx
	if ctx == nil {
		ctx = cmd.Context()
	}

	eng := rollback.New(engine.NewShellRunner(), log.Default())
	report := eng.Run(ctx, state.Plan, state.Results)

	printJSON(report)
	if report.Failed() {
		exitWithCode(ExitExecuteFailed)
	}
	return nil
}

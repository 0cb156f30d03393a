package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/plan"
	"github.com/outfit-dev/outfit/internal/statestore"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <tool>",
	Short: "Cancel a persisted plan that hasn't reached a terminal phase",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

// runCancel marks tool's persisted state cancelled. A live `execute`
// invocation cancels in-process on SIGINT/SIGTERM already; this subcommand
// is for a plan left non-terminal by a process that's no longer running,
// so there's no step to SIGTERM here — pending and running steps flip to
// cancelled, exactly as an in-process cancellation would leave them.
// Already-succeeded steps are left alone; rollback is a separate step.
func runCancel(cmd *cobra.Command, args []string) error {
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

	switch state.Phase {
	case plan.PhaseSucceeded, plan.PhaseFailed, plan.PhaseCancelled:
		fmt.Fprintf(os.Stderr, "plan %q is already terminal (%s)\n", tool, state.Phase)
		return nil
	}

	for i := range state.Results {
		if state.Results[i].Status == plan.StatusPending || state.Results[i].Status == plan.StatusRunning {
			state.Results[i].Status = plan.StatusCancelled
		}
	}
	state.Phase = plan.PhaseCancelled
	state.InterruptionReason = "cancelled"
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := store.Save(state); err != nil {
		fmt.Fprintf(os.Stderr, "error: save cancelled plan state: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	printJSON(state)
	return nil
}

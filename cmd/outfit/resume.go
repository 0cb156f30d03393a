package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/plan"
	"github.com/outfit-dev/outfit/internal/statestore"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <tool>",
	Short: "Resume a persisted plan, re-entering its unfinished steps into the DAG",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	tool := args[0]
	cfg := loadConfig()

	store, err := statestore.New(cfg.PlanStateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open state store: %v\n", err)
		exitWithCode(ExitGeneral)
	}
	defer store.Close()

	state, err := store.Resume(tool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: no persisted plan for %q: %v\n", tool, err)
		exitWithCode(ExitNoPendingPlan)
	}

	remaining := resumablePlan(state)
	sink := &cliSink{}
	phase, results, err := runScheduler(remaining, store, sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		exitWithCode(ExitExecuteFailed)
	}

	merged := mergeResumeResults(state.Results, results, remaining)
	final := &plan.PlanState{Plan: state.Plan, Results: merged, Phase: phase, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := store.Save(final); err != nil {
		fmt.Fprintf(os.Stderr, "error: save resumed plan state: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	printPlanDone(final)
	if phase != plan.PhaseSucceeded {
		exitWithCode(ExitExecuteFailed)
	}
	return nil
}

// resumablePlan derives the sub-plan to re-enter into a fresh Scheduler:
// steps already recorded as success are dropped, and any still-pending
// step's DependsOn is pruned of references to those completed steps, since
// the scheduler has no memory of a prior run and would otherwise wait on a
// dependency that will never reappear.
func resumablePlan(state *plan.PlanState) *plan.Plan {
	done := map[string]bool{}
	for _, r := range state.Results {
		if r.Status == plan.StatusSuccess {
			done[r.StepID] = true
		}
	}

	out := &plan.Plan{
		PlanID: state.Plan.PlanID, Tool: state.Plan.Tool, CreatedAt: state.Plan.CreatedAt,
		RiskSummary: state.Plan.RiskSummary, RiskEscalation: state.Plan.RiskEscalation,
		ConfirmationGate: state.Plan.ConfirmationGate, Warning: state.Plan.Warning,
		Restart: state.Plan.Restart, Answers: state.Plan.Answers, Inputs: state.Plan.Inputs,
	}
	for _, st := range state.Plan.Steps {
		if done[st.ID] {
			continue
		}
		pruned := st
		pruned.DependsOn = nil
		for _, dep := range st.DependsOn {
			if !done[dep] {
				pruned.DependsOn = append(pruned.DependsOn, dep)
			}
		}
		out.Steps = append(out.Steps, pruned)
	}
	return out
}

// mergeResumeResults combines the previously-persisted, already-terminal
// results with the fresh run's results for the re-entered steps.
func mergeResumeResults(prior []plan.StepResult, fresh []plan.StepResult, resumed *plan.Plan) []plan.StepResult {
	resumedIDs := map[string]bool{}
	for _, st := range resumed.Steps {
		resumedIDs[st.ID] = true
	}

	merged := make([]plan.StepResult, 0, len(prior)+len(fresh))
	for _, r := range prior {
		if !resumedIDs[r.StepID] {
			merged = append(merged, r)
		}
	}
	merged = append(merged, fresh...)
	return merged
}

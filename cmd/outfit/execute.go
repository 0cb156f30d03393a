package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/engine"
	"github.com/outfit-dev/outfit/internal/log"
	"github.com/outfit-dev/outfit/internal/plan"
	"github.com/outfit-dev/outfit/internal/statestore"
)

var planFileFlag string

var executeCmd = &cobra.Command{
	Use:   "execute <tool>",
	Short: "Run a previously resolved Plan (read from --plan-file) to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecute,
}

func init() {
	executeCmd.Flags().StringVar(&planFileFlag, "plan-file", "", "Path to a Plan JSON file, as produced by `outfit resolve` (required)")
}

func runExecute(cmd *cobra.Command, args []string) error {
	tool := args[0]
	if planFileFlag == "" {
		fmt.Fprintln(os.Stderr, "error: --plan-file is required")
		exitWithCode(ExitUsage)
	}

	p, err := readPlanFile(planFileFlag)
	if err != nil {
		return err
	}
	if p.Tool != tool {
		fmt.Fprintf(os.Stderr, "error: plan file is for tool %q, not %q\n", p.Tool, tool)
		exitWithCode(ExitUsage)
	}

	cfg := loadConfig()
	store, err := statestore.New(cfg.PlanStateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open state store: %v\n", err)
		exitWithCode(ExitGeneral)
	}
	defer store.Close()

	sink := &cliSink{}
	phase, results, err := runScheduler(p, store, sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		exitWithCode(ExitExecuteFailed)
	}

	printPlanDone(&plan.PlanState{Plan: p, Results: results, Phase: phase, UpdatedAt: time.Now().UTC().Format(time.RFC3339)})
	if phase != plan.PhaseSucceeded {
		exitWithCode(ExitExecuteFailed)
	}
	return nil
}

func runScheduler(p *plan.Plan, store *statestore.Store, sink engine.Sink) (plan.Phase, []plan.StepResult, error) {
	ctx := globalCtx
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := engine.DefaultConfig()
	runner := engine.NewShellRunner()
	validator := &cliSudoValidator{}
	scheduler := engine.NewScheduler(cfg, runner, validator, sink, log.Default())

	state := &plan.PlanState{Plan: p, Phase: plan.PhaseRunning, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := store.Save(state); err != nil {
		return "", nil, fmt.Errorf("save initial plan state: %w", err)
	}

	phase, results, err := scheduler.Run(ctx, p, func(r plan.StepResult) {
		state.Results = append(state.Results, r)
		state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		_ = store.Save(state)
	})
	if err != nil {
		return phase, results, err
	}

	state.Phase = phase
	state.Results = results
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := store.Save(state); err != nil {
		return phase, results, fmt.Errorf("save final plan state: %w", err)
	}
	return phase, results, nil
}

func readPlanFile(path string) (*plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	return &p, nil
}

// cliSink renders scheduler events to stderr as they arrive and prompts for
// the sudo password on stdin the first (and only) time one is needed.
type cliSink struct{}

func (s *cliSink) Emit(e engine.Event) {
	switch e.Kind {
	case engine.EventStepStarted:
		fmt.Fprintf(os.Stderr, "==> %s\n", e.StepID)
	case engine.EventStepOutput:
		fmt.Fprintf(os.Stderr, "    [%s] %s\n", e.Stream, e.Line)
	case engine.EventStepRetrying:
		fmt.Fprintf(os.Stderr, "    retrying %s\n", e.StepID)
	case engine.EventStepFinished:
		fmt.Fprintf(os.Stderr, "<== %s: %s\n", e.StepID, e.Status)
	case engine.EventSudoPrompt:
		fmt.Fprintf(os.Stderr, "sudo privileges are required for %s\n", e.StepID)
	case engine.EventPlanFinished:
		fmt.Fprintln(os.Stderr, "plan finished")
	}
}

func (s *cliSink) AwaitSudoPassword(stepID string) (string, error) {
	fmt.Fprint(os.Stderr, "[sudo] password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read sudo password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// cliSudoValidator shells out to the real sudo binary, exactly as the
// teacher's own install path does.
type cliSudoValidator struct{}

func (cliSudoValidator) NonInteractive(ctx context.Context) bool {
	return exec.CommandContext(ctx, "sudo", "-n", "true").Run() == nil
}

func (cliSudoValidator) Validate(ctx context.Context, password string) error {
	c := exec.CommandContext(ctx, "sudo", "-S", "-v")
	c.Stdin = strings.NewReader(password + "\n")
	if out, err := c.CombinedOutput(); err != nil {
		return fmt.Errorf("sudo rejected password: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Package rollback implements the Rollback Engine (component K, spec §4.10):
// replaying a plan's completed steps in reverse order through a per-step-type
// undo catalog, best-effort, without mutating the Execution Engine's own
// StepResult records. Callers decide when to run it — on a failed or
// cancelled plan, or on an explicit user-requested uninstall — the Engine
// itself only knows how to walk results backward and dispatch.
package rollback

import (
	"context"
	"fmt"

	"github.com/outfit-dev/outfit/internal/engine"
	"github.com/outfit-dev/outfit/internal/log"
	"github.com/outfit-dev/outfit/internal/plan"
)

// Action is one undo attempt the Engine made against a completed step.
type Action struct {
	StepID  string
	Label   string
	Skipped bool
	Reason  string
	Err     error
}

// Report is the outcome of a rollback run: every action attempted, in the
// order applied (reverse completion order), regardless of outcome.
type Report struct {
	Actions []Action
}

// Failed reports whether any catalog action returned an error.
func (r Report) Failed() bool {
	for _, a := range r.Actions {
		if a.Err != nil {
			return true
		}
	}
	return false
}

// Engine runs undo actions for completed steps through the same Runner the
// Execution Engine uses, so rollback commands get identical process and
// timeout handling as forward execution.
type Engine struct {
	runner engine.Runner
	logger log.Logger
}

// New returns an Engine that executes undo commands through r.
func New(r engine.Runner, logger log.Logger) *Engine {
	return &Engine{runner: r, logger: logger}
}

// Run undoes every step recorded as successful in results, in reverse
// completion order, dispatching each through the Undo Catalog keyed by step
// type. A catalog action's failure is recorded in the returned Report and
// does not stop the remaining undos from running (§4.10).
func (e *Engine) Run(ctx context.Context, p *plan.Plan, results []plan.StepResult) Report {
	byID := make(map[string]plan.Step, len(p.Steps))
	for _, s := range p.Steps {
		byID[s.ID] = s
	}

	var report Report
	for i := len(results) - 1; i >= 0; i-- {
		res := results[i]
		if res.Status != plan.StatusSuccess {
			continue
		}
		step, ok := byID[res.StepID]
		if !ok {
			continue
		}

		undo, ok := catalog[step.Type]
		if !ok {
			report.Actions = append(report.Actions, Action{
				StepID: step.ID, Label: step.Label, Skipped: true,
				Reason: "no undo defined for step type " + string(step.Type),
			})
			continue
		}

		action := Action{StepID: step.ID, Label: "undo: " + step.Label}
		cmd, reason := undo(step)
		switch {
		case cmd == "":
			action.Skipped = true
			action.Reason = reason
			if e.logger != nil {
				e.logger.Debug("rollback step skipped", "step_id", step.ID, "reason", reason)
			}
		default:
			if _, runErr := e.runner.Run(ctx, cmd, step.CWD, nil, func(string, string) {}); runErr != nil {
				action.Err = fmt.Errorf("rollback command failed: %w", runErr)
				if e.logger != nil {
					e.logger.Warn("rollback action failed", "step_id", step.ID, "error", runErr)
				}
			}
		}
		report.Actions = append(report.Actions, action)
	}
	return report
}

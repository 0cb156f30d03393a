package functional

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

type planDoc struct {
	RiskSummary string `json:"risk_summary"`
	Steps       []struct {
		Type      string `json:"type"`
		Command   string `json:"command"`
		NeedsSudo bool   `json:"needs_sudo"`
	} `json:"steps"`
}

func iResolve(ctx context.Context, tool, profileName string) (context.Context, error) {
	state := getState(ctx)
	if state == nil {
		return ctx, fmt.Errorf("no test state; is the Before hook running?")
	}

	cmd := exec.Command(state.binPath,
		"resolve", tool,
		"--recipes", testdataPath("recipes"),
		"--profile", testdataPath("profiles", profileName+".json"),
	)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return ctx, fmt.Errorf("command execution failed: %w", err)
		}
	} else {
		state.exitCode = 0
	}

	return ctx, nil
}

func parsedPlan(state *testState) (*planDoc, error) {
	var p planDoc
	if err := json.Unmarshal([]byte(state.stdout), &p); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w\nstdout: %s\nstderr: %s", err, state.stdout, state.stderr)
	}
	return &p, nil
}

func thePlanContainsAStepWithCommand(ctx context.Context, command string) error {
	state := getState(ctx)
	p, err := parsedPlan(state)
	if err != nil {
		return err
	}
	for _, s := range p.Steps {
		if s.Command == command {
			return nil
		}
	}
	return fmt.Errorf("no step with command %q in plan:\n%s", command, state.stdout)
}

func thePlanContainsAStepOfType(ctx context.Context, stepType string) error {
	state := getState(ctx)
	p, err := parsedPlan(state)
	if err != nil {
		return err
	}
	for _, s := range p.Steps {
		if s.Type == stepType {
			return nil
		}
	}
	return fmt.Errorf("no step of type %q in plan:\n%s", stepType, state.stdout)
}

func thePlansRiskSummaryIs(ctx context.Context, risk string) error {
	state := getState(ctx)
	p, err := parsedPlan(state)
	if err != nil {
		return err
	}
	if p.RiskSummary != risk {
		return fmt.Errorf("risk_summary = %q, want %q", p.RiskSummary, risk)
	}
	return nil
}

func noPlanStepNeedsSudo(ctx context.Context) error {
	state := getState(ctx)
	p, err := parsedPlan(state)
	if err != nil {
		return err
	}
	for _, s := range p.Steps {
		if s.NeedsSudo {
			return fmt.Errorf("step of type %q unexpectedly needs sudo", s.Type)
		}
	}
	return nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s",
			expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

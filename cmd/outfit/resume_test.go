package main

import (
	"testing"

	"github.com/outfit-dev/outfit/internal/plan"
)

func testPlanSteps() []plan.Step {
	return []plan.Step{
		{ID: "packages:deps", Type: plan.StepPackages},
		{ID: "packages:docker", Type: plan.StepPackages, DependsOn: []string{"packages:deps"}},
		{ID: "repo_setup:docker:gpg_key", Type: plan.StepRepoSetup, DependsOn: []string{"packages:docker"}},
		{ID: "service:docker:docker", Type: plan.StepService, DependsOn: []string{"repo_setup:docker:gpg_key"}},
		{ID: "verify:docker", Type: plan.StepVerify, DependsOn: []string{"service:docker:docker"}},
	}
}

func TestResumablePlanDropsCompletedStepsAndPrunesDependsOn(t *testing.T) {
	p := &plan.Plan{Tool: "docker", Steps: testPlanSteps()}
	state := &plan.PlanState{
		Plan: p,
		Results: []plan.StepResult{
			{StepID: "packages:deps", Status: plan.StatusSuccess},
			{StepID: "packages:docker", Status: plan.StatusSuccess},
			{StepID: "repo_setup:docker:gpg_key", Status: plan.StatusPending},
			{StepID: "service:docker:docker", Status: plan.StatusPending},
			{StepID: "verify:docker", Status: plan.StatusPending},
		},
	}

	remaining := resumablePlan(state)

	if len(remaining.Steps) != 3 {
		t.Fatalf("resumablePlan() kept %d steps, want 3: %+v", len(remaining.Steps), remaining.Steps)
	}
	if remaining.Steps[0].ID != "repo_setup:docker:gpg_key" {
		t.Fatalf("resumablePlan()[0] = %q, want repo_setup:docker:gpg_key", remaining.Steps[0].ID)
	}
	if len(remaining.Steps[0].DependsOn) != 0 {
		t.Errorf("repo_setup step's DependsOn = %v, want empty after pruning completed deps", remaining.Steps[0].DependsOn)
	}
	if remaining.Tool != "docker" {
		t.Errorf("resumablePlan().Tool = %q, want docker", remaining.Tool)
	}
}

func TestMergeResumeResultsKeepsPriorTerminalAndAddsFresh(t *testing.T) {
	p := &plan.Plan{Tool: "docker", Steps: testPlanSteps()}
	resumed := &plan.Plan{Steps: []plan.Step{
		{ID: "repo_setup:docker:gpg_key"},
		{ID: "service:docker:docker"},
		{ID: "verify:docker"},
	}}

	prior := []plan.StepResult{
		{StepID: "packages:deps", Status: plan.StatusSuccess},
		{StepID: "packages:docker", Status: plan.StatusSuccess},
		{StepID: "repo_setup:docker:gpg_key", Status: plan.StatusPending},
		{StepID: "service:docker:docker", Status: plan.StatusPending},
		{StepID: "verify:docker", Status: plan.StatusPending},
	}
	fresh := []plan.StepResult{
		{StepID: "repo_setup:docker:gpg_key", Status: plan.StatusSuccess},
		{StepID: "service:docker:docker", Status: plan.StatusSuccess},
		{StepID: "verify:docker", Status: plan.StatusSuccess},
	}

	merged := mergeResumeResults(prior, fresh, resumed)

	if len(merged) != 5 {
		t.Fatalf("mergeResumeResults() returned %d results, want 5: %+v", len(merged), merged)
	}

	byID := map[string]plan.StepResult{}
	for _, r := range merged {
		byID[r.StepID] = r
	}
	if byID["packages:deps"].Status != plan.StatusSuccess {
		t.Errorf("packages:deps status = %v, want success carried over from prior", byID["packages:deps"].Status)
	}
	if byID["verify:docker"].Status != plan.StatusSuccess {
		t.Errorf("verify:docker status = %v, want success from the fresh run", byID["verify:docker"].Status)
	}
}

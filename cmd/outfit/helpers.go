package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"

	"github.com/outfit-dev/outfit/internal/depgraph"
	"github.com/outfit-dev/outfit/internal/llm"
	"github.com/outfit-dev/outfit/internal/plan"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/restart"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

func loadProfile(path string) (*sysprofile.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p sysprofile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

func loadRegistry(dir string) (*recipe.Registry, error) {
	reg := recipe.NewRegistry()
	if err := reg.Load(dir); err != nil {
		return nil, fmt.Errorf("load recipes: %w", err)
	}
	return reg, nil
}

// newDepResolver builds the Dependency Resolver, wiring in the opt-in LLM
// suggestion tier whenever OUTFIT_LLM_SUGGESTIONS and a provider's
// credentials are both present. A declining or absent suggester is
// indistinguishable from not having this tier at all.
func newDepResolver(reg *recipe.Registry) *depgraph.Resolver {
	ctx := globalCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if suggester, ok := llm.NewSuggesterFromEnv(ctx); ok {
		return depgraph.NewResolverWithSuggester(reg, suggester)
	}
	return depgraph.NewResolver(reg)
}

func homeDir() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return os.Getenv("HOME")
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// planDone is what `execute` and `resume` print on exit: the persisted plan
// state plus the post-flight restart scan (component L), which looks at
// what actually ran rather than what the recipe declared up front.
type planDone struct {
	*plan.PlanState
	RestartSummary plan.RestartSummary `json:"restart_summary"`
	RestartActions []restart.Action    `json:"restart_actions,omitempty"`
}

func printPlanDone(state *plan.PlanState) {
	summary, actions := restart.Detect(state.Plan, state.Results)
	printJSON(&planDone{PlanState: state, RestartSummary: summary, RestartActions: actions})
}

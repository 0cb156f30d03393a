// Package resolve implements the library-level resolve() entry point (spec
// §2, §6): recipe lookup, the already-installed short-circuit, choice
// resolution, method selection, dependency-closure building, and plan
// assembly, wired into the single PlanResponse sum type callers expect.
package resolve

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/outfit-dev/outfit/internal/choice"
	"github.com/outfit-dev/outfit/internal/depgraph"
	"github.com/outfit-dev/outfit/internal/method"
	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/plan"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
	"github.com/outfit-dev/outfit/internal/tmpl"
)

// Kind distinguishes the two non-error shapes resolve() can return (§6).
type Kind string

const (
	KindPlan             Kind = "plan"
	KindAlreadyInstalled Kind = "already_installed"
)

// Response is the PlanResponse sum type from §6:
// {kind:"plan", plan:Plan} | {kind:"already_installed", version_installed?}.
// A resolution-time failure (unknown_tool, no_viable_method,
// dependency_cycle, ...) comes back as a *outfiterr.Error through the
// normal error return instead of a third Kind value; the cmd/outfit JSON
// envelope adds kind:"error" at the transport boundary.
type Response struct {
	Kind             Kind       `json:"kind"`
	Plan             *plan.Plan `json:"plan,omitempty"`
	VersionInstalled string     `json:"version_installed,omitempty"`
}

// Verifier runs a recipe's verify.command and reports whether it exited
// zero, plus whatever it printed (for version-pattern extraction).
type Verifier interface {
	Verify(ctx context.Context, command string) (ok bool, output string, err error)
}

// ShellVerifier runs the command through "sh -c", the same shape the
// Execution Engine's ShellRunner uses for a plan's own verify step
// (internal/engine/runner.go), so the already-installed check and a
// verify step agree on what "installed" means.
type ShellVerifier struct {
	Timeout time.Duration
}

// NewShellVerifier returns a ShellVerifier with a conservative default
// timeout; verify commands are meant to be near-instant version checks.
func NewShellVerifier() *ShellVerifier {
	return &ShellVerifier{Timeout: 10 * time.Second}
}

func (v *ShellVerifier) Verify(ctx context.Context, command string) (bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, string(out), nil
		}
		return false, string(out), err
	}
	return true, string(out), nil
}

// Resolver bundles the components resolve() drives: the registry it looks
// tools up in, the Dependency Resolver it builds a closure with, the Choice
// Resolver it materializes answers against, and the Verifier it runs to
// short-circuit already-installed targets.
type Resolver struct {
	Registry *recipe.Registry
	DepGraph *depgraph.Resolver
	Choices  *choice.Resolver
	Verifier Verifier
	Home     string
	User     string
}

// New returns a Resolver with the production ShellVerifier wired in.
func New(reg *recipe.Registry, dep *depgraph.Resolver, choices *choice.Resolver, home, user string) *Resolver {
	return &Resolver{Registry: reg, DepGraph: dep, Choices: choices, Verifier: NewShellVerifier(), Home: home, User: user}
}

// Resolve runs resolve(tool_id, profile, answers, inputs) end to end (§2
// data flow). methodOverride forces a specific method/variant ahead of the
// Choice Resolver's own binding (cmd/outfit's --method flag); pass "" to
// let the resolved choices decide (§4.5 step 1).
func (r *Resolver) Resolve(ctx context.Context, toolID string, profile *sysprofile.Profile, answers choice.Answers, inputs map[string]string, methodOverride recipe.Method) (*Response, error) {
	rec, ok := r.Registry.RecipeOf(toolID)
	if !ok {
		return nil, outfiterr.New(outfiterr.KindUnknownTool, fmt.Sprintf("no recipe registered for %q", toolID))
	}

	if resp, ok := r.checkAlreadyInstalled(ctx, rec); ok {
		return resp, nil
	}

	result, err := r.Choices.Resolve(ctx, rec, profile, answers)
	if err != nil {
		return nil, err
	}

	boundMethod := method.BoundFrom(rec, result.Choices)
	if methodOverride != "" {
		boundMethod = methodOverride
	}
	if _, err := method.Select(rec, profile, boundMethod); err != nil {
		return nil, err
	}

	g, err := r.DepGraph.Resolve(toolID, profile, boundMethod)
	if err != nil {
		return nil, err
	}

	builder := &plan.Builder{
		Profile: profile,
		Choices: result,
		Answers: answers,
		Inputs:  map[string]map[string]string{toolID: inputs},
		Builtins: func(id string) tmpl.Builtins {
			return tmpl.BuiltinsFromProfile(profile, r.Home, r.User, "", "")
		},
	}
	p, err := builder.Build(g, toolID)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	return &Response{Kind: KindPlan, Plan: p}, nil
}

// checkAlreadyInstalled runs rec.Verify.Command, the pre-flight short
// circuit T5/T7/T8 depend on: a zero exit means the tool is present, unless
// the version it reports violates minimum_version or version_constraint, in
// which case resolve() proceeds to build a fresh (upgrade) plan instead.
func (r *Resolver) checkAlreadyInstalled(ctx context.Context, rec *recipe.Recipe) (*Response, bool) {
	if rec.Verify.Command == "" {
		return nil, false
	}
	installed, output, err := r.Verifier.Verify(ctx, rec.Verify.Command)
	if err != nil || !installed {
		return nil, false
	}

	version := extractVersion(rec.Verify.Pattern, output)
	if !versionSatisfies(rec, version) {
		return nil, false
	}
	return &Response{Kind: KindAlreadyInstalled, VersionInstalled: version}, true
}

// versionSatisfies reports whether an already-installed version still
// clears the recipe's minimum_version/version_constraint (§8 T5). An
// unextracted version, or a constraint type this resolver doesn't know how
// to evaluate (e.g. "cluster_match", §8 E4), is treated as satisfied —
// already_installed shouldn't start flapping over a check it can't perform.
func versionSatisfies(rec *recipe.Recipe, version string) bool {
	if version == "" {
		return true
	}
	if rec.MinimumVersion != "" && sysprofile.CompareVersions(version, rec.MinimumVersion) < 0 {
		return false
	}
	if rec.VersionConstraint != nil && rec.VersionConstraint.Type == "semver_range" {
		constraint, err := semver.NewConstraint(rec.VersionConstraint.Value)
		if err != nil {
			return true
		}
		v, err := semver.NewVersion(sysprofile.NormalizeVersion(version))
		if err != nil {
			return true
		}
		if !constraint.Check(v) {
			return false
		}
	}
	return true
}

// extractVersion applies verify.pattern's first capture group to the
// verify command's output; an empty pattern or a miss yields "".
func extractVersion(pattern, output string) string {
	if pattern == "" {
		return ""
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(output)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

package depgraph

import (
	"context"
	"fmt"

	"github.com/outfit-dev/outfit/internal/llm"
	"github.com/outfit-dev/outfit/internal/method"
	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully resolved
)

// Resolver builds the dependency closure for a target tool against a
// read-only recipe registry.
type Resolver struct {
	registry  *recipe.Registry
	suggester llm.Suggester
}

// NewResolver returns a Resolver bound to reg, with the opt-in LLM
// suggestion tier off.
func NewResolver(reg *recipe.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// NewResolverWithSuggester returns a Resolver whose Dynamic Dep Resolver
// tries s (tier 3, §4.6) before falling back to the naming-convention
// guess. Pass the result of llm.NewSuggesterFromEnv; a nil s behaves like
// NewResolver.
func NewResolverWithSuggester(reg *recipe.Registry, s llm.Suggester) *Resolver {
	return &Resolver{registry: reg, suggester: s}
}

// Resolve computes the full dependency closure for targetToolID, detecting
// cycles via iterative DFS (§4.6 step 3, §9 design notes) and returning a
// topologically ordered Graph (dependencies precede dependents). boundMethod
// is the target's own resolved method/variant binding (method.BoundFrom's
// result, or an explicit override; "" if unbound) and applies only to
// targetToolID's own node (§4.5 step 1) — dependencies pick their own
// method independently.
func (r *Resolver) Resolve(targetToolID string, profile *sysprofile.Profile, boundMethod recipe.Method) (*Graph, error) {
	rec, ok := r.registry.RecipeOf(targetToolID)
	if !ok {
		return nil, outfiterr.New(outfiterr.KindUnknownTool, fmt.Sprintf("no recipe registered for %q", targetToolID))
	}

	g := &Graph{byID: make(map[string]*Node)}
	colors := make(map[string]color)
	var path []string

	var visit func(toolID string, rec *recipe.Recipe) error
	visit = func(toolID string, rec *recipe.Recipe) error {
		switch colors[toolID] {
		case black:
			return nil
		case gray:
			if rec != nil && rec.SatisfiesSelf {
				return nil
			}
			cyclePath := append(append([]string{}, path...), toolID)
			return outfiterr.New(outfiterr.KindDependencyCycle, "dependency cycle detected").
				WithDetail("path", cyclePath)
		}

		colors[toolID] = gray
		path = append(path, toolID)

		deps := append(append([]string{}, rec.Requires.Binaries...), rec.Requires.Runtime...)
		var dependsOn []string

		for _, depID := range deps {
			if depID == toolID {
				if rec.SatisfiesSelf {
					continue
				}
				return outfiterr.New(outfiterr.KindDependencyCycle, fmt.Sprintf("%s depends on itself without satisfies_self", toolID)).
					WithDetail("path", append(append([]string{}, path...), toolID))
			}

			if depRec, ok := r.registry.RecipeOf(depID); ok {
				if err := visit(depID, depRec); err != nil {
					return err
				}
				dependsOn = append(dependsOn, depID)
				continue
			}

			if providers := r.registry.ProvidersOf(depID); len(providers) > 0 {
				providerID := providers[0]
				providerRec, _ := r.registry.RecipeOf(providerID)
				if err := visit(providerID, providerRec); err != nil {
					return err
				}
				dependsOn = append(dependsOn, providerID)
				continue
			}

			synthID := syntheticNodeID(toolID, depID)
			if colors[synthID] != black {
				dr := dynamicResolver{suggester: r.suggester}
				pkgName, tier := dr.resolve(context.Background(), depID, string(profile.Distro.Family), profile.PackageManager.Primary)
				g.Nodes = append(g.Nodes, &Node{
					ToolID:      synthID,
					Synthetic:   true,
					PackageName: pkgName,
					DynamicTier: tier,
				})
				colors[synthID] = black
				g.byID[synthID] = g.Nodes[len(g.Nodes)-1]
			}
			dependsOn = append(dependsOn, synthID)
		}

		var bound recipe.Method
		if toolID == targetToolID {
			bound = boundMethod
		}
		sel, err := method.Select(rec, profile, bound)
		if err != nil {
			return err
		}

		node := &Node{ToolID: toolID, Recipe: rec, Selection: sel, DependsOn: dependsOn}
		g.Nodes = append(g.Nodes, node)
		g.byID[toolID] = node

		colors[toolID] = black
		path = path[:len(path)-1]
		return nil
	}

	if err := visit(targetToolID, rec); err != nil {
		return nil, err
	}
	return g, nil
}

func syntheticNodeID(owner, depID string) string {
	return fmt.Sprintf("%s::dep::%s", owner, depID)
}

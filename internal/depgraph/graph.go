// Package depgraph implements the Dependency Resolver (component G, spec
// §4.6): recursive closure over recipe dependencies, a tiered dynamic
// fallback for deps without a recipe (own name, library map, optional LLM
// suggestion, naming convention), cycle detection, and topological
// ordering with per-PM batching.
package depgraph

import (
	"github.com/outfit-dev/outfit/internal/method"
	"github.com/outfit-dev/outfit/internal/recipe"
)

// Node is one resolved entry in the dependency closure.
type Node struct {
	ToolID string

	// Recipe-backed node.
	Recipe    *recipe.Recipe
	Selection *method.Selection

	// Synthetic node: a dependency with no matching recipe, resolved via
	// the Dynamic Dep Resolver into a package name for the host's family.
	Synthetic    bool
	PackageName  string
	DynamicTier  int

	// DependsOn holds the tool ids this node's steps must follow.
	DependsOn []string
}

// Graph is the resolved, acyclic dependency closure for a target tool.
type Graph struct {
	Nodes []*Node
	byID  map[string]*Node
}

// NodeOf looks up a resolved node by tool id.
func (g *Graph) NodeOf(toolID string) (*Node, bool) {
	n, ok := g.byID[toolID]
	return n, ok
}

// TopologicalOrder returns tool ids such that every dependency precedes its
// dependents (§4.6).
func (g *Graph) TopologicalOrder() []string {
	order := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		order[i] = n.ToolID
	}
	return order
}

// PackageBatches groups every `requires.packages[family]` entry across the
// closure by package manager family, for the Plan Builder's batched
// `packages` step emission (§4.6 step 2).
func (g *Graph) PackageBatches(family string) map[string][]string {
	batches := make(map[string][]string)
	for _, n := range g.Nodes {
		if n.Synthetic {
			batches[family] = append(batches[family], n.PackageName)
			continue
		}
		if n.Recipe == nil {
			continue
		}
		for _, pkg := range n.Recipe.Requires.Packages[family] {
			batches[family] = append(batches[family], pkg)
		}
	}
	return batches
}

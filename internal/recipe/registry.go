package recipe

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/outfit-dev/outfit/internal/log"
)

// Registry is a read-only, load-time-validated index of recipes keyed by
// tool id. Once Load returns successfully the registry is immutable (R4):
// callers never mutate a *Recipe obtained from it.
type Registry struct {
	byID       map[string]*Recipe
	byCategory map[string][]string // category -> sorted tool ids
	logger     log.Logger
}

// NewRegistry returns an empty Registry. Call Load to populate it.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[string]*Recipe),
		byCategory: make(map[string][]string),
		logger:     log.Default(),
	}
}

// Load walks dir for *.toml recipe files, decodes each into a Recipe,
// validates it (R1-R3), and rejects duplicate tool_ids (R4). On any error
// the registry is left as it was before the call (Load is all-or-nothing).
func (r *Registry) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("recipe: reading %s: %w", dir, err)
	}

	byID := make(map[string]*Recipe, len(entries))
	byCategory := make(map[string][]string)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var rec Recipe
		if _, err := toml.DecodeFile(path, &rec); err != nil {
			return fmt.Errorf("recipe: decoding %s: %w", path, err)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("recipe: %s: %w", path, err)
		}
		if _, dup := byID[rec.ToolID]; dup {
			return fmt.Errorf("recipe: duplicate tool_id %q (R4)", rec.ToolID)
		}
		byID[rec.ToolID] = &rec
		byCategory[rec.Category] = append(byCategory[rec.Category], rec.ToolID)
	}

	for cat := range byCategory {
		sort.Strings(byCategory[cat])
	}

	r.byID = byID
	r.byCategory = byCategory
	r.logger.Info("recipe registry loaded", "dir", dir, "count", len(byID))
	return nil
}

// RecipeOf looks up a recipe by tool id.
func (r *Registry) RecipeOf(toolID string) (*Recipe, bool) {
	rec, ok := r.byID[toolID]
	return rec, ok
}

// AllCategories returns every distinct category present in the registry, sorted.
func (r *Registry) AllCategories() []string {
	cats := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Iter yields (tool_id, *Recipe) pairs in sorted tool_id order.
func (r *Registry) Iter() iter.Seq2[string, *Recipe] {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return func(yield func(string, *Recipe) bool) {
		for _, id := range ids {
			if !yield(id, r.byID[id]) {
				return
			}
		}
	}
}

// Len returns the number of loaded recipes.
func (r *Registry) Len() int { return len(r.byID) }

// ProvidersOf returns the tool ids of every recipe whose Satisfies list
// includes the given name — the reverse name -> tool map the dependency
// resolver consults before falling back to the Dynamic Dep Resolver (§4.6).
func (r *Registry) ProvidersOf(name string) []string {
	var providers []string
	for id, rec := range r.byID {
		if rec.SatisfiesSelf && id == name {
			continue
		}
		for _, sat := range rec.Satisfies {
			if sat == name {
				providers = append(providers, id)
			}
		}
	}
	sort.Strings(providers)
	return providers
}

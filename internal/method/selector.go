// Package method implements the Method Selector (component F, spec §4.5):
// choosing which installation method to use for a recipe on a given host.
package method

import (
	"fmt"
	"sort"

	"github.com/outfit-dev/outfit/internal/choice"
	"github.com/outfit-dev/outfit/internal/condition"
	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/sysprofile"
)

// preferenceRank is the fixed default preference order (§4.5 step 3). Lower
// is preferred. Methods not listed (rare, custom methods) sort last.
var preferenceRank = map[recipe.Method]int{
	// family-native system PMs share rank 0; the candidate set already
	// filters to the host's actual family, so at most one is ever viable.
	recipe.MethodApt:      0,
	recipe.MethodDnf:      0,
	recipe.MethodYum:      0,
	recipe.MethodApk:      0,
	recipe.MethodPacman:   0,
	recipe.MethodZypper:   0,
	recipe.MethodBrew:     0,
	recipe.MethodSnap:     1,
	recipe.MethodPip:      2,
	recipe.MethodNpm:      2,
	recipe.MethodCargo:    2,
	recipe.MethodGo:       2,
	recipe.MethodBinary:   3,
	recipe.MethodCurlPipe: 4,
	recipe.MethodSource:   5,
}

// Candidate is one method considered for a recipe, with its disqualification
// reason when not viable (surfaced on no_viable_method, §4.5).
type Candidate struct {
	Method      recipe.Method
	Viable      bool
	Reason      string
	Command     string
	IsVariant   bool
	VariantID   string
}

// Selection is the Method Selector's output: the chosen method and its
// concrete, variant-aware command template (§4.5 step 4).
type Selection struct {
	Method     recipe.Method
	Command    string
	PipIndex   string
	VariantID  string
	Candidates []Candidate
}

// BoundFrom derives the method/variant binding step 1 of §4.5 checks for:
// an explicit "install_method" choice answer wins outright; otherwise any
// resolved single-select choice whose value names an install_variants key
// binds that variant (e.g. pytorch's "compute" choice picking "cuda121",
// §8 E2). Choice ids are visited in sorted order so two recipes with more
// than one variant-shaped choice bind deterministically (T9).
func BoundFrom(rec *recipe.Recipe, choices choice.ResolvedChoices) recipe.Method {
	if len(choices) == 0 {
		return ""
	}
	if r, ok := choices["install_method"]; ok {
		if v, ok := r.Value.(string); ok && v != "" {
			return recipe.Method(v)
		}
	}

	ids := make([]string, 0, len(choices))
	for id := range choices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		v, ok := choices[id].Value.(string)
		if !ok || v == "" {
			continue
		}
		if _, ok := rec.InstallVariants[v]; ok {
			return recipe.Method(v)
		}
	}
	return ""
}

// Select runs the four-step algorithm from §4.5. boundMethod is either an
// install_variants key or a recipe.Install method key, as produced by
// BoundFrom ("" if unbound).
func Select(rec *recipe.Recipe, profile *sysprofile.Profile, boundMethod recipe.Method) (*Selection, error) {
	if boundMethod != "" {
		if v, ok := rec.InstallVariants[string(boundMethod)]; ok {
			m := recipe.MethodBinary
			if v.Method != nil {
				m = *v.Method
			}
			return &Selection{Method: m, Command: v.Command, PipIndex: v.PipIndex, VariantID: string(boundMethod)}, nil
		}
		if cmd, ok := rec.Install[boundMethod]; ok {
			return &Selection{Method: boundMethod, Command: cmd}, nil
		}
		return nil, outfiterr.New(outfiterr.KindNoViableMethod, fmt.Sprintf("bound method %q has no install command on this recipe", boundMethod))
	}

	candidates := buildCandidates(rec, profile)

	viable := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Viable {
			viable = append(viable, c)
		}
	}

	if len(viable) == 0 {
		err := outfiterr.New(outfiterr.KindNoViableMethod, fmt.Sprintf("no viable install method for %s", rec.ToolID))
		reasons := make(map[string]string, len(candidates))
		for _, c := range candidates {
			reasons[string(c.Method)] = c.Reason
		}
		return nil, err.WithDetail("candidates", reasons)
	}

	rank := preferenceRank
	if len(rec.MethodPriority) > 0 {
		rank = priorityOverride(rec.MethodPriority)
	}
	sort.SliceStable(viable, func(i, j int) bool {
		return rankOf(rank, viable[i].Method) < rankOf(rank, viable[j].Method)
	})

	best := viable[0]
	return &Selection{
		Method:     best.Method,
		Command:    best.Command,
		VariantID:  best.VariantID,
		Candidates: candidates,
	}, nil
}

func rankOf(rank map[recipe.Method]int, m recipe.Method) int {
	if r, ok := rank[m]; ok {
		return r
	}
	return len(rank) + 1
}

func priorityOverride(order []recipe.Method) map[recipe.Method]int {
	rank := make(map[recipe.Method]int, len(order))
	for i, m := range order {
		rank[m] = i
	}
	return rank
}

func buildCandidates(rec *recipe.Recipe, profile *sysprofile.Profile) []Candidate {
	var candidates []Candidate

	for _, m := range rec.InstallMethods() {
		cmd := rec.Install[m]
		switch {
		case recipe.SystemPackageManagers[m]:
			candidates = append(candidates, systemPMCandidate(m, cmd, profile))
		case recipe.LanguagePackageManagers[m]:
			candidates = append(candidates, Candidate{Method: m, Viable: true, Command: cmd})
		case m == recipe.MethodBinary || m == recipe.MethodCurlPipe:
			candidates = append(candidates, networkCandidate(m, cmd, profile))
		case m == recipe.MethodSource:
			candidates = append(candidates, sourceCandidate(rec, cmd, profile))
		default:
			candidates = append(candidates, Candidate{Method: m, Viable: true, Command: cmd})
		}
	}

	for _, variantID := range sortedVariantKeys(rec.InstallVariants) {
		variant := rec.InstallVariants[variantID]
		m := recipe.MethodBinary
		if variant.Method != nil {
			m = *variant.Method
		}
		c := Candidate{Method: m, Viable: true, Command: variant.Command, IsVariant: true, VariantID: variantID}
		if opt, ok := optionFor(rec, variantID); ok {
			if ok, reason := condition.Evaluate(condition.Predicate(opt.Requires), profile); !ok {
				c.Viable = false
				c.Reason = reason
				if opt.DisabledReason != "" {
					c.Reason = opt.DisabledReason
				}
			}
		}
		candidates = append(candidates, c)
	}

	return candidates
}

// optionFor finds the choice option a variant id is bound to (R1: every
// install_variants key matches exactly one choice option id somewhere).
func optionFor(rec *recipe.Recipe, variantID string) (recipe.ChoiceOption, bool) {
	for _, c := range rec.Choices {
		for _, opt := range c.Options {
			if opt.ID == variantID {
				return opt, true
			}
		}
	}
	return recipe.ChoiceOption{}, false
}

// sortedVariantKeys returns install_variants keys in sorted order so
// candidate ranking never depends on Go's randomized map iteration (T9).
func sortedVariantKeys(m map[string]recipe.InstallVariant) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func systemPMCandidate(m recipe.Method, cmd string, profile *sysprofile.Profile) Candidate {
	if m == recipe.MethodSnap {
		if !profile.HasPackageManager("snap") {
			return Candidate{Method: m, Viable: false, Reason: "snap is not available on this host"}
		}
		if profile.Capabilities.InContainer {
			return Candidate{Method: m, Viable: false, Reason: "snap is unavailable inside containers"}
		}
		return Candidate{Method: m, Viable: true, Command: cmd}
	}
	if !profile.HasPackageManager(string(m)) {
		return Candidate{Method: m, Viable: false, Reason: fmt.Sprintf("%s is not available on this host", m)}
	}
	return Candidate{Method: m, Viable: true, Command: cmd}
}

func networkCandidate(m recipe.Method, cmd string, profile *sysprofile.Profile) Candidate {
	if !profile.RegistryReachable("default") {
		return Candidate{Method: m, Viable: false, Reason: "no network registry reachable for download"}
	}
	return Candidate{Method: m, Viable: true, Command: cmd}
}

func sourceCandidate(rec *recipe.Recipe, cmd string, profile *sysprofile.Profile) Candidate {
	if rec.BuildFromSource == nil {
		return Candidate{Method: recipe.MethodSource, Viable: true, Command: cmd}
	}
	for name, predicate := range rec.BuildFromSource.RequiresToolchain {
		ok, reason := condition.Evaluate(condition.Predicate(predicate), profile)
		if !ok {
			return Candidate{Method: recipe.MethodSource, Viable: false,
				Reason: fmt.Sprintf("toolchain requirement %q not satisfied: %s", name, reason)}
		}
	}
	return Candidate{Method: recipe.MethodSource, Viable: true, Command: cmd}
}

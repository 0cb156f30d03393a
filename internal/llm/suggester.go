package llm

import (
	"context"
	"fmt"

	"github.com/outfit-dev/outfit/internal/config"
)

// Suggester proposes a system package name for a dependency neither the
// self-name heuristic nor the library map could resolve. ok is false when
// no provider could produce a usable answer; callers fall back to the
// naming-convention tier in that case, never treating this as fatal.
type Suggester interface {
	Suggest(ctx context.Context, depName, family, primaryPM string) (pkgName string, ok bool)
}

// NewSuggesterFromEnv builds a Suggester from whichever provider credentials
// are present in the environment. It returns ok=false (not an error) when
// either the feature isn't enabled (config.LLMSuggestionsEnabled) or no
// provider is configured, since neither case should block dependency
// resolution.
func NewSuggesterFromEnv(ctx context.Context) (Suggester, bool) {
	if !config.LLMSuggestionsEnabled() {
		return nil, false
	}
	f, err := NewFactory(ctx)
	if err != nil {
		return nil, false
	}
	return &factorySuggester{factory: f}, true
}

type factorySuggester struct {
	factory *Factory
}

const suggestTool = "suggest_package"

func suggestToolDef() ToolDef {
	return ToolDef{
		Name:        suggestTool,
		Description: "Record the best-guess system package name for the requested dependency.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"package_name": map[string]any{
					"type":        "string",
					"description": "The exact package name to install via the target package manager.",
				},
			},
			"required": []string{"package_name"},
		},
	}
}

func (s *factorySuggester) Suggest(ctx context.Context, depName, family, primaryPM string) (string, bool) {
	provider, ok := s.factory.provider()
	if !ok {
		return "", false
	}

	req := &CompletionRequest{
		SystemPrompt: "You help map build-time library/tool names to the exact system package " +
			"name that provides them on a given Linux distribution family or macOS. " +
			"Always answer by calling suggest_package exactly once with your best guess, " +
			"even if uncertain.",
		Messages: []Message{{
			Role: RoleUser,
			Content: fmt.Sprintf(
				"Dependency %q has no known recipe and no entry in the library map. "+
					"The target system's distro family is %q and its primary package manager is %q. "+
					"What package should be installed to provide %q?",
				depName, family, primaryPM, depName),
		}},
		Tools:     []ToolDef{suggestToolDef()},
		MaxTokens: 256,
	}

	resp, err := provider.Complete(ctx, req)
	s.factory.reportOutcome(provider.Name(), err)
	if err != nil || resp == nil {
		return "", false
	}

	for _, call := range resp.ToolCalls {
		if call.Name != suggestTool {
			continue
		}
		if name, ok := call.Arguments["package_name"].(string); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

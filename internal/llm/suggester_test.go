package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfit-dev/outfit/internal/config"
)

type fakeProvider struct {
	name string
	resp *CompletionResponse
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestSuggestReturnsPackageNameFromToolCall(t *testing.T) {
	provider := &fakeProvider{
		name: "claude",
		resp: &CompletionResponse{
			ToolCalls: []ToolCall{{Name: suggestTool, Arguments: map[string]any{"package_name": "libfoo-dev"}}},
		},
	}
	s := &factorySuggester{factory: newFactoryWithProviders(map[string]Provider{"claude": provider}, "claude")}

	pkg, ok := s.Suggest(context.Background(), "foo", "debian", "apt")
	require.True(t, ok, "Suggest() should succeed when the provider returns a tool call")
	assert.Equal(t, "libfoo-dev", pkg)
}

func TestSuggestFailsGracefullyOnProviderError(t *testing.T) {
	provider := &fakeProvider{name: "claude", err: errors.New("rate limited")}
	s := &factorySuggester{factory: newFactoryWithProviders(map[string]Provider{"claude": provider}, "claude")}

	_, ok := s.Suggest(context.Background(), "foo", "debian", "apt")
	assert.False(t, ok, "Suggest() should fail gracefully on a provider error")
}

func TestSuggestFailsWhenNoToolCallReturned(t *testing.T) {
	provider := &fakeProvider{name: "claude", resp: &CompletionResponse{Content: "I'm not sure."}}
	s := &factorySuggester{factory: newFactoryWithProviders(map[string]Provider{"claude": provider}, "claude")}

	_, ok := s.Suggest(context.Background(), "foo", "debian", "apt")
	assert.False(t, ok, "Suggest() should fail when the model answers without calling the tool")
}

func TestNewSuggesterFromEnvSkipsWhenDisabled(t *testing.T) {
	t.Setenv(config.EnvLLMSuggestions, "")
	_, ok := NewSuggesterFromEnv(context.Background())
	assert.False(t, ok, "NewSuggesterFromEnv() should decline while disabled")
}

func TestNewSuggesterFromEnvSkipsWithoutCredentials(t *testing.T) {
	t.Setenv(config.EnvLLMSuggestions, "1")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	_, ok := NewSuggesterFromEnv(context.Background())
	assert.False(t, ok, "NewSuggesterFromEnv() should decline without any provider credentials")
}

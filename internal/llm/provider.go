// Package llm wires the opt-in LLM tier (tier 3) of the Dynamic Dep Resolver
// (component G, §4.6): when a dependency name matches neither the
// self-name heuristic nor the library map, and before falling back to the
// per-family naming convention, an enabled Suggester gets one shot at a
// better guess from a hosted model.
package llm

import "context"

// Provider is a single-turn completion backend. Multi-turn conversation
// loops have no place here — the suggester only ever needs one exchange.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is the input for a single turn.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDef
	MaxTokens    int
}

// CompletionResponse is a provider's reply to one CompletionRequest.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

// Role identifies who sent a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a provider's request to invoke a tool the caller offered.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDef describes a tool a provider may call, as JSON Schema parameters.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

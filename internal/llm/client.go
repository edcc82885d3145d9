package llm

import "context"

// Role is a message role in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a completion request's history.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string
}

// CompletionRequest carries the sampling parameters the Modulation Mapper's
// output has already been folded into (spec.md §6: "complete(system,
// messages, max_tokens, temperature, top_p)").
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// CompletionChunk is one piece of a streaming completion.
type CompletionChunk struct {
	Delta string
	Done  bool
}

// Completion is a finished, non-streaming generation.
type Completion struct {
	Text         string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// Client is the capability-typed language-model interface spec.md §6
// requires: providers are interchangeable, and the core calls only through
// this contract, never a provider-specific SDK type.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	CompleteStream(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

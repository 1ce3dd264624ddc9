package chat

import (
	"context"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// ModelProvider is the interface every model backend implements. The
// step executor consumes providers only through this abstraction so the
// backend (Anthropic, OpenRouter, scripted test provider) is
// substitutable.
type ModelProvider interface {
	// Name returns the provider name (e.g., "anthropic", "openrouter")
	Name() string

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool

	// StreamStep performs one model turn and returns a channel of
	// incremental events. The channel is closed after the terminal
	// Metadata event (or an Err event) has been sent.
	StreamStep(ctx context.Context, req *StepRequest) (<-chan StreamEvent, error)
}

// StepRequest is the provider-ready input for one model turn.
type StepRequest struct {
	Model       string
	System      string
	Messages    []ProviderMessage
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64

	// Options carries provider-specific knobs as plain data.
	Options map[string]any
}

// ProviderMessage is one model-ready conversation entry.
type ProviderMessage struct {
	Role   chat.Role
	Blocks []ProviderBlock
}

// Provider block type tags.
const (
	BlockText       = "text"
	BlockReasoning  = "reasoning"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ProviderBlock is one content unit of a provider message. The
// UI-oriented Part form is converted to and from this shape losslessly
// for the fields the model needs (text, tool calls, tool results).
type ProviderBlock struct {
	Type string

	Text string

	// Tool use / tool result fields.
	ToolCallID string
	ToolName   string
	ToolInput  map[string]any
	ToolOutput any
	IsError    bool
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// StreamEvent is one incremental unit from a provider stream. Exactly
// one field is set.
type StreamEvent struct {
	Delta     *BlockDelta
	BlockDone *BlockDone
	Metadata  *StepMetadata
	Err       error
}

// BlockDelta is incremental content for the block at BlockIndex. The
// first delta of a block carries its type and, for tool_use blocks, the
// call id and tool name.
type BlockDelta struct {
	BlockIndex int
	BlockType  string // "text", "reasoning", "tool_use", "source", "file"

	TextDelta      string
	InputJSONDelta string

	ToolCallID string
	ToolName   string

	Source *chat.SourcePart
	File   *chat.FilePart
}

// BlockDone signals that the block at BlockIndex is finished.
type BlockDone struct {
	BlockIndex int
}

// StepMetadata is the terminal event of a provider stream.
type StepMetadata struct {
	Model        string
	FinishReason chat.FinishReason
	InputTokens  int
	OutputTokens int
}

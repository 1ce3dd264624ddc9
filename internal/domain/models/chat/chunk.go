package chat

import (
	"encoding/json"
	"fmt"
)

// Chunk type constants: the closed event vocabulary flowing through the
// stream bridge. Any compliant transport adapter can render these.
type ChunkType string

const (
	ChunkTypeStepStart      ChunkType = "step-start"
	ChunkTypeTextDelta      ChunkType = "text-delta"
	ChunkTypeTextDone       ChunkType = "text-done"
	ChunkTypeReasoningDelta ChunkType = "reasoning-delta"
	ChunkTypeReasoningDone  ChunkType = "reasoning-done"
	ChunkTypeToolCall       ChunkType = "tool-call"
	ChunkTypeSourceURL      ChunkType = "source-url"
	ChunkTypeDataProgress   ChunkType = "data-progress"
	ChunkTypeFile           ChunkType = "file"
	ChunkTypeFinish         ChunkType = "finish"
	ChunkTypeError          ChunkType = "error"
)

// FinishReason classifies why a step's model turn ended.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool-calls"
	FinishReasonLength    FinishReason = "length"
	FinishReasonError     FinishReason = "error"
)

// Chunk is one normalized unit of incremental run output. Exactly one
// payload group is populated, discriminated by Type.
type Chunk struct {
	Type ChunkType `json:"type"`

	// Step index, set on step-start and finish chunks.
	Step int `json:"step,omitempty"`

	// Incremental text for text-delta and reasoning-delta.
	Delta string `json:"delta,omitempty"`

	// Full accumulated text for text-done and reasoning-done.
	Text string `json:"text,omitempty"`

	ToolCall *ToolCallChunk `json:"tool_call,omitempty"`
	Source   *SourcePart    `json:"source,omitempty"`
	File     *FilePart      `json:"file,omitempty"`

	// Arbitrary status payload for data-progress.
	Data map[string]any `json:"data,omitempty"`

	// Terminal classification, set on finish chunks.
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Error description, set on error chunks.
	Error string `json:"error,omitempty"`
}

// ToolCallChunk tracks one tool call through its lifecycle: the call is
// announced with state input-streaming, its input arrives via
// InputDelta chunks, input-available closes the input, and exactly one
// of the three terminal output states follows once the tool has run.
type ToolCallChunk struct {
	CallID       string         `json:"call_id"`
	Name         string         `json:"name,omitempty"`
	State        PartState      `json:"state"`
	InputDelta   string         `json:"input_delta,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       any            `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	DenialReason string         `json:"denial_reason,omitempty"`
}

// FormatSSE renders the chunk as a Server-Sent Events frame:
//
//	event: <type>
//	data: <json>
func (c Chunk) FormatSSE() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal chunk: %w", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", c.Type, data), nil
}

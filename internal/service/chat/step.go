package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/stream"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/tools"
)

// ErrNoResponse is returned when the provider stream ends without ever
// signalling a finished turn
var ErrNoResponse = errors.New("no response produced")

// StepConfig is the per-run execution configuration. It is plain,
// serializable data: tools are referenced by name and resolved against
// the registry at execution time, so a suspended run can be rehydrated
// from its stored config alone.
type StepConfig struct {
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	ToolNames   []string       `json:"tool_names,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
	MaxSteps    int            `json:"max_steps,omitempty"`
}

// StepResult is the outcome of one model turn. By the time it is
// returned, every chunk of the turn has already been acknowledged by
// the sink.
type StepResult struct {
	// Parts are the assembled content of the turn, in production
	// order. Tool parts are in state input-available; their terminal
	// output state is attached by the loop after execution.
	Parts []chatModels.Part

	FinishReason chatModels.FinishReason
	InputTokens  int
	OutputTokens int

	// ShouldContinue is true iff the model requested tool calls.
	ShouldContinue bool
}

// StepExecutor performs exactly one model turn: it streams the
// provider's native events, normalizes them into the chunk vocabulary,
// pushes every chunk to the sink as it is produced, and assembles the
// turn's parts from the same chunk stream via a tee so the sink and the
// assembler can never disagree on what was emitted.
type StepExecutor struct {
	providers map[string]domainchat.ModelProvider
	tools     *tools.Registry
	logger    *slog.Logger
}

// NewStepExecutor creates a step executor over the given providers
func NewStepExecutor(providers []domainchat.ModelProvider, toolRegistry *tools.Registry, logger *slog.Logger) *StepExecutor {
	byName := make(map[string]domainchat.ModelProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &StepExecutor{
		providers: byName,
		tools:     toolRegistry,
		logger:    logger,
	}
}

// Execute runs one model turn. step is the zero-based loop iteration,
// used for the step-start chunk. history must already be model-ready.
func (e *StepExecutor) Execute(
	ctx context.Context,
	step int,
	cfg *StepConfig,
	history []domainchat.ProviderMessage,
	sink stream.Sink,
) (*StepResult, error) {
	provider, ok := e.providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	req := &domainchat.StepRequest{
		Model:       cfg.Model,
		System:      cfg.System,
		Messages:    history,
		Tools:       e.tools.Definitions(cfg.ToolNames),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Options:     cfg.Options,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := provider.StreamStep(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start provider stream: %w", err)
	}

	norm := &stepNormalizer{step: step, events: events}
	chunks := make(chan chatModels.Chunk)
	normDone := make(chan struct{})
	go func() {
		defer close(normDone)
		defer close(chunks)
		norm.run(ctx, chunks)
	}()

	branches := stream.Tee(ctx, chunks, 2)

	pipeErr := make(chan error, 1)
	go func() {
		err := stream.Pipe(ctx, branches[0], sink)
		if err != nil {
			// Release the producer and the assembler branch.
			cancel()
		}
		pipeErr <- err
	}()

	parts := assembleParts(branches[1])

	sinkErr := <-pipeErr
	<-normDone

	if sinkErr != nil {
		return nil, fmt.Errorf("write chunk: %w", sinkErr)
	}
	if norm.err != nil {
		return nil, norm.err
	}
	if !norm.gotMetadata {
		return nil, ErrNoResponse
	}

	return &StepResult{
		Parts:          parts,
		FinishReason:   norm.finishReason,
		InputTokens:    norm.inputTokens,
		OutputTokens:   norm.outputTokens,
		ShouldContinue: norm.finishReason == chatModels.FinishReasonToolCalls,
	}, nil
}

// blockState accumulates one provider block across deltas
type blockState struct {
	blockType string
	text      strings.Builder
	inputJSON strings.Builder
	callID    string
	toolName  string
}

// stepNormalizer converts provider-native stream events into the chunk
// vocabulary. It never buffers a whole turn: each event is translated
// and forwarded immediately, with per-block accumulators kept only to
// produce the *-done chunks and the parsed tool input.
type stepNormalizer struct {
	step   int
	events <-chan domainchat.StreamEvent

	blocks map[int]*blockState

	gotMetadata  bool
	finishReason chatModels.FinishReason
	inputTokens  int
	outputTokens int
	err          error
}

func (n *stepNormalizer) run(ctx context.Context, out chan<- chatModels.Chunk) {
	n.blocks = make(map[int]*blockState)

	if !send(ctx, out, chatModels.Chunk{Type: chatModels.ChunkTypeStepStart, Step: n.step}) {
		n.err = ctx.Err()
		return
	}

	for {
		var event domainchat.StreamEvent
		var ok bool
		select {
		case event, ok = <-n.events:
			if !ok {
				return
			}
		case <-ctx.Done():
			n.err = ctx.Err()
			return
		}

		switch {
		case event.Err != nil:
			n.err = event.Err
			return

		case event.Delta != nil:
			for _, chunk := range n.onDelta(event.Delta) {
				if !send(ctx, out, chunk) {
					n.err = ctx.Err()
					return
				}
			}

		case event.BlockDone != nil:
			chunk, err := n.onBlockDone(event.BlockDone.BlockIndex)
			if err != nil {
				n.err = err
				return
			}
			if chunk != nil {
				if !send(ctx, out, *chunk) {
					n.err = ctx.Err()
					return
				}
			}

		case event.Metadata != nil:
			n.gotMetadata = true
			n.finishReason = event.Metadata.FinishReason
			n.inputTokens = event.Metadata.InputTokens
			n.outputTokens = event.Metadata.OutputTokens
		}
	}
}

func (n *stepNormalizer) onDelta(delta *domainchat.BlockDelta) []chatModels.Chunk {
	state, seen := n.blocks[delta.BlockIndex]
	if !seen {
		state = &blockState{
			blockType: delta.BlockType,
			callID:    delta.ToolCallID,
			toolName:  delta.ToolName,
		}
		n.blocks[delta.BlockIndex] = state
	}

	var chunks []chatModels.Chunk

	switch state.blockType {
	case domainchat.BlockText:
		state.text.WriteString(delta.TextDelta)
		chunks = append(chunks, chatModels.Chunk{
			Type:  chatModels.ChunkTypeTextDelta,
			Delta: delta.TextDelta,
		})

	case domainchat.BlockReasoning:
		state.text.WriteString(delta.TextDelta)
		chunks = append(chunks, chatModels.Chunk{
			Type:  chatModels.ChunkTypeReasoningDelta,
			Delta: delta.TextDelta,
		})

	case domainchat.BlockToolUse:
		if !seen {
			chunks = append(chunks, chatModels.Chunk{
				Type: chatModels.ChunkTypeToolCall,
				ToolCall: &chatModels.ToolCallChunk{
					CallID: state.callID,
					Name:   state.toolName,
					State:  chatModels.PartStateInputStreaming,
				},
			})
		}
		if delta.InputJSONDelta != "" {
			state.inputJSON.WriteString(delta.InputJSONDelta)
			chunks = append(chunks, chatModels.Chunk{
				Type: chatModels.ChunkTypeToolCall,
				ToolCall: &chatModels.ToolCallChunk{
					CallID:     state.callID,
					State:      chatModels.PartStateInputStreaming,
					InputDelta: delta.InputJSONDelta,
				},
			})
		}

	default:
		// Single-shot blocks.
		if delta.Source != nil {
			chunks = append(chunks, chatModels.Chunk{
				Type:   chatModels.ChunkTypeSourceURL,
				Source: delta.Source,
			})
		}
		if delta.File != nil {
			chunks = append(chunks, chatModels.Chunk{
				Type: chatModels.ChunkTypeFile,
				File: delta.File,
			})
		}
	}

	return chunks
}

func (n *stepNormalizer) onBlockDone(index int) (*chatModels.Chunk, error) {
	state, ok := n.blocks[index]
	if !ok {
		return nil, nil
	}

	switch state.blockType {
	case domainchat.BlockText:
		return &chatModels.Chunk{
			Type: chatModels.ChunkTypeTextDone,
			Text: state.text.String(),
		}, nil

	case domainchat.BlockReasoning:
		return &chatModels.Chunk{
			Type: chatModels.ChunkTypeReasoningDone,
			Text: state.text.String(),
		}, nil

	case domainchat.BlockToolUse:
		input, err := parseToolInput(state.inputJSON.String())
		if err != nil {
			return nil, fmt.Errorf("tool %s input: %w", state.toolName, err)
		}
		return &chatModels.Chunk{
			Type: chatModels.ChunkTypeToolCall,
			ToolCall: &chatModels.ToolCallChunk{
				CallID: state.callID,
				Name:   state.toolName,
				State:  chatModels.PartStateInputAvailable,
				Input:  input,
			},
		}, nil
	}

	return nil, nil
}

// parseToolInput decodes the accumulated tool input JSON. Providers
// stream an empty string for tools that take no arguments.
func parseToolInput(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON: %q", raw)
	}
	input, ok := gjson.Parse(raw).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool input is not an object: %q", raw)
	}
	return input, nil
}

func send(ctx context.Context, out chan<- chatModels.Chunk, chunk chatModels.Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// assembleParts builds the turn's parts from the normalized chunk
// stream. Only completed content produces a part; deltas and the
// step-start marker are skipped.
func assembleParts(chunks <-chan chatModels.Chunk) []chatModels.Part {
	var parts []chatModels.Part

	for chunk := range chunks {
		switch chunk.Type {
		case chatModels.ChunkTypeTextDone:
			parts = append(parts, chatModels.Part{
				Type:  chatModels.PartTypeText,
				State: chatModels.PartStateDone,
				Text:  chunk.Text,
			})

		case chatModels.ChunkTypeReasoningDone:
			parts = append(parts, chatModels.Part{
				Type:  chatModels.PartTypeReasoning,
				State: chatModels.PartStateDone,
				Text:  chunk.Text,
			})

		case chatModels.ChunkTypeToolCall:
			if chunk.ToolCall == nil || chunk.ToolCall.State != chatModels.PartStateInputAvailable {
				continue
			}
			parts = append(parts, chatModels.Part{
				Type:  chatModels.PartTypeTool,
				State: chatModels.PartStateInputAvailable,
				Tool: &chatModels.ToolPart{
					CallID: chunk.ToolCall.CallID,
					Name:   chunk.ToolCall.Name,
					Input:  chunk.ToolCall.Input,
				},
			})

		case chatModels.ChunkTypeSourceURL:
			parts = append(parts, chatModels.Part{
				Type:   chatModels.PartTypeSourceURL,
				State:  chatModels.PartStateDone,
				Source: chunk.Source,
			})

		case chatModels.ChunkTypeFile:
			parts = append(parts, chatModels.Part{
				Type:  chatModels.PartTypeFile,
				State: chatModels.PartStateDone,
				File:  chunk.File,
			})
		}
	}

	return parts
}

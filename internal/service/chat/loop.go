package chat

import (
	"context"
	"fmt"
	"log/slog"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/stream"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/tools"
)

// DefaultMaxSteps bounds the tool loop when the config does not
// override it
const DefaultMaxSteps = 20

// StopReason classifies why the loop terminated.
type StopReason string

const (
	// StopReasonDone means the model finished without requesting tools
	StopReasonDone StopReason = "stop"
	// StopReasonMaxSteps means the step budget ran out while the model
	// still wanted tools. This is a normal terminal condition.
	StopReasonMaxSteps StopReason = "max-steps"
)

// StepFinishFunc is invoked after each step, once that step's tool
// calls have settled, with the step's parts in production order. A
// non-nil error aborts the loop: a persistence failure mid-run must
// not be silently swallowed.
type StepFinishFunc func(ctx context.Context, step int, parts []chatModels.Part) error

// LoopResult is the terminal outcome of a run's tool loop.
type LoopResult struct {
	// Parts is the accumulated assistant content across all steps,
	// with message-level ordinals assigned.
	Parts []chatModels.Part

	Steps        int
	StopReason   StopReason
	FinishReason chatModels.FinishReason
}

// Loop drives the bounded multi-step tool conversation: invoke the
// model, execute whatever tools it requested, feed the results back,
// repeat until the model stops or the step budget runs out. One Loop
// instance is stateless and shared; all per-run state lives in Run's
// locals.
type Loop struct {
	executor *StepExecutor
	tools    *tools.Registry
	logger   *slog.Logger
}

// NewLoop creates a loop over the given step executor
func NewLoop(executor *StepExecutor, toolRegistry *tools.Registry, logger *slog.Logger) *Loop {
	return &Loop{
		executor: executor,
		tools:    toolRegistry,
		logger:   logger,
	}
}

// Run executes the loop against base, the model-ready conversation
// history up to and including the triggering user message. Every chunk
// the run produces goes through sink before Run moves on; onStepFinish
// (optional) is the incremental persistence seam.
func (l *Loop) Run(
	ctx context.Context,
	cfg *StepConfig,
	base []domainchat.ProviderMessage,
	sink stream.Sink,
	onStepFinish StepFinishFunc,
) (*LoopResult, error) {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	bound := make(map[string]bool, len(cfg.ToolNames))
	for _, name := range cfg.ToolNames {
		bound[name] = true
	}

	var accumulated []chatModels.Part
	var finishReason chatModels.FinishReason

	for step := 0; step < maxSteps; step++ {
		// Conversion is applied fresh each iteration so the model
		// always sees the parts' current terminal states.
		converted := PartsToProviderMessages(accumulated)
		history := make([]domainchat.ProviderMessage, 0, len(base)+len(converted))
		history = append(history, base...)
		history = append(history, converted...)

		result, err := l.executor.Execute(ctx, step, cfg, history, sink)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		finishReason = result.FinishReason

		stepParts := result.Parts
		if result.ShouldContinue {
			if err := l.executeTools(ctx, step, cfg, bound, stepParts, sink); err != nil {
				return nil, fmt.Errorf("step %d tools: %w", step, err)
			}
		}

		for i := range stepParts {
			stepParts[i].Ord = len(accumulated)
			accumulated = append(accumulated, stepParts[i])
		}

		if onStepFinish != nil {
			if err := onStepFinish(ctx, step, stepParts); err != nil {
				return nil, fmt.Errorf("step %d finish hook: %w", step, err)
			}
		}

		if !result.ShouldContinue {
			finish := chatModels.Chunk{
				Type:         chatModels.ChunkTypeFinish,
				Step:         step,
				FinishReason: result.FinishReason,
			}
			if err := sink.Write(ctx, finish); err != nil {
				return nil, fmt.Errorf("write finish chunk: %w", err)
			}
			return &LoopResult{
				Parts:        accumulated,
				Steps:        step + 1,
				StopReason:   StopReasonDone,
				FinishReason: result.FinishReason,
			}, nil
		}
	}

	// Budget exhausted with the model still asking for tools.
	finish := chatModels.Chunk{
		Type:         chatModels.ChunkTypeFinish,
		Step:         maxSteps - 1,
		FinishReason: finishReason,
	}
	if err := sink.Write(ctx, finish); err != nil {
		return nil, fmt.Errorf("write finish chunk: %w", err)
	}

	return &LoopResult{
		Parts:        accumulated,
		Steps:        maxSteps,
		StopReason:   StopReasonMaxSteps,
		FinishReason: finishReason,
	}, nil
}

// executeTools settles every pending tool part of a step, in order,
// and emits the terminal tool-call chunk for each. A tool outside the
// run's bound set is denied, a failing tool records its error; neither
// aborts the loop, the model sees the outcome and decides what to do.
func (l *Loop) executeTools(
	ctx context.Context,
	step int,
	cfg *StepConfig,
	bound map[string]bool,
	parts []chatModels.Part,
	sink stream.Sink,
) error {
	executed := 0

	for i := range parts {
		part := &parts[i]
		if part.Type != chatModels.PartTypeTool || part.State != chatModels.PartStateInputAvailable {
			continue
		}

		var chunk chatModels.Chunk

		if !bound[part.Tool.Name] {
			reason := fmt.Sprintf("tool %s is not available for model %s", part.Tool.Name, cfg.Model)
			part.State = chatModels.PartStateOutputDenied
			part.Tool.DenialReason = reason
			chunk = chatModels.Chunk{
				Type: chatModels.ChunkTypeToolCall,
				ToolCall: &chatModels.ToolCallChunk{
					CallID:       part.Tool.CallID,
					Name:         part.Tool.Name,
					State:        chatModels.PartStateOutputDenied,
					DenialReason: reason,
				},
			}
		} else {
			result := l.tools.Execute(ctx, tools.ToolCall{
				ID:    part.Tool.CallID,
				Name:  part.Tool.Name,
				Input: part.Tool.Input,
			})
			executed++

			if result.IsError {
				part.State = chatModels.PartStateOutputError
				part.Tool.Error = result.Error.Error()
				chunk = chatModels.Chunk{
					Type: chatModels.ChunkTypeToolCall,
					ToolCall: &chatModels.ToolCallChunk{
						CallID: part.Tool.CallID,
						Name:   part.Tool.Name,
						State:  chatModels.PartStateOutputError,
						Error:  result.Error.Error(),
					},
				}
			} else {
				part.State = chatModels.PartStateOutputAvailable
				part.Tool.Output = result.Result
				chunk = chatModels.Chunk{
					Type: chatModels.ChunkTypeToolCall,
					ToolCall: &chatModels.ToolCallChunk{
						CallID: part.Tool.CallID,
						Name:   part.Tool.Name,
						State:  chatModels.PartStateOutputAvailable,
						Output: result.Result,
					},
				}
			}
		}

		if err := sink.Write(ctx, chunk); err != nil {
			return fmt.Errorf("write tool result chunk: %w", err)
		}
	}

	progress := chatModels.Chunk{
		Type: chatModels.ChunkTypeDataProgress,
		Step: step,
		Data: map[string]any{
			"step":           step,
			"tools_executed": executed,
		},
	}
	if err := sink.Write(ctx, progress); err != nil {
		return fmt.Errorf("write progress chunk: %w", err)
	}

	return nil
}

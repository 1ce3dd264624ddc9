package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

// StreamStep performs one streaming model turn against the Anthropic API.
// Returns a channel that emits StreamEvent as deltas arrive.
func (p *Provider) StreamStep(ctx context.Context, req *domainchat.StepRequest) (<-chan domainchat.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	eventChan := make(chan domainchat.StreamEvent, 10) // Buffered to prevent blocking

	go func() {
		defer close(eventChan)

		stream := p.client.Messages.NewStreaming(ctx, params)

		// Accumulator for final message metadata
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				eventChan <- domainchat.StreamEvent{
					Err: fmt.Errorf("failed to accumulate message: %w", err),
				}
				return
			}

			streamEvent, ok := transformStreamEvent(event)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				eventChan <- domainchat.StreamEvent{Err: ctx.Err()}
				return
			case eventChan <- streamEvent:
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- domainchat.StreamEvent{
				Err: fmt.Errorf("anthropic streaming error: %w", err),
			}
			return
		}

		// A stream that ended without a stop reason or any content
		// never produced a turn; closing without metadata reports it.
		if message.StopReason == "" && len(message.Content) == 0 {
			return
		}

		eventChan <- domainchat.StreamEvent{
			Metadata: &domainchat.StepMetadata{
				Model:        string(message.Model),
				FinishReason: mapStopReason(string(message.StopReason)),
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
			},
		}
	}()

	return eventChan, nil
}

// transformStreamEvent converts an Anthropic streaming event to a
// domain StreamEvent. Events with no domain meaning (message_start,
// message_delta, message_stop) yield ok=false.
func transformStreamEvent(event anthropic.MessageStreamEventUnion) (domainchat.StreamEvent, bool) {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		delta := &domainchat.BlockDelta{
			BlockIndex: int(e.Index),
		}

		switch e.ContentBlock.Type {
		case "text":
			delta.BlockType = domainchat.BlockText
		case "thinking":
			delta.BlockType = domainchat.BlockReasoning
		case "tool_use":
			delta.BlockType = domainchat.BlockToolUse
			delta.ToolCallID = e.ContentBlock.ID
			delta.ToolName = e.ContentBlock.Name
		default:
			return domainchat.StreamEvent{}, false
		}

		return domainchat.StreamEvent{Delta: delta}, true

	case anthropic.ContentBlockDeltaEvent:
		delta := &domainchat.BlockDelta{
			BlockIndex: int(e.Index),
		}

		switch e.Delta.Type {
		case "text_delta":
			delta.BlockType = domainchat.BlockText
			delta.TextDelta = e.Delta.Text
		case "thinking_delta":
			delta.BlockType = domainchat.BlockReasoning
			delta.TextDelta = e.Delta.Thinking
		case "input_json_delta":
			delta.BlockType = domainchat.BlockToolUse
			delta.InputJSONDelta = e.Delta.PartialJSON
		default:
			return domainchat.StreamEvent{}, false
		}

		return domainchat.StreamEvent{Delta: delta}, true

	case anthropic.ContentBlockStopEvent:
		return domainchat.StreamEvent{
			BlockDone: &domainchat.BlockDone{BlockIndex: int(e.Index)},
		}, true

	default:
		// message_start, message_delta, message_stop: metadata is
		// taken from the accumulated message after the stream ends.
		return domainchat.StreamEvent{}, false
	}
}

// mapStopReason converts Anthropic stop reasons to the finish
// classification.
func mapStopReason(stopReason string) chatModels.FinishReason {
	switch stopReason {
	case "tool_use":
		return chatModels.FinishReasonToolCalls
	case "max_tokens":
		return chatModels.FinishReasonLength
	case "end_turn", "stop_sequence":
		return chatModels.FinishReasonStop
	default:
		return chatModels.FinishReasonStop
	}
}

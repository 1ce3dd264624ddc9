// Package openrouter implements the ModelProvider interface on top of
// OpenRouter's OpenAI-compatible API.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

const baseURL = "https://openrouter.ai/api/v1"

// Provider implements the ModelProvider interface for models served
// through OpenRouter. Model IDs use the provider/model-name format
// (e.g., "openai/gpt-4o").
type Provider struct {
	client *openai.Client
}

// NewProvider creates a new OpenRouter provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter API key is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openrouter"
}

// SupportsModel returns true if this provider supports the given model.
// OpenRouter model IDs carry a provider prefix.
func (p *Provider) SupportsModel(model string) bool {
	return strings.Contains(model, "/")
}

// StreamStep performs one streaming model turn against OpenRouter.
func (p *Provider) StreamStep(ctx context.Context, req *domainchat.StepRequest) (<-chan domainchat.StreamEvent, error) {
	messages, err := convertMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter stream: %w", err)
	}

	eventChan := make(chan domainchat.StreamEvent, 10)
	go p.processStream(ctx, stream, eventChan, req.Model)

	return eventChan, nil
}

// processStream translates the OpenAI-style delta stream into block
// events. The API has no block indexes: text is synthesized as block 0
// and tool call i becomes block i+1, with block-done events emitted
// once the stream finishes.
func (p *Provider) processStream(
	ctx context.Context,
	stream *openai.ChatCompletionStream,
	eventChan chan<- domainchat.StreamEvent,
	model string,
) {
	defer close(eventChan)
	defer stream.Close()

	emit := func(event domainchat.StreamEvent) bool {
		select {
		case eventChan <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	textSeen := false
	toolIndexes := make(map[int]bool)
	finishReason := chatModels.FinishReasonStop
	sawFinish := false
	inputTokens, outputTokens := 0, 0

	finish := func() {
		if textSeen {
			if !emit(domainchat.StreamEvent{BlockDone: &domainchat.BlockDone{BlockIndex: 0}}) {
				return
			}
		}
		indexes := make([]int, 0, len(toolIndexes))
		for idx := range toolIndexes {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			if !emit(domainchat.StreamEvent{BlockDone: &domainchat.BlockDone{BlockIndex: idx}}) {
				return
			}
		}
		emit(domainchat.StreamEvent{
			Metadata: &domainchat.StepMetadata{
				Model:        model,
				FinishReason: finishReason,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			},
		})
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if sawFinish || textSeen || len(toolIndexes) > 0 {
					finish()
				}
				// Otherwise the stream produced nothing; closing the
				// channel without metadata reports exactly that.
				return
			}
			emit(domainchat.StreamEvent{Err: fmt.Errorf("openrouter streaming error: %w", err)})
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			textSeen = true
			if !emit(domainchat.StreamEvent{Delta: &domainchat.BlockDelta{
				BlockIndex: 0,
				BlockType:  domainchat.BlockText,
				TextDelta:  choice.Delta.Content,
			}}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			blockIndex := idx + 1
			toolIndexes[blockIndex] = true

			delta := &domainchat.BlockDelta{
				BlockIndex:     blockIndex,
				BlockType:      domainchat.BlockToolUse,
				ToolCallID:     tc.ID,
				ToolName:       tc.Function.Name,
				InputJSONDelta: tc.Function.Arguments,
			}
			if !emit(domainchat.StreamEvent{Delta: delta}) {
				return
			}
		}

		if choice.FinishReason != "" {
			sawFinish = true
			finishReason = mapFinishReason(choice.FinishReason)
		}
	}
}

// convertMessages converts model-ready messages to OpenAI chat format.
// Tool results become role "tool" messages keyed by the call id.
func convertMessages(messages []domainchat.ProviderMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for i, msg := range messages {
		var text strings.Builder
		var toolCalls []openai.ToolCall
		var toolResults []openai.ChatCompletionMessage

		for _, block := range msg.Blocks {
			switch block.Type {
			case domainchat.BlockText:
				text.WriteString(block.Text)

			case domainchat.BlockReasoning:
				// Not replayed.

			case domainchat.BlockToolUse:
				args, err := json.Marshal(block.ToolInput)
				if err != nil {
					return nil, fmt.Errorf("message %d: marshal tool input: %w", i, err)
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   block.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.ToolName,
						Arguments: string(args),
					},
				})

			case domainchat.BlockToolResult:
				content, err := stringifyOutput(block.ToolOutput)
				if err != nil {
					return nil, fmt.Errorf("message %d: tool result: %w", i, err)
				}
				toolResults = append(toolResults, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: block.ToolCallID,
				})

			default:
				return nil, fmt.Errorf("message %d: unsupported block type '%s'", i, block.Type)
			}
		}

		role := openai.ChatMessageRoleUser
		if msg.Role == chatModels.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		if text.Len() > 0 || len(toolCalls) > 0 {
			result = append(result, openai.ChatCompletionMessage{
				Role:      role,
				Content:   text.String(),
				ToolCalls: toolCalls,
			})
		}
		result = append(result, toolResults...)
	}

	return result, nil
}

// convertTools converts tool definitions to OpenAI function format.
func convertTools(tools []domainchat.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return result
}

func stringifyOutput(output any) (string, error) {
	if output == nil {
		return "", nil
	}
	if s, ok := output.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(raw), nil
}

func mapFinishReason(reason openai.FinishReason) chatModels.FinishReason {
	switch reason {
	case openai.FinishReasonToolCalls:
		return chatModels.FinishReasonToolCalls
	case openai.FinishReasonLength:
		return chatModels.FinishReasonLength
	default:
		return chatModels.FinishReasonStop
	}
}

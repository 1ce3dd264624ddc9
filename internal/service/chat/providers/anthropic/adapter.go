package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

// convertMessages converts model-ready messages to Anthropic SDK format.
func convertMessages(messages []domainchat.ProviderMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))

		for _, block := range msg.Blocks {
			switch block.Type {
			case domainchat.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))

			case domainchat.BlockReasoning:
				// Thinking blocks cannot be replayed without their
				// provider signature, which is not retained.
				continue

			case domainchat.BlockToolUse:
				input := block.ToolInput
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ToolCallID, input, block.ToolName))

			case domainchat.BlockToolResult:
				content, err := stringifyOutput(block.ToolOutput)
				if err != nil {
					return nil, fmt.Errorf("message %d: tool result: %w", i, err)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolCallID, content, block.IsError))

			default:
				return nil, fmt.Errorf("message %d: unsupported block type '%s'", i, block.Type)
			}
		}

		if len(blocks) == 0 {
			continue
		}

		var message anthropic.MessageParam
		switch msg.Role {
		case chatModels.RoleUser:
			message = anthropic.NewUserMessage(blocks...)
		case chatModels.RoleAssistant:
			message = anthropic.NewAssistantMessage(blocks...)
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}

		result = append(result, message)
	}

	return result, nil
}

// convertTools converts tool definitions to Anthropic SDK format.
func convertTools(tools []domainchat.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema for %s: %w", tool.Name, err)
		}

		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)

		result = append(result, toolParam)
	}

	return result, nil
}

// stringifyOutput renders a tool result as the plain text content the
// API expects. Strings pass through; everything else is JSON-encoded.
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

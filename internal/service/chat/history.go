package chat

import (
	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

// MessagesToProviderMessages converts persisted chat history into
// model-ready form. Interrupted-run placeholder messages (assistant,
// run id set, zero parts) are excluded: they carry no content and the
// model must not see them.
func MessagesToProviderMessages(messages []chatModels.Message) []domainchat.ProviderMessage {
	var out []domainchat.ProviderMessage
	for i := range messages {
		msg := &messages[i]
		if msg.IsInterruptedPlaceholder() {
			continue
		}
		out = append(out, providerMessagesFromParts(msg.Role, msg.Parts)...)
	}
	return out
}

// PartsToProviderMessages converts an assistant part sequence into
// model-ready messages. The conversion is lossless for what the model
// needs: text blocks, tool calls with their inputs, and tool results
// with their outputs. Tool results are carried in a user-role message
// following the assistant message that requested them, which is the
// shape every supported provider expects.
func PartsToProviderMessages(parts []chatModels.Part) []domainchat.ProviderMessage {
	return providerMessagesFromParts(chatModels.RoleAssistant, parts)
}

func providerMessagesFromParts(role chatModels.Role, parts []chatModels.Part) []domainchat.ProviderMessage {
	if role == chatModels.RoleUser {
		// User messages carry only text.
		var blocks []domainchat.ProviderBlock
		for i := range parts {
			if parts[i].Type == chatModels.PartTypeText {
				blocks = append(blocks, domainchat.ProviderBlock{
					Type: domainchat.BlockText,
					Text: parts[i].Text,
				})
			}
		}
		if len(blocks) == 0 {
			return nil
		}
		return []domainchat.ProviderMessage{{Role: chatModels.RoleUser, Blocks: blocks}}
	}

	var out []domainchat.ProviderMessage
	var assistantBlocks []domainchat.ProviderBlock
	var resultBlocks []domainchat.ProviderBlock

	flush := func() {
		if len(assistantBlocks) > 0 {
			out = append(out, domainchat.ProviderMessage{
				Role:   chatModels.RoleAssistant,
				Blocks: assistantBlocks,
			})
			assistantBlocks = nil
		}
		if len(resultBlocks) > 0 {
			out = append(out, domainchat.ProviderMessage{
				Role:   chatModels.RoleUser,
				Blocks: resultBlocks,
			})
			resultBlocks = nil
		}
	}

	for i := range parts {
		part := &parts[i]
		switch part.Type {
		case chatModels.PartTypeText:
			// Text after settled tool results starts the next step's
			// assistant message.
			if len(resultBlocks) > 0 {
				flush()
			}
			assistantBlocks = append(assistantBlocks, domainchat.ProviderBlock{
				Type: domainchat.BlockText,
				Text: part.Text,
			})

		case chatModels.PartTypeReasoning:
			if len(resultBlocks) > 0 {
				flush()
			}
			assistantBlocks = append(assistantBlocks, domainchat.ProviderBlock{
				Type: domainchat.BlockReasoning,
				Text: part.Text,
			})

		case chatModels.PartTypeTool:
			if part.Tool == nil {
				continue
			}
			assistantBlocks = append(assistantBlocks, domainchat.ProviderBlock{
				Type:       domainchat.BlockToolUse,
				ToolCallID: part.Tool.CallID,
				ToolName:   part.Tool.Name,
				ToolInput:  part.Tool.Input,
			})
			if block, ok := toolResultBlock(part); ok {
				resultBlocks = append(resultBlocks, block)
			}

		case chatModels.PartTypeSourceURL, chatModels.PartTypeFile:
			// Citations and attachments are UI content, not model input.
		}
	}
	flush()

	return out
}

// toolResultBlock converts a settled tool part's outcome into a
// tool_result block. Unsettled tool parts (input-available on an
// interrupted run) produce no result block.
func toolResultBlock(part *chatModels.Part) (domainchat.ProviderBlock, bool) {
	block := domainchat.ProviderBlock{
		Type:       domainchat.BlockToolResult,
		ToolCallID: part.Tool.CallID,
		ToolName:   part.Tool.Name,
	}

	switch part.State {
	case chatModels.PartStateOutputAvailable:
		block.ToolOutput = part.Tool.Output
	case chatModels.PartStateOutputError:
		block.ToolOutput = part.Tool.Error
		block.IsError = true
	case chatModels.PartStateOutputDenied:
		block.ToolOutput = "tool call denied: " + part.Tool.DenialReason
		block.IsError = true
	default:
		return domainchat.ProviderBlock{}, false
	}

	return block, true
}

package chat

import (
	"testing"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

func textPart(text string) chatModels.Part {
	return chatModels.Part{
		Type:  chatModels.PartTypeText,
		State: chatModels.PartStateDone,
		Text:  text,
	}
}

func toolPart(callID, name string, state chatModels.PartState) chatModels.Part {
	return chatModels.Part{
		Type:  chatModels.PartTypeTool,
		State: state,
		Tool: &chatModels.ToolPart{
			CallID: callID,
			Name:   name,
			Input:  map[string]any{"query": "soup"},
			Output: map[string]any{"count": 2},
		},
	}
}

func TestPartsToProviderMessagesTextOnly(t *testing.T) {
	parts := []chatModels.Part{textPart("hello"), textPart("world")}

	got := PartsToProviderMessages(parts)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].Role != chatModels.RoleAssistant {
		t.Errorf("role: got %q, want assistant", got[0].Role)
	}
	if len(got[0].Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got[0].Blocks))
	}
	if got[0].Blocks[0].Text != "hello" || got[0].Blocks[1].Text != "world" {
		t.Errorf("blocks: got %+v", got[0].Blocks)
	}
}

// A settled tool call produces the assistant's tool_use block and a
// following user-role message carrying the tool_result.
func TestPartsToProviderMessagesToolRoundTrip(t *testing.T) {
	parts := []chatModels.Part{
		toolPart("call-1", "search_recipes", chatModels.PartStateOutputAvailable),
		textPart("found two recipes"),
	}

	got := PartsToProviderMessages(parts)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}

	if got[0].Role != chatModels.RoleAssistant || got[0].Blocks[0].Type != domainchat.BlockToolUse {
		t.Errorf("message 0: got role %q, block %q, want assistant tool_use", got[0].Role, got[0].Blocks[0].Type)
	}
	if got[0].Blocks[0].ToolInput["query"] != "soup" {
		t.Errorf("tool input: got %v", got[0].Blocks[0].ToolInput)
	}

	if got[1].Role != chatModels.RoleUser || got[1].Blocks[0].Type != domainchat.BlockToolResult {
		t.Errorf("message 1: got role %q, block %q, want user tool_result", got[1].Role, got[1].Blocks[0].Type)
	}
	if got[1].Blocks[0].ToolCallID != "call-1" {
		t.Errorf("result call id: got %q, want call-1", got[1].Blocks[0].ToolCallID)
	}

	if got[2].Role != chatModels.RoleAssistant || got[2].Blocks[0].Text != "found two recipes" {
		t.Errorf("message 2: got %+v, want assistant text", got[2])
	}
}

func TestPartsToProviderMessagesToolOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		state       chatModels.PartState
		wantResult  bool
		wantIsError bool
	}{
		{name: "output available", state: chatModels.PartStateOutputAvailable, wantResult: true},
		{name: "output error", state: chatModels.PartStateOutputError, wantResult: true, wantIsError: true},
		{name: "output denied", state: chatModels.PartStateOutputDenied, wantResult: true, wantIsError: true},
		{name: "unsettled input-available", state: chatModels.PartStateInputAvailable, wantResult: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part := toolPart("call-1", "search_recipes", tt.state)
			part.Tool.Error = "boom"
			part.Tool.DenialReason = "not allowed"

			got := PartsToProviderMessages([]chatModels.Part{part})

			hasResult := len(got) == 2
			if hasResult != tt.wantResult {
				t.Fatalf("got %d messages, want result=%v", len(got), tt.wantResult)
			}
			if tt.wantResult && got[1].Blocks[0].IsError != tt.wantIsError {
				t.Errorf("IsError: got %v, want %v", got[1].Blocks[0].IsError, tt.wantIsError)
			}
		})
	}
}

// Source and file parts are rendered to clients but never sent back to
// the model.
func TestPartsToProviderMessagesSkipsUIContent(t *testing.T) {
	parts := []chatModels.Part{
		textPart("see this"),
		{
			Type:   chatModels.PartTypeSourceURL,
			State:  chatModels.PartStateDone,
			Source: &chatModels.SourcePart{URL: "https://example.com"},
		},
		{
			Type:  chatModels.PartTypeFile,
			State: chatModels.PartStateDone,
			File:  &chatModels.FilePart{URL: "https://example.com/a.png"},
		},
	}

	got := PartsToProviderMessages(parts)
	if len(got) != 1 || len(got[0].Blocks) != 1 {
		t.Fatalf("got %+v, want one message with one text block", got)
	}
}

func TestMessagesToProviderMessagesExcludesPlaceholder(t *testing.T) {
	runID := "run-1"
	messages := []chatModels.Message{
		{Role: chatModels.RoleUser, Parts: []chatModels.Part{textPart("hi")}},
		{Role: chatModels.RoleAssistant, Parts: []chatModels.Part{textPart("hello")}},
		{Role: chatModels.RoleUser, Parts: []chatModels.Part{textPart("again")}},
		// Interrupted run: assistant, run id set, zero parts.
		{Role: chatModels.RoleAssistant, RunID: &runID},
	}

	got := MessagesToProviderMessages(messages)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3 (placeholder excluded)", len(got))
	}
	for _, msg := range got {
		if len(msg.Blocks) == 0 {
			t.Errorf("message with zero blocks reached model history: %+v", msg)
		}
	}
}

// A multi-step assistant message alternates assistant and tool-result
// messages per step.
func TestPartsToProviderMessagesMultiStep(t *testing.T) {
	parts := []chatModels.Part{
		toolPart("call-1", "search_recipes", chatModels.PartStateOutputAvailable),
		toolPart("call-2", "get_recipe", chatModels.PartStateOutputAvailable),
		textPart("here is the recipe"),
	}

	got := PartsToProviderMessages(parts)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	// Both tool_use blocks share one assistant message, both results
	// share one user message.
	if len(got[0].Blocks) != 2 {
		t.Errorf("assistant message: got %d blocks, want 2", len(got[0].Blocks))
	}
	if len(got[1].Blocks) != 2 {
		t.Errorf("result message: got %d blocks, want 2", len(got[1].Blocks))
	}
}

package chat

import (
	"context"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// RunService is the business-logic surface for starting and resuming
// agent runs. Handlers only talk to this interface, never to
// repositories.
type RunService interface {
	// CreateChat creates a new chat session for the user.
	CreateChat(ctx context.Context, userID, title string) (*chat.Chat, error)

	// GetChatMessages returns the chat's history. Interrupted-run
	// placeholder messages are included (the client needs their run id
	// to reconnect) but flagged via ChatHistory.ActiveRunID.
	GetChatMessages(ctx context.Context, chatID, userID string) (*ChatHistory, error)

	// StartRun persists the user message, allocates a run, starts the
	// tool loop in the background and returns the live stream. The
	// returned channel replays from index 0 and follows the run until
	// completion; it is closed when the run ends.
	StartRun(ctx context.Context, req *StartRunRequest) (*StartRunResponse, error)

	// Resume re-attaches to a run's event log. The returned channel
	// yields exactly the events at index >= startIndex, in order,
	// without gaps or duplicates, then follows live output if the run
	// is still in progress. Unknown run ids yield domain.ErrNotFound.
	Resume(ctx context.Context, runID string, startIndex int) (<-chan chat.Chunk, error)
}

// StartRunRequest is the DTO for starting an agent run.
type StartRunRequest struct {
	ChatID  string `json:"chat_id"`
	UserID  string `json:"-"` // set by the handler from auth context
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// StartRunResponse carries the run handle and the live stream.
type StartRunResponse struct {
	Run         *chat.Run
	UserMessage *chat.Message
	Stream      <-chan chat.Chunk
}

// ChatHistory is a chat's message list plus the id of an unfinished run
// the client should reconnect to, if one exists.
type ChatHistory struct {
	Messages    []chat.Message `json:"messages"`
	ActiveRunID *string        `json:"active_run_id,omitempty"`
}

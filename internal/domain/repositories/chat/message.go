package chat

import (
	"context"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// MessageRepository persists messages and their parts. Parts are
// append-only: a persisted part in a terminal state is never updated.
type MessageRepository interface {
	// CreateMessage inserts a message row. Parts on the model are NOT
	// written; use CreateParts so part persistence stays incremental.
	CreateMessage(ctx context.Context, msg *chat.Message) error

	// CreateParts appends parts to a message in order. Each part is
	// written atomically as one row; Ord values must continue the
	// message's existing sequence.
	CreateParts(ctx context.Context, messageID string, parts []chat.Part) error

	// GetChatMessages returns all messages of a chat in creation order,
	// each with its parts nested in Ord order.
	GetChatMessages(ctx context.Context, chatID string) ([]chat.Message, error)
}

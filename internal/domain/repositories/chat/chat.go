package chat

import (
	"context"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// ChatRepository persists chat sessions.
type ChatRepository interface {
	// CreateChat inserts a new chat owned by chat.UserID.
	CreateChat(ctx context.Context, c *chat.Chat) error

	// GetChat returns a chat by id. Soft-deleted chats are not found.
	GetChat(ctx context.Context, chatID string) (*chat.Chat, error)

	// VerifyOwnership reports whether the chat exists, is not deleted,
	// and belongs to userID.
	VerifyOwnership(ctx context.Context, chatID, userID string) (bool, error)
}

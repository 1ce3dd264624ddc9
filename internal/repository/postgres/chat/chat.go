package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain"
	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	chatRepo "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/repository/postgres"
)

// PostgresChatRepository implements ChatRepository using PostgreSQL
type PostgresChatRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewChatRepository creates a new PostgresChatRepository
func NewChatRepository(config *postgres.RepositoryConfig) chatRepo.ChatRepository {
	return &PostgresChatRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateChat inserts a new chat session
func (r *PostgresChatRepository) CreateChat(ctx context.Context, c *chatModels.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, title, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, r.tables.Chats)

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, c.ID, c.UserID, c.Title, c.CreatedAt).Scan(&c.CreatedAt)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("chat %s: %w", c.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create chat: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by ID (soft-deleted chats are not found)
func (r *PostgresChatRepository) GetChat(ctx context.Context, chatID string) (*chatModels.Chat, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, created_at, deleted_at
		FROM %s
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Chats)

	var c chatModels.Chat
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, chatID).Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.CreatedAt,
		&c.DeletedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	return &c, nil
}

// VerifyOwnership reports whether the chat exists, is not deleted, and
// belongs to userID
func (r *PostgresChatRepository) VerifyOwnership(ctx context.Context, chatID, userID string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM %s
			WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		)
	`, r.tables.Chats)

	var owned bool
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, chatID, userID).Scan(&owned); err != nil {
		return false, fmt.Errorf("verify chat ownership: %w", err)
	}

	return owned, nil
}

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain"
	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	chatRepo "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/repository/postgres"
)

// PostgresMessageRepository implements MessageRepository using PostgreSQL
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *postgres.RepositoryConfig) chatRepo.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateMessage inserts a message row. Parts on the model are not
// written here; CreateParts appends them as they become durable.
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, msg *chatModels.Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, run_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, r.tables.Messages)

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		msg.ID,
		msg.ChatID,
		msg.RunID,
		msg.Role,
		msg.CreatedAt,
	).Scan(&msg.CreatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", msg.ChatID, domain.ErrNotFound)
		}
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("message %s: %w", msg.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

// CreateParts appends parts to a message in order. Columns per part:
// 10 positional parameters, tool payload flattened into dedicated
// columns so terminal tool parts stay queryable without JSON paths.
func (r *PostgresMessageRepository) CreateParts(ctx context.Context, messageID string, parts []chatModels.Part) error {
	if len(parts) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, message_id, ord, type, state, text_content, tool_payload, source_payload, file_payload, created_at
		)
		VALUES
	`, r.tables.Parts)

	args := make([]interface{}, 0, len(parts)*10)
	for i, part := range parts {
		if part.CreatedAt.IsZero() {
			part.CreatedAt = time.Now()
		}

		toolPayload, err := marshalPayload(part.Tool)
		if err != nil {
			return fmt.Errorf("marshal tool payload: %w", err)
		}
		sourcePayload, err := marshalPayload(part.Source)
		if err != nil {
			return fmt.Errorf("marshal source payload: %w", err)
		}
		filePayload, err := marshalPayload(part.File)
		if err != nil {
			return fmt.Errorf("marshal file payload: %w", err)
		}

		if i > 0 {
			query += ","
		}
		query += fmt.Sprintf(`
			($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)
		`, i*10+1, i*10+2, i*10+3, i*10+4, i*10+5, i*10+6, i*10+7, i*10+8, i*10+9, i*10+10)

		args = append(args,
			part.ID,
			messageID,
			part.Ord,
			part.Type,
			part.State,
			part.Text,
			toolPayload,   // JSONB (nil becomes NULL)
			sourcePayload, // JSONB (nil becomes NULL)
			filePayload,   // JSONB (nil becomes NULL)
			part.CreatedAt,
		)
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, args...)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("part ordinal already taken on message %s: %w", messageID, domain.ErrConflict)
		}
		return fmt.Errorf("create parts: %w", err)
	}

	return nil
}

// marshalPayload returns the JSON encoding of v, or nil when v is a nil
// pointer so the column lands as NULL.
func marshalPayload(v interface{}) ([]byte, error) {
	switch p := v.(type) {
	case *chatModels.ToolPart:
		if p == nil {
			return nil, nil
		}
	case *chatModels.SourcePart:
		if p == nil {
			return nil, nil
		}
	case *chatModels.FilePart:
		if p == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// scanner defines the interface for row scanning (implemented by both pgx.Row and pgx.Rows)
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPartRow scans a database row into a Part, rehydrating whichever
// typed payload column is non-NULL.
func scanPartRow(row scanner) (*chatModels.Part, error) {
	var part chatModels.Part
	var toolPayload, sourcePayload, filePayload []byte

	err := row.Scan(
		&part.ID,
		&part.MessageID,
		&part.Ord,
		&part.Type,
		&part.State,
		&part.Text,
		&toolPayload,
		&sourcePayload,
		&filePayload,
		&part.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if toolPayload != nil {
		part.Tool = &chatModels.ToolPart{}
		if err := json.Unmarshal(toolPayload, part.Tool); err != nil {
			return nil, fmt.Errorf("unmarshal tool payload: %w", err)
		}
	}
	if sourcePayload != nil {
		part.Source = &chatModels.SourcePart{}
		if err := json.Unmarshal(sourcePayload, part.Source); err != nil {
			return nil, fmt.Errorf("unmarshal source payload: %w", err)
		}
	}
	if filePayload != nil {
		part.File = &chatModels.FilePart{}
		if err := json.Unmarshal(filePayload, part.File); err != nil {
			return nil, fmt.Errorf("unmarshal file payload: %w", err)
		}
	}

	return &part, nil
}

// GetChatMessages returns all messages of a chat in creation order with
// parts nested in ordinal order. Parts are batch-loaded in one query to
// avoid N+1 round trips.
func (r *PostgresMessageRepository) GetChatMessages(ctx context.Context, chatID string) ([]chatModels.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, run_id, role, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY created_at, id
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	defer rows.Close()

	var messages []chatModels.Message
	for rows.Next() {
		var msg chatModels.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.RunID,
			&msg.Role,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if messages == nil {
		return []chatModels.Message{}, nil
	}

	messageIDs := make([]string, len(messages))
	for i, msg := range messages {
		messageIDs[i] = msg.ID
	}

	partsByMessage, err := r.getPartsForMessages(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("get parts for messages: %w", err)
	}

	for i := range messages {
		if parts, ok := partsByMessage[messages[i].ID]; ok {
			messages[i].Parts = parts
		} else {
			messages[i].Parts = []chatModels.Part{}
		}
	}

	return messages, nil
}

// getPartsForMessages retrieves parts for multiple messages in a single query
func (r *PostgresMessageRepository) getPartsForMessages(
	ctx context.Context,
	messageIDs []string,
) (map[string][]chatModels.Part, error) {
	if len(messageIDs) == 0 {
		return map[string][]chatModels.Part{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, message_id, ord, type, state, text_content, tool_payload, source_payload, file_payload, created_at
		FROM %s
		WHERE message_id = ANY($1)
		ORDER BY message_id, ord
	`, r.tables.Parts)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("get parts: %w", err)
	}
	defer rows.Close()

	partsByMessage := make(map[string][]chatModels.Part)
	for rows.Next() {
		part, err := scanPartRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		partsByMessage[part.MessageID] = append(partsByMessage[part.MessageID], *part)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parts: %w", err)
	}

	return partsByMessage, nil
}

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

// PostgresRunRepository implements RunRepository using PostgreSQL
type PostgresRunRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewRunRepository creates a new PostgresRunRepository
func NewRunRepository(config *postgres.RepositoryConfig) chatRepo.RunRepository {
	return &PostgresRunRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateRun inserts a run row with complete=false
func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *chatModels.Run) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, message_id, complete, created_at)
		VALUES ($1, $2, $3, false, $4)
		RETURNING created_at
	`, r.tables.Runs)

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, run.ID, run.ChatID, run.MessageID, run.CreatedAt).Scan(&run.CreatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", run.ChatID, domain.ErrNotFound)
		}
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("run %s: %w", run.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create run: %w", err)
	}

	run.Complete = false
	return nil
}

// GetRun retrieves a run by ID
func (r *PostgresRunRepository) GetRun(ctx context.Context, runID string) (*chatModels.Run, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, message_id, complete, created_at, completed_at
		FROM %s
		WHERE id = $1
	`, r.tables.Runs)

	var run chatModels.Run
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.ChatID,
		&run.MessageID,
		&run.Complete,
		&run.CreatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	return &run, nil
}

// AppendEvent durably appends one chunk at the given index. The primary
// key on (run_id, idx) rejects duplicate indexes, which would mean two
// writers raced on the same run.
func (r *PostgresRunRepository) AppendEvent(ctx context.Context, runID string, index int, chunk chatModels.Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, idx, chunk, created_at)
		VALUES ($1, $2, $3, $4)
	`, r.tables.RunEvents)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err = executor.Exec(ctx, query, runID, index, payload, time.Now())
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("run %s index %d already written: %w", runID, index, domain.ErrConflict)
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		return fmt.Errorf("append run event: %w", err)
	}

	return nil
}

// ListEvents returns the chunks at index >= fromIndex in index order
func (r *PostgresRunRepository) ListEvents(ctx context.Context, runID string, fromIndex int) ([]chatModels.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT chunk
		FROM %s
		WHERE run_id = $1 AND idx >= $2
		ORDER BY idx
	`, r.tables.RunEvents)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, runID, fromIndex)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var chunks []chatModels.Chunk
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		var chunk chatModels.Chunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return nil, fmt.Errorf("unmarshal chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}

	if chunks == nil {
		chunks = []chatModels.Chunk{}
	}

	return chunks, nil
}

// MarkComplete sets the completion flag and links the assistant message
func (r *PostgresRunRepository) MarkComplete(ctx context.Context, runID, messageID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET complete = true, message_id = $1, completed_at = $2
		WHERE id = $3
	`, r.tables.Runs)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, messageID, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("mark run complete: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}

	return nil
}

package chat

import (
	"context"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// RunRepository persists runs and their append-only event logs.
//
// A run's log has exactly one writer (the loop that owns the run);
// readers never block the writer because appended rows are immutable.
type RunRepository interface {
	// CreateRun inserts a run row with complete=false.
	CreateRun(ctx context.Context, run *chat.Run) error

	// GetRun returns a run by id, or domain.ErrNotFound.
	GetRun(ctx context.Context, runID string) (*chat.Run, error)

	// AppendEvent durably appends one chunk at the given index. Indexes
	// are dense per run; appending an index that already exists is an
	// error (the single-writer invariant was violated).
	AppendEvent(ctx context.Context, runID string, index int, chunk chat.Chunk) error

	// ListEvents returns the chunks at index >= fromIndex in index order.
	ListEvents(ctx context.Context, runID string, fromIndex int) ([]chat.Chunk, error)

	// MarkComplete sets the completion flag and links the run to the
	// assistant message it produced.
	MarkComplete(ctx context.Context, runID, messageID string) error
}

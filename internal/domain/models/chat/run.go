package chat

import (
	"time"
)

// Run is the durable handle for one agent tool-loop execution. The run
// identifier is returned to the client so it can reconnect; the event
// log keyed by the run id stays readable from any offset during and
// after execution.
//
// A run produces exactly one assistant message. MessageID links the two
// once the run completes; run identity stays distinct so reconnects are
// addressed independently of message identity.
type Run struct {
	ID          string     `json:"id" db:"id"`
	ChatID      string     `json:"chat_id" db:"chat_id"`
	MessageID   *string    `json:"message_id,omitempty" db:"message_id"`
	Complete    bool       `json:"complete" db:"complete"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunEvent is one appended entry of a run's event log. Index is dense
// and strictly increasing per run; (RunID, Index) is the log key.
type RunEvent struct {
	RunID     string    `json:"run_id" db:"run_id"`
	Index     int       `json:"index" db:"idx"`
	Chunk     Chunk     `json:"chunk" db:"chunk"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

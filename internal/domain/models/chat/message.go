package chat

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Chat is a conversation owned by a single user.
type Chat struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Title     string     `json:"title" db:"title"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Message is one turn in a conversation. A message is never edited in
// place once persisted: content only ever arrives as appended Parts.
//
// RunID is set on assistant messages produced by an agent run. An
// assistant message with a non-nil RunID and zero Parts marks a run that
// was interrupted before any part became durable; such messages are
// excluded from model-ready history and surfaced to clients as the
// active run to reconnect to.
type Message struct {
	ID        string    `json:"id" db:"id"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	RunID     *string   `json:"run_id,omitempty" db:"run_id"`
	Role      Role      `json:"role" db:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsInterruptedPlaceholder reports whether this message is the empty
// assistant placeholder of a run that never attached a durable part.
func (m *Message) IsInterruptedPlaceholder() bool {
	return m.Role == RoleAssistant && m.RunID != nil && len(m.Parts) == 0
}

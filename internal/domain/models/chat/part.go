package chat

import (
	"time"
)

// Part type constants. The set is closed: every part a run produces is
// one of these, and transports switch over them exhaustively.
type PartType string

const (
	PartTypeText      PartType = "text"
	PartTypeReasoning PartType = "reasoning"
	PartTypeTool      PartType = "tool"
	PartTypeSourceURL PartType = "source-url"
	PartTypeFile      PartType = "file"
)

// PartState is the lifecycle state of a part.
//
// Text and reasoning parts move streaming -> done. Tool parts move
// input-streaming -> input-available -> one of the three terminal
// output states. A part in a terminal state is immutable.
type PartState string

const (
	PartStateStreaming       PartState = "streaming"
	PartStateDone            PartState = "done"
	PartStateInputStreaming  PartState = "input-streaming"
	PartStateInputAvailable  PartState = "input-available"
	PartStateOutputAvailable PartState = "output-available"
	PartStateOutputError     PartState = "output-error"
	PartStateOutputDenied    PartState = "output-denied"
)

// Part is a single typed unit of message content. Parts belong to
// exactly one message, preserve strict production order via Ord, and
// are persisted individually so a partially produced message can be
// reconstructed up to the last durable part.
type Part struct {
	ID        string    `json:"id,omitempty" db:"id"`
	MessageID string    `json:"message_id,omitempty" db:"message_id"`
	Ord       int       `json:"ord" db:"ord"`
	Type      PartType  `json:"type" db:"type"`
	State     PartState `json:"state" db:"state"`

	// Text content for text and reasoning parts.
	Text string `json:"text,omitempty" db:"text"`

	Tool   *ToolPart   `json:"tool,omitempty"`
	Source *SourcePart `json:"source,omitempty"`
	File   *FilePart   `json:"file,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
}

// ToolPart carries the payload of a tool-call part.
type ToolPart struct {
	CallID       string         `json:"call_id"`
	Name         string         `json:"name"`
	Input        map[string]any `json:"input,omitempty"`
	Output       any            `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	DenialReason string         `json:"denial_reason,omitempty"`
}

// SourcePart is a citation emitted by the model.
type SourcePart struct {
	SourceID string `json:"source_id,omitempty"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// FilePart references an attachment produced during a run.
type FilePart struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type,omitempty"`
}

// IsTerminal reports whether the part has reached a state in which it
// may no longer change.
func (p *Part) IsTerminal() bool {
	switch p.State {
	case PartStateDone, PartStateOutputAvailable, PartStateOutputError, PartStateOutputDenied:
		return true
	}
	return false
}

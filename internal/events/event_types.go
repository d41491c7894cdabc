package events

import (
	"time"

	"github.com/spec-kit/memo-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMemoCreated       EventType = "memo_created"
	EventMemoSent          EventType = "memo_sent"
	EventMemoMinuteAdded   EventType = "memo_minute_added"
	EventMemoStatusChanged EventType = "memo_status_changed"
	EventMemoForwarded     EventType = "memo_forwarded"
	EventMemoArchived      EventType = "memo_archived"
	EventMemoDeleted       EventType = "memo_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	MemoID    string      `json:"memo_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MemoCreatedPayload payload.
type MemoCreatedPayload struct {
	Subject string `json:"subject"`
}

// MemoSentPayload lists the addresses that should be notified. Bcc
// recipients are included; the notifier never reveals them to each other.
type MemoSentPayload struct {
	Subject    string   `json:"subject"`
	Recipients []string `json:"recipients"`
	Chain      []string `json:"chain"`
}

// MemoMinuteAddedPayload payload.
type MemoMinuteAddedPayload struct {
	Decision    domain.Decision `json:"decision"`
	AuthorName  string          `json:"author_name"`
	BodyPreview string          `json:"body_preview"`
}

// MemoStatusChangedPayload payload.
type MemoStatusChangedPayload struct {
	OldStatus domain.MemoStatus `json:"old_status"`
	NewStatus domain.MemoStatus `json:"new_status"`
}

// MemoForwardedPayload payload.
type MemoForwardedPayload struct {
	SourceID   string   `json:"source_id"`
	Recipients []string `json:"recipients"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// IsTerminal returns true if the status is final
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusSent || s == OutboxStatusFailed
}

// SummaryPayload is the content blob carried by an outbox entry
type SummaryPayload struct {
	SummaryDate string `json:"summary_date"` // YYYY-MM-DD in the user's timezone
	Content     string `json:"content"`
	Address     string `json:"address"`
}

// OutboxEntry is one pending notification for one (user, channel) pair.
// Entries are written in the same transaction as the run's success, which
// decouples content generation from channel delivery: delivery can be
// retried without re-running generation. Delivery is at-least-once; the
// dedup key travels with the payload so downstream systems can suppress a
// duplicate caused by a crash between gateway ack and the sent update.
type OutboxEntry struct {
	ID        int64          `db:"id"`
	RunID     int64          `db:"run_id"`
	UserID    string         `db:"user_id"`
	Channel   Channel        `db:"channel"`
	DedupKey  uuid.UUID      `db:"dedup_key"`
	Payload   SummaryPayload `db:"payload"`
	Status    OutboxStatus   `db:"status"`
	Attempts  int            `db:"attempts"`
	LastError string         `db:"last_error"`
	SentAt    *time.Time     `db:"sent_at"`
	CreatedAt time.Time      `db:"created_at"`
}

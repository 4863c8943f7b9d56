package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"digido/database"
	"digido/models"
	"digido/service"
	"github.com/jackc/pgx/v5"
)

// OutboxRepository implements the service.OutboxRepository interface.
// Entries are created by the flow executor (inside the success transaction)
// and mutated only by the dispatcher. All terminal transitions are guarded
// on status = 'pending' so an entry can leave the pending state exactly once.
type OutboxRepository struct {
	q queryable
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *database.DB) *OutboxRepository {
	return &OutboxRepository{q: db.Pool}
}

// newOutboxRepositoryWithTx creates a new outbox repository with a transaction
func newOutboxRepositoryWithTx(tx queryable) *OutboxRepository {
	return &OutboxRepository{q: tx}
}

// Enqueue inserts a pending entry
func (r *OutboxRepository) Enqueue(ctx context.Context, entry *models.OutboxEntry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox_entries (run_id, user_id, channel, dedup_key, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.RunID,
		entry.UserID,
		entry.Channel,
		entry.DedupKey,
		payloadJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry for %s/%s: %w",
			entry.UserID, entry.Channel, err)
	}

	entry.Status = models.OutboxStatusPending
	return nil
}

// ListPending returns pending entries, oldest first, bounded by limit
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	query := `
		SELECT id, run_id, user_id, channel, dedup_key, payload, status,
		       attempts, last_error, sent_at, created_at
		FROM outbox_entries
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkSent transitions an entry to sent, recording the attempt count.
// Returns ErrNotPending if the entry already reached a terminal state.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, attempts int) error {
	query := `
		UPDATE outbox_entries
		SET status = 'sent', sent_at = NOW(), attempts = $2, last_error = ''
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, attempts)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %d sent: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return service.ErrNotPending
	}
	return nil
}

// MarkFailed transitions an entry to its terminal failed state.
// Returns ErrNotPending if the entry already reached a terminal state.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	query := `
		UPDATE outbox_entries
		SET status = 'failed', attempts = $2, last_error = $3
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, attempts, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %d failed: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return service.ErrNotPending
	}
	return nil
}

// GetByID retrieves an entry by ID, or nil if it does not exist
func (r *OutboxRepository) GetByID(ctx context.Context, id int64) (*models.OutboxEntry, error) {
	query := `
		SELECT id, run_id, user_id, channel, dedup_key, payload, status,
		       attempts, last_error, sent_at, created_at
		FROM outbox_entries
		WHERE id = $1
	`

	entry, err := scanOutboxEntry(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox entry %d: %w", id, err)
	}
	return entry, nil
}

// scanOutboxEntry scans one row into OutboxEntry
func scanOutboxEntry(row pgx.Row) (*models.OutboxEntry, error) {
	var entry models.OutboxEntry
	var payloadJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.RunID,
		&entry.UserID,
		&entry.Channel,
		&entry.DedupKey,
		&payloadJSON,
		&entry.Status,
		&entry.Attempts,
		&entry.LastError,
		&entry.SentAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox payload: %w", err)
	}
	return &entry, nil
}

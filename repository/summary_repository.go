package repository

import (
	"context"
	"fmt"

	"digido/database"
	"digido/models"
	"github.com/jackc/pgx/v5"
)

// SummaryRepository implements the service.SummaryRepository interface
type SummaryRepository struct {
	q queryable
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *database.DB) *SummaryRepository {
	return &SummaryRepository{q: db.Pool}
}

// newSummaryRepositoryWithTx creates a new summary repository with a transaction
func newSummaryRepositoryWithTx(tx queryable) *SummaryRepository {
	return &SummaryRepository{q: tx}
}

// Insert archives a generated summary. The (user, date) uniqueness is backed
// by the run claim invariant; a conflict here indicates a claim bug.
func (r *SummaryRepository) Insert(ctx context.Context, summary *models.DailySummary) error {
	query := `
		INSERT INTO daily_summaries (user_id, summary_date, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		summary.UserID,
		dateOnly(summary.SummaryDate),
		summary.Content,
	).Scan(&summary.ID, &summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert daily summary for %s on %s: %w",
			summary.UserID, summary.SummaryDate.Format("2006-01-02"), err)
	}
	return nil
}

// GetLatest returns the most recent summary for a user, or nil if none exist
func (r *SummaryRepository) GetLatest(ctx context.Context, userID string) (*models.DailySummary, error) {
	query := `
		SELECT id, user_id, summary_date, content, created_at
		FROM daily_summaries
		WHERE user_id = $1
		ORDER BY summary_date DESC
		LIMIT 1
	`

	var summary models.DailySummary
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&summary.ID,
		&summary.UserID,
		&summary.SummaryDate,
		&summary.Content,
		&summary.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest summary for %s: %w", userID, err)
	}
	return &summary, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"digido/database"
	"digido/models"
	"github.com/jackc/pgx/v5"
)

// UserPrefsRepository implements the service.UserPrefsRepository interface
type UserPrefsRepository struct {
	q queryable
}

// NewUserPrefsRepository creates a new user prefs repository
func NewUserPrefsRepository(db *database.DB) *UserPrefsRepository {
	return &UserPrefsRepository{q: db.Pool}
}

// newUserPrefsRepositoryWithTx creates a new user prefs repository with a transaction
func newUserPrefsRepositoryWithTx(tx queryable) *UserPrefsRepository {
	return &UserPrefsRepository{q: tx}
}

const userPrefsColumns = `
	user_id, timezone, summary_time, summary_enabled, delivery_channels,
	phone_number, discord_user_id, summary_last_sent_on, created_at, updated_at
`

// ListEnabled returns all users with summaries enabled, oldest user first.
// A limit of 0 means no limit.
func (r *UserPrefsRepository) ListEnabled(ctx context.Context, limit int) ([]*models.UserPrefs, error) {
	query := `
		SELECT ` + userPrefsColumns + `
		FROM user_prefs
		WHERE summary_enabled
		ORDER BY user_id
		LIMIT NULLIF($1, 0)
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled user prefs: %w", err)
	}
	defer rows.Close()

	var prefs []*models.UserPrefs
	for rows.Next() {
		p, err := scanUserPrefs(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user prefs: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// GetByID retrieves a user's preferences, or nil if none exist
func (r *UserPrefsRepository) GetByID(ctx context.Context, userID string) (*models.UserPrefs, error) {
	query := `
		SELECT ` + userPrefsColumns + `
		FROM user_prefs
		WHERE user_id = $1
	`

	p, err := scanUserPrefs(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user prefs for %s: %w", userID, err)
	}
	return p, nil
}

// AdvanceLastSentOn moves summary_last_sent_on forward to the given local
// date. The update is conditional so a delayed writer can never move the
// date backwards.
func (r *UserPrefsRepository) AdvanceLastSentOn(ctx context.Context, userID string, localDate time.Time) error {
	query := `
		UPDATE user_prefs
		SET summary_last_sent_on = $2, updated_at = NOW()
		WHERE user_id = $1
		  AND (summary_last_sent_on IS NULL OR summary_last_sent_on < $2)
	`

	_, err := r.q.Exec(ctx, query, userID, dateOnly(localDate))
	if err != nil {
		return fmt.Errorf("failed to advance last sent date for %s: %w", userID, err)
	}
	return nil
}

// Upsert creates or replaces a user's preferences. The worker itself never
// calls this; it exists for seeding and tests (preferences are owned by the
// external preferences API).
func (r *UserPrefsRepository) Upsert(ctx context.Context, prefs *models.UserPrefs) error {
	query := `
		INSERT INTO user_prefs
			(user_id, timezone, summary_time, summary_enabled, delivery_channels,
			 phone_number, discord_user_id, summary_last_sent_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			summary_time = EXCLUDED.summary_time,
			summary_enabled = EXCLUDED.summary_enabled,
			delivery_channels = EXCLUDED.delivery_channels,
			phone_number = EXCLUDED.phone_number,
			discord_user_id = EXCLUDED.discord_user_id,
			summary_last_sent_on = EXCLUDED.summary_last_sent_on,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	channels := make([]string, len(prefs.DeliveryChannels))
	for i, ch := range prefs.DeliveryChannels {
		channels[i] = string(ch)
	}

	var lastSent *time.Time
	if prefs.SummaryLastSentOn != nil {
		normalized := dateOnly(*prefs.SummaryLastSentOn)
		lastSent = &normalized
	}

	err := r.q.QueryRow(ctx, query,
		prefs.UserID,
		prefs.Timezone,
		prefs.SummaryTime,
		prefs.SummaryEnabled,
		channels,
		prefs.PhoneNumber,
		prefs.DiscordUserID,
		lastSent,
	).Scan(&prefs.CreatedAt, &prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user prefs for %s: %w", prefs.UserID, err)
	}
	return nil
}

// scanUserPrefs scans one row into UserPrefs
func scanUserPrefs(row pgx.Row) (*models.UserPrefs, error) {
	var p models.UserPrefs
	var channels []string

	err := row.Scan(
		&p.UserID,
		&p.Timezone,
		&p.SummaryTime,
		&p.SummaryEnabled,
		&channels,
		&p.PhoneNumber,
		&p.DiscordUserID,
		&p.SummaryLastSentOn,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.DeliveryChannels = make([]models.Channel, len(channels))
	for i, ch := range channels {
		p.DeliveryChannels[i] = models.Channel(ch)
	}
	return &p, nil
}

// dateOnly normalizes a timestamp to midnight, preserving its location
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

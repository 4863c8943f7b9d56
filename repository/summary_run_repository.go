package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"digido/database"
	"digido/models"
	"digido/service"
	"github.com/jackc/pgx/v5"
)

// SummaryRunRepository implements the service.SummaryRunRepository interface
type SummaryRunRepository struct {
	q queryable
}

// NewSummaryRunRepository creates a new summary run repository
func NewSummaryRunRepository(db *database.DB) *SummaryRunRepository {
	return &SummaryRunRepository{q: db.Pool}
}

// newSummaryRunRepositoryWithTx creates a new summary run repository with a transaction
func newSummaryRunRepositoryWithTx(tx queryable) *SummaryRunRepository {
	return &SummaryRunRepository{q: tx}
}

// TryClaim atomically inserts a pending run for (user, logical date).
// The insert conflicts with any existing non-failed run for the same key,
// in which case ErrAlreadyClaimed is returned. This conditional insert is
// what makes the scheduler safe under overlapping invocations: exactly one
// caller wins the claim, everyone else skips. A previously failed run does
// not block, so generation failures retry naturally on later ticks within
// the same local day.
func (r *SummaryRunRepository) TryClaim(ctx context.Context, userID, flow string, summaryDate time.Time) (*models.SummaryRun, error) {
	query := `
		INSERT INTO summary_runs (user_id, flow, summary_date, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (user_id, summary_date) WHERE status <> 'failed' DO NOTHING
		RETURNING id, started_at, created_at
	`

	run := &models.SummaryRun{
		UserID:      userID,
		Flow:        flow,
		SummaryDate: dateOnly(summaryDate),
		Status:      models.RunStatusPending,
	}

	err := r.q.QueryRow(ctx, query, userID, flow, run.SummaryDate).
		Scan(&run.ID, &run.StartedAt, &run.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, service.ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim run for %s on %s: %w",
			userID, run.SummaryDate.Format("2006-01-02"), err)
	}
	return run, nil
}

// MarkRunning transitions a claimed run from pending to running
func (r *SummaryRunRepository) MarkRunning(ctx context.Context, id int64) error {
	query := `
		UPDATE summary_runs
		SET status = 'running', started_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark run %d running: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return service.ErrNotPending
	}
	return nil
}

// MarkSucceeded transitions a run to its terminal succeeded state,
// merging the given metadata into the run's metadata document
func (r *SummaryRunRepository) MarkSucceeded(ctx context.Context, id int64, metadata map[string]interface{}) error {
	return r.finish(ctx, id, models.RunStatusSucceeded, metadata)
}

// MarkFailed transitions a run to its terminal failed state, recording the
// error summary in metadata. Failed runs stay behind as the audit trail and
// do not block a fresh claim.
func (r *SummaryRunRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.finish(ctx, id, models.RunStatusFailed, map[string]interface{}{"error": reason})
}

func (r *SummaryRunRepository) finish(ctx context.Context, id int64, status models.RunStatus, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	query := `
		UPDATE summary_runs
		SET status = $2, finished_at = NOW(), metadata = metadata || $3
		WHERE id = $1 AND status IN ('pending', 'running')
	`

	result, err := r.q.Exec(ctx, query, id, status, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to mark run %d %s: %w", id, status, err)
	}
	if result.RowsAffected() == 0 {
		return service.ErrNotPending
	}
	return nil
}

// GetByID retrieves a run by ID, or nil if it does not exist
func (r *SummaryRunRepository) GetByID(ctx context.Context, id int64) (*models.SummaryRun, error) {
	query := `
		SELECT id, user_id, flow, summary_date, status, started_at, finished_at, metadata, created_at
		FROM summary_runs
		WHERE id = $1
	`

	run, err := scanSummaryRun(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return run, nil
}

// ListStale returns non-terminal runs that started before the cutoff.
// These are surfaced to operators; the repository never requeues them.
func (r *SummaryRunRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*models.SummaryRun, error) {
	query := `
		SELECT id, user_id, flow, summary_date, status, started_at, finished_at, metadata, created_at
		FROM summary_runs
		WHERE status IN ('pending', 'running') AND started_at < $1
		ORDER BY started_at
	`

	rows, err := r.q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SummaryRun
	for rows.Next() {
		run, err := scanSummaryRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanSummaryRun scans one row into SummaryRun
func scanSummaryRun(row pgx.Row) (*models.SummaryRun, error) {
	var run models.SummaryRun
	var metadataJSON []byte

	err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.Flow,
		&run.SummaryDate,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&metadataJSON,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run metadata: %w", err)
		}
	}
	return &run, nil
}

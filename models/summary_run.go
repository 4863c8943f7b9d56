package models

import (
	"time"
)

// RunStatus represents the lifecycle state of a summary run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the status is final
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// FlowDailySummary is the flow name recorded on daily summary runs
const FlowDailySummary = "daily_summary"

// SummaryRun represents one execution of a flow for a user on a logical date.
// The row doubles as the scheduler's claim: a partial unique index over
// (user_id, summary_date) for non-failed rows guarantees that overlapping
// scheduler invocations cannot both execute the same user's summary.
// Runs are append-only; terminal rows are kept as the audit trail.
type SummaryRun struct {
	ID          int64                  `db:"id"`
	UserID      string                 `db:"user_id"`
	Flow        string                 `db:"flow"`
	SummaryDate time.Time              `db:"summary_date"` // date in the user's timezone
	Status      RunStatus              `db:"status"`
	StartedAt   time.Time              `db:"started_at"`
	FinishedAt  *time.Time             `db:"finished_at"`
	Metadata    map[string]interface{} `db:"metadata"`
	CreatedAt   time.Time              `db:"created_at"`
}

// Duration returns how long the run took, or 0 if it has not finished
func (r *SummaryRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

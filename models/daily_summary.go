package models

import (
	"time"
)

// DailySummary is the archived content generated for a user on a logical date
type DailySummary struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	SummaryDate time.Time `db:"summary_date"`
	Content     string    `db:"content"`
	CreatedAt   time.Time `db:"created_at"`
}

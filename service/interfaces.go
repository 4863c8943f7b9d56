package service

import (
	"context"
	"time"

	"digido/events"
	"digido/models"
)

// UserPrefsRepository defines the interface for user preference access.
// Preferences are owned by the external preferences API; the worker reads
// them and only ever advances the last-sent date.
type UserPrefsRepository interface {
	// ListEnabled returns all users with summaries enabled (limit 0 = no limit)
	ListEnabled(ctx context.Context, limit int) ([]*models.UserPrefs, error)

	// GetByID retrieves a user's preferences, or nil if none exist
	GetByID(ctx context.Context, userID string) (*models.UserPrefs, error)

	// AdvanceLastSentOn moves summary_last_sent_on forward to the given local date
	AdvanceLastSentOn(ctx context.Context, userID string, localDate time.Time) error

	// Upsert creates or replaces preferences (seeding and tests only)
	Upsert(ctx context.Context, prefs *models.UserPrefs) error
}

// SummaryRunRepository defines the interface for run tracking and claiming
type SummaryRunRepository interface {
	// TryClaim atomically creates a pending run for (user, logical date),
	// returning ErrAlreadyClaimed if a non-failed run already exists
	TryClaim(ctx context.Context, userID, flow string, summaryDate time.Time) (*models.SummaryRun, error)

	// MarkRunning transitions a claimed run from pending to running
	MarkRunning(ctx context.Context, id int64) error

	// MarkSucceeded transitions a run to succeeded, merging metadata
	MarkSucceeded(ctx context.Context, id int64, metadata map[string]interface{}) error

	// MarkFailed transitions a run to failed with an error summary
	MarkFailed(ctx context.Context, id int64, reason string) error

	// GetByID retrieves a run by ID, or nil if it does not exist
	GetByID(ctx context.Context, id int64) (*models.SummaryRun, error)

	// ListStale returns non-terminal runs started before the cutoff
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.SummaryRun, error)
}

// OutboxRepository defines the interface for the durable notification queue
type OutboxRepository interface {
	// Enqueue inserts a pending entry
	Enqueue(ctx context.Context, entry *models.OutboxEntry) error

	// ListPending returns pending entries, oldest first, bounded by limit
	ListPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error)

	// MarkSent transitions a pending entry to sent
	MarkSent(ctx context.Context, id int64, attempts int) error

	// MarkFailed transitions a pending entry to its terminal failed state
	MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error

	// GetByID retrieves an entry by ID, or nil if it does not exist
	GetByID(ctx context.Context, id int64) (*models.OutboxEntry, error)
}

// SummaryRepository defines the interface for the generated-content archive
type SummaryRepository interface {
	// Insert archives a generated summary
	Insert(ctx context.Context, summary *models.DailySummary) error

	// GetLatest returns the most recent summary for a user, or nil
	GetLatest(ctx context.Context, userID string) (*models.DailySummary, error)
}

// UnitOfWork bundles the repositories over one database transaction.
// Events published through it are held until the transaction commits.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	// Publish stashes an event for emission after a successful commit
	Publish(event events.Event)

	UserPrefsRepository() UserPrefsRepository
	SummaryRunRepository() SummaryRunRepository
	OutboxRepository() OutboxRepository
	SummaryRepository() SummaryRepository
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// ContentGenerator is the external collaborator that produces summary text.
// Implementations must honor the context deadline; the worker treats the
// generator as a fallible black box with no side effects on the store.
type ContentGenerator interface {
	Generate(ctx context.Context, userID string, summaryDate time.Time) (string, error)
}

// ChannelSender delivers one outbox entry over a concrete channel.
// Senders do not guarantee idempotency; the entry's dedup key travels with
// the payload so downstream systems can suppress duplicates.
// Unrecoverable conditions (bad address, channel not configured) must be
// reported by wrapping ErrPermanentDelivery.
type ChannelSender interface {
	Channel() models.Channel
	Send(ctx context.Context, entry *models.OutboxEntry) error
}

// SummaryService executes the summary flow for a single user
type SummaryService interface {
	// RunForUser claims the run for (user, date) and, if the claim wins,
	// generates content and enqueues one outbox entry per enabled channel.
	// Returns ErrAlreadyClaimed when another invocation holds the run.
	RunForUser(ctx context.Context, prefs *models.UserPrefs, summaryDate time.Time) error

	// ForceRun executes the flow for one user regardless of the due window,
	// still subject to the claim invariant. With deliver=false the summary
	// is generated and archived but no outbox entries are enqueued.
	ForceRun(ctx context.Context, userID string, summaryDate time.Time, deliver bool) error
}

// DispatcherService drains the outbox and delivers pending entries
type DispatcherService interface {
	DrainOutbox(ctx context.Context, batchSize int) (*DeliveryReport, error)
}

// SchedulerService performs one full scheduler invocation
type SchedulerService interface {
	Tick(ctx context.Context) (*models.TickReport, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"digido/events"
	"digido/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type schedulerService struct {
	prefsRepo  UserPrefsRepository
	runRepo    SummaryRunRepository
	summarySvc SummaryService
	dispatcher DispatcherService
	eventBus   *events.Bus

	batchLimit      int
	workerCount     int
	graceWindow     time.Duration
	staleThreshold  time.Duration
	outboxBatchSize int

	// nowFn is swappable in tests
	nowFn func() time.Time
}

// NewSchedulerService creates the scheduler that drives one full invocation:
// stale-run sweep, due-user selection, per-user flow execution, outbox drain.
func NewSchedulerService(
	prefsRepo UserPrefsRepository,
	runRepo SummaryRunRepository,
	summarySvc SummaryService,
	dispatcher DispatcherService,
	eventBus *events.Bus,
	batchLimit int,
	workerCount int,
	graceWindow time.Duration,
	staleThreshold time.Duration,
	outboxBatchSize int,
) SchedulerService {
	if workerCount < 1 {
		// errgroup.SetLimit(0) would block every Go call forever
		workerCount = 1
	}
	return &schedulerService{
		prefsRepo:       prefsRepo,
		runRepo:         runRepo,
		summarySvc:      summarySvc,
		dispatcher:      dispatcher,
		eventBus:        eventBus,
		batchLimit:      batchLimit,
		workerCount:     workerCount,
		graceWindow:     graceWindow,
		staleThreshold:  staleThreshold,
		outboxBatchSize: outboxBatchSize,
		nowFn:           time.Now,
	}
}

// Tick performs one scheduler invocation. Per-user failures are counted and
// reported but never abort the batch. Store-level failures do abort it: a
// failed preference snapshot read means there is nothing to do, and a failed
// outbox drain means delivery state cannot be trusted. Both surface as a
// fatal invocation error so the invoking cron sees the outage.
func (s *schedulerService) Tick(ctx context.Context) (*models.TickReport, error) {
	now := s.nowFn().UTC()
	report := &models.TickReport{}

	s.sweepStaleRuns(ctx, now, report)

	prefs, err := s.prefsRepo.ListEnabled(ctx, s.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled users: %w", err)
	}
	report.UsersConsidered = len(prefs)

	selection := SelectDueUsers(now, prefs, s.graceWindow)
	report.SkippedConfig = len(selection.Skipped)
	for _, skip := range selection.Skipped {
		log.WithFields(log.Fields{
			"userID": skip.UserID,
			"reason": skip.Reason,
		}).Warn("Skipping user with unusable configuration")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)

	for _, due := range selection.Due {
		due := due
		g.Go(func() error {
			err := s.summarySvc.RunForUser(gctx, due.Prefs, due.LocalDate)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAlreadyClaimed):
				report.SkippedAlreadyClaimed++
			case errors.Is(err, ErrClaimFailed):
				// No run row was created; a store outage here is not a
				// per-user generation failure
				report.ClaimFailed++
				log.WithError(err).WithField("userID", due.Prefs.UserID).Error("Could not claim run")
			case err != nil:
				report.Claimed++
				report.GeneratedFailed++
				log.WithError(err).WithField("userID", due.Prefs.UserID).Error("Summary run failed")
			default:
				report.Claimed++
				report.GeneratedOK++
			}
			// Per-user errors never propagate; returning one would cancel
			// the group and starve the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	// A drain failure means the store (or the pending read) is down; that
	// aborts the invocation so the caller sees the outage instead of a
	// clean exit
	delivery, err := s.dispatcher.DrainOutbox(ctx, s.outboxBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to drain outbox: %w", err)
	}
	report.DeliveredOK = delivery.Delivered
	report.DeliveredFailed = delivery.Failed

	log.WithFields(log.Fields{
		"usersConsidered": report.UsersConsidered,
		"claimed":         report.Claimed,
		"claimFailed":     report.ClaimFailed,
		"skippedClaimed":  report.SkippedAlreadyClaimed,
		"skippedConfig":   report.SkippedConfig,
		"generatedOK":     report.GeneratedOK,
		"generatedFailed": report.GeneratedFailed,
		"deliveredOK":     report.DeliveredOK,
		"deliveredFailed": report.DeliveredFailed,
		"staleRuns":       report.StaleRuns,
	}).Info("Scheduler tick complete")

	return report, nil
}

// sweepStaleRuns reports runs stuck in a live state past the threshold.
// Stale runs are surfaced for operators, never auto-failed or retried: the
// original invocation may still be working, and auto-failing would let a
// second claim race it.
func (s *schedulerService) sweepStaleRuns(ctx context.Context, now time.Time, report *models.TickReport) {
	cutoff := now.Add(-s.staleThreshold)
	stale, err := s.runRepo.ListStale(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Failed to list stale runs")
		return
	}

	report.StaleRuns = len(stale)
	for _, run := range stale {
		s.eventBus.Emit(ctx, events.RunStaleEvent{
			RunID:       run.ID,
			UserID:      run.UserID,
			SummaryDate: run.SummaryDate,
			StartedAt:   run.StartedAt,
		})
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digido/events"
	"digido/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type summaryService struct {
	uowFactory  UnitOfWorkFactory
	generator   ContentGenerator
	flowTimeout time.Duration
}

// NewSummaryService creates a new summary service
func NewSummaryService(uowFactory UnitOfWorkFactory, generator ContentGenerator, flowTimeout time.Duration) SummaryService {
	return &summaryService{
		uowFactory:  uowFactory,
		generator:   generator,
		flowTimeout: flowTimeout,
	}
}

func (s *summaryService) RunForUser(ctx context.Context, prefs *models.UserPrefs, summaryDate time.Time) error {
	run, err := s.claim(ctx, prefs.UserID, summaryDate)
	if err != nil {
		return err
	}
	return s.execute(ctx, run, prefs, summaryDate, true)
}

func (s *summaryService) ForceRun(ctx context.Context, userID string, summaryDate time.Time, deliver bool) error {
	// Look up prefs and claim in one transaction; the claim still applies so
	// a manual run can never race the scheduler into a double send.
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	prefs, err := uow.UserPrefsRepository().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user prefs: %w", err)
	}
	if prefs == nil {
		return fmt.Errorf("user prefs not found for %s", userID)
	}

	run, err := uow.SummaryRunRepository().TryClaim(ctx, userID, models.FlowDailySummary, summaryDate)
	if err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}

	return s.execute(ctx, run, prefs, summaryDate, deliver)
}

// claim commits a pending run row for (user, date). The commit must happen
// before generation starts so concurrent invocations see the claim.
// Store errors are wrapped in ErrClaimFailed; losing the claim race keeps
// its own ErrAlreadyClaimed identity.
func (s *summaryService) claim(ctx context.Context, userID string, summaryDate time.Time) (*models.SummaryRun, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrClaimFailed, err)
	}
	defer uow.Rollback()

	run, err := uow.SummaryRunRepository().TryClaim(ctx, userID, models.FlowDailySummary, summaryDate)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w for %s: %w", ErrClaimFailed, userID, err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit claim: %w", ErrClaimFailed, err)
	}
	return run, nil
}

// execute runs generation for a claimed run and commits the outcome
func (s *summaryService) execute(ctx context.Context, run *models.SummaryRun, prefs *models.UserPrefs, summaryDate time.Time, deliver bool) error {
	if err := s.markRunning(ctx, run.ID); err != nil {
		return err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.flowTimeout)
	defer cancel()

	content, err := s.generator.Generate(genCtx, prefs.UserID, summaryDate)
	if err != nil {
		if ctx.Err() != nil {
			// The invocation itself is shutting down. Leave the run in its
			// live state; the staleness alert surfaces it rather than a
			// second racing execution writing completion state.
			return fmt.Errorf("generation interrupted for %s: %w", prefs.UserID, ctx.Err())
		}
		s.failRun(ctx, run, summaryDate, err)
		return fmt.Errorf("failed to generate summary for %s: %w", prefs.UserID, err)
	}

	return s.completeRun(ctx, run, prefs, summaryDate, content, deliver)
}

func (s *summaryService) markRunning(ctx context.Context, runID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.SummaryRunRepository().MarkRunning(ctx, runID); err != nil {
		return fmt.Errorf("failed to mark run %d running: %w", runID, err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// completeRun commits the entire success outcome atomically: the run's
// terminal state, the archived summary, one outbox entry per enabled
// channel, and the advanced last-sent date. Either all of it is visible or
// none of it, so a crash mid-flow re-runs generation on a later tick
// instead of half-delivering.
func (s *summaryService) completeRun(ctx context.Context, run *models.SummaryRun, prefs *models.UserPrefs, summaryDate time.Time, content string, deliver bool) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	metadata := map[string]interface{}{
		"content_length": len(content),
		"delivered":      deliver,
	}
	if err := uow.SummaryRunRepository().MarkSucceeded(ctx, run.ID, metadata); err != nil {
		return fmt.Errorf("failed to mark run %d succeeded: %w", run.ID, err)
	}

	summary := &models.DailySummary{
		UserID:      prefs.UserID,
		SummaryDate: summaryDate,
		Content:     content,
	}
	if err := uow.SummaryRepository().Insert(ctx, summary); err != nil {
		return fmt.Errorf("failed to archive summary: %w", err)
	}

	if deliver {
		for _, channel := range prefs.DeliveryChannels {
			entry := &models.OutboxEntry{
				RunID:    run.ID,
				UserID:   prefs.UserID,
				Channel:  channel,
				DedupKey: uuid.New(),
				Payload: models.SummaryPayload{
					SummaryDate: summaryDate.Format("2006-01-02"),
					Content:     content,
					Address:     prefs.AddressFor(channel),
				},
			}
			if err := uow.OutboxRepository().Enqueue(ctx, entry); err != nil {
				return fmt.Errorf("failed to enqueue outbox entry: %w", err)
			}
		}
	}

	if err := uow.UserPrefsRepository().AdvanceLastSentOn(ctx, prefs.UserID, summaryDate); err != nil {
		return fmt.Errorf("failed to advance last sent date: %w", err)
	}

	uow.Publish(events.SummaryGeneratedEvent{
		UserID:        prefs.UserID,
		RunID:         run.ID,
		SummaryDate:   summaryDate,
		ContentLength: len(content),
		Channels:      prefs.DeliveryChannels,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary run: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":      prefs.UserID,
		"runID":       run.ID,
		"summaryDate": summaryDate.Format("2006-01-02"),
		"channels":    len(prefs.DeliveryChannels),
		"deliver":     deliver,
	}).Info("Summary generated and enqueued")
	return nil
}

// failRun records a generation failure. The last-sent date is deliberately
// not advanced, so the user is re-selected on later ticks the same local
// day and the failed run does not block the fresh claim.
func (s *summaryService) failRun(ctx context.Context, run *models.SummaryRun, summaryDate time.Time, genErr error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).WithField("runID", run.ID).Error("Failed to begin failure transaction")
		return
	}
	defer uow.Rollback()

	if err := uow.SummaryRunRepository().MarkFailed(ctx, run.ID, genErr.Error()); err != nil {
		log.WithError(err).WithField("runID", run.ID).Error("Failed to mark run failed")
		return
	}

	uow.Publish(events.SummaryFailedEvent{
		UserID:      run.UserID,
		RunID:       run.ID,
		SummaryDate: summaryDate,
		Reason:      genErr.Error(),
	})

	if err := uow.Commit(); err != nil {
		log.WithError(err).WithField("runID", run.ID).Error("Failed to commit failure transaction")
	}
}

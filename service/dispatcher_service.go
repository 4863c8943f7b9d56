package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digido/events"
	"digido/models"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// DeliveryReport summarizes one outbox drain
type DeliveryReport struct {
	Delivered int
	Failed    int
}

type dispatcherService struct {
	outboxRepo     OutboxRepository
	senders        map[models.Channel]ChannelSender
	eventBus       *events.Bus
	maxAttempts    int
	attemptTimeout time.Duration

	// newBackOff is swappable so tests do not sleep through real delays
	newBackOff func() backoff.BackOff
}

// NewDispatcherService creates a new dispatcher service. The dispatcher is
// the only writer of outbox status transitions.
func NewDispatcherService(outboxRepo OutboxRepository, senders map[models.Channel]ChannelSender, eventBus *events.Bus, maxAttempts int, attemptTimeout time.Duration) DispatcherService {
	return &dispatcherService{
		outboxRepo:     outboxRepo,
		senders:        senders,
		eventBus:       eventBus,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// DrainOutbox selects pending entries oldest first and delivers each over
// its channel. Delivery is at-least-once: the send happens before the sent
// update, so a crash in between produces a duplicate on the next drain
// rather than a lost notification.
func (s *dispatcherService) DrainOutbox(ctx context.Context, batchSize int) (*DeliveryReport, error) {
	entries, err := s.outboxRepo.ListPending(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox entries: %w", err)
	}

	report := &DeliveryReport{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break // invocation shutting down; remaining entries stay pending
		}
		if s.deliver(ctx, entry) {
			report.Delivered++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// deliver attempts one entry to a terminal outcome and returns true on sent
func (s *dispatcherService) deliver(ctx context.Context, entry *models.OutboxEntry) bool {
	sender, ok := s.senders[entry.Channel]
	if !ok {
		s.fail(ctx, entry, 0, fmt.Sprintf("no sender registered for channel %q", entry.Channel))
		return false
	}

	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()

		err := sender.Send(attemptCtx, entry)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanentDelivery) {
			return backoff.Permanent(err)
		}
		log.WithError(err).WithFields(log.Fields{
			"entryID": entry.ID,
			"channel": entry.Channel,
			"attempt": attempts,
		}).Warn("Delivery attempt failed, will retry")
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxAttempts-1)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		s.fail(ctx, entry, attempts, err.Error())
		return false
	}

	if err := s.outboxRepo.MarkSent(ctx, entry.ID, attempts); err != nil {
		if errors.Is(err, ErrNotPending) {
			// Another dispatcher reached a terminal state first. The dedup
			// key lets the downstream channel drop the extra send.
			log.WithField("entryID", entry.ID).Warn("Entry already terminal after send")
			return true
		}
		log.WithError(err).WithField("entryID", entry.ID).Error("Failed to mark entry sent")
		return false
	}

	log.WithFields(log.Fields{
		"entryID":  entry.ID,
		"userID":   entry.UserID,
		"channel":  entry.Channel,
		"attempts": attempts,
	}).Info("Notification delivered")
	return true
}

// fail records a terminal failure and raises the operator alert
func (s *dispatcherService) fail(ctx context.Context, entry *models.OutboxEntry, attempts int, reason string) {
	if err := s.outboxRepo.MarkFailed(ctx, entry.ID, attempts, reason); err != nil {
		if errors.Is(err, ErrNotPending) {
			log.WithField("entryID", entry.ID).Warn("Entry already terminal, skipping failure update")
			return
		}
		log.WithError(err).WithField("entryID", entry.ID).Error("Failed to mark entry failed")
		return
	}

	s.eventBus.Emit(ctx, events.DeliveryExhaustedEvent{
		EntryID:   entry.ID,
		UserID:    entry.UserID,
		Channel:   entry.Channel,
		Attempts:  attempts,
		LastError: reason,
	})
}

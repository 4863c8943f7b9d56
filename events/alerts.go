package events

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// RegisterAlertHandlers wires the operator-visible alert log onto the bus.
// Exhausted deliveries and stale runs are error-level: both mean a user may
// not have received a summary and someone needs to look.
func RegisterAlertHandlers(bus *Bus) {
	bus.Subscribe(EventTypeDeliveryExhausted, func(ctx context.Context, event Event) {
		e := event.(DeliveryExhaustedEvent)
		log.WithFields(log.Fields{
			"entryID":   e.EntryID,
			"userID":    e.UserID,
			"channel":   e.Channel,
			"attempts":  e.Attempts,
			"lastError": e.LastError,
		}).Error("ALERT: delivery attempts exhausted, entry failed terminally")
	})

	bus.Subscribe(EventTypeRunStale, func(ctx context.Context, event Event) {
		e := event.(RunStaleEvent)
		log.WithFields(log.Fields{
			"runID":       e.RunID,
			"userID":      e.UserID,
			"summaryDate": e.SummaryDate.Format("2006-01-02"),
			"startedAt":   e.StartedAt,
		}).Error("ALERT: run stuck in a live state past the staleness threshold")
	})

	bus.Subscribe(EventTypeSummaryFailed, func(ctx context.Context, event Event) {
		e := event.(SummaryFailedEvent)
		log.WithFields(log.Fields{
			"runID":       e.RunID,
			"userID":      e.UserID,
			"summaryDate": e.SummaryDate.Format("2006-01-02"),
			"reason":      e.Reason,
		}).Warn("Summary generation failed, user remains eligible this local day")
	})
}

package service

import (
	"fmt"
	"time"

	"digido/models"
)

// DueUser pairs a due user with the logical date the summary belongs to.
// The logical date is the calendar date in the user's timezone and is the
// idempotency partition key for the run claim.
type DueUser struct {
	Prefs     *models.UserPrefs
	LocalDate time.Time
}

// SkippedUser records a user excluded from this tick because of a
// configuration problem. Skips are reported, never fatal to the batch.
type SkippedUser struct {
	UserID string
	Reason string
}

// DueResult is the outcome of due-user selection for one tick
type DueResult struct {
	Due     []DueUser
	Skipped []SkippedUser
}

// SelectDueUsers computes which users are due for a summary at the given
// UTC instant. The function is pure over the preference snapshot: no side
// effects, deterministic for identical inputs, so it is safe to evaluate on
// every tick regardless of cadence.
//
// A user is due when all of the following hold in their own timezone:
//   - summaries are enabled
//   - the local time of day has reached summary_time
//   - the grace window (when configured) has not elapsed; with no grace
//     window the user stays due until local midnight
//   - the last sent date is strictly before the current local date
//
// A malformed timezone or summary time, an empty channel list, or a missing
// address for an enabled channel excludes only that user.
func SelectDueUsers(now time.Time, prefs []*models.UserPrefs, grace time.Duration) DueResult {
	var result DueResult

	for _, p := range prefs {
		if !p.SummaryEnabled {
			continue
		}

		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedUser{
				UserID: p.UserID,
				Reason: fmt.Sprintf("invalid timezone %q", p.Timezone),
			})
			continue
		}

		summaryMinutes, err := p.SummaryTimeOfDay()
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedUser{
				UserID: p.UserID,
				Reason: fmt.Sprintf("invalid summary time %q", p.SummaryTime),
			})
			continue
		}

		if reason := validateChannels(p); reason != "" {
			result.Skipped = append(result.Skipped, SkippedUser{UserID: p.UserID, Reason: reason})
			continue
		}

		localNow := now.In(loc)
		localMinutes := localNow.Hour()*60 + localNow.Minute()

		if localMinutes < summaryMinutes {
			continue // delivery time not reached yet
		}
		elapsed := time.Duration(localMinutes-summaryMinutes) * time.Minute
		if grace > 0 && elapsed >= grace {
			continue // past the grace window, wait for tomorrow
		}
		if p.SummaryLastSentOn != nil && localDateString(*p.SummaryLastSentOn) >= localDateString(localNow) {
			continue // already sent today
		}

		result.Due = append(result.Due, DueUser{
			Prefs:     p,
			LocalDate: time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc),
		})
	}

	return result
}

// validateChannels checks that an enabled user can actually be delivered to.
// Returns an empty string when the configuration is sound.
func validateChannels(p *models.UserPrefs) string {
	if len(p.DeliveryChannels) == 0 {
		return "no delivery channels configured"
	}
	for _, ch := range p.DeliveryChannels {
		if p.AddressFor(ch) == "" {
			return fmt.Sprintf("missing address for channel %q", ch)
		}
	}
	return ""
}

// localDateString renders the calendar date of t in its own location.
// Dates are compared as ISO strings to avoid comparing instants across
// timezones.
func localDateString(t time.Time) string {
	return t.Format("2006-01-02")
}

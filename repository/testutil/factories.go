package testutil

import (
	"time"

	"digido/models"

	"github.com/google/uuid"
)

// CreateTestPrefs creates enabled preferences with default values
func CreateTestPrefs(userID string) *models.UserPrefs {
	now := time.Now()
	return &models.UserPrefs{
		UserID:           userID,
		Timezone:         "UTC",
		SummaryTime:      "08:00",
		SummaryEnabled:   true,
		DeliveryChannels: []models.Channel{models.ChannelPush},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// CreateTestPrefsWithChannels creates preferences with specific channels and
// plausible addresses for each
func CreateTestPrefsWithChannels(userID string, channels ...models.Channel) *models.UserPrefs {
	prefs := CreateTestPrefs(userID)
	prefs.DeliveryChannels = channels
	for _, ch := range channels {
		switch ch {
		case models.ChannelSMS:
			prefs.PhoneNumber = "+15551230000"
		case models.ChannelDiscord:
			prefs.DiscordUserID = "110000000000000000"
		}
	}
	return prefs
}

// CreateTestOutboxEntry creates a pending outbox entry for a run
func CreateTestOutboxEntry(runID int64, userID string, channel models.Channel) *models.OutboxEntry {
	return &models.OutboxEntry{
		RunID:    runID,
		UserID:   userID,
		Channel:  channel,
		DedupKey: uuid.New(),
		Payload: models.SummaryPayload{
			SummaryDate: "2024-06-15",
			Content:     "test summary content",
			Address:     "test-address",
		},
	}
}

// CreateTestDailySummary creates an archived summary
func CreateTestDailySummary(userID string, summaryDate time.Time) *models.DailySummary {
	return &models.DailySummary{
		UserID:      userID,
		SummaryDate: summaryDate,
		Content:     "test summary content",
	}
}

package models

import (
	"time"
)

// Channel identifies a delivery channel for summary notifications
type Channel string

const (
	ChannelSMS     Channel = "sms"
	ChannelDiscord Channel = "discord"
	ChannelPush    Channel = "push"
)

// DefaultSummaryTime is used when a user has no summary time configured
const DefaultSummaryTime = "08:00"

// UserPrefs represents a user's summary delivery preferences.
// Preferences are owned by the external preferences API; the worker treats
// them as read-only except for SummaryLastSentOn, which it advances when a
// summary has been generated and enqueued for delivery.
type UserPrefs struct {
	UserID            string     `db:"user_id"`
	Timezone          string     `db:"timezone"`
	SummaryTime       string     `db:"summary_time"` // local time of day, "HH:MM"
	SummaryEnabled    bool       `db:"summary_enabled"`
	DeliveryChannels  []Channel  `db:"delivery_channels"`
	PhoneNumber       string     `db:"phone_number"`
	DiscordUserID     string     `db:"discord_user_id"`
	SummaryLastSentOn *time.Time `db:"summary_last_sent_on"` // date in the user's timezone
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// AddressFor returns the delivery address for a channel. The push channel
// is addressed by user ID (it becomes the routing key downstream).
func (p *UserPrefs) AddressFor(channel Channel) string {
	switch channel {
	case ChannelSMS:
		return p.PhoneNumber
	case ChannelDiscord:
		return p.DiscordUserID
	case ChannelPush:
		return p.UserID
	default:
		return ""
	}
}

// SummaryTimeOfDay parses SummaryTime into minutes since local midnight.
// An empty value falls back to DefaultSummaryTime.
func (p *UserPrefs) SummaryTimeOfDay() (int, error) {
	value := p.SummaryTime
	if value == "" {
		value = DefaultSummaryTime
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

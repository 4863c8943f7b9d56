package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"digido/models"
	"digido/service"
	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// DiscordSender delivers summaries as direct messages through a bot account
type DiscordSender struct {
	session *discordgo.Session
	enabled bool
}

// NewDiscordSender creates the DM sender. The session is REST-only; the
// worker never opens a gateway connection.
func NewDiscordSender(token string) (*DiscordSender, error) {
	if token == "" {
		log.Warn("Discord token not configured, DM delivery disabled")
		return &DiscordSender{enabled: false}, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordSender{session: session, enabled: true}, nil
}

func (s *DiscordSender) Channel() models.Channel {
	return models.ChannelDiscord
}

// Send opens (or reuses) the DM channel for the entry's Discord user and
// posts the summary content
func (s *DiscordSender) Send(ctx context.Context, entry *models.OutboxEntry) error {
	if !s.enabled {
		return fmt.Errorf("discord channel not configured: %w", service.ErrPermanentDelivery)
	}

	dm, err := s.session.UserChannelCreate(entry.Payload.Address, discordgo.WithContext(ctx))
	if err != nil {
		return classifyDiscordError("failed to open dm channel", err)
	}

	_, err = s.session.ChannelMessageSend(dm.ID, entry.Payload.Content, discordgo.WithContext(ctx))
	if err != nil {
		return classifyDiscordError("failed to send dm", err)
	}

	log.WithFields(log.Fields{
		"userID":   entry.UserID,
		"dedupKey": entry.DedupKey,
	}).Debug("Discord DM sent")
	return nil
}

// classifyDiscordError maps 4xx responses (except rate limits) to permanent
// failures. Unknown users and closed DMs do not heal with retries.
func classifyDiscordError(msg string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%s (status %d): %v: %w", msg, code, err, service.ErrPermanentDelivery)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

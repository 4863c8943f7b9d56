package notify

import (
	"context"
	"errors"
	"fmt"

	"digido/models"
	"digido/service"
	log "github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender delivers summaries as SMS through the Twilio REST API
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
	enabled    bool
}

// NewTwilioSender creates the SMS sender. With missing credentials the
// sender stays registered but rejects every entry permanently, so entries
// addressed to it fail fast instead of burning retry attempts.
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	if accountSID == "" || authToken == "" || fromNumber == "" {
		log.Warn("Twilio credentials not configured, SMS delivery disabled")
		return &TwilioSender{enabled: false}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{
		client:     client,
		fromNumber: fromNumber,
		enabled:    true,
	}
}

func (s *TwilioSender) Channel() models.Channel {
	return models.ChannelSMS
}

// Send delivers one entry as an SMS to the entry's phone number
func (s *TwilioSender) Send(ctx context.Context, entry *models.OutboxEntry) error {
	if !s.enabled {
		return fmt.Errorf("sms channel not configured: %w", service.ErrPermanentDelivery)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(entry.Payload.Address)
	params.SetFrom(s.fromNumber)
	params.SetBody(entry.Payload.Content)

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status >= 400 && restErr.Status < 500 {
			// Invalid number, unverified recipient and similar conditions
			// will not heal with retries
			return fmt.Errorf("twilio rejected message (status %d): %v: %w", restErr.Status, err, service.ErrPermanentDelivery)
		}
		return fmt.Errorf("failed to send sms: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":   entry.UserID,
		"dedupKey": entry.DedupKey,
	}).Debug("SMS sent")
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"digido/models"
	"digido/service"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// PushSender publishes summaries to an AMQP exchange consumed by the mobile
// push gateway. Messages are routed by user ID and carry the dedup key as
// the message ID so the gateway can drop redeliveries.
type PushSender struct {
	url      string
	exchange string
	enabled  bool

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPushSender creates the push sender. The broker connection is opened
// lazily on first send and reopened after broker restarts.
func NewPushSender(url, exchange string) *PushSender {
	if url == "" {
		log.Warn("AMQP URL not configured, push delivery disabled")
		return &PushSender{enabled: false}
	}
	return &PushSender{url: url, exchange: exchange, enabled: true}
}

func (s *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

// Send publishes one entry to the push exchange
func (s *PushSender) Send(ctx context.Context, entry *models.OutboxEntry) error {
	if !s.enabled {
		return fmt.Errorf("push channel not configured: %w", service.ErrPermanentDelivery)
	}

	ch, err := s.ensureChannel()
	if err != nil {
		return fmt.Errorf("failed to reach push broker: %w", err)
	}

	body, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", service.ErrPermanentDelivery)
	}

	err = ch.PublishWithContext(ctx, s.exchange, entry.Payload.Address, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.DedupKey.String(),
		Body:         body,
	})
	if err != nil {
		// A dead channel stays dead; drop it so the next attempt reconnects
		s.reset()
		return fmt.Errorf("failed to publish push message: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":   entry.UserID,
		"dedupKey": entry.DedupKey,
	}).Debug("Push message published")
	return nil
}

// Close releases the broker connection
func (s *PushSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		s.channel = nil
		return err
	}
	return nil
}

func (s *PushSender) ensureChannel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil && !s.channel.IsClosed() {
		return s.channel, nil
	}

	if s.conn == nil || s.conn.IsClosed() {
		conn, err := amqp.Dial(s.url)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	s.channel = ch
	return ch, nil
}

func (s *PushSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = nil
}

package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// RabbitPublisher emits operational alerts to a topic exchange, one routing
// key per event.
type RabbitPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ domain.AlertPublisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher prepares a lazily connected publisher.
func NewRabbitPublisher(amqpURL, exchange string) (*RabbitPublisher, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	return &RabbitPublisher{url: amqpURL, exchange: exchange}, nil
}

type alertMessage struct {
	Event      string         `json:"event"`
	ContentID  string         `json:"contentId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Publish sends one alert. Failures are for the caller to log, never retry.
func (p *RabbitPublisher) Publish(ctx context.Context, alert domain.Alert) error {
	if alert.Event == "" {
		return nil
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	msg := alertMessage{
		Event:      alert.Event,
		Metadata:   alert.Metadata,
		OccurredAt: alert.OccurredAt,
	}
	if alert.ContentID != nil {
		msg.ContentID = alert.ContentID.String()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	start := time.Now()
	err = ch.PublishWithContext(ctx, p.exchange, alert.Event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    alert.OccurredAt,
		Body:         body,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", p.exchange, start, err)
	if err != nil {
		p.reset()
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = nil
	p.ch = nil
}

// Close shuts the connection down.
func (p *RabbitPublisher) Close() {
	p.reset()
}

// NoopPublisher drops alerts when no broker is configured.
type NoopPublisher struct{}

var _ domain.AlertPublisher = NoopPublisher{}

// NewNoop creates the no-op publisher.
func NewNoop() NoopPublisher {
	return NoopPublisher{}
}

// Publish implements domain.AlertPublisher.
func (NoopPublisher) Publish(context.Context, domain.Alert) error {
	return nil
}

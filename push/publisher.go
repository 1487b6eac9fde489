// Package push publishes offline push notifications to the delivery broker.
// The actual mobile-push gateway consumes from the exchange; from this
// core's perspective every send is fire and forget.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const (
	routingKeySingle = "push.single"
	routingKeyBatch  = "push.batch"
	maxDialDelay     = 60 * time.Second
)

// Envelope is the wire format consumed by the push gateway. A batch send is
// one envelope carrying every address, not one publish per address.
type Envelope struct {
	ID        string            `json:"id"`
	Addresses []string          `json:"addresses"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
}

type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

type ConnectionOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

// New connects to the broker with exponential backoff and declares the
// durable topic exchange. It respects context cancellation during dial so
// startup can be aborted cleanly.
func New(ctx context.Context, cfg ConnectionOptions, log *slog.Logger) (*Publisher, error) {
	conn, err := dialWithRetry(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		cfg.Exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, exchange: cfg.Exchange, log: log}, nil
}

func dialWithRetry(ctx context.Context, cfg ConnectionOptions, log *slog.Logger) (*amqp091.Connection, error) {
	var lastErr error
	for i := 1; i <= cfg.RetryAttempts; i++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				log.Info("Broker connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		sleep := cfg.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		log.Warn("Broker dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to broker after %d attempts: %w",
		cfg.RetryAttempts, lastErr)
}

func (p *Publisher) SendOne(ctx context.Context, address, title, body string, data map[string]string) error {
	return p.publish(ctx, routingKeySingle, Envelope{
		ID:        uuid.NewString(),
		Addresses: []string{address},
		Title:     title,
		Body:      body,
		Data:      data,
		SentAt:    time.Now().UTC(),
	})
}

// SendBatch publishes one envelope covering all addresses.
func (p *Publisher) SendBatch(ctx context.Context, addresses []string, title, body string, data map[string]string) error {
	return p.publish(ctx, routingKeyBatch, Envelope{
		ID:        uuid.NewString(),
		Addresses: addresses,
		Title:     title,
		Body:      body,
		Data:      data,
		SentAt:    time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, key string, envelope Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    envelope.ID,
			Timestamp:    envelope.SentAt,
			Body:         body,
		},
	)
	if err == nil {
		p.log.Debug("Push published", slog.String("key", key), slog.Int("addresses", len(envelope.Addresses)))
	}
	return err
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}

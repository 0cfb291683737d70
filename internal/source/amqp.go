// Package source feeds payment events from external producers into the
// ingest pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gyaneshwarpardhi/paypulse/internal/config"
	"github.com/gyaneshwarpardhi/paypulse/internal/ingest"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
	"github.com/gyaneshwarpardhi/paypulse/internal/store"
)

// Ingester is the part of the ingest pipeline a source needs.
type Ingester interface {
	ProcessSync(ctx context.Context, ev payment.Event) (*ingest.Result, error)
}

// AMQPConsumer reads payment events from a durable queue bound to a topic
// exchange. Delivery is at least once: a message is acked only after it was
// stored, found to be a duplicate, or found to be unusable.
type AMQPConsumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	conf   config.SourceConf
	ingest Ingester
	logger *slog.Logger
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %q", parsed.Scheme)
	}
	return clean, nil
}

// NewAMQPConsumer dials the broker and opens a channel.
func NewAMQPConsumer(conf config.SourceConf, ing Ingester, logger *slog.Logger) (*AMQPConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanURL, err := sanitizeURL(conf.AMQPURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPConsumer{conn: conn, ch: ch, conf: conf, ingest: ing, logger: logger}, nil
}

// Run declares the topology and consumes until ctx is cancelled or the
// broker closes the channel.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	if err := c.ch.ExchangeDeclare(c.conf.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.conf.Exchange, err)
	}
	q, err := c.ch.QueueDeclare(c.conf.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.conf.Queue, err)
	}
	for _, key := range c.conf.RoutingKeys {
		if err := c.ch.QueueBind(q.Name, key, c.conf.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, c.conf.Exchange, err)
		}
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	c.logger.Info("amqp source consuming", "exchange", c.conf.Exchange, "queue", q.Name, "routing_keys", c.conf.RoutingKeys)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			if c.handle(ctx, d.RoutingKey, d.Body) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, true)
			}
		}
	}
}

// handle ingests one message body and reports whether it should be acked.
func (c *AMQPConsumer) handle(ctx context.Context, routingKey string, body []byte) bool {
	ev, err := payment.Decode(body)
	if err != nil {
		c.logger.Warn("dropping malformed message", "routing_key", routingKey, "err", err)
		return true
	}
	_, err = c.ingest.ProcessSync(ctx, ev)
	switch {
	case err == nil:
		return true
	case errors.Is(err, payment.ErrInvalidEvent):
		c.logger.Warn("dropping invalid event", "routing_key", routingKey, "payment_id", ev.Payment.ID, "err", err)
		return true
	case errors.Is(err, store.ErrDuplicate):
		return true
	default:
		c.logger.Warn("ingest failed, re-queuing", "routing_key", routingKey, "payment_id", ev.Payment.ID, "err", err)
		return false
	}
}

// Close closes the channel and the connection.
func (c *AMQPConsumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

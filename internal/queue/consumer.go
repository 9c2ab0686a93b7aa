package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Handler processes one reel request. A returned error rejects the message
// without requeueing it.
type Handler func(ctx context.Context, req ReelProcessRequested) error

// Consumer reads ReelProcessRequested messages from a durable queue and
// hands them to a Handler, reconnecting with backoff when the broker goes
// away.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handle   Handler
	log      logrus.FieldLogger
}

// NewConsumer returns a Consumer for queue on the broker at url.
func NewConsumer(url, queue string, prefetch int, handle Handler, log logrus.FieldLogger) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		url:      url,
		queue:    queue,
		prefetch: prefetch,
		handle:   handle,
		log:      log.WithFields(logrus.Fields{"component": "reel_consumer", "queue": queue}),
	}
}

// Run consumes until ctx is cancelled. Broker failures never end the loop;
// they are logged and the connection is re-established.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("dial broker failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		c.log.Info("connected to broker")

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.WithError(err).Warn("set qos failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.dispatch(ctx, d.Body); err != nil {
				c.log.WithError(err).WithField("message_id", d.MessageId).Error("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, body []byte) error {
	req, err := DecodeReelProcessRequested(body)
	if err != nil {
		return err
	}
	return c.handle(ctx, req)
}

// DecodeReelProcessRequested parses a process message and rejects one
// without a reel id.
func DecodeReelProcessRequested(body []byte) (ReelProcessRequested, error) {
	var req ReelProcessRequested
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("unmarshal: %w", err)
	}
	if req.ReelID == 0 {
		return req, errors.New("missing reel_id")
	}
	return req, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

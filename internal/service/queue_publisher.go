// Package service provides the broker publisher used to trigger pipeline
// runs and to hand place-found notifications to the delivery service.
// Each publish dials its own connection, so a broker outage only fails the
// message at hand.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/queue"
)

// Publisher writes persistent JSON messages to durable queues on the
// default exchange.
type Publisher struct {
	url          string
	processQueue string
	notifyQueue  string
	log          logrus.FieldLogger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url, processQueue, notifyQueue string, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		url:          url,
		processQueue: processQueue,
		notifyQueue:  notifyQueue,
		log:          log.WithField("component", "publisher"),
	}
}

// PublishReelProcess queues a pipeline run for a reel.
func (p *Publisher) PublishReelProcess(ctx context.Context, ev queue.ReelProcessRequested) error {
	return p.publish(ctx, p.processQueue, ev)
}

// PublishPlaceFound queues a place-found notification.
func (p *Publisher) PublishPlaceFound(ctx context.Context, ev queue.PlaceFoundEvent) error {
	return p.publish(ctx, p.notifyQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queueName string, event any) error {
	log := p.log.WithField("queue", queueName)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.WithError(err).Warn("dial broker failed")
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("channel open failed")
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("queue declare failed")
		return fmt.Errorf("queue declare: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, msg); err != nil {
		log.WithError(err).Warn("publish failed")
		return fmt.Errorf("publish: %w", err)
	}
	log.WithField("message_id", msg.MessageId).Debug("message published")
	return nil
}

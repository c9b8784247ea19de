// Package outbox relays order events written inside the placement commit to
// the broker. The insert rides in the same transaction as the order itself,
// so an event exists if and only if its order does; delivery is at-least-once
// with the order id as the message key for per-order ordering.
package outbox

import (
	"context"
	"time"

	"github.com/fedotovn/placeorder/internal/order/repository"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBatchSize = 100
	defaultTick      = time.Second
)

// EventSource is the slice of the order repository the publisher consumes.
type EventSource interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, eventID int64) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	source EventSource
	writer MessageWriter
	tick   time.Duration
	batch  int
}

func NewPublisher(source EventSource, writer MessageWriter) *Publisher {
	return &Publisher{
		source: source,
		writer: writer,
		tick:   defaultTick,
		batch:  defaultBatchSize,
	}
}

// NewKafkaWriter builds the writer the publisher normally runs with.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.publishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) publishPending(ctx context.Context) {
	events, err := p.source.UnpublishedEvents(ctx, p.batch)
	if err != nil {
		log.WithError(err).Error("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		msg := kafka.Message{
			Key:   []byte(event.AggregateID),
			Value: event.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.WithField("event_id", event.ID).WithError(err).Error("failed to publish outbox event")
			continue
		}
		if err := p.source.MarkEventPublished(ctx, event.ID); err != nil {
			log.WithField("event_id", event.ID).WithError(err).Error("failed to mark outbox event published")
			continue
		}
	}
}

package kafka

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// Relay is the outbox sink used when side effects run in cmd/dispatcher.
// Intents are keyed by their aggregate so one order's effects stay ordered.
type Relay struct {
	P   publisher
	Log *slog.Logger
}

func NewRelay(p *Producer, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{P: p, Log: log}
}

func (r *Relay) Dispatch(_ context.Context, b outbox.Batch) {
	for _, it := range b {
		m, err := encodeIntent(it)
		if err == nil {
			err = r.P.Publish(m.Key, m.Value, m.Headers...)
		}
		if err != nil {
			r.Log.Error("outbox relay dropped intent", "id", it.ID, "kind", it.Kind, "key", it.Key, "err", err)
		}
	}
}

// EventPublisher sends encoded domain events to the events topic.
type EventPublisher struct {
	P publisher
}

func NewEventPublisher(p *Producer) *EventPublisher { return &EventPublisher{P: p} }

func (e *EventPublisher) PublishEvent(_ context.Context, key string, ev outbox.Event) error {
	return e.P.Publish(orders.PartitionKey(key), ev.Body,
		kafka.Header{Key: HeaderEventType, Value: []byte(ev.Type)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte("1")},
	)
}

var (
	_ outbox.Sink         = (*Relay)(nil)
	_ outbox.EventHandler = (*EventPublisher)(nil)
)

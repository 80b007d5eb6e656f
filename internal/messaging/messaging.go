package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

const (
	TopicDeliveriesPlanned    = "deliveries.planned"
	TopicInventorySlotEmptied = "inventory.slot_emptied"

	// MetadataKey carries the partition key of a message.
	MetadataKey = "key"
	// MetadataEventType carries entity.Event.EventType().
	MetadataEventType = "event_type"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// WatermillPublisher adapts a watermill publisher. Events are JSON encoded,
// one message per event.
type WatermillPublisher struct {
	pub message.Publisher
}

func NewWatermillPublisher(pub message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{pub: pub}
}

func (p *WatermillPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataKey, key)
	if e, ok := event.(entity.Event); ok {
		msg.Metadata.Set(MetadataEventType, e.EventType())
	}

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.pub.Close()
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, string, string, any) error { return nil }

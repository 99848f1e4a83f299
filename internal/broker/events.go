package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tiger-life/internal/models"
	"tiger-life/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer is what the publisher needs from a transport
type EventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// ErrMalformedEvent marks a payload that can never be handled. The consumer
// acknowledges it instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

// EventPublisher relays queued outbox messages to Kafka
type EventPublisher struct {
	producer EventProducer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventProducer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOutbox writes a queued message under its partition key. The payload
// is already encoded and goes out unchanged.
func (ep *EventPublisher) PublishOutbox(ctx context.Context, msg models.OutboxMessage) error {
	return ep.producer.PublishEvent(ctx, msg.PartitionKey, json.RawMessage(msg.Payload))
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onMessageSent    func(context.Context, *models.MessageSentEvent) error
	onOrderCompleted func(context.Context, *models.OrderEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnMessageSent registers a handler for MessageSent events
func (eh *EventHandler) OnMessageSent(handler func(context.Context, *models.MessageSentEvent) error) {
	eh.onMessageSent = handler
}

// OnOrderCompleted registers a handler for OrderCompleted events
func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.OrderEvent) error) {
	eh.onOrderCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return eh.Dispatch(ctx, msg.Value)
}

// Dispatch decodes a raw event and calls the matching handler.
// Unregistered types are acknowledged and dropped.
func (eh *EventHandler) Dispatch(ctx context.Context, raw []byte) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(raw, &baseEvent); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeMessageSent:
		if eh.onMessageSent != nil {
			var event models.MessageSentEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return fmt.Errorf("%w: MessageSent: %v", ErrMalformedEvent, err)
			}
			return eh.onMessageSent(ctx, &event)
		}

	case models.EventTypeOrderCompleted:
		if eh.onOrderCompleted != nil {
			var event models.OrderEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return fmt.Errorf("%w: OrderCompleted: %v", ErrMalformedEvent, err)
			}
			return eh.onOrderCompleted(ctx, &event)
		}
	}

	return nil
}

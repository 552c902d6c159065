package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"merch-service/internal/models"
	"merch-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing order lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentRequested publishes OrderPaymentRequested event
func (ep *EventPublisher) PublishPaymentRequested(ctx context.Context, event *models.OrderPaymentRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentOutcome publishes a payment outcome event
func (ep *EventPublisher) PublishPaymentOutcome(ctx context.Context, event *models.PaymentOutcomeEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderReady publishes OrderReadyForPickup event
func (ep *EventPublisher) PublishOrderReady(ctx context.Context, event *models.OrderReadyEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPickedUp publishes OrderPickedUp event
func (ep *EventPublisher) PublishOrderPickedUp(ctx context.Context, event *models.OrderPickedUpEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes consumed events to registered callbacks
type EventHandler struct {
	onPaymentRequested func(context.Context, *models.OrderPaymentRequestedEvent) error
	onPaymentOutcome   func(context.Context, string, *models.PaymentOutcomeEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentRequested registers a handler for OrderPaymentRequested events
func (eh *EventHandler) OnPaymentRequested(handler func(context.Context, *models.OrderPaymentRequestedEvent) error) {
	eh.onPaymentRequested = handler
}

// OnPaymentOutcome registers a handler for the payment outcome events; the
// handler receives the event type alongside the payload
func (eh *EventHandler) OnPaymentOutcome(handler func(context.Context, string, *models.PaymentOutcomeEvent) error) {
	eh.onPaymentOutcome = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPaymentRequested:
		if eh.onPaymentRequested != nil {
			var event models.OrderPaymentRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentRequested event: %w", err)
			}
			return eh.onPaymentRequested(ctx, &event)
		}

	case models.EventTypePaymentSucceeded, models.EventTypePaymentFailed, models.EventTypePaymentCancelled:
		if eh.onPaymentOutcome != nil {
			var event models.PaymentOutcomeEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentOutcome event: %w", err)
			}
			return eh.onPaymentOutcome(ctx, baseEvent.EventType, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}

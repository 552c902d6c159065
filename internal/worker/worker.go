package worker

import (
	"context"
	"errors"

	"merch-service/internal/broker"
	"merch-service/internal/models"
	"merch-service/internal/payment"
	"merch-service/internal/service"
	"merch-service/internal/util"

	"go.uber.org/zap"
)

// ProcessedEventStore tracks consumed event ids for idempotency
type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// PaymentWorker drives payment confirmation: it consumes
// OrderPaymentRequested events, confirms the intent against the gateway and
// publishes the resulting outcome
type PaymentWorker struct {
	consumer  *broker.Consumer
	gateway   service.PaymentGateway
	publisher *broker.EventPublisher
	handler   *broker.EventHandler
	logger    *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, gateway service.PaymentGateway, publisher *broker.EventPublisher) *PaymentWorker {
	w := &PaymentWorker{
		consumer:  consumer,
		gateway:   gateway,
		publisher: publisher,
		handler:   broker.NewEventHandler(),
		logger:    util.GetLogger(),
	}
	w.handler.OnPaymentRequested(w.confirmIntent)
	return w
}

// Start starts the payment worker
func (w *PaymentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payment worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the payment worker
func (w *PaymentWorker) Stop() error {
	w.logger.Info("Stopping payment worker")
	return w.consumer.Close()
}

func (w *PaymentWorker) confirmIntent(ctx context.Context, event *models.OrderPaymentRequestedEvent) error {
	w.logger.Info("Confirming payment intent",
		zap.String("order_id", event.OrderID),
		zap.Bool("simulated", event.Simulated))

	intent := &payment.Intent{
		ID:        event.IntentID,
		OrderID:   event.OrderID,
		Amount:    event.TotalAmount,
		Currency:  event.Currency,
		Simulated: event.Simulated,
	}

	outcome, err := w.gateway.Confirm(ctx, intent)
	if err != nil {
		return err
	}

	var eventType string
	switch outcome.Status {
	case models.PaymentOutcomeSucceeded:
		eventType = models.EventTypePaymentSucceeded
	case models.PaymentOutcomeCancelled:
		eventType = models.EventTypePaymentCancelled
	default:
		eventType = models.EventTypePaymentFailed
	}

	return w.publisher.PublishPaymentOutcome(ctx, &models.PaymentOutcomeEvent{
		BaseEvent: models.BaseEvent{
			EventID:   event.EventID + ":outcome",
			EventType: eventType,
			Timestamp: event.Timestamp,
		},
		OrderID: event.OrderID,
		TxID:    outcome.TxID,
		Reason:  outcome.Reason,
	})
}

// OutcomeWorker applies payment outcomes to orders. Duplicate deliveries
// are filtered twice: by the processed-event table and by the engine's
// status guard, so replays can never double-apply.
type OutcomeWorker struct {
	consumer  *broker.Consumer
	engine    *service.OrderEngine
	processed ProcessedEventStore
	handler   *broker.EventHandler
	logger    *zap.Logger
}

// NewOutcomeWorker creates a new outcome worker
func NewOutcomeWorker(consumer *broker.Consumer, engine *service.OrderEngine, processed ProcessedEventStore) *OutcomeWorker {
	w := &OutcomeWorker{
		consumer:  consumer,
		engine:    engine,
		processed: processed,
		handler:   broker.NewEventHandler(),
		logger:    util.GetLogger(),
	}
	w.handler.OnPaymentOutcome(w.applyOutcome)
	return w
}

// Start starts the outcome worker
func (w *OutcomeWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting outcome worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the outcome worker
func (w *OutcomeWorker) Stop() error {
	w.logger.Info("Stopping outcome worker")
	return w.consumer.Close()
}

func (w *OutcomeWorker) applyOutcome(ctx context.Context, eventType string, event *models.PaymentOutcomeEvent) error {
	done, err := w.processed.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if done {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	outcome := models.PaymentOutcome{TxID: event.TxID, Reason: event.Reason}
	switch eventType {
	case models.EventTypePaymentSucceeded:
		outcome.Status = models.PaymentOutcomeSucceeded
	case models.EventTypePaymentCancelled:
		outcome.Status = models.PaymentOutcomeCancelled
	default:
		outcome.Status = models.PaymentOutcomeFailed
	}

	_, err = w.engine.ApplyPaymentOutcome(ctx, event.OrderID, outcome)
	if err != nil && !errors.Is(err, models.ErrAlreadyFinalized) {
		return err
	}
	if errors.Is(err, models.ErrAlreadyFinalized) {
		w.logger.Info("Outcome already applied",
			zap.String("order_id", event.OrderID),
			zap.String("event_id", event.EventID))
	}

	return w.processed.MarkEventProcessed(ctx, event.EventID, eventType)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"merch-service/internal/models"
	"merch-service/internal/payment"
	"merch-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Collaborator interfaces. The engine owns no client state; everything it
// touches is injected so request handlers can run it concurrently against
// any backing implementation.

// OrderStore persists orders and performs the guarded status transitions
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	FinalizeOrderPaid(ctx context.Context, orderID, txID, credential string) error
	CancelOrder(ctx context.Context, orderID string) error
	RedeemCredential(ctx context.Context, token string) (*models.Order, error)
}

// InventoryStore provides atomic per-(product,size) reserve/release/commit
type InventoryStore interface {
	Reserve(ctx context.Context, orderID, productID, size string, quantity int) (*models.Reservation, error)
	Release(ctx context.Context, res *models.Reservation) error
	Commit(ctx context.Context, res *models.Reservation) error
	HeldReservations(ctx context.Context, orderID string) ([]models.Reservation, error)
}

// CatalogReader is the engine's read-only view of the catalog
type CatalogReader interface {
	GetSellableProduct(ctx context.Context, productID, eventID string) (*models.Product, error)
}

// PaymentGateway obtains authorization to charge
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency, orderID string) (*payment.Intent, error)
	Confirm(ctx context.Context, intent *payment.Intent) (models.PaymentOutcome, error)
}

// LifecyclePublisher emits order lifecycle events
type LifecyclePublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishPaymentRequested(ctx context.Context, event *models.OrderPaymentRequestedEvent) error
	PublishOrderReady(ctx context.Context, event *models.OrderReadyEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderPickedUp(ctx context.Context, event *models.OrderPickedUpEvent) error
}

// OrderEngine orchestrates checkout: validation, all-or-nothing inventory
// reservation, payment intent creation, and the order status machine
type OrderEngine struct {
	orders    OrderStore
	inventory InventoryStore
	catalog   CatalogReader
	gateway   PaymentGateway
	publisher LifecyclePublisher
	verifier  *PickupVerifier
	currency  string
	logger    *zap.Logger
}

// NewOrderEngine creates a new order engine
func NewOrderEngine(
	orders OrderStore,
	inventory InventoryStore,
	catalog CatalogReader,
	gateway PaymentGateway,
	publisher LifecyclePublisher,
	currency string,
) *OrderEngine {
	return &OrderEngine{
		orders:    orders,
		inventory: inventory,
		catalog:   catalog,
		gateway:   gateway,
		publisher: publisher,
		verifier:  NewPickupVerifier(orders, publisher),
		currency:  currency,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout request
type CreateOrderRequest struct {
	UserID  string             `json:"user_id" binding:"required"`
	EventID string             `json:"event_id" binding:"required"`
	Items   []OrderItemRequest `json:"items" binding:"required,min=1"`
}

// OrderItemRequest represents one requested line item
type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// OrderCreated is returned to the caller: the persisted order plus the
// client-side payment handle. The engine does not block on the user-facing
// payment interaction; the outcome arrives later via ApplyPaymentOutcome.
type OrderCreated struct {
	Order  *models.Order   `json:"order"`
	Intent *payment.Intent `json:"payment_intent"`
}

// OrderNumber derives the user-visible short order number from an order id
func OrderNumber(orderID string) string {
	trimmed := strings.ReplaceAll(orderID, "-", "")
	if len(trimmed) > 8 {
		trimmed = trimmed[:8]
	}
	return strings.ToUpper(trimmed)
}

// CreateOrder runs checkout up to the point where payment confirmation
// leaves the engine's control. Reservation is all-or-nothing: if any line
// cannot be reserved, everything taken for this order is released before
// the error returns.
func (oe *OrderEngine) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderCreated, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.CreateOrder")
	defer span.End()

	if len(req.Items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_order").Inc()
		return nil, fmt.Errorf("order has no items: %w", models.ErrInvalidInput)
	}

	orderID := uuid.New().String()

	items := make([]models.OrderItem, 0, len(req.Items))
	var total int64
	merchantID := ""
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			util.OrdersFailedTotal.WithLabelValues("invalid_quantity").Inc()
			return nil, fmt.Errorf("quantity for product %s must be positive: %w", item.ProductID, models.ErrInvalidInput)
		}

		product, err := oe.catalog.GetSellableProduct(ctx, item.ProductID, req.EventID)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("not_sellable").Inc()
			return nil, err
		}
		if !product.HasSize(item.Size) {
			util.OrdersFailedTotal.WithLabelValues("unknown_size").Inc()
			return nil, fmt.Errorf("size %q not declared for product %s: %w", item.Size, item.ProductID, models.ErrInvalidInput)
		}
		if merchantID == "" {
			merchantID = product.MerchantID
		}

		items = append(items, models.OrderItem{
			ProductID:    product.ID,
			ProductTitle: product.Title,
			Size:         item.Size,
			Quantity:     item.Quantity,
			UnitPrice:    product.Price,
		})
		total += product.Price * int64(item.Quantity)
	}

	reservations, err := oe.reserveAll(ctx, orderID, items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	order := &models.Order{
		ID:          orderID,
		OrderNumber: OrderNumber(orderID),
		UserID:      req.UserID,
		EventID:     req.EventID,
		MerchantID:  merchantID,
		TotalAmount: total,
		Currency:    oe.currency,
		Status:      models.OrderStatusPendingPayment,
		Items:       items,
	}

	if err := oe.orders.CreateOrder(ctx, order); err != nil {
		oe.releaseAll(ctx, orderID, reservations)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	intent, err := oe.gateway.CreateIntent(ctx, total, order.Currency, orderID)
	if err != nil {
		// Intent creation only fails on invalid amount/currency; the stock
		// held for this order must not outlive the failure
		oe.releaseAll(ctx, orderID, reservations)
		if cancelErr := oe.orders.CancelOrder(ctx, orderID); cancelErr != nil {
			oe.logger.Error("Failed to cancel order after intent failure",
				zap.String("order_id", orderID),
				zap.Error(cancelErr))
		}
		util.OrdersFailedTotal.WithLabelValues("intent_rejected").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	oe.logger.Info("Order created",
		zap.String("order_id", orderID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", total),
		zap.Bool("simulated_payment", intent.Simulated))

	oe.publishCreated(ctx, order, intent)

	return &OrderCreated{Order: order, Intent: intent}, nil
}

// reserveAll reserves every line item or nothing: on the first failure all
// reservations already taken for this order are released
func (oe *OrderEngine) reserveAll(ctx context.Context, orderID string, items []models.OrderItem) ([]*models.Reservation, error) {
	reservations := make([]*models.Reservation, 0, len(items))
	for _, item := range items {
		res, err := oe.inventory.Reserve(ctx, orderID, item.ProductID, item.Size, item.Quantity)
		if err != nil {
			oe.releaseAll(ctx, orderID, reservations)
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}

// releaseAll rolls back reservations (compensation)
func (oe *OrderEngine) releaseAll(ctx context.Context, orderID string, reservations []*models.Reservation) {
	for _, res := range reservations {
		if err := oe.inventory.Release(ctx, res); err != nil {
			oe.logger.Error("Failed to release reservation",
				zap.String("order_id", orderID),
				zap.String("product_id", res.ProductID),
				zap.String("size", res.Size),
				zap.Error(err))
		}
	}
}

// ApplyPaymentOutcome reconciles a payment result with the order. Safe to
// call more than once: an order no longer in PENDING_PAYMENT signals
// ErrAlreadyFinalized instead of transitioning twice.
func (oe *OrderEngine) ApplyPaymentOutcome(ctx context.Context, orderID string, outcome models.PaymentOutcome) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.ApplyPaymentOutcome")
	defer span.End()

	util.PaymentOutcomesTotal.WithLabelValues(outcome.Status).Inc()

	switch outcome.Status {
	case models.PaymentOutcomeSucceeded:
		return oe.finalizePaid(ctx, orderID, outcome.TxID)
	case models.PaymentOutcomeCancelled, models.PaymentOutcomeFailed:
		return oe.cancel(ctx, orderID, outcome)
	default:
		return nil, fmt.Errorf("unknown payment outcome %q: %w", outcome.Status, models.ErrInvalidInput)
	}
}

func (oe *OrderEngine) finalizePaid(ctx context.Context, orderID, txID string) (*models.Order, error) {
	credential := uuid.New().String()

	if err := oe.orders.FinalizeOrderPaid(ctx, orderID, txID, credential); err != nil {
		return nil, err
	}

	// The status flip and credential are already durable; committing
	// reservations burns the reserved counts
	held, err := oe.inventory.HeldReservations(ctx, orderID)
	if err != nil {
		oe.logger.Error("Failed to list reservations for commit",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	for i := range held {
		if err := oe.inventory.Commit(ctx, &held[i]); err != nil {
			oe.logger.Error("Failed to commit reservation",
				zap.String("order_id", orderID),
				zap.String("product_id", held[i].ProductID),
				zap.Error(err))
		}
	}

	order, err := oe.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	util.OrdersPendingPickupTotal.Inc()
	oe.logger.Info("Order ready for pickup",
		zap.String("order_id", orderID),
		zap.String("tx_id", txID))

	if oe.publisher != nil {
		event := &models.OrderReadyEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderReady),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
		}
		if err := oe.publisher.PublishOrderReady(ctx, event); err != nil {
			oe.logger.Error("Failed to publish OrderReady event", zap.Error(err))
		}
	}

	return order, nil
}

func (oe *OrderEngine) cancel(ctx context.Context, orderID string, outcome models.PaymentOutcome) (*models.Order, error) {
	// Claim the transition first; a duplicate or late failure signal must
	// not release stock belonging to a finalized order
	if err := oe.orders.CancelOrder(ctx, orderID); err != nil {
		return nil, err
	}

	held, err := oe.inventory.HeldReservations(ctx, orderID)
	if err != nil {
		oe.logger.Error("Failed to list reservations for release",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	for i := range held {
		if err := oe.inventory.Release(ctx, &held[i]); err != nil {
			oe.logger.Error("Failed to release reservation during cancellation",
				zap.String("order_id", orderID),
				zap.String("product_id", held[i].ProductID),
				zap.Error(err))
		}
	}

	order, err := oe.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	oe.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.String("reason", outcome.Reason))

	if oe.publisher != nil {
		event := &models.OrderCancelledEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:   orderID,
			Reason:    outcome.Reason,
		}
		if err := oe.publisher.PublishOrderCancelled(ctx, event); err != nil {
			oe.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}

	return order, nil
}

// GetOrder retrieves an order by id
func (oe *OrderEngine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return oe.orders.GetOrderByID(ctx, orderID)
}

// GetOrdersByUser retrieves a user's order history
func (oe *OrderEngine) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return oe.orders.GetOrdersByUser(ctx, userID)
}

func (oe *OrderEngine) publishCreated(ctx context.Context, order *models.Order, intent *payment.Intent) {
	if oe.publisher == nil {
		return
	}

	itemData := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		itemData = append(itemData, models.OrderItemData{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	created := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		UserID:      order.UserID,
		EventRef:    order.EventID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Items:       itemData,
	}
	if err := oe.publisher.PublishOrderCreated(ctx, created); err != nil {
		oe.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	requested := &models.OrderPaymentRequestedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPaymentRequested),
		OrderID:     order.ID,
		IntentID:    intent.ID,
		Simulated:   intent.Simulated,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
	}
	if err := oe.publisher.PublishPaymentRequested(ctx, requested); err != nil {
		oe.logger.Error("Failed to publish PaymentRequested event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// RedeemCredential validates a scanned pickup credential through the status
// guard and marks the order picked up; see PickupVerifier
func (oe *OrderEngine) RedeemCredential(ctx context.Context, token string) (*models.Order, error) {
	return oe.verifier.Redeem(ctx, token)
}

package models

import "time"

// Event types
const (
	EventTypeOrderCreated          = "ORDER_CREATED"
	EventTypeOrderPaymentRequested = "ORDER_PAYMENT_REQUESTED"
	EventTypePaymentSucceeded      = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed         = "PAYMENT_FAILED"
	EventTypePaymentCancelled      = "PAYMENT_CANCELLED"
	EventTypeOrderReady            = "ORDER_READY_FOR_PICKUP"
	EventTypeOrderCancelled        = "ORDER_CANCELLED"
	EventTypeOrderPickedUp         = "ORDER_PICKED_UP"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order enters PENDING_PAYMENT
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	EventRef    string          `json:"event_ref"`
	TotalAmount int64           `json:"total_amount"`
	Currency    string          `json:"currency"`
	Items       []OrderItemData `json:"items"`
}

// OrderPaymentRequestedEvent published once a payment intent exists for the
// order; the payment worker drives confirmation from here
type OrderPaymentRequestedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	IntentID    string `json:"intent_id"`
	Simulated   bool   `json:"simulated"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

// PaymentOutcomeEvent published when the gateway resolves an intent
type PaymentOutcomeEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	TxID    string `json:"tx_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// OrderReadyEvent published when an order enters PENDING_PICKUP
type OrderReadyEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
}

// OrderCancelledEvent published when an order is cancelled (compensation)
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderPickedUpEvent published when staff redeem the pickup credential
type OrderPickedUpEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

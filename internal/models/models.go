package models

import (
	"time"

	"github.com/lib/pq"
)

// Product represents a merch item sold by a merchant at linked events
type Product struct {
	ID         string         `db:"id" json:"id"`
	MerchantID string         `db:"merchant_id" json:"merchant_id"`
	Title      string         `db:"title" json:"title"`
	Price      int64          `db:"price" json:"price"` // minor units
	Sizes      pq.StringArray `db:"sizes" json:"sizes"`
	Active     bool           `db:"active" json:"active"`
	ImageURL   string         `db:"image_url" json:"image_url,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`

	// Loaded from the inventory and product_events tables, not columns
	Stock    map[string]int `db:"-" json:"stock,omitempty"`
	EventIDs []string       `db:"-" json:"event_ids,omitempty"`
}

// HasSize reports whether size is one of the product's declared labels
func (p *Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// TotalStock is the sum of per-size counts
func (p *Product) TotalStock() int {
	total := 0
	for _, n := range p.Stock {
		total += n
	}
	return total
}

// Event represents a live event at which linked products are sellable
type Event struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Venue       string         `db:"venue" json:"venue"`
	Address     string         `db:"address" json:"address"`
	Latitude    float64        `db:"latitude" json:"latitude"`
	Longitude   float64        `db:"longitude" json:"longitude"`
	RadiusM     float64        `db:"radius_m" json:"radius_m"`
	StartsAt    time.Time      `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time      `db:"ends_at" json:"ends_at"`
	Active      bool           `db:"active" json:"active"`
	MerchantIDs pq.StringArray `db:"merchant_ids" json:"merchant_ids"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`

	ProductIDs []string `db:"-" json:"product_ids,omitempty"`
}

// Inventory represents stock for one (product, size) pair
type Inventory struct {
	ProductID string    `db:"product_id" json:"product_id"`
	Size      string    `db:"size" json:"size"`
	Available int       `db:"available" json:"available"`
	Reserved  int       `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents a customer purchase awaiting payment and pickup
type Order struct {
	ID               string    `db:"id" json:"id"`
	OrderNumber      string    `db:"order_number" json:"order_number"`
	UserID           string    `db:"user_id" json:"user_id"`
	EventID          string    `db:"event_id" json:"event_id"`
	MerchantID       string    `db:"merchant_id" json:"merchant_id"`
	TotalAmount      int64     `db:"total_amount" json:"total_amount"`
	Currency         string    `db:"currency" json:"currency"`
	Status           string    `db:"status" json:"status"`
	PaymentTxID      *string   `db:"payment_tx_id" json:"payment_tx_id,omitempty"`
	PickupCredential *string   `db:"pickup_credential" json:"pickup_credential,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem represents one line of an order
type OrderItem struct {
	ID           int64  `db:"id" json:"id"`
	OrderID      string `db:"order_id" json:"order_id"`
	ProductID    string `db:"product_id" json:"product_id"`
	ProductTitle string `db:"product_title" json:"product_title"`
	Size         string `db:"size" json:"size"`
	Quantity     int    `db:"quantity" json:"quantity"`
	UnitPrice    int64  `db:"unit_price" json:"unit_price"`
}

// Order statuses
const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPendingPickup  = "PENDING_PICKUP"
	OrderStatusPickedUp       = "PICKED_UP"
	OrderStatusCancelled      = "CANCELLED"
)

// CanTransitionTo checks whether an order status change is legal.
// PICKED_UP and CANCELLED are terminal.
func CanTransitionTo(from, to string) bool {
	transitions := map[string][]string{
		OrderStatusPendingPayment: {OrderStatusPendingPickup, OrderStatusCancelled},
		OrderStatusPendingPickup:  {OrderStatusPickedUp, OrderStatusCancelled},
		OrderStatusPickedUp:       {},
		OrderStatusCancelled:      {},
	}

	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reservation is a handle for stock decremented on behalf of an in-flight
// order, reversible via release until it is committed
type Reservation struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Size      string    `db:"size" json:"size"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Reservation statuses
const (
	ReservationStatusHeld      = "HELD"
	ReservationStatusReleased  = "RELEASED"
	ReservationStatusCommitted = "COMMITTED"
)

// PaymentOutcome reports how a user-facing payment interaction resolved
type PaymentOutcome struct {
	Status string `json:"status"`
	TxID   string `json:"tx_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Payment outcome statuses
const (
	PaymentOutcomeSucceeded = "SUCCEEDED"
	PaymentOutcomeCancelled = "CANCELLED"
	PaymentOutcomeFailed    = "FAILED"
)

// ProcessedEvent for idempotent event consumption
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"merch-service/internal/models"
)

// CreateOrder persists an order and its line items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (id, order_number, user_id, event_id, merchant_id, total_amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.UserID, order.EventID, order.MerchantID,
		order.TotalAmount, order.Currency, order.Status).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, product_title, size, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.OrderID, item.ProductID, item.ProductTitle, item.Size, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByCredential retrieves the order owning a pickup credential
func (s *Store) GetOrderByCredential(ctx context.Context, token string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE pickup_credential = $1", token)
	if err == sql.ErrNoRows {
		return nil, models.ErrCredentialUnknown
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUser retrieves orders for a user, newest first
func (s *Store) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

func (s *Store) loadItems(ctx context.Context, order *models.Order) error {
	return s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
}

// FinalizeOrderPaid flips PENDING_PAYMENT -> PENDING_PICKUP, recording the
// transaction id and the fresh pickup credential as one atomic write. The
// status guard makes duplicate deliveries land on ErrAlreadyFinalized
// instead of minting a second credential.
func (s *Store) FinalizeOrderPaid(ctx context.Context, orderID, txID, credential string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, payment_tx_id = $2, pickup_credential = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.OrderStatusPendingPickup, txID, credential, orderID, models.OrderStatusPendingPayment)
	if err != nil {
		return err
	}
	return s.guardResult(ctx, result, orderID)
}

// CancelOrder flips PENDING_PAYMENT -> CANCELLED under the same status guard
func (s *Store) CancelOrder(ctx context.Context, orderID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.OrderStatusCancelled, orderID, models.OrderStatusPendingPayment)
	if err != nil {
		return err
	}
	return s.guardResult(ctx, result, orderID)
}

func (s *Store) guardResult(ctx context.Context, result sql.Result, orderID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", orderID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("order %s: %w", orderID, models.ErrOrderNotFound)
	}
	return models.ErrAlreadyFinalized
}

// RedeemCredential flips PENDING_PICKUP -> PICKED_UP by credential token and
// returns the redeemed order. A credential can win this update at most once;
// the caller distinguishes why a miss happened.
func (s *Store) RedeemCredential(ctx context.Context, token string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE pickup_credential = $2 AND status = $3
		RETURNING *`,
		models.OrderStatusPickedUp, token, models.OrderStatusPendingPickup)
	if err == nil {
		if err := s.loadItems(ctx, &order); err != nil {
			return nil, err
		}
		return &order, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// The guard missed: tell NotFound, AlreadyRedeemed and WrongState apart
	existing, lookupErr := s.GetOrderByCredential(ctx, token)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if existing.Status == models.OrderStatusPickedUp {
		return nil, models.ErrAlreadyRedeemed
	}
	return nil, models.ErrWrongState
}

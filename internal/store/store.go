package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"merch-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetInventory retrieves all per-size stock rows for a product
func (s *Store) GetInventory(ctx context.Context, productID string) ([]models.Inventory, error) {
	var rows []models.Inventory
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM inventory WHERE product_id = $1 ORDER BY size", productID)
	return rows, err
}

// GetInventoryForSize retrieves the stock row for one (product, size) pair
func (s *Store) GetInventoryForSize(ctx context.Context, productID, size string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv,
		"SELECT * FROM inventory WHERE product_id = $1 AND size = $2", productID, size)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory not found for product %s size %s: %w", productID, size, models.ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// SetStockLevel writes an absolute available count for one (product, size)
// pair. Merchant edits go through here; only the named size is touched so a
// concurrent reservation on another size is never clobbered.
func (s *Store) SetStockLevel(ctx context.Context, productID, size string, available int) error {
	if available < 0 {
		return fmt.Errorf("negative stock level: %w", models.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, size, available, reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (product_id, size)
		DO UPDATE SET available = $3, updated_at = NOW()`,
		productID, size, available)
	return err
}

// ReserveStockTx atomically reserves stock for one (product, size) pair and
// records a HELD reservation row. The FOR UPDATE lock makes concurrent
// reservations for the last unit linearizable: exactly one succeeds.
func (s *Store) ReserveStockTx(ctx context.Context, orderID, productID, size string, quantity int) (*models.Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var available int
	err = tx.GetContext(ctx, &available,
		"SELECT available FROM inventory WHERE product_id = $1 AND size = $2 FOR UPDATE",
		productID, size)
	if err == sql.ErrNoRows {
		return nil, &models.InsufficientStockError{ProductID: productID, Size: size, Requested: quantity}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}

	if available < quantity {
		return nil, &models.InsufficientStockError{ProductID: productID, Size: size, Requested: quantity}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE inventory SET available = available - $1, reserved = reserved + $1, updated_at = NOW() WHERE product_id = $2 AND size = $3",
		quantity, productID, size)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	res := &models.Reservation{
		OrderID:   orderID,
		ProductID: productID,
		Size:      size,
		Quantity:  quantity,
		Status:    models.ReservationStatusHeld,
	}
	err = tx.GetContext(ctx, &res.ID, `
		INSERT INTO reservations (order_id, product_id, size, quantity, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		res.OrderID, res.ProductID, res.Size, res.Quantity, res.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseReservation reverses a HELD reservation, restoring available stock.
// Releasing an already-released or committed reservation is a no-op; the
// returned bool reports whether stock actually moved.
func (s *Store) ReleaseReservation(ctx context.Context, reservationID int64) (bool, error) {
	return s.settleReservation(ctx, reservationID, models.ReservationStatusReleased)
}

// CommitReservation burns a HELD reservation after payment settles. No-op if
// the reservation was already settled.
func (s *Store) CommitReservation(ctx context.Context, reservationID int64) (bool, error) {
	return s.settleReservation(ctx, reservationID, models.ReservationStatusCommitted)
}

func (s *Store) settleReservation(ctx context.Context, reservationID int64, target string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// The HELD guard makes settling idempotent under duplicate delivery
	var res models.Reservation
	err = tx.GetContext(ctx, &res, `
		UPDATE reservations SET status = $1 WHERE id = $2 AND status = $3
		RETURNING *`,
		target, reservationID, models.ReservationStatusHeld)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to settle reservation: %w", err)
	}

	var query string
	if target == models.ReservationStatusReleased {
		query = "UPDATE inventory SET available = available + $1, reserved = reserved - $1, updated_at = NOW() WHERE product_id = $2 AND size = $3"
	} else {
		query = "UPDATE inventory SET reserved = reserved - $1, updated_at = NOW() WHERE product_id = $2 AND size = $3"
	}
	if _, err := tx.ExecContext(ctx, query, res.Quantity, res.ProductID, res.Size); err != nil {
		return false, fmt.Errorf("failed to adjust stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// RecordReservation writes through a reservation already granted by the
// Redis fast path: decrements available unconditionally and records the
// HELD ledger row in one transaction.
func (s *Store) RecordReservation(ctx context.Context, orderID, productID, size string, quantity int) (*models.Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE inventory SET available = available - $1, reserved = reserved + $1, updated_at = NOW() WHERE product_id = $2 AND size = $3",
		quantity, productID, size)
	if err != nil {
		return nil, fmt.Errorf("failed to write through reservation: %w", err)
	}

	res := &models.Reservation{
		OrderID:   orderID,
		ProductID: productID,
		Size:      size,
		Quantity:  quantity,
		Status:    models.ReservationStatusHeld,
	}
	err = tx.GetContext(ctx, &res.ID, `
		INSERT INTO reservations (order_id, product_id, size, quantity, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		res.OrderID, res.ProductID, res.Size, res.Quantity, res.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetHeldReservations retrieves all HELD reservations for an order
func (s *Store) GetHeldReservations(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM reservations WHERE order_id = $1 AND status = $2",
		orderID, models.ReservationStatusHeld)
	return rows, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

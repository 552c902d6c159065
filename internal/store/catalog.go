package store

import (
	"context"
	"database/sql"
	"fmt"

	"merch-service/internal/models"
)

// CreateProduct inserts a product and its per-size inventory rows in one
// transaction
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO products (id, merchant_id, title, price, sizes, active, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		product.ID, product.MerchantID, product.Title, product.Price,
		product.Sizes, product.Active, product.ImageURL).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	for size, count := range product.Stock {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO inventory (product_id, size, available, reserved) VALUES ($1, $2, $3, 0)",
			product.ID, size, count)
		if err != nil {
			return fmt.Errorf("failed to create inventory row: %w", err)
		}
	}

	return tx.Commit()
}

// GetProductByID retrieves a product with its stock and event links
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}

	inv, err := s.GetInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Stock = make(map[string]int, len(inv))
	for _, row := range inv {
		product.Stock[row.Size] = row.Available
	}

	err = s.db.SelectContext(ctx, &product.EventIDs,
		"SELECT event_id FROM product_events WHERE product_id = $1", id)
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// GetProductsByMerchant retrieves all products owned by a merchant
func (s *Store) GetProductsByMerchant(ctx context.Context, merchantID string) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE merchant_id = $1 ORDER BY created_at DESC", merchantID)
	return products, err
}

// GetActiveProducts retrieves every active product, used to warm Redis
// stock counters at startup
func (s *Store) GetActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE active = true ORDER BY created_at DESC")
	return products, err
}

// UpdateProduct updates mutable product fields
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE products SET title = $1, price = $2, sizes = $3, active = $4, image_url = $5, updated_at = NOW()
		WHERE id = $6`,
		product.Title, product.Price, product.Sizes, product.Active, product.ImageURL, product.ID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", product.ID, models.ErrProductNotFound)
	}
	return nil
}

// DeleteProduct hard-deletes a product, cascading removal of its inventory
// rows and event links in the same transaction
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM product_events WHERE product_id = $1", id); err != nil {
		return fmt.Errorf("failed to unlink product: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM inventory WHERE product_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete inventory: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", id, models.ErrProductNotFound)
	}

	return tx.Commit()
}

// CreateEvent inserts a new event
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (id, name, venue, address, latitude, longitude, radius_m, starts_at, ends_at, active, merchant_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		event.ID, event.Name, event.Venue, event.Address, event.Latitude, event.Longitude,
		event.RadiusM, event.StartsAt, event.EndsAt, event.Active, event.MerchantIDs).
		Scan(&event.CreatedAt, &event.UpdatedAt)
}

// GetEventByID retrieves an event with its product links
func (s *Store) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := s.db.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrEventNotFound)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &event.ProductIDs,
		"SELECT product_id FROM product_events WHERE event_id = $1", id)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// GetEvents retrieves all events
func (s *Store) GetEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.db.SelectContext(ctx, &events, "SELECT * FROM events ORDER BY starts_at")
	return events, err
}

// UpdateEvent updates mutable event fields
func (s *Store) UpdateEvent(ctx context.Context, event *models.Event) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events SET name = $1, venue = $2, address = $3, latitude = $4, longitude = $5,
			radius_m = $6, starts_at = $7, ends_at = $8, active = $9, merchant_ids = $10, updated_at = NOW()
		WHERE id = $11`,
		event.Name, event.Venue, event.Address, event.Latitude, event.Longitude,
		event.RadiusM, event.StartsAt, event.EndsAt, event.Active, event.MerchantIDs, event.ID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("event %s: %w", event.ID, models.ErrEventNotFound)
	}
	return nil
}

// DeleteEvent hard-deletes an event, cascading removal of its product links
// in the same transaction
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM product_events WHERE event_id = $1", id); err != nil {
		return fmt.Errorf("failed to unlink event: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("event %s: %w", id, models.ErrEventNotFound)
	}

	return tx.Commit()
}

// LinkProduct associates a product with an event. The link table is the
// single source of truth for both sides of the relationship, so the write
// cannot half-apply.
func (s *Store) LinkProduct(ctx context.Context, productID, eventID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("product %s: %w", productID, models.ErrProductNotFound)
	}
	if err := tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)", eventID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("event %s: %w", eventID, models.ErrEventNotFound)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO product_events (product_id, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		productID, eventID)
	if err != nil {
		return fmt.Errorf("failed to link product: %w", err)
	}

	return tx.Commit()
}

// UnlinkProduct removes a product↔event association
func (s *Store) UnlinkProduct(ctx context.Context, productID, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM product_events WHERE product_id = $1 AND event_id = $2",
		productID, eventID)
	return err
}

// IsProductLinked reports whether a product is linked to an event
func (s *Store) IsProductLinked(ctx context.Context, productID, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM product_events WHERE product_id = $1 AND event_id = $2)",
		productID, eventID)
	return exists, err
}

// GetProductsByEvent retrieves all products linked to an event
func (s *Store) GetProductsByEvent(ctx context.Context, eventID string) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, `
		SELECT p.* FROM products p
		JOIN product_events pe ON pe.product_id = p.id
		WHERE pe.event_id = $1
		ORDER BY p.title`, eventID)
	return products, err
}

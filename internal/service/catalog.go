package service

import (
	"context"
	"fmt"
	"time"

	"merch-service/internal/models"
	"merch-service/internal/redisclient"
	"merch-service/internal/store"
	"merch-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogService owns product/event CRUD and the product↔event link. The
// order engine only reads from it.
type CatalogService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store, redis *redisclient.Client) *CatalogService {
	return &CatalogService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest carries merchant input for a new product
type CreateProductRequest struct {
	MerchantID string         `json:"merchant_id" binding:"required"`
	Title      string         `json:"title" binding:"required"`
	Price      int64          `json:"price"`
	Sizes      []string       `json:"sizes" binding:"required,min=1"`
	Stock      map[string]int `json:"stock"`
	ImageURL   string         `json:"image_url"`
}

// UpdateProductRequest carries a partial product edit
type UpdateProductRequest struct {
	Title    *string `json:"title"`
	Price    *int64  `json:"price"`
	Active   *bool   `json:"active"`
	ImageURL *string `json:"image_url"`
}

// CreateEventRequest carries merchant input for a new event
type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required"`
	Venue       string    `json:"venue" binding:"required"`
	Address     string    `json:"address"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	RadiusM     float64   `json:"radius_m"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
	MerchantIDs []string  `json:"merchant_ids"`
}

// CreateProduct validates and persists a product with its initial per-size
// stock, then warms the fast-path counters
func (cs *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if req.Price < 0 {
		return nil, fmt.Errorf("price must be non-negative: %w", models.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(req.Sizes))
	for _, size := range req.Sizes {
		if size == "" || seen[size] {
			return nil, fmt.Errorf("sizes must be non-empty and unique: %w", models.ErrInvalidInput)
		}
		seen[size] = true
	}
	for size, count := range req.Stock {
		if !seen[size] {
			return nil, fmt.Errorf("stock for undeclared size %q: %w", size, models.ErrInvalidInput)
		}
		if count < 0 {
			return nil, fmt.Errorf("stock for size %q must be non-negative: %w", size, models.ErrInvalidInput)
		}
	}

	product := &models.Product{
		ID:         uuid.New().String(),
		MerchantID: req.MerchantID,
		Title:      req.Title,
		Price:      req.Price,
		Sizes:      req.Sizes,
		Active:     true,
		ImageURL:   req.ImageURL,
		Stock:      make(map[string]int, len(req.Sizes)),
	}
	for _, size := range req.Sizes {
		product.Stock[size] = req.Stock[size]
	}

	if err := cs.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	for size, count := range product.Stock {
		if err := cs.redis.InitInventory(ctx, product.ID, size, count, 0); err != nil {
			cs.logger.Error("Failed to warm inventory counter",
				zap.String("product_id", product.ID),
				zap.String("size", size),
				zap.Error(err))
		}
	}

	cs.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("merchant_id", product.MerchantID))
	return product, nil
}

// GetProduct retrieves a product with stock and event links
func (cs *CatalogService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	return cs.store.GetProductByID(ctx, productID)
}

// GetProductsByMerchant lists a merchant's products
func (cs *CatalogService) GetProductsByMerchant(ctx context.Context, merchantID string) ([]models.Product, error) {
	return cs.store.GetProductsByMerchant(ctx, merchantID)
}

// UpdateProduct applies a partial edit to a product. Size labels are fixed
// after creation; stock moves through SetStockLevel.
func (cs *CatalogService) UpdateProduct(ctx context.Context, productID string, req *UpdateProductRequest) (*models.Product, error) {
	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		product.Title = *req.Title
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, fmt.Errorf("price must be non-negative: %w", models.ErrInvalidInput)
		}
		product.Price = *req.Price
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}

	if err := cs.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct hard-deletes a product, cascading removal from all linked
// events, and drops its fast-path counters
func (cs *CatalogService) DeleteProduct(ctx context.Context, productID string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}

	if err := cs.store.DeleteProduct(ctx, productID); err != nil {
		return err
	}

	if err := cs.redis.DropInventory(ctx, productID, product.Sizes); err != nil {
		cs.logger.Error("Failed to drop inventory counters",
			zap.String("product_id", productID),
			zap.Error(err))
	}

	cs.logger.Info("Product deleted", zap.String("product_id", productID))
	return nil
}

// SetStockLevel applies a merchant's absolute stock edit for one size.
// Merge-by-key: only the named (product, size) pair is touched, so a
// concurrent reservation on another size is never clobbered.
func (cs *CatalogService) SetStockLevel(ctx context.Context, productID, size string, available int) error {
	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if !product.HasSize(size) {
		return fmt.Errorf("size %q not declared for product %s: %w", size, productID, models.ErrInvalidInput)
	}

	if err := cs.store.SetStockLevel(ctx, productID, size, available); err != nil {
		return err
	}

	if err := cs.redis.SetAvailable(ctx, productID, size, available); err != nil {
		cs.logger.Error("Failed to write stock edit to Redis",
			zap.String("product_id", productID),
			zap.String("size", size),
			zap.Error(err))
	}
	return nil
}

// CreateEvent validates and persists an event
func (cs *CatalogService) CreateEvent(ctx context.Context, req *CreateEventRequest) (*models.Event, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return nil, fmt.Errorf("event must end after it starts: %w", models.ErrInvalidInput)
	}

	event := &models.Event{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Venue:       req.Venue,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		RadiusM:     req.RadiusM,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Active:      true,
		MerchantIDs: req.MerchantIDs,
	}

	if err := cs.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	cs.logger.Info("Event created", zap.String("event_id", event.ID), zap.String("name", event.Name))
	return event, nil
}

// GetEvent retrieves an event with its product links
func (cs *CatalogService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return cs.store.GetEventByID(ctx, eventID)
}

// GetEvents lists all events
func (cs *CatalogService) GetEvents(ctx context.Context) ([]models.Event, error) {
	return cs.store.GetEvents(ctx)
}

// UpdateEvent persists edited event fields
func (cs *CatalogService) UpdateEvent(ctx context.Context, event *models.Event) error {
	if !event.EndsAt.After(event.StartsAt) {
		return fmt.Errorf("event must end after it starts: %w", models.ErrInvalidInput)
	}
	return cs.store.UpdateEvent(ctx, event)
}

// DeleteEvent hard-deletes an event, cascading removal of the link from
// every associated product
func (cs *CatalogService) DeleteEvent(ctx context.Context, eventID string) error {
	return cs.store.DeleteEvent(ctx, eventID)
}

// LinkProduct associates a product with an event; both sides of the
// relationship move in one transaction
func (cs *CatalogService) LinkProduct(ctx context.Context, productID, eventID string) error {
	return cs.store.LinkProduct(ctx, productID, eventID)
}

// UnlinkProduct removes a product↔event association
func (cs *CatalogService) UnlinkProduct(ctx context.Context, productID, eventID string) error {
	return cs.store.UnlinkProduct(ctx, productID, eventID)
}

// GetProductsByEvent lists products sellable at an event
func (cs *CatalogService) GetProductsByEvent(ctx context.Context, eventID string) ([]models.Product, error) {
	return cs.store.GetProductsByEvent(ctx, eventID)
}

// GetSellableProduct returns the product only if it is active and linked to
// the event being browsed
func (cs *CatalogService) GetSellableProduct(ctx context.Context, productID, eventID string) (*models.Product, error) {
	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s is inactive: %w", productID, models.ErrNotSellable)
	}

	linked, err := cs.store.IsProductLinked(ctx, productID, eventID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, fmt.Errorf("product %s not linked to event %s: %w", productID, eventID, models.ErrNotSellable)
	}

	return product, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merch-service/internal/models"
	"merch-service/internal/redisclient"
	"merch-service/internal/store"
	"merch-service/internal/util"

	"go.uber.org/zap"
)

// InventoryService holds authoritative stock per (product, size) and
// provides atomic reserve/release/commit. The Redis counter is the fast
// path; the database transaction is the fallback and the system of record.
type InventoryService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store *store.Store, redis *redisclient.Client) *InventoryService {
	return &InventoryService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// Reserve atomically decrements stock for one (product, size) pair and
// returns a reservation handle. Two concurrent reservations for the last
// unit cannot both succeed.
func (is *InventoryService) Reserve(ctx context.Context, orderID, productID, size string, quantity int) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", models.ErrInvalidInput)
	}

	granted, err := is.redis.ReserveStock(ctx, productID, size, quantity)
	if err != nil {
		if !errors.Is(err, redisclient.ErrNotWarmed) {
			is.logger.Warn("Redis reservation failed, falling back to DB",
				zap.String("product_id", productID),
				zap.String("size", size),
				zap.Error(err))
		}
		return is.store.ReserveStockTx(ctx, orderID, productID, size, quantity)
	}

	if !granted {
		util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		return nil, &models.InsufficientStockError{ProductID: productID, Size: size, Requested: quantity}
	}

	res, err := is.store.RecordReservation(ctx, orderID, productID, size, quantity)
	if err != nil {
		// Redis granted but the ledger write failed; give the units back
		if rbErr := is.redis.ReleaseStock(context.Background(), productID, size, quantity); rbErr != nil {
			is.logger.Error("Failed to roll back Redis reservation",
				zap.String("product_id", productID),
				zap.String("size", size),
				zap.Error(rbErr))
		}
		util.InventoryReservationsFailed.WithLabelValues("ledger_error").Inc()
		return nil, err
	}

	return res, nil
}

// Release reverses a reservation, restoring available stock. Releasing an
// already-released reservation is a no-op.
func (is *InventoryService) Release(ctx context.Context, res *models.Reservation) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Release")
	defer span.End()

	acted, err := is.store.ReleaseReservation(ctx, res.ID)
	if err != nil {
		return err
	}
	if !acted {
		return nil
	}

	if err := is.redis.ReleaseStock(ctx, res.ProductID, res.Size, res.Quantity); err != nil {
		is.logger.Error("Failed to release stock in Redis",
			zap.String("product_id", res.ProductID),
			zap.String("size", res.Size),
			zap.Error(err))
	}
	return nil
}

// Commit burns a reservation after payment settled (final deduction)
func (is *InventoryService) Commit(ctx context.Context, res *models.Reservation) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Commit")
	defer span.End()

	acted, err := is.store.CommitReservation(ctx, res.ID)
	if err != nil {
		return err
	}
	if !acted {
		return nil
	}

	if err := is.redis.CommitStock(ctx, res.ProductID, res.Size, res.Quantity); err != nil {
		is.logger.Error("Failed to commit stock in Redis",
			zap.String("product_id", res.ProductID),
			zap.String("size", res.Size),
			zap.Error(err))
	}
	return nil
}

// HeldReservations retrieves all HELD reservations for an order
func (is *InventoryService) HeldReservations(ctx context.Context, orderID string) ([]models.Reservation, error) {
	return is.store.GetHeldReservations(ctx, orderID)
}

// SyncInventoryToRedis warms per-size stock counters from the database
func (is *InventoryService) SyncInventoryToRedis(ctx context.Context, products []models.Product) error {
	is.logger.Info("Starting inventory sync to Redis")

	count := 0
	for _, product := range products {
		rows, err := is.store.GetInventory(ctx, product.ID)
		if err != nil {
			is.logger.Error("Failed to get inventory",
				zap.String("product_id", product.ID),
				zap.Error(err))
			continue
		}

		for _, row := range rows {
			if err := is.redis.InitInventory(ctx, row.ProductID, row.Size, row.Available, row.Reserved); err != nil {
				is.logger.Error("Failed to init Redis counter",
					zap.String("product_id", row.ProductID),
					zap.String("size", row.Size),
					zap.Error(err))
				continue
			}
			count++
		}
	}

	is.logger.Info("Inventory sync completed", zap.Int("counters", count))
	return nil
}

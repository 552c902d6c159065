package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"merch-service/internal/models"
	"merch-service/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory fakes. They mirror the store's guarded transitions so the
// engine's idempotency behaviour can be exercised without a database.

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*models.Order)}
}

func (m *memOrders) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrders) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memOrders) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (m *memOrders) FinalizeOrderPaid(ctx context.Context, orderID, txID, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPendingPayment {
		return models.ErrAlreadyFinalized
	}
	order.Status = models.OrderStatusPendingPickup
	order.PaymentTxID = &txID
	order.PickupCredential = &credential
	return nil
}

func (m *memOrders) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPendingPayment {
		return models.ErrAlreadyFinalized
	}
	order.Status = models.OrderStatusCancelled
	return nil
}

func (m *memOrders) RedeemCredential(ctx context.Context, token string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.PickupCredential == nil || *order.PickupCredential != token {
			continue
		}
		switch order.Status {
		case models.OrderStatusPendingPickup:
			order.Status = models.OrderStatusPickedUp
			cp := *order
			return &cp, nil
		case models.OrderStatusPickedUp:
			return nil, models.ErrAlreadyRedeemed
		default:
			return nil, models.ErrWrongState
		}
	}
	return nil, models.ErrCredentialUnknown
}

type memInventory struct {
	mu           sync.Mutex
	available    map[string]int
	reservations map[int64]*models.Reservation
	nextID       int64
}

func newMemInventory() *memInventory {
	return &memInventory{
		available:    make(map[string]int),
		reservations: make(map[int64]*models.Reservation),
	}
}

func invKey(productID, size string) string {
	return fmt.Sprintf("%s:%s", productID, size)
}

func (m *memInventory) set(productID, size string, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available[invKey(productID, size)] = available
}

func (m *memInventory) get(productID, size string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available[invKey(productID, size)]
}

func (m *memInventory) Reserve(ctx context.Context, orderID, productID, size string, quantity int) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := invKey(productID, size)
	if m.available[key] < quantity {
		return nil, &models.InsufficientStockError{ProductID: productID, Size: size, Requested: quantity}
	}
	m.available[key] -= quantity
	m.nextID++
	res := &models.Reservation{
		ID:        m.nextID,
		OrderID:   orderID,
		ProductID: productID,
		Size:      size,
		Quantity:  quantity,
		Status:    models.ReservationStatusHeld,
	}
	m.reservations[res.ID] = res
	cp := *res
	return &cp, nil
}

func (m *memInventory) Release(ctx context.Context, res *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.reservations[res.ID]
	if !ok || stored.Status != models.ReservationStatusHeld {
		return nil
	}
	stored.Status = models.ReservationStatusReleased
	m.available[invKey(stored.ProductID, stored.Size)] += stored.Quantity
	return nil
}

func (m *memInventory) Commit(ctx context.Context, res *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.reservations[res.ID]
	if !ok || stored.Status != models.ReservationStatusHeld {
		return nil
	}
	stored.Status = models.ReservationStatusCommitted
	return nil
}

func (m *memInventory) HeldReservations(ctx context.Context, orderID string) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reservation
	for _, res := range m.reservations {
		if res.OrderID == orderID && res.Status == models.ReservationStatusHeld {
			out = append(out, *res)
		}
	}
	return out, nil
}

type memCatalog struct {
	products map[string]*models.Product
}

func (m *memCatalog) GetSellableProduct(ctx context.Context, productID, eventID string) (*models.Product, error) {
	product, ok := m.products[productID]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s is inactive: %w", productID, models.ErrNotSellable)
	}
	return product, nil
}

type failingGateway struct{}

func (failingGateway) CreateIntent(ctx context.Context, amount int64, currency, orderID string) (*payment.Intent, error) {
	return nil, fmt.Errorf("currency %q is not a 3-letter code: %w", currency, models.ErrInvalidInput)
}

func (failingGateway) Confirm(ctx context.Context, intent *payment.Intent) (models.PaymentOutcome, error) {
	return models.PaymentOutcome{}, errors.New("unreachable")
}

type fixture struct {
	engine    *OrderEngine
	orders    *memOrders
	inventory *memInventory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog := &memCatalog{products: map[string]*models.Product{
		"tee": {
			ID:         "tee",
			MerchantID: "merchant-1",
			Title:      "Tour Tee",
			Price:      1500,
			Sizes:      []string{"S", "M", "L"},
			Active:     true,
		},
		"poster": {
			ID:         "poster",
			MerchantID: "merchant-1",
			Title:      "Tour Poster",
			Price:      1000,
			Sizes:      []string{"ONE"},
			Active:     true,
		},
		"retired": {
			ID:         "retired",
			MerchantID: "merchant-1",
			Title:      "Old Run Tee",
			Price:      1200,
			Sizes:      []string{"M"},
			Active:     false,
		},
	}}

	inventory := newMemInventory()
	inventory.set("tee", "M", 5)
	inventory.set("tee", "L", 1)
	inventory.set("poster", "ONE", 3)

	orders := newMemOrders()

	// An unreachable processor with no credentials: every intent degrades
	// to the simulated path, which is also what checkout must survive
	gateway := payment.NewGateway("http://127.0.0.1:1", "", time.Millisecond)

	engine := NewOrderEngine(orders, inventory, catalog, gateway, nil, "USD")
	return &fixture{engine: engine, orders: orders, inventory: inventory}
}

func checkoutRequest(items ...OrderItemRequest) *CreateOrderRequest {
	return &CreateOrderRequest{
		UserID:  "user-1",
		EventID: "event-1",
		Items:   items,
	}
}

func TestCreateOrderComputesTotalAndReserves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 2},
		OrderItemRequest{ProductID: "poster", Size: "ONE", Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, int64(2*1500+1000), created.Order.TotalAmount)
	assert.Equal(t, "USD", created.Order.Currency)
	assert.Equal(t, models.OrderStatusPendingPayment, created.Order.Status)
	assert.Equal(t, "merchant-1", created.Order.MerchantID)
	assert.Len(t, created.Order.OrderNumber, 8)
	assert.True(t, created.Intent.Simulated)

	assert.Equal(t, 3, f.inventory.get("tee", "M"))
	assert.Equal(t, 2, f.inventory.get("poster", "ONE"))

	held, err := f.inventory.HeldReservations(ctx, created.Order.ID)
	require.NoError(t, err)
	assert.Len(t, held, 2)
}

func TestCreateOrderRejectsUnknownSize(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateOrder(context.Background(), checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "XXL", Quantity: 1},
	))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, 5, f.inventory.get("tee", "M"))
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateOrder(context.Background(), checkoutRequest(
		OrderItemRequest{ProductID: "retired", Size: "M", Quantity: 1},
	))
	assert.ErrorIs(t, err, models.ErrNotSellable)
}

func TestCreateOrderInsufficientStockReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 2},
		OrderItemRequest{ProductID: "tee", Size: "L", Quantity: 3},
	))

	var insufficient *models.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "tee", insufficient.ProductID)
	assert.Equal(t, "L", insufficient.Size)

	// The successful first line must have been rolled back
	assert.Equal(t, 5, f.inventory.get("tee", "M"))
	assert.Equal(t, 1, f.inventory.get("tee", "L"))
	assert.Empty(t, f.orders.orders)
}

func TestConcurrentCheckoutNoOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateOrder(ctx, checkoutRequest(
				OrderItemRequest{ProductID: "tee", Size: "L", Quantity: 1},
			))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *models.InsufficientStockError
		assert.ErrorAs(t, err, &insufficient)
	}

	assert.Equal(t, 1, succeeded, "exactly one checkout may win the last unit")
	assert.Equal(t, 0, f.inventory.get("tee", "L"))
}

func TestPaymentSucceededFinalizesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 1},
	))
	require.NoError(t, err)

	order, err := f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeSucceeded,
		TxID:   payment.SimulatedTxID(created.Order.ID),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPendingPickup, order.Status)
	require.NotNil(t, order.PickupCredential)
	assert.NotEmpty(t, *order.PickupCredential)
	require.NotNil(t, order.PaymentTxID)

	// Reservations are burned, not returned to stock
	held, err := f.inventory.HeldReservations(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, held)
	assert.Equal(t, 4, f.inventory.get("tee", "M"))
}

func TestPaymentFailedReleasesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, 3, f.inventory.get("tee", "M"))

	order, err := f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeFailed,
		Reason: "card_declined",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Nil(t, order.PickupCredential)
	assert.Equal(t, 5, f.inventory.get("tee", "M"))
}

func TestDuplicateOutcomeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 1},
	))
	require.NoError(t, err)

	first, err := f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeSucceeded, TxID: "tx-1",
	})
	require.NoError(t, err)

	_, err = f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeSucceeded, TxID: "tx-2",
	})
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)

	// The credential issued by the first finalization survives the replay
	reloaded, err := f.engine.GetOrder(ctx, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.PickupCredential, *reloaded.PickupCredential)
	assert.Equal(t, "tx-1", *reloaded.PaymentTxID)
}

func TestLateFailureCannotReleaseFinalizedStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 2},
	))
	require.NoError(t, err)

	_, err = f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeSucceeded, TxID: "tx-1",
	})
	require.NoError(t, err)

	// A straggler failure signal arrives after finalization. The cancel
	// path claims the status transition before touching stock, so the
	// guard rejects it and the committed units stay deducted.
	_, err = f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeFailed, Reason: "late_webhook",
	})
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)

	order, err := f.engine.GetOrder(ctx, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPickup, order.Status)
	assert.Equal(t, 3, f.inventory.get("tee", "M"), "committed stock stays deducted")
}

func TestIntentRejectionCancelsOrderAndReleasesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	catalog := &memCatalog{products: map[string]*models.Product{
		"tee": {ID: "tee", MerchantID: "merchant-1", Title: "Tour Tee", Price: 1500, Sizes: []string{"M"}, Active: true},
	}}
	engine := NewOrderEngine(f.orders, f.inventory, catalog, failingGateway{}, nil, "US") // bad currency

	_, err := engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "tee", Size: "M", Quantity: 1},
	))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, 5, f.inventory.get("tee", "M"))

	for _, order := range f.orders.orders {
		assert.Equal(t, models.OrderStatusCancelled, order.Status)
	}
}

func TestRedeemCredentialSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "poster", Size: "ONE", Quantity: 1},
	))
	require.NoError(t, err)

	finalized, err := f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeSucceeded, TxID: "tx-1",
	})
	require.NoError(t, err)
	token := *finalized.PickupCredential

	order, err := f.engine.RedeemCredential(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPickedUp, order.Status)

	_, err = f.engine.RedeemCredential(ctx, token)
	assert.ErrorIs(t, err, models.ErrAlreadyRedeemed)

	_, err = f.engine.RedeemCredential(ctx, "no-such-token")
	assert.ErrorIs(t, err, models.ErrCredentialUnknown)

	_, err = f.engine.RedeemCredential(ctx, "")
	assert.ErrorIs(t, err, models.ErrCredentialUnknown)
}

func TestConcurrentRedemptionExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateOrder(ctx, checkoutRequest(
		OrderItemRequest{ProductID: "poster", Size: "ONE", Quantity: 1},
	))
	require.NoError(t, err)

	finalized, err := f.engine.ApplyPaymentOutcome(ctx, created.Order.ID, models.PaymentOutcome{
		Status: models.PaymentOutcomeSucceeded, TxID: "tx-1",
	})
	require.NoError(t, err)
	token := *finalized.PickupCredential

	const scans = 6
	var wg sync.WaitGroup
	results := make(chan error, scans)
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RedeemCredential(ctx, token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrAlreadyRedeemed)
		}
	}
	assert.Equal(t, 1, succeeded, "a credential grants exactly one pickup")
}

func TestOrderNumber(t *testing.T) {
	assert.Equal(t, "A1B2C3D4", OrderNumber("a1b2c3d4-e5f6-7890-abcd-ef1234567890"))
	assert.Equal(t, "AB", OrderNumber("ab"))
}

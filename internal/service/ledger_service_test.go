package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"stock-ledger/internal/models"
	"stock-ledger/internal/store"
	"stock-ledger/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	moved    []*models.StockMovedEvent
	sold     []*models.DeviceSoldEvent
	changed  []*models.DeviceStatusChangedEvent
	lowStock []*models.LowStockAlertEvent
	err      error
}

func (p *fakePublisher) PublishStockMoved(_ context.Context, e *models.StockMovedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moved = append(p.moved, e)
	return p.err
}

func (p *fakePublisher) PublishDeviceSold(_ context.Context, e *models.DeviceSoldEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sold = append(p.sold, e)
	return p.err
}

func (p *fakePublisher) PublishDeviceStatusChanged(_ context.Context, e *models.DeviceStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *fakePublisher) PublishLowStockAlert(_ context.Context, e *models.LowStockAlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lowStock = append(p.lowStock, e)
	return p.err
}

// fakeCache keeps the newest row version per pair, like the Redis cache
type fakeCache struct {
	mu     sync.Mutex
	levels map[string]models.StockLevel
	sets   []models.StockLevel
	gets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{levels: map[string]models.StockLevel{}}
}

func cacheKey(productID, storeID int64) string {
	return fmt.Sprintf("%d:%d", productID, storeID)
}

func (c *fakeCache) GetStockLevel(_ context.Context, productID, storeID int64) (*models.StockLevel, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	level, ok := c.levels[cacheKey(productID, storeID)]
	if !ok {
		return nil, false, nil
	}
	return &level, true, nil
}

func (c *fakeCache) SetStockLevel(_ context.Context, level *models.StockLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = append(c.sets, *level)
	key := cacheKey(level.ProductID, level.StoreID)
	if cached, ok := c.levels[key]; ok && cached.Version >= level.Version {
		return nil
	}
	c.levels[key] = *level
	return nil
}

// failingMovementLog lets the stock write succeed and then fails the append
type failingMovementLog struct {
	MovementLog
}

func (f failingMovementLog) Append(context.Context, store.Querier, *models.StockMovement) (int64, error) {
	return 0, errors.New("disk full")
}

type fixture struct {
	db        *store.Store
	svc       *LedgerService
	publisher *fakePublisher
	cache     *fakeCache
	storeID   int64
	productID int64
	admin     models.Actor
	seller    models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New(t)
	f := &fixture{
		db:        db,
		publisher: &fakePublisher{},
		cache:     newFakeCache(),
		storeID:   storetest.SeedStore(t, db, "Centro"),
		productID: storetest.SeedProduct(t, db, "CHG-20W", 1000),
	}
	f.admin = models.Actor{UserID: 1, StoreID: f.storeID, Role: models.RoleAdmin}
	f.seller = models.Actor{UserID: 2, StoreID: f.storeID, Role: models.RoleSeller}
	f.svc = NewLedgerService(db, NewRepositories(0), Options{
		Cache:     f.cache,
		Publisher: f.publisher,
	})
	return f
}

func (f *fixture) onHand(t *testing.T) int {
	t.Helper()
	level, err := f.svc.repos.Stock.GetStockLevel(context.Background(), f.db.Querier(), f.productID, f.storeID)
	require.NoError(t, err)
	return level.OnHand
}

func (f *fixture) movements(t *testing.T) []models.StockMovement {
	t.Helper()
	list, err := f.svc.ListMovements(context.Background(), f.admin, models.MovementFilter{ProductID: f.productID, StoreID: f.storeID})
	require.NoError(t, err)
	return list
}

func (f *fixture) assertBalanced(t *testing.T) {
	t.Helper()
	rec, err := f.svc.Reconcile(context.Background(), f.admin, f.productID, f.storeID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced, "on_hand=%d movement_sum=%d", rec.OnHand, rec.MovementSum)
}

func (f *fixture) receive(t *testing.T, qty int) {
	t.Helper()
	_, err := f.svc.ReceiveStock(context.Background(), f.admin, ReceiveStockRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: qty, UnitPrice: 1000, Reason: "purchase",
	})
	require.NoError(t, err)
}

func (f *fixture) registerDevice(t *testing.T, imei string) *models.Device {
	t.Helper()
	d, err := f.svc.RegisterDevice(context.Background(), f.admin, RegisterDeviceRequest{
		StoreID: f.storeID, IMEI1: imei, Brand: "Samsung", Model: "A54", Capacity: "128GB",
		Color: "black", Condition: models.ConditionNew, SalePrice: 150000,
	})
	require.NoError(t, err)
	return d
}

func TestLedgerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// receipt on empty state
	res, err := f.svc.ReceiveStock(ctx, f.admin, ReceiveStockRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 50, UnitPrice: 1000, Reason: "purchase",
	})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Level.OnHand)
	movements := f.movements(t)
	require.Len(t, movements, 1)
	assert.Equal(t, 50, movements[0].Delta)
	assert.Equal(t, models.MovementEntry, movements[0].Kind)

	// sale with discount
	sale, err := f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 5, UnitPrice: 1500, Discount: 500,
		Customer: models.Customer{Name: "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7000), sale.Total)
	assert.Equal(t, 45, sale.OnHand)
	assert.Equal(t, 45, f.onHand(t))
	movements = f.movements(t)
	require.Len(t, movements, 2)
	assert.Equal(t, -5, movements[1].Delta)
	assert.Equal(t, models.MovementSaleExit, movements[1].Kind)

	stored, err := f.svc.GetSale(ctx, f.seller, sale.SaleID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), stored.Total)
	assert.Equal(t, models.PaymentCash, stored.PaymentMethod)
	assert.Equal(t, "Ana", stored.Customer.Name)

	// oversell
	_, err = f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 100, UnitPrice: 1500,
	})
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t, 45, f.onHand(t))
	assert.Len(t, f.movements(t), 2)

	// physical count records the signed difference
	adj, err := f.svc.AdjustStockToQuantity(ctx, f.admin, AdjustStockRequest{
		ProductID: f.productID, StoreID: f.storeID, NewQuantity: 40, Reason: "physical count",
	})
	require.NoError(t, err)
	assert.Equal(t, -5, adj.Delta)
	assert.Equal(t, 40, f.onHand(t))
	movements = f.movements(t)
	require.Len(t, movements, 3)
	assert.Equal(t, -5, movements[2].Delta)
	assert.Equal(t, models.MovementAdjustment, movements[2].Kind)

	// negative count
	_, err = f.svc.AdjustStockToQuantity(ctx, f.admin, AdjustStockRequest{
		ProductID: f.productID, StoreID: f.storeID, NewQuantity: -1, Reason: "physical count",
	})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	assert.Equal(t, 40, f.onHand(t))
	assert.Len(t, f.movements(t), 3)

	f.assertBalanced(t)
}

func TestReplayedMovementsReproduceOnHand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.receive(t, 20)
	f.receive(t, 7)
	for _, n := range []int{3, 1, 4} {
		_, err := f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
			ProductID: f.productID, StoreID: f.storeID, Quantity: n, UnitPrice: 1000,
		})
		require.NoError(t, err)
	}
	for _, n := range []int{30, 0, 12} {
		_, err := f.svc.AdjustStockToQuantity(ctx, f.admin, AdjustStockRequest{
			ProductID: f.productID, StoreID: f.storeID, NewQuantity: n, Reason: "count",
		})
		require.NoError(t, err)
	}

	running := 0
	for _, m := range f.movements(t) {
		running += m.Delta
		assert.Equal(t, running, m.BalanceAfter, "movement %d", m.ID)
		assert.GreaterOrEqual(t, m.BalanceAfter, 0)
	}
	assert.Equal(t, 12, running)
	assert.Equal(t, 12, f.onHand(t))
	f.assertBalanced(t)
}

func TestAdjustToSameQuantityWritesNoMovement(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 10)

	res, err := f.svc.AdjustStockToQuantity(context.Background(), f.admin, AdjustStockRequest{
		ProductID: f.productID, StoreID: f.storeID, NewQuantity: 10, Reason: "count",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Delta)
	assert.Zero(t, res.MovementID)
	assert.Len(t, f.movements(t), 1)
}

func TestAdjustCreatesLevelOnFirstCount(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.AdjustStockToQuantity(context.Background(), f.admin, AdjustStockRequest{
		ProductID: f.productID, StoreID: f.storeID, NewQuantity: 8, Reason: "opening count",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Delta)
	assert.Equal(t, 8, f.onHand(t))
	f.assertBalanced(t)
}

func TestMovementAppendFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 10)

	repos := NewRepositories(0)
	repos.Movements = failingMovementLog{MovementLog: repos.Movements}
	broken := NewLedgerService(f.db, repos, Options{})
	ctx := context.Background()

	_, err := broken.ReceiveStock(ctx, f.admin, ReceiveStockRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 5, UnitPrice: 1000,
	})
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, 10, f.onHand(t))

	_, err = broken.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 3, UnitPrice: 1000,
	})
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, 10, f.onHand(t))

	_, err = broken.AdjustStockToQuantity(ctx, f.admin, AdjustStockRequest{
		ProductID: f.productID, StoreID: f.storeID, NewQuantity: 2, Reason: "count",
	})
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, 10, f.onHand(t))

	var sales int
	require.NoError(t, f.db.GetDB().Get(&sales, `SELECT COUNT(*) FROM sales`))
	assert.Zero(t, sales)
	assert.Len(t, f.movements(t), 1)
	f.assertBalanced(t)
}

func TestSellDeviceConcurrently(t *testing.T) {
	f := newFixture(t)
	device := f.registerDevice(t, "356789012345678")
	ctx := context.Background()

	const sellers = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, sellers)
	)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			actor := models.Actor{UserID: int64(10 + i), StoreID: f.storeID, Role: models.RoleSeller}
			_, errs[i] = f.svc.SellDevice(ctx, actor, SellDeviceRequest{DeviceID: device.ID, SalePrice: 150000})
		}(i)
	}
	close(start)
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrDeviceUnavailable):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	sold, err := f.svc.GetDevice(ctx, f.admin, device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceSold, sold.Status)
	assert.Len(t, f.publisher.sold, 1)

	var sales int
	require.NoError(t, f.db.GetDB().Get(&sales, `SELECT COUNT(*) FROM sales WHERE device_id = ?`, device.ID))
	assert.Equal(t, 1, sales)
}

func TestSellLastUnitConcurrently(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 1)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
				ProductID: f.productID, StoreID: f.storeID, Quantity: 1, UnitPrice: 1000,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrInsufficientStock), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.onHand(t))
	f.assertBalanced(t)
}

func TestSellDeviceWrites(t *testing.T) {
	f := newFixture(t)
	device := f.registerDevice(t, "356789012345678")
	ctx := context.Background()

	res, err := f.svc.SellDevice(ctx, f.seller, SellDeviceRequest{
		DeviceID: device.ID, SalePrice: 150000, Discount: 10000, PaymentMethod: models.PaymentCard,
		Customer: models.Customer{Name: "Luis", Document: "12345678"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(140000), res.Total)
	assert.Zero(t, res.MovementID)

	sale, err := f.svc.GetSale(ctx, f.seller, res.SaleID)
	require.NoError(t, err)
	require.NotNil(t, sale.DeviceID)
	assert.Equal(t, device.ID, *sale.DeviceID)
	assert.Nil(t, sale.ProductID)
	assert.Equal(t, 1, sale.Quantity)

	// a sold device cannot be sold again or deleted
	_, err = f.svc.SellDevice(ctx, f.seller, SellDeviceRequest{DeviceID: device.ID, SalePrice: 150000})
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
	assert.True(t, errors.Is(err, ErrStateConflict))
	assert.True(t, errors.Is(f.svc.DeleteDevice(ctx, f.admin, device.ID), ErrStateConflict))

	_, err = f.svc.SellDevice(ctx, f.seller, SellDeviceRequest{DeviceID: 9999, SalePrice: 150000})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSellDeviceNotAvailable(t *testing.T) {
	f := newFixture(t)
	device := f.registerDevice(t, "356789012345678")
	ctx := context.Background()

	_, err := f.svc.ChangeDeviceStatus(ctx, f.seller, device.ID, models.DeviceInRepair)
	require.NoError(t, err)

	_, err = f.svc.SellDevice(ctx, f.seller, SellDeviceRequest{DeviceID: device.ID, SalePrice: 150000})
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestChangeDeviceStatus(t *testing.T) {
	f := newFixture(t)
	device := f.registerDevice(t, "356789012345678")
	ctx := context.Background()

	updated, err := f.svc.ChangeDeviceStatus(ctx, f.seller, device.ID, models.DeviceReserved)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceReserved, updated.Status)

	_, err = f.svc.ChangeDeviceStatus(ctx, f.seller, device.ID, models.DeviceInRepair)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = f.svc.ChangeDeviceStatus(ctx, f.seller, device.ID, models.DeviceSold)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = f.svc.ChangeDeviceStatus(ctx, f.seller, device.ID, models.DeviceAvailable)
	require.NoError(t, err)

	_, err = f.svc.ChangeDeviceStatus(ctx, f.seller, device.ID, "lost")
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	require.Len(t, f.publisher.changed, 2)
	assert.Equal(t, models.DeviceAvailable, f.publisher.changed[0].From)
	assert.Equal(t, models.DeviceReserved, f.publisher.changed[0].To)
}

func TestRegisterAndDeleteDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device := f.registerDevice(t, "356789012345678")
	assert.Equal(t, models.DeviceAvailable, device.Status)

	_, err := f.svc.RegisterDevice(ctx, f.admin, RegisterDeviceRequest{
		StoreID: f.storeID, IMEI1: "356789012345678", Brand: "Apple", Model: "13", SalePrice: 1,
	})
	assert.True(t, errors.Is(err, ErrDuplicate))

	_, err = f.svc.RegisterDevice(ctx, f.admin, RegisterDeviceRequest{
		StoreID: f.storeID, IMEI1: "12345", Brand: "Apple", Model: "13", SalePrice: 1,
	})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	list, err := f.svc.ListDevices(ctx, f.seller, models.DeviceFilter{Status: models.DeviceAvailable})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteDevice(ctx, f.admin, device.ID))
	_, err = f.svc.GetDevice(ctx, f.admin, device.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreScope(t *testing.T) {
	f := newFixture(t)
	other := storetest.SeedStore(t, f.db, "Norte")
	outsider := models.Actor{UserID: 3, StoreID: other, Role: models.RoleSeller}
	ctx := context.Background()
	f.receive(t, 5)

	_, err := f.svc.SellProductUnits(ctx, outsider, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 1, UnitPrice: 1000,
	})
	assert.True(t, errors.Is(err, ErrStoreScope))

	_, err = f.svc.AdjustStockToQuantity(ctx, outsider, AdjustStockRequest{
		ProductID: f.productID, StoreID: f.storeID, NewQuantity: 0, Reason: "count",
	})
	assert.True(t, errors.Is(err, ErrStoreScope))

	device := f.registerDevice(t, "356789012345678")
	_, err = f.svc.SellDevice(ctx, outsider, SellDeviceRequest{DeviceID: device.ID, SalePrice: 150000})
	assert.True(t, errors.Is(err, ErrStoreScope))

	crossStore := outsider
	crossStore.CrossStore = true
	_, err = f.svc.SellProductUnits(ctx, crossStore, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 1, UnitPrice: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, f.onHand(t))

	_, err = f.svc.ReceiveStock(ctx, models.Actor{}, ReceiveStockRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 1,
	})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 5)

	tests := []struct {
		name string
		req  SellProductRequest
		want error
	}{
		{"zero quantity", SellProductRequest{Quantity: 0, UnitPrice: 1000}, ErrInvalidQuantity},
		{"zero price", SellProductRequest{Quantity: 1, UnitPrice: 0}, ErrInvalidPrice},
		{"discount above subtotal", SellProductRequest{Quantity: 2, UnitPrice: 1000, Discount: 2001}, ErrInvalidDiscount},
		{"negative discount", SellProductRequest{Quantity: 1, UnitPrice: 1000, Discount: -1}, ErrInvalidDiscount},
		{"line total overflow", SellProductRequest{Quantity: 4, UnitPrice: math.MaxInt64 / 2, Discount: 1}, ErrInvalidPrice},
		{"unknown payment", SellProductRequest{Quantity: 1, UnitPrice: 1000, PaymentMethod: "barter"}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ProductID, tt.req.StoreID = f.productID, f.storeID
			_, err := f.svc.SellProductUnits(ctx, f.seller, tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := f.svc.ReceiveStock(ctx, f.admin, ReceiveStockRequest{ProductID: f.productID, StoreID: f.storeID, Quantity: 0})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = f.svc.AdjustStockToQuantity(ctx, f.admin, AdjustStockRequest{ProductID: f.productID, StoreID: f.storeID, NewQuantity: 3})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	assert.Equal(t, 5, f.onHand(t))
	assert.Len(t, f.movements(t), 1)
}

func TestUnknownOrInactiveCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReceiveStock(ctx, f.admin, ReceiveStockRequest{ProductID: 9999, StoreID: f.storeID, Quantity: 1})
	assert.True(t, errors.Is(err, ErrNotFound))

	storetest.Deactivate(t, f.db, "products", f.productID)
	_, err = f.svc.ReceiveStock(ctx, f.admin, ReceiveStockRequest{ProductID: f.productID, StoreID: f.storeID, Quantity: 1})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrPersistence))
}

func TestReceiveStockSourceEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := ReceiveStockRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 12, UnitPrice: 800, SourceEventID: "evt-1",
	}

	_, err := f.svc.ReceiveStock(ctx, f.admin, req)
	require.NoError(t, err)

	_, err = f.svc.ReceiveStock(ctx, f.admin, req)
	assert.True(t, errors.Is(err, ErrAlreadyProcessed))
	assert.Equal(t, 12, f.onHand(t))
	assert.Len(t, f.movements(t), 1)
}

func TestReceiptMarkerRollsBackWithFailedReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := ReceiveStockRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 12, SourceEventID: "evt-2",
	}

	repos := NewRepositories(0)
	repos.Movements = failingMovementLog{MovementLog: repos.Movements}
	_, err := NewLedgerService(f.db, repos, Options{}).ReceiveStock(ctx, f.admin, req)
	require.Error(t, err)

	// the retry is not mistaken for a replay
	_, err = f.svc.ReceiveStock(ctx, f.admin, req)
	require.NoError(t, err)
	assert.Equal(t, 12, f.onHand(t))
}

func TestEventsAndCacheAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SetStockThreshold(ctx, f.admin, ThresholdRequest{
		ProductID: f.productID, StoreID: f.storeID, MinThreshold: 5, Location: "A-3",
	})
	require.NoError(t, err)

	f.receive(t, 8)
	_, err = f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 2, UnitPrice: 1000,
	})
	require.NoError(t, err)
	assert.Empty(t, f.publisher.lowStock)

	_, err = f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 1, UnitPrice: 1000,
	})
	require.NoError(t, err)
	require.Len(t, f.publisher.lowStock, 1)
	assert.Equal(t, 5, f.publisher.lowStock[0].OnHand)

	// already below: no second alert
	_, err = f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 1, UnitPrice: 1000,
	})
	require.NoError(t, err)
	assert.Len(t, f.publisher.lowStock, 1)

	require.Len(t, f.publisher.moved, 4)
	assert.Equal(t, models.EventTypeStockReceived, f.publisher.moved[0].EventType)
	assert.Equal(t, models.EventTypeProductUnitsSold, f.publisher.moved[1].EventType)
	assert.NotZero(t, f.publisher.moved[1].SaleID)
	assert.Equal(t, -2, f.publisher.moved[1].Delta)

	level, err := f.svc.GetStockLevel(ctx, f.seller, f.productID, f.storeID)
	require.NoError(t, err)
	assert.Equal(t, 4, level.OnHand)
	assert.Equal(t, "A-3", level.Location)
	assert.Equal(t, 1, f.cache.gets)

	low, err := f.svc.ListLowStock(ctx, f.seller, f.storeID)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, f.productID, low[0].ProductID)
}

func TestLateCacheRefreshDoesNotServeStaleLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.receive(t, 10)
	f.receive(t, 5)
	require.Len(t, f.cache.sets, 2)
	first, second := f.cache.sets[0], f.cache.sets[1]
	assert.Equal(t, 10, first.OnHand)
	assert.Equal(t, 15, second.OnHand)
	assert.Greater(t, second.Version, first.Version)

	// the first commit's refresh arrives after the second one
	f.svc.refreshCache(ctx, &first)

	level, err := f.svc.GetStockLevel(ctx, f.seller, f.productID, f.storeID)
	require.NoError(t, err)
	assert.Equal(t, 15, level.OnHand)
	assert.Equal(t, f.onHand(t), level.OnHand)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	f.receive(t, 3)
	assert.Equal(t, 3, f.onHand(t))
}

func TestReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 5)
	req := ReservationRequest{ProductID: f.productID, StoreID: f.storeID, Quantity: 4}

	level, err := f.svc.ReserveStock(ctx, f.seller, req)
	require.NoError(t, err)
	assert.Equal(t, 4, level.Reserved)
	assert.Equal(t, 1, level.Available())

	_, err = f.svc.ReserveStock(ctx, f.seller, ReservationRequest{ProductID: f.productID, StoreID: f.storeID, Quantity: 2})
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	// reserved units cannot be sold
	_, err = f.svc.SellProductUnits(ctx, f.seller, SellProductRequest{
		ProductID: f.productID, StoreID: f.storeID, Quantity: 2, UnitPrice: 1000,
	})
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	level, err = f.svc.ReleaseStock(ctx, f.seller, req)
	require.NoError(t, err)
	assert.Zero(t, level.Reserved)
	assert.Len(t, f.movements(t), 1)
}

func TestListMovementsScopesSeller(t *testing.T) {
	f := newFixture(t)
	other := storetest.SeedStore(t, f.db, "Norte")
	f.receive(t, 2)
	ctx := context.Background()

	_, err := f.svc.ReceiveStock(ctx, f.admin, ReceiveStockRequest{ProductID: f.productID, StoreID: other, Quantity: 9})
	require.NoError(t, err)

	list, err := f.svc.ListMovements(ctx, f.seller, models.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.storeID, list[0].StoreID)

	_, err = f.svc.ListMovements(ctx, f.seller, models.MovementFilter{StoreID: other})
	assert.True(t, errors.Is(err, ErrStoreScope))

	all, err := f.svc.ListMovements(ctx, f.admin, models.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

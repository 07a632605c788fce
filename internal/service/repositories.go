package service

import (
	"context"

	"stock-ledger/internal/models"
	"stock-ledger/internal/store"
)

// Database runs units of work and serves plain reads
type Database interface {
	WithTx(ctx context.Context, fn func(q store.Querier) error) error
	Querier() store.Querier
}

// StockRepository is the durable source of on-hand quantities
type StockRepository interface {
	GetStockLevel(ctx context.Context, q store.Querier, productID, storeID int64) (*models.StockLevel, error)
	LockStockLevel(ctx context.Context, q store.Querier, productID, storeID int64) (*models.StockLevel, error)
	SetStockLevel(ctx context.Context, q store.Querier, productID, storeID int64, newOnHand int) (*models.StockLevel, error)
	AdjustStockLevel(ctx context.Context, q store.Querier, productID, storeID int64, delta int) (*models.StockLevel, error)
	SetThreshold(ctx context.Context, q store.Querier, productID, storeID int64, minThreshold int, location string) (*models.StockLevel, error)
	ReserveUnits(ctx context.Context, q store.Querier, productID, storeID int64, quantity int) (*models.StockLevel, error)
	ReleaseUnits(ctx context.Context, q store.Querier, productID, storeID int64, quantity int) (*models.StockLevel, error)
	ListLowStock(ctx context.Context, q store.Querier, storeID int64) ([]models.StockLevel, error)
}

// MovementLog is the append-only audit trail of quantity changes
type MovementLog interface {
	Append(ctx context.Context, q store.Querier, m *models.StockMovement) (int64, error)
	SumDeltas(ctx context.Context, q store.Querier, productID, storeID int64) (int64, error)
	List(ctx context.Context, q store.Querier, f models.MovementFilter) ([]models.StockMovement, error)
}

type DeviceRepository interface {
	CreateDevice(ctx context.Context, q store.Querier, d *models.Device) error
	GetDevice(ctx context.Context, q store.Querier, id int64) (*models.Device, error)
	TransitionDeviceStatus(ctx context.Context, q store.Querier, id int64, expected, next models.DeviceStatus) error
	DeleteDevice(ctx context.Context, q store.Querier, id int64) error
	ListDevices(ctx context.Context, q store.Querier, f models.DeviceFilter) ([]models.Device, error)
}

type SaleRepository interface {
	CreateSale(ctx context.Context, q store.Querier, s *models.Sale) error
	GetSale(ctx context.Context, q store.Querier, id int64) (*models.Sale, error)
}

type CatalogRepository interface {
	GetProductByID(ctx context.Context, q store.Querier, id int64) (*models.Product, error)
	GetStoreByID(ctx context.Context, q store.Querier, id int64) (*models.Store, error)
	MarkEventProcessed(ctx context.Context, q store.Querier, eventID, eventType string) (bool, error)
}

// Repositories bundles the persistence collaborators of the ledger
type Repositories struct {
	Stock     StockRepository
	Movements MovementLog
	Devices   DeviceRepository
	Sales     SaleRepository
	Catalog   CatalogRepository
}

// NewRepositories wires the SQL-backed repositories
func NewRepositories(defaultMinThreshold int) Repositories {
	return Repositories{
		Stock:     store.NewStockRepository(defaultMinThreshold),
		Movements: store.NewMovementLog(),
		Devices:   store.NewDeviceRepository(),
		Sales:     store.NewSaleRepository(),
		Catalog:   store.NewCatalogRepository(),
	}
}

// StockCache is an optional read cache for stock levels
type StockCache interface {
	GetStockLevel(ctx context.Context, productID, storeID int64) (*models.StockLevel, bool, error)
	SetStockLevel(ctx context.Context, level *models.StockLevel) error
}

// EventPublisher is an optional sink for committed ledger changes
type EventPublisher interface {
	PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error
	PublishDeviceSold(ctx context.Context, event *models.DeviceSoldEvent) error
	PublishDeviceStatusChanged(ctx context.Context, event *models.DeviceStatusChangedEvent) error
	PublishLowStockAlert(ctx context.Context, event *models.LowStockAlertEvent) error
}

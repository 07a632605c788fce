package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-ledger/internal/models"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// LedgerService is the only writer of stock levels, movements, device status and sales.
// Every mutating operation runs as one transaction: the quantity change, its
// movement and its sale record commit together or not at all.
type LedgerService struct {
	db        Database
	repos     Repositories
	cache     StockCache
	publisher EventPublisher
	timeout   time.Duration
	logger    *zap.Logger
}

// Options carries the optional collaborators of the ledger
type Options struct {
	Cache            StockCache
	Publisher        EventPublisher
	OperationTimeout time.Duration
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db Database, repos Repositories, opts Options) *LedgerService {
	return &LedgerService{
		db:        db,
		repos:     repos,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		timeout:   opts.OperationTimeout,
		logger:    util.GetLogger(),
	}
}

// StockResult is returned by operations that move on-hand quantity
type StockResult struct {
	MovementID int64             `json:"movement_id,omitempty"`
	Delta      int               `json:"delta"`
	Level      models.StockLevel `json:"level"`
}

// SaleResult is returned by both sale operations
type SaleResult struct {
	SaleID     int64 `json:"sale_id"`
	MovementID int64 `json:"movement_id,omitempty"`
	Total      int64 `json:"total"`
	OnHand     int   `json:"on_hand,omitempty"`
}

// ReceiveStock books incoming units and creates the stock level on first receipt
func (s *LedgerService) ReceiveStock(ctx context.Context, actor models.Actor, req ReceiveStockRequest) (*StockResult, error) {
	var result StockResult
	err := s.run(ctx, "ReceiveStock", func(ctx context.Context) error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := checkActor(actor, req.StoreID); err != nil {
			return err
		}

		return s.db.WithTx(ctx, func(q store.Querier) error {
			if req.SourceEventID != "" {
				fresh, err := s.repos.Catalog.MarkEventProcessed(ctx, q, req.SourceEventID, models.EventTypeStockReceiptRequested)
				if err != nil {
					return err
				}
				if !fresh {
					return fmt.Errorf("%w: %s", ErrAlreadyProcessed, req.SourceEventID)
				}
			}
			if _, err := s.requireCatalog(ctx, q, req.ProductID, req.StoreID); err != nil {
				return err
			}

			level, err := s.repos.Stock.AdjustStockLevel(ctx, q, req.ProductID, req.StoreID, req.Quantity)
			if err != nil {
				return err
			}

			movement := &models.StockMovement{
				ProductID:    req.ProductID,
				StoreID:      req.StoreID,
				Kind:         models.MovementEntry,
				Delta:        req.Quantity,
				BalanceAfter: level.OnHand,
				UnitPrice:    req.UnitPrice,
				Reason:       req.Reason,
				ActorID:      actor.UserID,
			}
			if _, err := s.repos.Movements.Append(ctx, q, movement); err != nil {
				return err
			}

			result = StockResult{MovementID: movement.ID, Delta: req.Quantity, Level: *level}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	util.StockMovementsTotal.WithLabelValues(string(models.MovementEntry)).Inc()
	s.logger.Info("Stock received",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("store_id", req.StoreID),
		zap.Int("quantity", req.Quantity),
		zap.Int("on_hand", result.Level.OnHand))

	s.afterStockChange(ctx, &result.Level, s.stockEvent(models.EventTypeStockReceived, &result, actor, 0), false)
	return &result, nil
}

// AdjustStockToQuantity sets on-hand to a counted quantity and records the
// signed difference from the previous on-hand as the movement delta.
func (s *LedgerService) AdjustStockToQuantity(ctx context.Context, actor models.Actor, req AdjustStockRequest) (*StockResult, error) {
	var (
		result  StockResult
		crossed bool
	)
	err := s.run(ctx, "AdjustStockToQuantity", func(ctx context.Context) error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := checkActor(actor, req.StoreID); err != nil {
			return err
		}

		return s.db.WithTx(ctx, func(q store.Querier) error {
			product, err := s.requireCatalog(ctx, q, req.ProductID, req.StoreID)
			if err != nil {
				return err
			}

			before, err := s.repos.Stock.LockStockLevel(ctx, q, req.ProductID, req.StoreID)
			if err != nil {
				return err
			}

			delta := req.NewQuantity - before.OnHand
			if delta == 0 {
				result = StockResult{Level: *before}
				return nil
			}

			level, err := s.repos.Stock.SetStockLevel(ctx, q, req.ProductID, req.StoreID, req.NewQuantity)
			if err != nil {
				return err
			}

			movement := &models.StockMovement{
				ProductID:    req.ProductID,
				StoreID:      req.StoreID,
				Kind:         models.MovementAdjustment,
				Delta:        delta,
				BalanceAfter: level.OnHand,
				UnitPrice:    product.Price,
				Reason:       req.Reason,
				ActorID:      actor.UserID,
			}
			if _, err := s.repos.Movements.Append(ctx, q, movement); err != nil {
				return err
			}

			crossed = !before.BelowThreshold() && level.BelowThreshold()
			result = StockResult{MovementID: movement.ID, Delta: delta, Level: *level}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Delta == 0 {
		s.logger.Info("Stock count matches on-hand, nothing to adjust",
			zap.Int64("product_id", req.ProductID),
			zap.Int64("store_id", req.StoreID),
			zap.Int("on_hand", result.Level.OnHand))
		return &result, nil
	}

	util.StockMovementsTotal.WithLabelValues(string(models.MovementAdjustment)).Inc()
	s.logger.Info("Stock adjusted",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("store_id", req.StoreID),
		zap.Int("delta", result.Delta),
		zap.Int("on_hand", result.Level.OnHand),
		zap.String("reason", req.Reason))

	s.afterStockChange(ctx, &result.Level, s.stockEvent(models.EventTypeStockAdjusted, &result, actor, 0), crossed)
	return &result, nil
}

// SellProductUnits decrements on-hand, logs the exit and records the sale.
// The decrement is checked against the persisted on-hand when it is applied.
func (s *LedgerService) SellProductUnits(ctx context.Context, actor models.Actor, req SellProductRequest) (*SaleResult, error) {
	var (
		result  SaleResult
		level   *models.StockLevel
		crossed bool
	)
	err := s.run(ctx, "SellProductUnits", func(ctx context.Context) error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := checkActor(actor, req.StoreID); err != nil {
			return err
		}

		return s.db.WithTx(ctx, func(q store.Querier) error {
			if _, err := s.requireCatalog(ctx, q, req.ProductID, req.StoreID); err != nil {
				return err
			}

			var err error
			level, err = s.repos.Stock.AdjustStockLevel(ctx, q, req.ProductID, req.StoreID, -req.Quantity)
			if err != nil {
				return err
			}

			movement := &models.StockMovement{
				ProductID:    req.ProductID,
				StoreID:      req.StoreID,
				Kind:         models.MovementSaleExit,
				Delta:        -req.Quantity,
				BalanceAfter: level.OnHand,
				UnitPrice:    req.UnitPrice,
				Reason:       "sale",
				ActorID:      actor.UserID,
			}
			if _, err := s.repos.Movements.Append(ctx, q, movement); err != nil {
				return err
			}

			productID := req.ProductID
			sale := &models.Sale{
				ProductID:     &productID,
				StoreID:       req.StoreID,
				SellerID:      actor.UserID,
				Customer:      req.Customer,
				Quantity:      req.Quantity,
				UnitPrice:     req.UnitPrice,
				Discount:      req.Discount,
				Total:         req.Subtotal() - req.Discount,
				PaymentMethod: req.PaymentMethod,
			}
			if err := s.repos.Sales.CreateSale(ctx, q, sale); err != nil {
				return err
			}

			before := *level
			before.OnHand += req.Quantity
			crossed = !before.BelowThreshold() && level.BelowThreshold()
			result = SaleResult{SaleID: sale.ID, MovementID: movement.ID, Total: sale.Total, OnHand: level.OnHand}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	util.StockMovementsTotal.WithLabelValues(string(models.MovementSaleExit)).Inc()
	util.SalesTotal.WithLabelValues("product").Inc()
	s.logger.Info("Product units sold",
		zap.Int64("sale_id", result.SaleID),
		zap.Int64("product_id", req.ProductID),
		zap.Int64("store_id", req.StoreID),
		zap.Int("quantity", req.Quantity),
		zap.Int64("total", result.Total))

	moved := StockResult{MovementID: result.MovementID, Delta: -req.Quantity, Level: *level}
	s.afterStockChange(ctx, level, s.stockEvent(models.EventTypeProductUnitsSold, &moved, actor, result.SaleID), crossed)
	return &result, nil
}

// SellDevice flips an available device to sold and records the sale. Of two
// concurrent sales of the same device exactly one wins; the other gets
// ErrDeviceUnavailable.
func (s *LedgerService) SellDevice(ctx context.Context, actor models.Actor, req SellDeviceRequest) (*SaleResult, error) {
	var (
		result SaleResult
		device *models.Device
	)
	err := s.run(ctx, "SellDevice", func(ctx context.Context) error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := requireActor(actor); err != nil {
			return err
		}

		return s.db.WithTx(ctx, func(q store.Querier) error {
			var err error
			device, err = s.repos.Devices.GetDevice(ctx, q, req.DeviceID)
			if err != nil {
				return err
			}
			if err := checkScope(actor, device.StoreID); err != nil {
				return err
			}

			err = s.repos.Devices.TransitionDeviceStatus(ctx, q, req.DeviceID, models.DeviceAvailable, models.DeviceSold)
			if errors.Is(err, ErrStateConflict) {
				util.DeviceSaleConflictsTotal.Inc()
				return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
			}
			if err != nil {
				return err
			}

			deviceID := req.DeviceID
			sale := &models.Sale{
				DeviceID:      &deviceID,
				StoreID:       device.StoreID,
				SellerID:      actor.UserID,
				Customer:      req.Customer,
				Quantity:      1,
				UnitPrice:     req.SalePrice,
				Discount:      req.Discount,
				Total:         req.SalePrice - req.Discount,
				PaymentMethod: req.PaymentMethod,
			}
			if err := s.repos.Sales.CreateSale(ctx, q, sale); err != nil {
				return err
			}

			result = SaleResult{SaleID: sale.ID, Total: sale.Total}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	util.SalesTotal.WithLabelValues("device").Inc()
	s.logger.Info("Device sold",
		zap.Int64("sale_id", result.SaleID),
		zap.Int64("device_id", req.DeviceID),
		zap.Int64("store_id", device.StoreID),
		zap.Int64("total", result.Total))

	if s.publisher != nil {
		event := &models.DeviceSoldEvent{
			BaseEvent: newBaseEvent(models.EventTypeDeviceSold),
			DeviceID:  req.DeviceID,
			StoreID:   device.StoreID,
			SaleID:    result.SaleID,
			Total:     result.Total,
			SellerID:  actor.UserID,
		}
		s.publish(models.EventTypeDeviceSold, s.publisher.PublishDeviceSold(ctx, event))
	}
	return &result, nil
}

// run wraps one ledger operation with its span, timeout, metrics and logging.
// Errors that are not part of the ledger's taxonomy come back as ErrPersistence.
func (s *LedgerService) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := util.StartSpan(ctx, "LedgerService."+op, attribute.String("ledger.op", op))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := classify(op, fn(ctx))
	util.LedgerOperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	util.LedgerOperationsFailed.WithLabelValues(op, reason(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if IsDomainError(err) {
		s.logger.Warn("Ledger operation rejected", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Error("Ledger operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// requireCatalog fails with ErrNotFound unless both the product and the store exist and are active
func (s *LedgerService) requireCatalog(ctx context.Context, q store.Querier, productID, storeID int64) (*models.Product, error) {
	if _, err := s.repos.Catalog.GetStoreByID(ctx, q, storeID); err != nil {
		return nil, err
	}
	return s.repos.Catalog.GetProductByID(ctx, q, productID)
}

// afterStockChange refreshes the cache and publishes the committed movement.
// Neither failure is returned: the ledger rows are already durable.
func (s *LedgerService) afterStockChange(ctx context.Context, level *models.StockLevel, event *models.StockMovedEvent, crossedThreshold bool) {
	s.refreshCache(ctx, level)

	if crossedThreshold {
		util.LowStockAlertsTotal.Inc()
		s.logger.Warn("Stock fell to reorder point",
			zap.Int64("product_id", level.ProductID),
			zap.Int64("store_id", level.StoreID),
			zap.Int("on_hand", level.OnHand),
			zap.Int("min_threshold", level.MinThreshold))
	}

	if s.publisher == nil {
		return
	}
	s.publish(event.EventType, s.publisher.PublishStockMoved(ctx, event))

	if crossedThreshold {
		alert := &models.LowStockAlertEvent{
			BaseEvent:    newBaseEvent(models.EventTypeLowStockAlert),
			ProductID:    level.ProductID,
			StoreID:      level.StoreID,
			OnHand:       level.OnHand,
			MinThreshold: level.MinThreshold,
		}
		s.publish(models.EventTypeLowStockAlert, s.publisher.PublishLowStockAlert(ctx, alert))
	}
}

func (s *LedgerService) publish(eventType string, err error) {
	if err == nil {
		return
	}
	util.EventsPublishFailed.WithLabelValues(eventType).Inc()
	s.logger.Error("Failed to publish ledger event", zap.String("event_type", eventType), zap.Error(err))
}

func (s *LedgerService) stockEvent(eventType string, r *StockResult, actor models.Actor, saleID int64) *models.StockMovedEvent {
	kind := models.MovementEntry
	switch eventType {
	case models.EventTypeStockAdjusted:
		kind = models.MovementAdjustment
	case models.EventTypeProductUnitsSold:
		kind = models.MovementSaleExit
	}
	return &models.StockMovedEvent{
		BaseEvent:  newBaseEvent(eventType),
		MovementID: r.MovementID,
		ProductID:  r.Level.ProductID,
		StoreID:    r.Level.StoreID,
		Kind:       kind,
		Delta:      r.Delta,
		OnHand:     r.Level.OnHand,
		ActorID:    actor.UserID,
		SaleID:     saleID,
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// checkActor requires an identified actor allowed to operate on storeID
func checkActor(actor models.Actor, storeID int64) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return checkScope(actor, storeID)
}

func requireActor(actor models.Actor) error {
	if actor.UserID <= 0 {
		return fmt.Errorf("%w: actor is required", ErrInvalidRequest)
	}
	return nil
}

func checkScope(actor models.Actor, storeID int64) error {
	if !actor.CanAccess(storeID) {
		return fmt.Errorf("%w: user %d cannot operate on store %d", ErrStoreScope, actor.UserID, storeID)
	}
	return nil
}

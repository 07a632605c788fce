package service

import (
	"context"

	"stock-ledger/internal/models"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Reconciliation compares a level's on-hand with the sum of its movements
type Reconciliation struct {
	ProductID   int64 `json:"product_id"`
	StoreID     int64 `json:"store_id"`
	OnHand      int   `json:"on_hand"`
	MovementSum int64 `json:"movement_sum"`
	Balanced    bool  `json:"balanced"`
}

// GetStockLevel returns the current level, from the cache when possible.
// A pair never stocked is a zero level.
func (s *LedgerService) GetStockLevel(ctx context.Context, actor models.Actor, productID, storeID int64) (*models.StockLevel, error) {
	if err := checkScope(actor, storeID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		level, hit, err := s.cache.GetStockLevel(ctx, productID, storeID)
		switch {
		case err != nil:
			util.StockCacheRequests.WithLabelValues("error").Inc()
			s.logger.Warn("Stock cache read failed", zap.Error(err))
		case hit:
			util.StockCacheRequests.WithLabelValues("hit").Inc()
			return level, nil
		default:
			util.StockCacheRequests.WithLabelValues("miss").Inc()
		}
	}

	level, err := s.repos.Stock.GetStockLevel(ctx, s.db.Querier(), productID, storeID)
	if err != nil {
		return nil, classify("GetStockLevel", err)
	}

	s.refreshCache(ctx, level)
	return level, nil
}

// ListMovements returns movement history in insertion order
func (s *LedgerService) ListMovements(ctx context.Context, actor models.Actor, filter models.MovementFilter) ([]models.StockMovement, error) {
	if err := scopeFilter(actor, &filter.StoreID); err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = page(filter.Limit, filter.Offset)

	movements, err := s.repos.Movements.List(ctx, s.db.Querier(), filter)
	if err != nil {
		return nil, classify("ListMovements", err)
	}
	return movements, nil
}

// ListLowStock returns the store's levels at or below their reorder point
func (s *LedgerService) ListLowStock(ctx context.Context, actor models.Actor, storeID int64) ([]models.StockLevel, error) {
	if err := checkScope(actor, storeID); err != nil {
		return nil, err
	}
	levels, err := s.repos.Stock.ListLowStock(ctx, s.db.Querier(), storeID)
	if err != nil {
		return nil, classify("ListLowStock", err)
	}
	return levels, nil
}

// GetSale returns a sale recorded in a store the actor may access
func (s *LedgerService) GetSale(ctx context.Context, actor models.Actor, saleID int64) (*models.Sale, error) {
	sale, err := s.repos.Sales.GetSale(ctx, s.db.Querier(), saleID)
	if err != nil {
		return nil, classify("GetSale", err)
	}
	if err := checkScope(actor, sale.StoreID); err != nil {
		return nil, err
	}
	return sale, nil
}

// Reconcile reads the level and the movement sum from one snapshot
func (s *LedgerService) Reconcile(ctx context.Context, actor models.Actor, productID, storeID int64) (*Reconciliation, error) {
	var rec Reconciliation
	err := s.run(ctx, "Reconcile", func(ctx context.Context) error {
		if err := checkScope(actor, storeID); err != nil {
			return err
		}
		return s.db.WithTx(ctx, func(q store.Querier) error {
			level, err := s.repos.Stock.GetStockLevel(ctx, q, productID, storeID)
			if err != nil {
				return err
			}
			sum, err := s.repos.Movements.SumDeltas(ctx, q, productID, storeID)
			if err != nil {
				return err
			}
			rec = Reconciliation{
				ProductID:   productID,
				StoreID:     storeID,
				OnHand:      level.OnHand,
				MovementSum: sum,
				Balanced:    int64(level.OnHand) == sum,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !rec.Balanced {
		s.logger.Error("Stock ledger out of balance",
			zap.Int64("product_id", productID),
			zap.Int64("store_id", storeID),
			zap.Int("on_hand", rec.OnHand),
			zap.Int64("movement_sum", rec.MovementSum))
	}
	return &rec, nil
}

// SetStockThreshold sets the reorder point and bin label of a pair
func (s *LedgerService) SetStockThreshold(ctx context.Context, actor models.Actor, req ThresholdRequest) (*models.StockLevel, error) {
	var level *models.StockLevel
	err := s.run(ctx, "SetStockThreshold", func(ctx context.Context) error {
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
			level, err = s.repos.Stock.SetThreshold(ctx, q, req.ProductID, req.StoreID, req.MinThreshold, req.Location)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx, level)
	return level, nil
}

// ReserveStock earmarks unreserved on-hand units. On-hand is unchanged, so no movement is written.
func (s *LedgerService) ReserveStock(ctx context.Context, actor models.Actor, req ReservationRequest) (*models.StockLevel, error) {
	return s.reservation(ctx, "ReserveStock", actor, req, s.repos.Stock.ReserveUnits)
}

// ReleaseStock returns reserved units to the unreserved pool
func (s *LedgerService) ReleaseStock(ctx context.Context, actor models.Actor, req ReservationRequest) (*models.StockLevel, error) {
	return s.reservation(ctx, "ReleaseStock", actor, req, s.repos.Stock.ReleaseUnits)
}

type reservationFunc func(ctx context.Context, q store.Querier, productID, storeID int64, quantity int) (*models.StockLevel, error)

func (s *LedgerService) reservation(ctx context.Context, op string, actor models.Actor, req ReservationRequest, apply reservationFunc) (*models.StockLevel, error) {
	var level *models.StockLevel
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := checkActor(actor, req.StoreID); err != nil {
			return err
		}
		return s.db.WithTx(ctx, func(q store.Querier) error {
			var err error
			level, err = apply(ctx, q, req.ProductID, req.StoreID, req.Quantity)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock reservation updated",
		zap.String("op", op),
		zap.Int64("product_id", req.ProductID),
		zap.Int64("store_id", req.StoreID),
		zap.Int("quantity", req.Quantity),
		zap.Int("reserved", level.Reserved))
	s.refreshCache(ctx, level)
	return level, nil
}

func (s *LedgerService) refreshCache(ctx context.Context, level *models.StockLevel) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStockLevel(ctx, level); err != nil {
		s.logger.Warn("Failed to refresh stock cache",
			zap.Int64("product_id", level.ProductID),
			zap.Int64("store_id", level.StoreID),
			zap.Error(err))
	}
}

// scopeFilter pins a listing to the actor's store unless the actor may see every store
func scopeFilter(actor models.Actor, storeID *int64) error {
	if *storeID == 0 {
		if actor.Role == models.RoleAdmin || actor.CrossStore {
			return nil
		}
		*storeID = actor.StoreID
	}
	return checkScope(actor, *storeID)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const stockColumns = `product_id, store_id, on_hand, reserved, min_threshold, location, version, updated_at`

// StockRepository owns the per-(product, store) on-hand aggregates
type StockRepository struct {
	defaultMinThreshold int
}

// NewStockRepository creates a stock repository; rows created implicitly start with defaultMinThreshold
func NewStockRepository(defaultMinThreshold int) *StockRepository {
	return &StockRepository{defaultMinThreshold: defaultMinThreshold}
}

// GetStockLevel returns the current level. A pair that has never been stocked
// is reported as a zero level, not an error.
func (r *StockRepository) GetStockLevel(ctx context.Context, q Querier, productID, storeID int64) (*models.StockLevel, error) {
	var level models.StockLevel
	err := sqlx.GetContext(ctx, q, &level, q.Rebind(
		`SELECT `+stockColumns+` FROM stock_levels WHERE product_id = ? AND store_id = ?`),
		productID, storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.StockLevel{
			ProductID:    productID,
			StoreID:      storeID,
			MinThreshold: r.defaultMinThreshold,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}

// LockStockLevel creates the row if missing and touches it, so the caller's
// transaction holds the row lock until it ends. The returned snapshot cannot
// change underneath the caller.
func (r *StockRepository) LockStockLevel(ctx context.Context, q Querier, productID, storeID int64) (*models.StockLevel, error) {
	ts := now()
	if _, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO stock_levels (product_id, store_id, on_hand, reserved, min_threshold, location, updated_at)
		VALUES (?, ?, 0, 0, ?, '', ?)
		ON CONFLICT (product_id, store_id) DO NOTHING`),
		productID, storeID, r.defaultMinThreshold, ts); err != nil {
		return nil, fmt.Errorf("failed to create stock level: %w", err)
	}

	var level models.StockLevel
	err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
		UPDATE stock_levels SET version = version + 1, updated_at = ?
		WHERE product_id = ? AND store_id = ?
		RETURNING `+stockColumns),
		ts, productID, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock level: %w", err)
	}
	return &level, nil
}

// SetStockLevel overwrites on-hand with an absolute count. Reservations larger
// than the new count are clamped to it.
func (r *StockRepository) SetStockLevel(ctx context.Context, q Querier, productID, storeID int64, newOnHand int) (*models.StockLevel, error) {
	if newOnHand < 0 {
		return nil, fmt.Errorf("%w: on-hand cannot be negative (%d)", ErrInvalidQuantity, newOnHand)
	}

	var level models.StockLevel
	err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
		INSERT INTO stock_levels (product_id, store_id, on_hand, reserved, min_threshold, location, updated_at)
		VALUES (?, ?, ?, 0, ?, '', ?)
		ON CONFLICT (product_id, store_id) DO UPDATE SET
			on_hand = excluded.on_hand,
			reserved = CASE WHEN stock_levels.reserved > excluded.on_hand THEN excluded.on_hand ELSE stock_levels.reserved END,
			version = stock_levels.version + 1,
			updated_at = excluded.updated_at
		RETURNING `+stockColumns),
		productID, storeID, newOnHand, r.defaultMinThreshold, now())
	if err != nil {
		return nil, fmt.Errorf("failed to set stock level: %w", err)
	}
	return &level, nil
}

// AdjustStockLevel applies delta atomically. Decrements are a single
// conditional UPDATE checked against the persisted value, so of two racing
// callers only one can take the last units.
func (r *StockRepository) AdjustStockLevel(ctx context.Context, q Querier, productID, storeID int64, delta int) (*models.StockLevel, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrInvalidQuantity)
	}

	var level models.StockLevel
	if delta > 0 {
		err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
			INSERT INTO stock_levels (product_id, store_id, on_hand, reserved, min_threshold, location, updated_at)
			VALUES (?, ?, ?, 0, ?, '', ?)
			ON CONFLICT (product_id, store_id) DO UPDATE SET
				on_hand = stock_levels.on_hand + excluded.on_hand,
				version = stock_levels.version + 1,
				updated_at = excluded.updated_at
			RETURNING `+stockColumns),
			productID, storeID, delta, r.defaultMinThreshold, now())
		if err != nil {
			return nil, fmt.Errorf("failed to increase stock: %w", err)
		}
		return &level, nil
	}

	err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
		UPDATE stock_levels SET on_hand = on_hand + ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND store_id = ? AND on_hand + ? >= reserved
		RETURNING `+stockColumns),
		delta, now(), productID, storeID, delta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d store %d cannot release %d units", ErrInsufficientStock, productID, storeID, -delta)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrease stock: %w", err)
	}
	return &level, nil
}

// SetThreshold updates the reorder point and bin label
func (r *StockRepository) SetThreshold(ctx context.Context, q Querier, productID, storeID int64, minThreshold int, location string) (*models.StockLevel, error) {
	if minThreshold < 0 {
		return nil, fmt.Errorf("%w: threshold cannot be negative", ErrInvalidQuantity)
	}

	var level models.StockLevel
	err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
		INSERT INTO stock_levels (product_id, store_id, on_hand, reserved, min_threshold, location, updated_at)
		VALUES (?, ?, 0, 0, ?, ?, ?)
		ON CONFLICT (product_id, store_id) DO UPDATE SET
			min_threshold = excluded.min_threshold,
			location = excluded.location,
			version = stock_levels.version + 1,
			updated_at = excluded.updated_at
		RETURNING `+stockColumns),
		productID, storeID, minThreshold, location, now())
	if err != nil {
		return nil, fmt.Errorf("failed to set threshold: %w", err)
	}
	return &level, nil
}

// ReserveUnits earmarks quantity of the unreserved on-hand
func (r *StockRepository) ReserveUnits(ctx context.Context, q Querier, productID, storeID int64, quantity int) (*models.StockLevel, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: reservation must be positive", ErrInvalidQuantity)
	}

	var level models.StockLevel
	err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
		UPDATE stock_levels SET reserved = reserved + ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND store_id = ? AND reserved + ? <= on_hand
		RETURNING `+stockColumns),
		quantity, now(), productID, storeID, quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cannot reserve %d units", ErrInsufficientStock, quantity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}
	return &level, nil
}

// ReleaseUnits returns reserved units to the unreserved pool
func (r *StockRepository) ReleaseUnits(ctx context.Context, q Querier, productID, storeID int64, quantity int) (*models.StockLevel, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: release must be positive", ErrInvalidQuantity)
	}

	var level models.StockLevel
	err := sqlx.GetContext(ctx, q, &level, q.Rebind(`
		UPDATE stock_levels SET reserved = reserved - ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND store_id = ? AND reserved >= ?
		RETURNING `+stockColumns),
		quantity, now(), productID, storeID, quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cannot release %d reserved units", ErrInvalidQuantity, quantity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release stock: %w", err)
	}
	return &level, nil
}

// ListLowStock returns the levels of a store at or below their reorder point
func (r *StockRepository) ListLowStock(ctx context.Context, q Querier, storeID int64) ([]models.StockLevel, error) {
	levels := []models.StockLevel{}
	err := sqlx.SelectContext(ctx, q, &levels, q.Rebind(`
		SELECT `+stockColumns+` FROM stock_levels
		WHERE store_id = ? AND min_threshold > 0 AND on_hand <= min_threshold
		ORDER BY on_hand - min_threshold, product_id`),
		storeID)
	return levels, err
}

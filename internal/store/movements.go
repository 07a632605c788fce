package store

import (
	"context"
	"fmt"
	"strings"

	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const movementColumns = `id, product_id, store_id, kind, delta, balance_after, unit_price, reason, actor_id, created_at`

// MovementLog is the append-only stock ledger. Rows are never updated or deleted.
type MovementLog struct{}

func NewMovementLog() *MovementLog {
	return &MovementLog{}
}

// Append inserts m and sets its ID and CreatedAt
func (l *MovementLog) Append(ctx context.Context, q Querier, m *models.StockMovement) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}

	err := sqlx.GetContext(ctx, q, &m.ID, q.Rebind(`
		INSERT INTO stock_movements (product_id, store_id, kind, delta, balance_after, unit_price, reason, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		m.ProductID, m.StoreID, m.Kind, m.Delta, m.BalanceAfter, m.UnitPrice, m.Reason, m.ActorID, m.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append movement: %w", err)
	}
	return m.ID, nil
}

// SumDeltas totals every movement recorded for a pair
func (l *MovementLog) SumDeltas(ctx context.Context, q Querier, productID, storeID int64) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q, &total, q.Rebind(`
		SELECT CAST(COALESCE(SUM(delta), 0) AS BIGINT) FROM stock_movements
		WHERE product_id = ? AND store_id = ?`),
		productID, storeID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum movements: %w", err)
	}
	return total, nil
}

// List returns movements in insertion order
func (l *MovementLog) List(ctx context.Context, q Querier, f models.MovementFilter) ([]models.StockMovement, error) {
	conditions := []string{}
	args := []interface{}{}

	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.StoreID != 0 {
		conditions = append(conditions, "store_id = ?")
		args = append(args, f.StoreID)
	}
	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, f.Kind)
	}

	query := "SELECT " + movementColumns + " FROM stock_movements"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	movements := []models.StockMovement{}
	err := sqlx.SelectContext(ctx, q, &movements, q.Rebind(query), args...)
	return movements, err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// CatalogRepository reads the product and store reference data owned by the web front end
type CatalogRepository struct{}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

// GetProductByID retrieves an active product
func (r *CatalogRepository) GetProductByID(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q, &product, q.Rebind(
		`SELECT id, sku, name, price, active FROM products WHERE id = ? AND active`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetStoreByID retrieves an active store
func (r *CatalogRepository) GetStoreByID(ctx context.Context, q Querier, id int64) (*models.Store, error) {
	var st models.Store
	err := sqlx.GetContext(ctx, q, &st, q.Rebind(
		`SELECT id, name, active FROM stores WHERE id = ? AND active`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: store %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// MarkEventProcessed records an inbound event id. It reports false when the
// id was already recorded, which makes a replayed command a no-op when called
// inside the command's own transaction.
func (r *CatalogRepository) MarkEventProcessed(ctx context.Context, q Querier, eventID, eventType string) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(
		`INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`),
		eventID, eventType, now())
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

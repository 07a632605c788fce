package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const saleColumns = `id, device_id, product_id, store_id, seller_id, customer_name, customer_document,
	customer_phone, quantity, unit_price, discount, total, payment_method, created_at`

// SaleRepository records completed sales
type SaleRepository struct{}

func NewSaleRepository() *SaleRepository {
	return &SaleRepository{}
}

// CreateSale inserts s and sets its ID and CreatedAt
func (r *SaleRepository) CreateSale(ctx context.Context, q Querier, s *models.Sale) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now()
	}

	err := sqlx.GetContext(ctx, q, &s.ID, q.Rebind(`
		INSERT INTO sales (device_id, product_id, store_id, seller_id, customer_name, customer_document,
			customer_phone, quantity, unit_price, discount, total, payment_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		s.DeviceID, s.ProductID, s.StoreID, s.SellerID, s.Customer.Name, s.Customer.Document,
		s.Customer.Phone, s.Quantity, s.UnitPrice, s.Discount, s.Total, s.PaymentMethod, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

// GetSale retrieves a sale by ID
func (r *SaleRepository) GetSale(ctx context.Context, q Querier, id int64) (*models.Sale, error) {
	var s models.Sale
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

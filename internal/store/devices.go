package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const deviceColumns = `id, store_id, imei1, imei2, brand, model, capacity, color, condition, status,
	purchase_price, sale_price, created_at, updated_at`

// DeviceRepository owns serialized device rows
type DeviceRepository struct{}

func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{}
}

// CreateDevice inserts d and sets its ID and timestamps
func (r *DeviceRepository) CreateDevice(ctx context.Context, q Querier, d *models.Device) error {
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts

	err := sqlx.GetContext(ctx, q, &d.ID, q.Rebind(`
		INSERT INTO devices (store_id, imei1, imei2, brand, model, capacity, color, condition, status,
			purchase_price, sale_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		d.StoreID, d.IMEI1, d.IMEI2, d.Brand, d.Model, d.Capacity, d.Color, d.Condition, d.Status,
		d.PurchasePrice, d.SalePrice, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: imei %s already registered", ErrDuplicate, d.IMEI1)
	}
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by ID
func (r *DeviceRepository) GetDevice(ctx context.Context, q Querier, id int64) (*models.Device, error) {
	var d models.Device
	err := sqlx.GetContext(ctx, q, &d, q.Rebind(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: device %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeviceStatus returns the current status of a device
func (r *DeviceRepository) GetDeviceStatus(ctx context.Context, q Querier, id int64) (models.DeviceStatus, error) {
	var status models.DeviceStatus
	err := sqlx.GetContext(ctx, q, &status, q.Rebind(`SELECT status FROM devices WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: device %d", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// TransitionDeviceStatus is a compare-and-set: the row changes only if its
// persisted status still equals expected when the UPDATE runs.
func (r *DeviceRepository) TransitionDeviceStatus(ctx context.Context, q Querier, id int64, expected, next models.DeviceStatus) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE devices SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		next, now(), id, expected)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	current, err := r.GetDeviceStatus(ctx, q, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: device %d is %s, expected %s", ErrStateConflict, id, current, expected)
}

// DeleteDevice hard-deletes a device that no sale references
func (r *DeviceRepository) DeleteDevice(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		DELETE FROM devices
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM sales WHERE device_id = ?)`),
		id, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	if _, err := r.GetDeviceStatus(ctx, q, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: device %d is referenced by a sale", ErrStateConflict, id)
}

// ListDevices returns devices newest first
func (r *DeviceRepository) ListDevices(ctx context.Context, q Querier, f models.DeviceFilter) ([]models.Device, error) {
	conditions := []string{}
	args := []interface{}{}

	if f.StoreID != 0 {
		conditions = append(conditions, "store_id = ?")
		args = append(args, f.StoreID)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}

	query := "SELECT " + deviceColumns + " FROM devices"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	devices := []models.Device{}
	err := sqlx.SelectContext(ctx, q, &devices, q.Rebind(query), args...)
	return devices, err
}

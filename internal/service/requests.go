package service

import (
	"fmt"
	"math"
	"strings"

	"stock-ledger/internal/models"
)

// ReceiveStockRequest books a stock receipt for a (product, store) pair
type ReceiveStockRequest struct {
	ProductID int64
	StoreID   int64
	Quantity  int
	UnitPrice int64 // cents
	Reason    string
	// SourceEventID makes the receipt idempotent for commands arriving from the broker
	SourceEventID string
}

func (r *ReceiveStockRequest) validate() error {
	if r.ProductID <= 0 || r.StoreID <= 0 {
		return fmt.Errorf("%w: product_id and store_id are required", ErrInvalidRequest)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: receipt quantity must be positive, got %d", ErrInvalidQuantity, r.Quantity)
	}
	if r.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price cannot be negative", ErrInvalidPrice)
	}
	if strings.TrimSpace(r.Reason) == "" {
		r.Reason = "purchase"
	}
	return nil
}

// AdjustStockRequest corrects on-hand to an absolute physical count
type AdjustStockRequest struct {
	ProductID   int64
	StoreID     int64
	NewQuantity int
	Reason      string
}

func (r *AdjustStockRequest) validate() error {
	if r.ProductID <= 0 || r.StoreID <= 0 {
		return fmt.Errorf("%w: product_id and store_id are required", ErrInvalidRequest)
	}
	if r.NewQuantity < 0 {
		return fmt.Errorf("%w: counted quantity cannot be negative, got %d", ErrInvalidQuantity, r.NewQuantity)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("%w: adjustment reason is required", ErrInvalidRequest)
	}
	return nil
}

// SellProductRequest sells aggregate-tracked units
type SellProductRequest struct {
	ProductID     int64
	StoreID       int64
	Quantity      int
	UnitPrice     int64 // cents
	Discount      int64 // cents, applied to the whole line
	PaymentMethod models.PaymentMethod
	Customer      models.Customer
}

// Subtotal is quantity times unit price before discount
func (r *SellProductRequest) Subtotal() int64 {
	return int64(r.Quantity) * r.UnitPrice
}

func (r *SellProductRequest) validate() error {
	if r.ProductID <= 0 || r.StoreID <= 0 {
		return fmt.Errorf("%w: product_id and store_id are required", ErrInvalidRequest)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: sale quantity must be positive, got %d", ErrInvalidQuantity, r.Quantity)
	}
	if r.UnitPrice <= 0 {
		return fmt.Errorf("%w: unit price must be positive", ErrInvalidPrice)
	}
	if r.UnitPrice > math.MaxInt64/int64(r.Quantity) {
		return fmt.Errorf("%w: %d units at %d overflow the line total", ErrInvalidPrice, r.Quantity, r.UnitPrice)
	}
	if r.Discount < 0 || r.Discount > r.Subtotal() {
		return fmt.Errorf("%w: discount %d outside 0..%d", ErrInvalidDiscount, r.Discount, r.Subtotal())
	}
	return validatePayment(&r.PaymentMethod)
}

// SellDeviceRequest sells one serialized device
type SellDeviceRequest struct {
	DeviceID      int64
	SalePrice     int64 // cents
	Discount      int64 // cents
	PaymentMethod models.PaymentMethod
	Customer      models.Customer
}

func (r *SellDeviceRequest) validate() error {
	if r.DeviceID <= 0 {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}
	if r.SalePrice <= 0 {
		return fmt.Errorf("%w: sale price must be positive", ErrInvalidPrice)
	}
	if r.Discount < 0 || r.Discount > r.SalePrice {
		return fmt.Errorf("%w: discount %d outside 0..%d", ErrInvalidDiscount, r.Discount, r.SalePrice)
	}
	return validatePayment(&r.PaymentMethod)
}

func validatePayment(m *models.PaymentMethod) error {
	if *m == "" {
		*m = models.PaymentCash
	}
	if !m.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, *m)
	}
	return nil
}

// RegisterDeviceRequest is a device intake
type RegisterDeviceRequest struct {
	StoreID       int64
	IMEI1         string
	IMEI2         string
	Brand         string
	Model         string
	Capacity      string
	Color         string
	Condition     models.DeviceCondition
	PurchasePrice *int64
	SalePrice     int64
}

func (r *RegisterDeviceRequest) validate() error {
	if r.StoreID <= 0 {
		return fmt.Errorf("%w: store_id is required", ErrInvalidRequest)
	}
	if !validIMEI(r.IMEI1) {
		return fmt.Errorf("%w: imei1 must be 15 digits", ErrInvalidRequest)
	}
	if r.IMEI2 != "" && (!validIMEI(r.IMEI2) || r.IMEI2 == r.IMEI1) {
		return fmt.Errorf("%w: imei2 must be 15 digits and differ from imei1", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Brand) == "" || strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: brand and model are required", ErrInvalidRequest)
	}
	if r.Condition == "" {
		r.Condition = models.ConditionNew
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidRequest, r.Condition)
	}
	if r.SalePrice <= 0 {
		return fmt.Errorf("%w: sale price must be positive", ErrInvalidPrice)
	}
	if r.PurchasePrice != nil && *r.PurchasePrice < 0 {
		return fmt.Errorf("%w: purchase price cannot be negative", ErrInvalidPrice)
	}
	return nil
}

func validIMEI(s string) bool {
	if len(s) != 15 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ThresholdRequest sets the reorder point and bin label of a pair
type ThresholdRequest struct {
	ProductID    int64
	StoreID      int64
	MinThreshold int
	Location     string
}

func (r *ThresholdRequest) validate() error {
	if r.ProductID <= 0 || r.StoreID <= 0 {
		return fmt.Errorf("%w: product_id and store_id are required", ErrInvalidRequest)
	}
	if r.MinThreshold < 0 {
		return fmt.Errorf("%w: threshold cannot be negative", ErrInvalidQuantity)
	}
	return nil
}

// ReservationRequest earmarks or releases units of a pair
type ReservationRequest struct {
	ProductID int64
	StoreID   int64
	Quantity  int
}

func (r *ReservationRequest) validate() error {
	if r.ProductID <= 0 || r.StoreID <= 0 {
		return fmt.Errorf("%w: product_id and store_id are required", ErrInvalidRequest)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidQuantity, r.Quantity)
	}
	return nil
}

package models

import "time"

// Store is a physical shop location
type Store struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// Product is a catalog item tracked by aggregate quantity (accessories, chargers, cases)
type Product struct {
	ID     int64  `db:"id" json:"id"`
	SKU    string `db:"sku" json:"sku"`
	Name   string `db:"name" json:"name"`
	Price  int64  `db:"price" json:"price"`
	Active bool   `db:"active" json:"active"`
}

// StockLevel is the on-hand aggregate for one (product, store) pair
type StockLevel struct {
	ProductID    int64     `db:"product_id" json:"product_id"`
	StoreID      int64     `db:"store_id" json:"store_id"`
	OnHand       int       `db:"on_hand" json:"on_hand"`
	Reserved     int       `db:"reserved" json:"reserved"`
	MinThreshold int       `db:"min_threshold" json:"min_threshold"`
	Location     string    `db:"location" json:"location"`
	// Version grows with every committed change of the row; zero when never stocked
	Version      int64     `db:"version" json:"version"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Available is on-hand minus reservations
func (s StockLevel) Available() int {
	return s.OnHand - s.Reserved
}

// BelowThreshold reports whether the level sits at or under its reorder point
func (s StockLevel) BelowThreshold() bool {
	return s.MinThreshold > 0 && s.OnHand <= s.MinThreshold
}

// MovementKind classifies a stock movement
type MovementKind string

// Movement kinds
const (
	MovementEntry      MovementKind = "entry"
	MovementAdjustment MovementKind = "adjustment"
	MovementSaleExit   MovementKind = "sale_exit"
)

// StockMovement is one immutable entry of the stock ledger
type StockMovement struct {
	ID           int64        `db:"id" json:"id"`
	ProductID    int64        `db:"product_id" json:"product_id"`
	StoreID      int64        `db:"store_id" json:"store_id"`
	Kind         MovementKind `db:"kind" json:"kind"`
	Delta        int          `db:"delta" json:"delta"`
	BalanceAfter int          `db:"balance_after" json:"balance_after"`
	UnitPrice    int64        `db:"unit_price" json:"unit_price"`
	Reason       string       `db:"reason" json:"reason"`
	ActorID      int64        `db:"actor_id" json:"actor_id"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// DeviceStatus is the lifecycle state of a serialized phone
type DeviceStatus string

// Device statuses
const (
	DeviceAvailable DeviceStatus = "available"
	DeviceSold      DeviceStatus = "sold"
	DeviceReserved  DeviceStatus = "reserved"
	DeviceInRepair  DeviceStatus = "in_repair"
)

// Valid reports whether s is a known status
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceAvailable, DeviceSold, DeviceReserved, DeviceInRepair:
		return true
	}
	return false
}

// CanTransition reports whether an administrative change from s to next is allowed.
// Sales are not administrative: available -> sold only happens through a sale.
func (s DeviceStatus) CanTransition(next DeviceStatus) bool {
	switch s {
	case DeviceAvailable:
		return next == DeviceReserved || next == DeviceInRepair
	case DeviceReserved, DeviceInRepair:
		return next == DeviceAvailable
	}
	return false
}

// DeviceCondition describes the physical state of a device
type DeviceCondition string

// Device conditions
const (
	ConditionNew         DeviceCondition = "new"
	ConditionUsed        DeviceCondition = "used"
	ConditionRefurbished DeviceCondition = "refurbished"
)

// Valid reports whether c is a known condition
func (c DeviceCondition) Valid() bool {
	return c == ConditionNew || c == ConditionUsed || c == ConditionRefurbished
}

// Device is a serialized phone unit
type Device struct {
	ID            int64           `db:"id" json:"id"`
	StoreID       int64           `db:"store_id" json:"store_id"`
	IMEI1         string          `db:"imei1" json:"imei1"`
	IMEI2         *string         `db:"imei2" json:"imei2,omitempty"`
	Brand         string          `db:"brand" json:"brand"`
	Model         string          `db:"model" json:"model"`
	Capacity      string          `db:"capacity" json:"capacity"`
	Color         string          `db:"color" json:"color"`
	Condition     DeviceCondition `db:"condition" json:"condition"`
	Status        DeviceStatus    `db:"status" json:"status"`
	PurchasePrice *int64          `db:"purchase_price" json:"purchase_price,omitempty"`
	SalePrice     int64           `db:"sale_price" json:"sale_price"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentMethod used to settle a sale
type PaymentMethod string

// Payment methods
const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard || m == PaymentTransfer
}

// Customer identifies the buyer on a sale
type Customer struct {
	Name     string `db:"customer_name" json:"name"`
	Document string `db:"customer_document" json:"document,omitempty"`
	Phone    string `db:"customer_phone" json:"phone,omitempty"`
}

// Sale records a device sale or a product-unit sale; exactly one of DeviceID and ProductID is set
type Sale struct {
	ID            int64         `db:"id" json:"id"`
	DeviceID      *int64        `db:"device_id" json:"device_id,omitempty"`
	ProductID     *int64        `db:"product_id" json:"product_id,omitempty"`
	StoreID       int64         `db:"store_id" json:"store_id"`
	SellerID      int64         `db:"seller_id" json:"seller_id"`
	Customer                    `json:"customer"`
	Quantity      int           `db:"quantity" json:"quantity"`
	UnitPrice     int64         `db:"unit_price" json:"unit_price"`
	Discount      int64         `db:"discount" json:"discount"`
	Total         int64         `db:"total" json:"total"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// Role of the acting user
type Role string

// Roles
const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "vendedor"
)

// Actor is the authenticated caller of a ledger operation
type Actor struct {
	UserID     int64 `json:"user_id"`
	StoreID    int64 `json:"store_id"`
	Role       Role  `json:"role"`
	CrossStore bool  `json:"cross_store"`
}

// CanAccess reports whether the actor may operate on rows of storeID
func (a Actor) CanAccess(storeID int64) bool {
	if a.Role == RoleAdmin || a.CrossStore {
		return true
	}
	return a.StoreID == storeID
}

// MovementFilter narrows a movement history listing
type MovementFilter struct {
	ProductID int64
	StoreID   int64
	Kind      MovementKind
	Limit     int
	Offset    int
}

// DeviceFilter narrows a device listing
type DeviceFilter struct {
	StoreID int64
	Status  DeviceStatus
	Limit   int
	Offset  int
}

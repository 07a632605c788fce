package models

import "time"

// Event types
const (
	EventTypeStockReceived         = "STOCK_RECEIVED"
	EventTypeStockAdjusted         = "STOCK_ADJUSTED"
	EventTypeProductUnitsSold      = "PRODUCT_UNITS_SOLD"
	EventTypeDeviceSold            = "DEVICE_SOLD"
	EventTypeDeviceStatusChanged   = "DEVICE_STATUS_CHANGED"
	EventTypeLowStockAlert         = "LOW_STOCK_ALERT"
	EventTypeStockReceiptRequested = "STOCK_RECEIPT_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockMovedEvent is published after a receipt, adjustment or unit sale commits
type StockMovedEvent struct {
	BaseEvent
	MovementID int64        `json:"movement_id"`
	ProductID  int64        `json:"product_id"`
	StoreID    int64        `json:"store_id"`
	Kind       MovementKind `json:"kind"`
	Delta      int          `json:"delta"`
	OnHand     int          `json:"on_hand"`
	ActorID    int64        `json:"actor_id"`
	SaleID     int64        `json:"sale_id,omitempty"`
}

// DeviceSoldEvent published when a device sale commits
type DeviceSoldEvent struct {
	BaseEvent
	DeviceID int64 `json:"device_id"`
	StoreID  int64 `json:"store_id"`
	SaleID   int64 `json:"sale_id"`
	Total    int64 `json:"total"`
	SellerID int64 `json:"seller_id"`
}

// DeviceStatusChangedEvent published on administrative status changes
type DeviceStatusChangedEvent struct {
	BaseEvent
	DeviceID int64        `json:"device_id"`
	StoreID  int64        `json:"store_id"`
	From     DeviceStatus `json:"from"`
	To       DeviceStatus `json:"to"`
	ActorID  int64        `json:"actor_id"`
}

// LowStockAlertEvent published when on-hand drops below the reorder point
type LowStockAlertEvent struct {
	BaseEvent
	ProductID    int64 `json:"product_id"`
	StoreID      int64 `json:"store_id"`
	OnHand       int   `json:"on_hand"`
	MinThreshold int   `json:"min_threshold"`
}

// StockReceiptRequestedEvent is an inbound command from purchasing
type StockReceiptRequestedEvent struct {
	BaseEvent
	ProductID  int64  `json:"product_id"`
	StoreID    int64  `json:"store_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Reason     string `json:"reason"`
	ReceivedBy int64  `json:"received_by"`
}

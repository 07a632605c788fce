package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes one keyed event; *Producer is the Kafka implementation
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher publishes committed ledger changes
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func stockKey(productID, storeID int64) string {
	return fmt.Sprintf("stock-%d-%d", productID, storeID)
}

func deviceKey(deviceID int64) string {
	return fmt.Sprintf("device-%d", deviceID)
}

// PublishStockMoved publishes a receipt, adjustment or unit sale
func (ep *EventPublisher) PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error {
	return ep.producer.PublishEvent(ctx, stockKey(event.ProductID, event.StoreID), event)
}

// PublishLowStockAlert publishes a LowStockAlert event
func (ep *EventPublisher) PublishLowStockAlert(ctx context.Context, event *models.LowStockAlertEvent) error {
	return ep.producer.PublishEvent(ctx, stockKey(event.ProductID, event.StoreID), event)
}

// PublishDeviceSold publishes a DeviceSold event
func (ep *EventPublisher) PublishDeviceSold(ctx context.Context, event *models.DeviceSoldEvent) error {
	return ep.producer.PublishEvent(ctx, deviceKey(event.DeviceID), event)
}

// PublishDeviceStatusChanged publishes a DeviceStatusChanged event
func (ep *EventPublisher) PublishDeviceStatusChanged(ctx context.Context, event *models.DeviceStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, deviceKey(event.DeviceID), event)
}

// CommandHandler routes inbound commands to registered handlers
type CommandHandler struct {
	onStockReceiptRequested func(context.Context, *models.StockReceiptRequestedEvent) error
	logger                  *zap.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler() *CommandHandler {
	return &CommandHandler{logger: util.GetLogger()}
}

// OnStockReceiptRequested registers a handler for StockReceiptRequested commands
func (ch *CommandHandler) OnStockReceiptRequested(handler func(context.Context, *models.StockReceiptRequestedEvent) error) {
	ch.onStockReceiptRequested = handler
}

// HandleMessage routes messages to appropriate handlers. Messages that can
// never be processed are logged and acknowledged.
func (ch *CommandHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		util.EventsConsumedTotal.WithLabelValues("unknown", "malformed").Inc()
		ch.logger.Error("Dropping malformed message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	ch.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeStockReceiptRequested:
		if ch.onStockReceiptRequested == nil {
			return nil
		}
		var event models.StockReceiptRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, "malformed").Inc()
			ch.logger.Error("Dropping malformed StockReceiptRequested command", zap.Error(err))
			return nil
		}
		return ch.onStockReceiptRequested(ctx, &event)

	default:
		util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, "ignored").Inc()
		ch.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

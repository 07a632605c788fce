package worker

import (
	"context"
	"errors"

	"stock-ledger/internal/broker"
	"stock-ledger/internal/models"
	"stock-ledger/internal/service"
	"stock-ledger/internal/util"

	"go.uber.org/zap"
)

// ReceiptLedger is the part of the ledger the receipt worker drives
type ReceiptLedger interface {
	ReceiveStock(ctx context.Context, actor models.Actor, req service.ReceiveStockRequest) (*service.StockResult, error)
}

// ReceiptWorker books stock receipts requested by purchasing over Kafka
type ReceiptWorker struct {
	consumer *broker.Consumer
	handler  *broker.CommandHandler
	ledger   ReceiptLedger
	logger   *zap.Logger
}

// NewReceiptWorker creates a new receipt worker
func NewReceiptWorker(consumer *broker.Consumer, ledger ReceiptLedger) *ReceiptWorker {
	w := &ReceiptWorker{
		consumer: consumer,
		handler:  broker.NewCommandHandler(),
		ledger:   ledger,
		logger:   util.GetLogger(),
	}
	w.handler.OnStockReceiptRequested(w.HandleReceipt)
	return w
}

// Start starts the worker
func (w *ReceiptWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting receipt worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *ReceiptWorker) Stop() error {
	w.logger.Info("Stopping receipt worker")
	return w.consumer.Close()
}

// HandleReceipt books one receipt command. The command's event id makes the
// receipt idempotent, so a redelivered command is acknowledged without
// booking the units twice. Only persistence failures are returned; the
// consumer retries those until the receipt is booked.
func (w *ReceiptWorker) HandleReceipt(ctx context.Context, event *models.StockReceiptRequestedEvent) error {
	if event.EventID == "" {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "rejected").Inc()
		w.logger.Error("Dropping receipt command without event id",
			zap.Int64("product_id", event.ProductID),
			zap.Int64("store_id", event.StoreID))
		return nil
	}

	actor := models.Actor{
		UserID:  event.ReceivedBy,
		StoreID: event.StoreID,
		Role:    models.RoleSeller,
	}
	_, err := w.ledger.ReceiveStock(ctx, actor, service.ReceiveStockRequest{
		ProductID:     event.ProductID,
		StoreID:       event.StoreID,
		Quantity:      event.Quantity,
		UnitPrice:     event.UnitPrice,
		Reason:        event.Reason,
		SourceEventID: event.EventID,
	})

	switch {
	case err == nil:
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "processed").Inc()
		return nil
	case errors.Is(err, service.ErrAlreadyProcessed):
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		w.logger.Info("Receipt command already processed", zap.String("event_id", event.EventID))
		return nil
	case service.IsDomainError(err):
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "rejected").Inc()
		w.logger.Warn("Receipt command rejected",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return nil
	default:
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "failed").Inc()
		return err
	}
}

package service

import (
	"context"
	"fmt"
	"strings"

	"stock-ledger/internal/models"
	"stock-ledger/internal/store"

	"go.uber.org/zap"
)

// RegisterDevice takes a serialized device into a store's inventory as available
func (s *LedgerService) RegisterDevice(ctx context.Context, actor models.Actor, req RegisterDeviceRequest) (*models.Device, error) {
	var device *models.Device
	err := s.run(ctx, "RegisterDevice", func(ctx context.Context) error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := checkActor(actor, req.StoreID); err != nil {
			return err
		}

		return s.db.WithTx(ctx, func(q store.Querier) error {
			if _, err := s.repos.Catalog.GetStoreByID(ctx, q, req.StoreID); err != nil {
				return err
			}

			device = &models.Device{
				StoreID:       req.StoreID,
				IMEI1:         req.IMEI1,
				Brand:         strings.TrimSpace(req.Brand),
				Model:         strings.TrimSpace(req.Model),
				Capacity:      req.Capacity,
				Color:         req.Color,
				Condition:     req.Condition,
				Status:        models.DeviceAvailable,
				PurchasePrice: req.PurchasePrice,
				SalePrice:     req.SalePrice,
			}
			if req.IMEI2 != "" {
				imei2 := req.IMEI2
				device.IMEI2 = &imei2
			}
			return s.repos.Devices.CreateDevice(ctx, q, device)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Device registered",
		zap.Int64("device_id", device.ID),
		zap.Int64("store_id", device.StoreID),
		zap.String("imei1", device.IMEI1))
	return device, nil
}

// ChangeDeviceStatus applies an administrative status change. The change is
// a compare-and-set against the status read in the same transaction, so it
// cannot overwrite a sale that committed in between.
func (s *LedgerService) ChangeDeviceStatus(ctx context.Context, actor models.Actor, deviceID int64, next models.DeviceStatus) (*models.Device, error) {
	var (
		device *models.Device
		from   models.DeviceStatus
	)
	err := s.run(ctx, "ChangeDeviceStatus", func(ctx context.Context) error {
		if err := requireActor(actor); err != nil {
			return err
		}
		if deviceID <= 0 || !next.Valid() {
			return fmt.Errorf("%w: device %d status %q", ErrInvalidRequest, deviceID, next)
		}

		return s.db.WithTx(ctx, func(q store.Querier) error {
			var err error
			device, err = s.repos.Devices.GetDevice(ctx, q, deviceID)
			if err != nil {
				return err
			}
			if err := checkScope(actor, device.StoreID); err != nil {
				return err
			}

			from = device.Status
			if !from.CanTransition(next) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
			}
			if err := s.repos.Devices.TransitionDeviceStatus(ctx, q, deviceID, from, next); err != nil {
				return err
			}

			device.Status = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Device status changed",
		zap.Int64("device_id", deviceID),
		zap.String("from", string(from)),
		zap.String("to", string(next)))

	if s.publisher != nil {
		event := &models.DeviceStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeDeviceStatusChanged),
			DeviceID:  deviceID,
			StoreID:   device.StoreID,
			From:      from,
			To:        next,
			ActorID:   actor.UserID,
		}
		s.publish(models.EventTypeDeviceStatusChanged, s.publisher.PublishDeviceStatusChanged(ctx, event))
	}
	return device, nil
}

// DeleteDevice hard-deletes a device that was never sold
func (s *LedgerService) DeleteDevice(ctx context.Context, actor models.Actor, deviceID int64) error {
	return s.run(ctx, "DeleteDevice", func(ctx context.Context) error {
		if err := requireActor(actor); err != nil {
			return err
		}

		err := s.db.WithTx(ctx, func(q store.Querier) error {
			device, err := s.repos.Devices.GetDevice(ctx, q, deviceID)
			if err != nil {
				return err
			}
			if err := checkScope(actor, device.StoreID); err != nil {
				return err
			}
			return s.repos.Devices.DeleteDevice(ctx, q, deviceID)
		})
		if err == nil {
			s.logger.Info("Device deleted", zap.Int64("device_id", deviceID), zap.Int64("actor_id", actor.UserID))
		}
		return err
	})
}

// GetDevice returns one device of a store the actor may access
func (s *LedgerService) GetDevice(ctx context.Context, actor models.Actor, deviceID int64) (*models.Device, error) {
	device, err := s.repos.Devices.GetDevice(ctx, s.db.Querier(), deviceID)
	if err != nil {
		return nil, classify("GetDevice", err)
	}
	if err := checkScope(actor, device.StoreID); err != nil {
		return nil, err
	}
	return device, nil
}

// ListDevices lists devices; actors without cross-store access only see their own store
func (s *LedgerService) ListDevices(ctx context.Context, actor models.Actor, filter models.DeviceFilter) ([]models.Device, error) {
	if err := scopeFilter(actor, &filter.StoreID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}
	filter.Limit, filter.Offset = page(filter.Limit, filter.Offset)

	devices, err := s.repos.Devices.ListDevices(ctx, s.db.Querier(), filter)
	if err != nil {
		return nil, classify("ListDevices", err)
	}
	return devices, nil
}

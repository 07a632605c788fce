package api

import (
	"net/http"

	"stock-ledger/internal/models"
	"stock-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type registerDeviceRequest struct {
	StoreID       int64  `json:"store_id" binding:"required"`
	IMEI1         string `json:"imei1" binding:"required"`
	IMEI2         string `json:"imei2"`
	Brand         string `json:"brand" binding:"required"`
	Model         string `json:"model" binding:"required"`
	Capacity      string `json:"capacity"`
	Color         string `json:"color"`
	Condition     string `json:"condition"`
	PurchasePrice *Money `json:"purchase_price"`
	SalePrice     Money  `json:"sale_price"`
}

type deviceStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type deviceView struct {
	ID            int64                  `json:"id"`
	StoreID       int64                  `json:"store_id"`
	IMEI1         string                 `json:"imei1"`
	IMEI2         *string                `json:"imei2,omitempty"`
	Brand         string                 `json:"brand"`
	Model         string                 `json:"model"`
	Capacity      string                 `json:"capacity"`
	Color         string                 `json:"color"`
	Condition     models.DeviceCondition `json:"condition"`
	Status        models.DeviceStatus    `json:"status"`
	PurchasePrice *Money                 `json:"purchase_price,omitempty"`
	SalePrice     Money                  `json:"sale_price"`
}

func newDeviceView(d *models.Device) deviceView {
	return deviceView{
		ID:            d.ID,
		StoreID:       d.StoreID,
		IMEI1:         d.IMEI1,
		IMEI2:         d.IMEI2,
		Brand:         d.Brand,
		Model:         d.Model,
		Capacity:      d.Capacity,
		Color:         d.Color,
		Condition:     d.Condition,
		Status:        d.Status,
		PurchasePrice: moneyPtr(d.PurchasePrice),
		SalePrice:     Money(d.SalePrice),
	}
}

// registerDevice handles POST /devices
func (h *Handler) registerDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	var purchasePrice *int64
	if req.PurchasePrice != nil {
		cents := req.PurchasePrice.Cents()
		purchasePrice = &cents
	}

	device, err := h.ledger.RegisterDevice(c.Request.Context(), actorFrom(c), service.RegisterDeviceRequest{
		StoreID:       req.StoreID,
		IMEI1:         req.IMEI1,
		IMEI2:         req.IMEI2,
		Brand:         req.Brand,
		Model:         req.Model,
		Capacity:      req.Capacity,
		Color:         req.Color,
		Condition:     models.DeviceCondition(req.Condition),
		PurchasePrice: purchasePrice,
		SalePrice:     req.SalePrice.Cents(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDeviceView(device))
}

// getDevice handles GET /devices/:id
func (h *Handler) getDevice(c *gin.Context) {
	deviceID, ok := paramID(c, "id")
	if !ok {
		return
	}

	device, err := h.ledger.GetDevice(c.Request.Context(), actorFrom(c), deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeviceView(device))
}

// listDevices handles GET /devices
func (h *Handler) listDevices(c *gin.Context) {
	storeID, ok := queryInt(c, "store_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	devices, err := h.ledger.ListDevices(c.Request.Context(), actorFrom(c), models.DeviceFilter{
		StoreID: int64(storeID),
		Status:  models.DeviceStatus(c.Query("status")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for i := range devices {
		views = append(views, newDeviceView(&devices[i]))
	}
	c.JSON(http.StatusOK, gin.H{"devices": views})
}

// changeDeviceStatus handles PATCH /devices/:id/status
func (h *Handler) changeDeviceStatus(c *gin.Context) {
	deviceID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req deviceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	device, err := h.ledger.ChangeDeviceStatus(c.Request.Context(), actorFrom(c), deviceID, models.DeviceStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeviceView(device))
}

// deleteDevice handles DELETE /devices/:id
func (h *Handler) deleteDevice(c *gin.Context) {
	deviceID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.ledger.DeleteDevice(c.Request.Context(), actorFrom(c), deviceID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

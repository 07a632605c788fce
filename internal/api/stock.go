package api

import (
	"context"
	"net/http"

	"stock-ledger/internal/models"
	"stock-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type receiveStockRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	StoreID   int64  `json:"store_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
	Reason    string `json:"reason"`
}

type adjustStockRequest struct {
	ProductID   int64  `json:"product_id" binding:"required"`
	StoreID     int64  `json:"store_id" binding:"required"`
	NewQuantity *int   `json:"new_quantity" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
}

type reservationRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	StoreID   int64 `json:"store_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type thresholdRequest struct {
	MinThreshold int    `json:"min_threshold"`
	Location     string `json:"location"`
}

type movementView struct {
	ID           int64               `json:"id"`
	ProductID    int64               `json:"product_id"`
	StoreID      int64               `json:"store_id"`
	Kind         models.MovementKind `json:"kind"`
	Delta        int                 `json:"delta"`
	BalanceAfter int                 `json:"balance_after"`
	UnitPrice    Money               `json:"unit_price"`
	Reason       string              `json:"reason"`
	ActorID      int64               `json:"actor_id"`
	CreatedAt    string              `json:"created_at"`
}

func newMovementView(m models.StockMovement) movementView {
	return movementView{
		ID:           m.ID,
		ProductID:    m.ProductID,
		StoreID:      m.StoreID,
		Kind:         m.Kind,
		Delta:        m.Delta,
		BalanceAfter: m.BalanceAfter,
		UnitPrice:    Money(m.UnitPrice),
		Reason:       m.Reason,
		ActorID:      m.ActorID,
		CreatedAt:    m.CreatedAt.UTC().Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// receiveStock handles POST /stock/receipts
func (h *Handler) receiveStock(c *gin.Context) {
	var req receiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.ledger.ReceiveStock(c.Request.Context(), actorFrom(c), service.ReceiveStockRequest{
		ProductID: req.ProductID,
		StoreID:   req.StoreID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice.Cents(),
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// adjustStock handles POST /stock/adjustments
func (h *Handler) adjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.ledger.AdjustStockToQuantity(c.Request.Context(), actorFrom(c), service.AdjustStockRequest{
		ProductID:   req.ProductID,
		StoreID:     req.StoreID,
		NewQuantity: *req.NewQuantity,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// reserveStock handles POST /stock/reservations
func (h *Handler) reserveStock(c *gin.Context) {
	h.reservation(c, h.ledger.ReserveStock)
}

// releaseStock handles DELETE /stock/reservations
func (h *Handler) releaseStock(c *gin.Context) {
	h.reservation(c, h.ledger.ReleaseStock)
}

func (h *Handler) reservation(c *gin.Context, apply func(context.Context, models.Actor, service.ReservationRequest) (*models.StockLevel, error)) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	level, err := apply(c.Request.Context(), actorFrom(c), service.ReservationRequest{
		ProductID: req.ProductID,
		StoreID:   req.StoreID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

// getStockLevel handles GET /stock/:product_id/:store_id
func (h *Handler) getStockLevel(c *gin.Context) {
	productID, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	storeID, ok := paramID(c, "store_id")
	if !ok {
		return
	}

	level, err := h.ledger.GetStockLevel(c.Request.Context(), actorFrom(c), productID, storeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"level":     level,
		"available": level.Available(),
	})
}

// listMovements handles GET /stock/:product_id/:store_id/movements
func (h *Handler) listMovements(c *gin.Context) {
	productID, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	storeID, ok := paramID(c, "store_id")
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

	movements, err := h.ledger.ListMovements(c.Request.Context(), actorFrom(c), models.MovementFilter{
		ProductID: productID,
		StoreID:   storeID,
		Kind:      models.MovementKind(c.Query("kind")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]movementView, 0, len(movements))
	for _, m := range movements {
		views = append(views, newMovementView(m))
	}
	c.JSON(http.StatusOK, gin.H{"movements": views})
}

// reconcile handles GET /stock/:product_id/:store_id/reconciliation
func (h *Handler) reconcile(c *gin.Context) {
	productID, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	storeID, ok := paramID(c, "store_id")
	if !ok {
		return
	}

	rec, err := h.ledger.Reconcile(c.Request.Context(), actorFrom(c), productID, storeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// setThreshold handles PUT /stock/:product_id/:store_id/threshold
func (h *Handler) setThreshold(c *gin.Context) {
	productID, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	storeID, ok := paramID(c, "store_id")
	if !ok {
		return
	}
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	level, err := h.ledger.SetStockThreshold(c.Request.Context(), actorFrom(c), service.ThresholdRequest{
		ProductID:    productID,
		StoreID:      storeID,
		MinThreshold: req.MinThreshold,
		Location:     req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

// listLowStock handles GET /stores/:store_id/low-stock
func (h *Handler) listLowStock(c *gin.Context) {
	storeID, ok := paramID(c, "store_id")
	if !ok {
		return
	}

	levels, err := h.ledger.ListLowStock(c.Request.Context(), actorFrom(c), storeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": levels})
}

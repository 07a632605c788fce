package api

import (
	"net/http"

	"stock-ledger/internal/models"
	"stock-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type customerRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

func (r customerRequest) toModel() models.Customer {
	return models.Customer{Name: r.Name, Document: r.Document, Phone: r.Phone}
}

type sellProductRequest struct {
	ProductID     int64           `json:"product_id" binding:"required"`
	StoreID       int64           `json:"store_id" binding:"required"`
	Quantity      int             `json:"quantity"`
	UnitPrice     Money           `json:"unit_price"`
	Discount      Money           `json:"discount"`
	PaymentMethod string          `json:"payment_method"`
	Customer      customerRequest `json:"customer"`
}

type sellDeviceRequest struct {
	DeviceID      int64           `json:"device_id" binding:"required"`
	SalePrice     Money           `json:"sale_price"`
	Discount      Money           `json:"discount"`
	PaymentMethod string          `json:"payment_method"`
	Customer      customerRequest `json:"customer"`
}

type saleResultView struct {
	SaleID     int64 `json:"sale_id"`
	MovementID int64 `json:"movement_id,omitempty"`
	Total      Money `json:"total"`
	OnHand     *int  `json:"on_hand,omitempty"`
}

type saleView struct {
	ID            int64                `json:"id"`
	DeviceID      *int64               `json:"device_id,omitempty"`
	ProductID     *int64               `json:"product_id,omitempty"`
	StoreID       int64                `json:"store_id"`
	SellerID      int64                `json:"seller_id"`
	Customer      models.Customer      `json:"customer"`
	Quantity      int                  `json:"quantity"`
	UnitPrice     Money                `json:"unit_price"`
	Discount      Money                `json:"discount"`
	Total         Money                `json:"total"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CreatedAt     string               `json:"created_at"`
}

func newSaleView(s *models.Sale) saleView {
	return saleView{
		ID:            s.ID,
		DeviceID:      s.DeviceID,
		ProductID:     s.ProductID,
		StoreID:       s.StoreID,
		SellerID:      s.SellerID,
		Customer:      s.Customer,
		Quantity:      s.Quantity,
		UnitPrice:     Money(s.UnitPrice),
		Discount:      Money(s.Discount),
		Total:         Money(s.Total),
		PaymentMethod: s.PaymentMethod,
		CreatedAt:     s.CreatedAt.UTC().Format(timeLayout),
	}
}

// sellProductUnits handles POST /sales/products
func (h *Handler) sellProductUnits(c *gin.Context) {
	var req sellProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.ledger.SellProductUnits(c.Request.Context(), actorFrom(c), service.SellProductRequest{
		ProductID:     req.ProductID,
		StoreID:       req.StoreID,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice.Cents(),
		Discount:      req.Discount.Cents(),
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Customer:      req.Customer.toModel(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	onHand := result.OnHand
	c.JSON(http.StatusCreated, saleResultView{
		SaleID:     result.SaleID,
		MovementID: result.MovementID,
		Total:      Money(result.Total),
		OnHand:     &onHand,
	})
}

// sellDevice handles POST /sales/devices
func (h *Handler) sellDevice(c *gin.Context) {
	var req sellDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.ledger.SellDevice(c.Request.Context(), actorFrom(c), service.SellDeviceRequest{
		DeviceID:      req.DeviceID,
		SalePrice:     req.SalePrice.Cents(),
		Discount:      req.Discount.Cents(),
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Customer:      req.Customer.toModel(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, saleResultView{
		SaleID: result.SaleID,
		Total:  Money(result.Total),
	})
}

// getSale handles GET /sales/:id
func (h *Handler) getSale(c *gin.Context) {
	saleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	sale, err := h.ledger.GetSale(c.Request.Context(), actorFrom(c), saleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSaleView(sale))
}

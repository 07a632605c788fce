package api

import (
	"errors"
	"net/http"

	"stock-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrStoreScope, http.StatusForbidden, "store_scope"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrDeviceUnavailable, http.StatusConflict, "device_unavailable"},
	{service.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrStateConflict, http.StatusConflict, "state_conflict"},
	{service.ErrDuplicate, http.StatusConflict, "duplicate"},
	{service.ErrAlreadyProcessed, http.StatusConflict, "already_processed"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{service.ErrInvalidDiscount, http.StatusBadRequest, "invalid_discount"},
	{service.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{service.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
}

// writeError maps a ledger error to its HTTP status. Persistence failures are
// reported without their cause.
func writeError(c *gin.Context, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{
				"error":   e.code,
				"details": err.Error(),
			})
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal_error",
	})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": "invalid_request", "details": msg}
	if err != nil {
		body["details"] = msg + ": " + err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"stock-ledger/internal/service"
	"stock-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the optional collaborators of the handler
type Options struct {
	Idempotency  IdempotencyStore
	Dependencies map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	ledger       *service.LedgerService
	idempotency  IdempotencyStore
	dependencies map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(ledger *service.LedgerService, opts Options) *Handler {
	return &Handler{
		ledger:       ledger,
		idempotency:  opts.Idempotency,
		dependencies: opts.Dependencies,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", actorMiddleware())
	{
		stock := v1.Group("/stock")
		stock.POST("/receipts", h.receiveStock)
		stock.POST("/adjustments", h.adjustStock)
		stock.POST("/reservations", h.reserveStock)
		stock.DELETE("/reservations", h.releaseStock)
		stock.GET("/:product_id/:store_id", h.getStockLevel)
		stock.GET("/:product_id/:store_id/movements", h.listMovements)
		stock.GET("/:product_id/:store_id/reconciliation", h.reconcile)
		stock.PUT("/:product_id/:store_id/threshold", h.setThreshold)

		v1.GET("/stores/:store_id/low-stock", h.listLowStock)

		sales := v1.Group("/sales")
		sales.POST("/products", h.idempotent(), h.sellProductUnits)
		sales.POST("/devices", h.idempotent(), h.sellDevice)
		sales.GET("/:id", h.getSale)

		devices := v1.Group("/devices")
		devices.POST("", h.registerDevice)
		devices.GET("", h.listDevices)
		devices.GET("/:id", h.getDevice)
		devices.PATCH("/:id/status", h.changeDeviceStatus)
		devices.DELETE("/:id", h.deleteDevice)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requestLogger logs one line per request through zap
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			h.logger.Error("HTTP request", fields...)
		case c.FullPath() == "/health" || c.FullPath() == "/metrics":
			h.logger.Debug("HTTP request", fields...)
		default:
			h.logger.Info("HTTP request", fields...)
		}
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name, nil)
		return 0, false
	}
	return v, true
}

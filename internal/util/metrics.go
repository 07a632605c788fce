package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Total number of stock movements written, by kind",
	}, []string{"kind"})

	SalesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_total",
		Help: "Total number of committed sales, by type",
	}, []string{"type"})

	LedgerOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_latency_seconds",
		Help:    "Latency of ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	LedgerOperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_failed_total",
		Help: "Total number of failed ledger operations",
	}, []string{"op", "reason"})

	DeviceSaleConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "device_sale_conflicts_total",
		Help: "Total number of device sales lost to a concurrent status change",
	})

	LowStockAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Total number of low stock alerts raised",
	})

	StockCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_requests_total",
		Help: "Stock level cache lookups, by result",
	}, []string{"result"})

	EventsPublishFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of ledger events that could not be published",
	}, []string{"event_type"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Total number of inbound commands handled, by outcome",
	}, []string{"event_type", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

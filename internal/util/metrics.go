package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Total number of recorded stock movements by type",
	}, []string{"type"})

	StockMovementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_failed_total",
		Help: "Total number of rejected stock movements",
	}, []string{"type", "reason"})

	OverReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_over_releases_total",
		Help: "Total number of releases that exceeded aggregate reservations",
	})

	AdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_total",
		Help: "Total number of manual stock adjustments by reason",
	}, []string{"reason"})

	AdjustmentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_rejected_total",
		Help: "Total number of rejected adjustment attempts",
	}, []string{"reason"})

	LowStockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_low_alerts_total",
		Help: "Total number of movements that left a product low or out",
	}, []string{"status"})

	LockBusyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_lock_busy_total",
		Help: "Total number of operations rejected after exhausting the lock retry budget",
	})

	MovementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_movement_latency_seconds",
		Help:    "Latency of ledger movement operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

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

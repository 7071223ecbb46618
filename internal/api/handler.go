package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-ledger/internal/models"
	"stock-ledger/internal/redisclient"
	"stock-ledger/internal/service"
	"stock-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	stock       *service.StockService
	adjustments *service.AdjustmentService
	redis       *redisclient.Client
}

// NewHandler creates a new HTTP handler. redis may be nil; the snapshot
// endpoint and idempotency checks degrade to no-ops.
func NewHandler(stock *service.StockService, adjustments *service.AdjustmentService, redis *redisclient.Client) *Handler {
	return &Handler{
		stock:       stock,
		adjustments: adjustments,
		redis:       redis,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		writes := v1.Group("", h.idempotencyMiddleware())
		writes.POST("/stock/in", h.stockIn)
		writes.POST("/stock/out", h.stockOut)
		writes.POST("/stock/reserve", h.reserve)
		writes.POST("/stock/release", h.release)
		writes.POST("/stock/adjustments", h.adjust)

		v1.GET("/products/:id/status", h.getStatus)
		v1.GET("/products/:id/status/snapshot", h.getStatusSnapshot)
		v1.GET("/products/:id/ledger", h.getProductLedger)
		v1.GET("/products/:id/adjustments", h.getProductAdjustments)
		v1.GET("/ledger", h.getLedgerByReference)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// stockIn handles stock receipts
func (h *Handler) stockIn(c *gin.Context) {
	var req service.MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.stock.StockIn(c.Request.Context(), req.ProductID, req.Quantity, req.ReferenceType, req.ReferenceID, req.Note, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// stockOut handles direct stock consumption
func (h *Handler) stockOut(c *gin.Context) {
	var req service.MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.stock.StockOut(c.Request.Context(), req.ProductID, req.Quantity, req.ReferenceType, req.ReferenceID, req.Note, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// reserve handles soft holds for pending jobs
func (h *Handler) reserve(c *gin.Context) {
	var req service.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.stock.Reserve(c.Request.Context(), req.ProductID, req.Quantity, req.ReferenceID, req.Note, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// release handles un-holds; an over-release is reported in the body as a
// warning, not a failure
func (h *Handler) release(c *gin.Context) {
	var req service.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.stock.Release(c.Request.Context(), req.ProductID, req.Quantity, req.ReferenceID, req.Note, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"entry": result.Entry, "status": result.Status}
	if result.OverReleased {
		resp["warning"] = "release exceeded aggregate reservations for this product"
	}
	c.JSON(http.StatusCreated, resp)
}

// adjust handles manual corrections
func (h *Handler) adjust(c *gin.Context) {
	var req service.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.adjustments.Adjust(c.Request.Context(), req.ProductID, *req.QuantityAfter, req.Reason, req.ReasonNote, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getStatus handles point-in-time availability reads
func (h *Handler) getStatus(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	status, err := h.stock.GetStatus(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// getStatusSnapshot serves the last redis-mirrored status without touching
// the ledger. Dashboard convenience; may lag behind /status, which always
// recomputes.
func (h *Handler) getStatusSnapshot(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	if h.redis == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no status snapshot available"})
		return
	}

	snapshot, err := h.redis.GetStatusSnapshot(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no status snapshot available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_id": productID, "snapshot": snapshot})
}

// getProductLedger handles per-product movement history
func (h *Handler) getProductLedger(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	entries, err := h.stock.EntriesForProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// getProductAdjustments handles per-product adjustment audit history
func (h *Handler) getProductAdjustments(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	adjustments, err := h.adjustments.AdjustmentsForProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustments": adjustments})
}

// getLedgerByReference handles lookups by originating transaction
func (h *Handler) getLedgerByReference(c *gin.Context) {
	refType := c.Query("reference_type")
	refID := c.Query("reference_id")
	if refType == "" || refID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference_type and reference_id are required"})
		return
	}

	entries, err := h.stock.EntriesForReference(c.Request.Context(), refType, refID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func productIDParam(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return 0, false
	}
	return productID, true
}

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInsufficientStock), errors.Is(err, models.ErrInsufficientAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidReason):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// idempotencyMiddleware rejects replays of write requests that carry an
// Idempotency-Key header. Best effort: without redis every request is
// treated as new.
func (h *Handler) idempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" || h.redis == nil {
			c.Next()
			return
		}

		seen, err := h.redis.CheckIdempotencyKey(c.Request.Context(), key)
		if err != nil {
			util.GetLogger().Warn("idempotency check failed", zap.Error(err))
			c.Next()
			return
		}
		if seen {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":           "duplicate request",
				"idempotency_key": key,
			})
			return
		}

		c.Next()

		if c.Writer.Status() < http.StatusMultipleChoices {
			if err := h.redis.SetIdempotencyKey(c.Request.Context(), key, time.Now().Unix(), 24*time.Hour); err != nil {
				util.GetLogger().Warn("failed to store idempotency key", zap.Error(err))
			}
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

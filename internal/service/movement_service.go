package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-ledger/config"
	"stock-ledger/internal/broker"
	"stock-ledger/internal/models"
	"stock-ledger/internal/redisclient"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LockOptions bounds the per-product advisory lock
type LockOptions struct {
	Retries    int
	RetryDelay time.Duration
	TTL        time.Duration
}

// LockOptionsFromConfig builds lock options from ledger config
func LockOptionsFromConfig(cfg config.LedgerConfig) LockOptions {
	return LockOptions{
		Retries:    cfg.LockRetries,
		RetryDelay: time.Duration(cfg.LockRetryDelayMS) * time.Millisecond,
		TTL:        time.Duration(cfg.LockTTLSeconds) * time.Second,
	}
}

// StockService is the movement recorder: the validated entry points that
// append to the ledger and, for IN/OUT, update the product total.
type StockService struct {
	ledger     store.Ledger
	redis      *redisclient.Client
	publisher  *broker.EventPublisher
	logger     *zap.Logger
	lockOpts   LockOptions
	queryLimit int
}

// NewStockService creates a new stock service. redis and publisher may be
// nil; the store still serializes writers on its own.
func NewStockService(
	ledger store.Ledger,
	redis *redisclient.Client,
	publisher *broker.EventPublisher,
	cfg config.LedgerConfig,
) *StockService {
	queryLimit := cfg.QueryLimit
	if queryLimit <= 0 {
		queryLimit = 100
	}
	return &StockService{
		ledger:     ledger,
		redis:      redis,
		publisher:  publisher,
		logger:     util.GetLogger(),
		lockOpts:   LockOptionsFromConfig(cfg),
		queryLimit: queryLimit,
	}
}

// MovementRequest is the payload for stock in/out
type MovementRequest struct {
	ProductID     int64  `json:"product_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceID   string `json:"reference_id,omitempty"`
	Note          string `json:"note,omitempty"`
	Actor         string `json:"actor" binding:"required"`
}

// ReservationRequest is the payload for reserve/release
type ReservationRequest struct {
	ProductID   int64  `json:"product_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	ReferenceID string `json:"reference_id" binding:"required"`
	Note        string `json:"note,omitempty"`
	Actor       string `json:"actor" binding:"required"`
}

// MovementResult is returned from every successful movement. Status is nil
// when the post-commit read failed; the movement itself still committed.
type MovementResult struct {
	Entry        *models.LedgerEntry `json:"entry"`
	Status       *models.StockStatus `json:"status,omitempty"`
	OverReleased bool                `json:"over_released,omitempty"`
}

// StockIn records a receipt of physical stock. No quantity ceiling.
func (s *StockService) StockIn(ctx context.Context, productID int64, qty int, refType, refID, note, actor string) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.StockIn")
	defer span.End()

	if err := validateMovement(models.EntryTypeIn, qty, refType); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:             uuid.New().String(),
		ProductID:      productID,
		QuantityChange: qty,
		Type:           models.EntryTypeIn,
		ReferenceType:  refType,
		ReferenceID:    refID,
		Note:           note,
		Actor:          actor,
	}

	if err := s.record(ctx, entry, func() error {
		return s.ledger.StockIn(ctx, entry)
	}); err != nil {
		return nil, err
	}

	return s.finishMovement(ctx, entry, false)
}

// StockOut records a direct consumption of physical stock. The check is
// against total on-hand, not available.
func (s *StockService) StockOut(ctx context.Context, productID int64, qty int, refType, refID, note, actor string) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.StockOut")
	defer span.End()

	if err := validateMovement(models.EntryTypeOut, qty, refType); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:             uuid.New().String(),
		ProductID:      productID,
		QuantityChange: -qty,
		Type:           models.EntryTypeOut,
		ReferenceType:  refType,
		ReferenceID:    refID,
		Note:           note,
		Actor:          actor,
	}

	if err := s.record(ctx, entry, func() error {
		return s.ledger.StockOut(ctx, entry)
	}); err != nil {
		return nil, err
	}

	return s.finishMovement(ctx, entry, false)
}

// Reserve places a soft hold on stock for a pending job. The total is not
// touched; availability shrinks.
func (s *StockService) Reserve(ctx context.Context, productID int64, qty int, refID, note, actor string) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Reserve")
	defer span.End()

	if err := validateReservation(models.EntryTypeReserve, qty, refID); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:             uuid.New().String(),
		ProductID:      productID,
		QuantityChange: qty,
		Type:           models.EntryTypeReserve,
		ReferenceType:  models.RefTypeService,
		ReferenceID:    refID,
		Note:           note,
		Actor:          actor,
	}

	if err := s.record(ctx, entry, func() error {
		return s.ledger.Reserve(ctx, entry)
	}); err != nil {
		return nil, err
	}

	return s.finishMovement(ctx, entry, false)
}

// Release removes a soft hold. Over-releasing is allowed at the ledger
// level but reported back, since it signals caller-side bookkeeping drift.
func (s *StockService) Release(ctx context.Context, productID int64, qty int, refID, note, actor string) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Release")
	defer span.End()

	if err := validateReservation(models.EntryTypeRelease, qty, refID); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:             uuid.New().String(),
		ProductID:      productID,
		QuantityChange: -qty,
		Type:           models.EntryTypeRelease,
		ReferenceType:  models.RefTypeService,
		ReferenceID:    refID,
		Note:           note,
		Actor:          actor,
	}

	var overReleased bool
	if err := s.record(ctx, entry, func() error {
		var err error
		overReleased, err = s.ledger.Release(ctx, entry)
		return err
	}); err != nil {
		return nil, err
	}

	if overReleased {
		util.OverReleasesTotal.Inc()
		s.logger.Warn("release exceeded aggregate reservations",
			zap.Int64("product_id", productID),
			zap.String("reference_id", refID),
			zap.Int("quantity", qty))
	}

	return s.finishMovement(ctx, entry, overReleased)
}

// GetStatus answers "what is available right now". Always recomputed from
// the ledger; an unknown product yields a zeroed "out" status.
func (s *StockService) GetStatus(ctx context.Context, productID int64) (models.StockStatus, error) {
	ctx, span := util.StartSpan(ctx, "StockService.GetStatus")
	defer span.End()

	return deriveStatus(ctx, s.ledger, productID)
}

// EntriesForProduct returns a product's movement history, most recent first
func (s *StockService) EntriesForProduct(ctx context.Context, productID int64) ([]models.LedgerEntry, error) {
	return s.ledger.EntriesForProduct(ctx, productID, s.queryLimit)
}

// EntriesForReference returns the movements caused by one originating
// transaction, most recent first
func (s *StockService) EntriesForReference(ctx context.Context, refType, refID string) ([]models.LedgerEntry, error) {
	return s.ledger.EntriesForReference(ctx, refType, refID)
}

// record wraps a ledger write with the advisory lock, latency and outcome
// metrics. Failures append nothing.
func (s *StockService) record(ctx context.Context, entry *models.LedgerEntry, write func() error) error {
	start := time.Now()
	defer func() {
		util.MovementLatency.WithLabelValues(entry.Type).Observe(time.Since(start).Seconds())
	}()

	err := withProductLock(ctx, s.redis, s.logger, s.lockOpts, entry.ProductID, write)
	if err != nil {
		util.StockMovementsFailedTotal.WithLabelValues(entry.Type, failReason(err)).Inc()
		return err
	}

	util.StockMovementsTotal.WithLabelValues(entry.Type).Inc()
	return nil
}

// finishMovement derives the post-movement status, mirrors it, and emits
// events. The movement itself is already committed. When the status read
// fails the result carries no status at all: the totals are unknown at this
// point, and a made-up status would raise false low-stock alerts.
func (s *StockService) finishMovement(ctx context.Context, entry *models.LedgerEntry, overReleased bool) (*MovementResult, error) {
	status, err := deriveStatus(ctx, s.ledger, entry.ProductID)
	if err != nil {
		s.logger.Warn("status read failed after committed movement",
			zap.Int64("product_id", entry.ProductID),
			zap.String("entry_id", entry.ID),
			zap.Error(err))
		return &MovementResult{Entry: entry, OverReleased: overReleased}, nil
	}

	if status.Status != models.StockStatusSafe {
		util.LowStockTotal.WithLabelValues(status.Status).Inc()
	}

	if s.redis != nil {
		if err := s.redis.SetStatusSnapshot(ctx, status); err != nil {
			s.logger.Warn("failed to mirror status snapshot", zap.Error(err))
		}
	}

	if s.publisher != nil {
		event := &models.StockMovedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockMoved,
				Timestamp: time.Now(),
			},
			EntryID:        entry.ID,
			ProductID:      entry.ProductID,
			MovementType:   entry.Type,
			QuantityChange: entry.QuantityChange,
			ReferenceType:  entry.ReferenceType,
			ReferenceID:    entry.ReferenceID,
			Actor:          entry.Actor,
			Total:          status.Total,
			Available:      status.Available,
		}
		if err := s.publisher.PublishStockMoved(ctx, event); err != nil {
			s.logger.Error("failed to publish StockMoved event", zap.Error(err))
		}

		if status.Status != models.StockStatusSafe {
			low := &models.StockLowEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeStockLow,
					Timestamp: time.Now(),
				},
				ProductID: status.ProductID,
				Total:     status.Total,
				Available: status.Available,
				MinAlert:  status.MinAlert,
				Status:    status.Status,
			}
			if err := s.publisher.PublishStockLow(ctx, low); err != nil {
				s.logger.Error("failed to publish StockLow event", zap.Error(err))
			}
		}
	}

	s.logger.Info("Stock movement recorded",
		zap.String("entry_id", entry.ID),
		zap.String("type", entry.Type),
		zap.Int64("product_id", entry.ProductID),
		zap.Int("quantity_change", entry.QuantityChange))

	return &MovementResult{Entry: entry, Status: &status, OverReleased: overReleased}, nil
}

func validateMovement(entryType string, qty int, refType string) error {
	if qty <= 0 {
		util.StockMovementsFailedTotal.WithLabelValues(entryType, "invalid_quantity").Inc()
		return fmt.Errorf("%w: quantity must be positive, got %d", models.ErrInvalidQuantity, qty)
	}
	if !models.ValidReferenceType(refType) {
		util.StockMovementsFailedTotal.WithLabelValues(entryType, "invalid_reference").Inc()
		return fmt.Errorf("%w: %q", models.ErrInvalidReference, refType)
	}
	return nil
}

func validateReservation(entryType string, qty int, refID string) error {
	if qty <= 0 {
		util.StockMovementsFailedTotal.WithLabelValues(entryType, "invalid_quantity").Inc()
		return fmt.Errorf("%w: quantity must be positive, got %d", models.ErrInvalidQuantity, qty)
	}
	if refID == "" {
		util.StockMovementsFailedTotal.WithLabelValues(entryType, "invalid_reference").Inc()
		return fmt.Errorf("%w: reservation requires a reference id", models.ErrInvalidReference)
	}
	return nil
}

func failReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrInsufficientAvailable):
		return "insufficient_available"
	case errors.Is(err, models.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, models.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}

// withProductLock serializes a write on the per-product advisory lock with
// a bounded retry budget. With no redis client the store's own row locking
// is the only serializer. A redis outage degrades the same way rather than
// failing writes.
func withProductLock(ctx context.Context, rc *redisclient.Client, logger *zap.Logger, opts LockOptions, productID int64, fn func() error) error {
	if rc == nil {
		return fn()
	}

	token := uuid.New().String()
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		ok, err := rc.AcquireProductLock(ctx, productID, token, opts.TTL)
		if err != nil {
			logger.Warn("lock acquire failed, relying on store serialization",
				zap.Int64("product_id", productID),
				zap.Error(err))
			return fn()
		}
		if ok {
			werr := fn()
			if rerr := rc.ReleaseProductLock(ctx, productID, token); rerr != nil {
				logger.Warn("failed to release product lock",
					zap.Int64("product_id", productID),
					zap.Error(rerr))
			}
			return werr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	util.LockBusyTotal.Inc()
	return fmt.Errorf("%w: product %d", models.ErrBusy, productID)
}

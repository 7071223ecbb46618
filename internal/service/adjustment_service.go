package service

import (
	"context"
	"fmt"
	"strings"
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

// AdjustmentService is the manual-correction workflow. It is stricter than
// the movement recorder: every adjustment carries a reason category and a
// justification note, and sets the total absolutely rather than by delta.
type AdjustmentService struct {
	ledger    store.Ledger
	redis     *redisclient.Client
	publisher *broker.EventPublisher
	logger    *zap.Logger
	lockOpts  LockOptions
}

// NewAdjustmentService creates a new adjustment service
func NewAdjustmentService(
	ledger store.Ledger,
	redis *redisclient.Client,
	publisher *broker.EventPublisher,
	cfg config.LedgerConfig,
) *AdjustmentService {
	return &AdjustmentService{
		ledger:    ledger,
		redis:     redis,
		publisher: publisher,
		logger:    util.GetLogger(),
		lockOpts:  LockOptionsFromConfig(cfg),
	}
}

// AdjustRequest is the payload for a manual adjustment
type AdjustRequest struct {
	ProductID     int64  `json:"product_id" binding:"required"`
	QuantityAfter *int   `json:"quantity_after" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
	ReasonNote    string `json:"reason_note" binding:"required"`
	Actor         string `json:"actor" binding:"required"`
}

// AdjustResult is returned from a successful adjustment. Status is nil when
// the post-commit read failed; the adjustment itself still committed.
type AdjustResult struct {
	Adjustment *models.Adjustment  `json:"adjustment"`
	Entry      *models.LedgerEntry `json:"entry"`
	Status     *models.StockStatus `json:"status,omitempty"`
}

// Adjust corrects the on-hand total to quantityAfter. Zero-change
// adjustments are allowed and still recorded, e.g. a physical count that
// confirms the existing total.
func (s *AdjustmentService) Adjust(ctx context.Context, productID int64, quantityAfter int, reason, reasonNote, actor string) (*AdjustResult, error) {
	ctx, span := util.StartSpan(ctx, "AdjustmentService.Adjust")
	defer span.End()

	if quantityAfter < 0 {
		util.AdjustmentsRejectedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, fmt.Errorf("%w: quantity_after must be non-negative, got %d", models.ErrInvalidQuantity, quantityAfter)
	}
	if !models.ValidAdjustmentReason(reason) {
		util.AdjustmentsRejectedTotal.WithLabelValues("invalid_reason").Inc()
		return nil, fmt.Errorf("%w: unknown reason %q", models.ErrInvalidReason, reason)
	}
	note := strings.TrimSpace(reasonNote)
	if len(note) < models.MinReasonNoteLen {
		util.AdjustmentsRejectedTotal.WithLabelValues("short_note").Inc()
		return nil, fmt.Errorf("%w: reason note must be at least %d characters", models.ErrInvalidReason, models.MinReasonNoteLen)
	}

	adj := &models.Adjustment{
		ID:            uuid.New().String(),
		ProductID:     productID,
		QuantityAfter: quantityAfter,
		Reason:        reason,
		ReasonNote:    note,
		Actor:         actor,
	}
	// The entry note embeds the reason so the ledger alone reconstructs
	// the correction.
	entry := &models.LedgerEntry{
		ID:            uuid.New().String(),
		ProductID:     productID,
		Type:          models.EntryTypeAdjust,
		ReferenceType: models.RefTypeAdjustment,
		ReferenceID:   adj.ID,
		Note:          fmt.Sprintf("[%s] %s", reason, note),
		Actor:         actor,
	}

	err := withProductLock(ctx, s.redis, s.logger, s.lockOpts, productID, func() error {
		return s.ledger.Adjust(ctx, adj, entry)
	})
	if err != nil {
		util.AdjustmentsRejectedTotal.WithLabelValues(failReason(err)).Inc()
		return nil, err
	}

	util.AdjustmentsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Stock adjusted",
		zap.String("adjustment_id", adj.ID),
		zap.Int64("product_id", productID),
		zap.Int("before", adj.QuantityBefore),
		zap.Int("after", adj.QuantityAfter),
		zap.String("reason", reason))

	if s.publisher != nil {
		event := &models.StockAdjustedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockAdjusted,
				Timestamp: time.Now(),
			},
			AdjustmentID:   adj.ID,
			EntryID:        entry.ID,
			ProductID:      productID,
			QuantityBefore: adj.QuantityBefore,
			QuantityAfter:  adj.QuantityAfter,
			Reason:         reason,
			Actor:          actor,
		}
		if err := s.publisher.PublishStockAdjusted(ctx, event); err != nil {
			s.logger.Error("failed to publish StockAdjusted event", zap.Error(err))
		}
	}

	// The adjustment is committed; a failed status read must not invent a
	// status or raise a low-stock alert for totals nobody read.
	status, derr := deriveStatus(ctx, s.ledger, productID)
	if derr != nil {
		s.logger.Warn("status read failed after committed adjustment",
			zap.Int64("product_id", productID),
			zap.Error(derr))
		return &AdjustResult{Adjustment: adj, Entry: entry}, nil
	}

	if status.Status != models.StockStatusSafe {
		util.LowStockTotal.WithLabelValues(status.Status).Inc()
	}

	if s.redis != nil {
		if err := s.redis.SetStatusSnapshot(ctx, status); err != nil {
			s.logger.Warn("failed to mirror status snapshot", zap.Error(err))
		}
	}

	if s.publisher != nil && status.Status != models.StockStatusSafe {
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

	return &AdjustResult{Adjustment: adj, Entry: entry, Status: &status}, nil
}

// AdjustmentsForProduct returns the audit records, most recent first
func (s *AdjustmentService) AdjustmentsForProduct(ctx context.Context, productID int64) ([]models.Adjustment, error) {
	return s.ledger.AdjustmentsForProduct(ctx, productID)
}

package worker

import (
	"context"
	"encoding/json"
	"errors"

	"stock-ledger/internal/broker"
	"stock-ledger/internal/models"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TicketWorker maps service-ticket lifecycle events onto ledger movements:
// a ticket going in progress reserves its parts, a cancellation releases
// them, and a completion releases then consumes them.
type TicketWorker struct {
	consumer *broker.Consumer
	handler  *broker.TicketEventHandler
	ledger   store.Ledger
	stock    *service.StockService
	logger   *zap.Logger
}

// NewTicketWorker creates a new ticket worker
func NewTicketWorker(consumer *broker.Consumer, ledger store.Ledger, stock *service.StockService) *TicketWorker {
	w := &TicketWorker{
		consumer: consumer,
		ledger:   ledger,
		stock:    stock,
		logger:   util.GetLogger(),
	}

	handler := broker.NewTicketEventHandler()
	handler.OnInProgress(w.handleInProgress)
	handler.OnCancelled(w.handleCancelled)
	handler.OnCompleted(w.handleCompleted)
	w.handler = handler

	return w
}

// Start starts the worker
func (w *TicketWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting ticket worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *TicketWorker) Stop() error {
	w.logger.Info("Stopping ticket worker")
	return w.consumer.Close()
}

// seen dedupes redeliveries. Returning true means the event was already
// applied and must not run again.
func (w *TicketWorker) seen(ctx context.Context, event *models.TicketEvent) bool {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		w.logger.Warn("failed to check processed events", zap.Error(err))
		return false
	}
	return processed
}

func (w *TicketWorker) markDone(ctx context.Context, event *models.TicketEvent) {
	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Warn("failed to mark event processed", zap.Error(err))
	}
}

func (w *TicketWorker) handleInProgress(ctx context.Context, event *models.TicketEvent) error {
	if w.seen(ctx, event) {
		return nil
	}

	reserved := make([]models.TicketItem, 0, len(event.Items))
	for _, item := range event.Items {
		_, err := w.stock.Reserve(ctx, item.ProductID, item.Quantity, event.TicketID, "", event.Actor)
		if errors.Is(err, models.ErrBusy) {
			w.compensate(ctx, event, reserved)
			return err // transient, redeliver
		}
		if err != nil {
			w.logger.Error("failed to reserve parts for ticket",
				zap.String("ticket_id", event.TicketID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			w.compensate(ctx, event, reserved)
			w.markDone(ctx, event)
			return nil
		}
		reserved = append(reserved, item)
	}

	w.markDone(ctx, event)
	return nil
}

// compensate releases reservations already taken for a partially applied
// ticket event.
func (w *TicketWorker) compensate(ctx context.Context, event *models.TicketEvent, reserved []models.TicketItem) {
	for _, item := range reserved {
		if _, err := w.stock.Release(ctx, item.ProductID, item.Quantity, event.TicketID, "", event.Actor); err != nil {
			w.logger.Error("failed to compensate reservation",
				zap.String("ticket_id", event.TicketID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

func (w *TicketWorker) handleCancelled(ctx context.Context, event *models.TicketEvent) error {
	if w.seen(ctx, event) {
		return nil
	}

	for _, item := range event.Items {
		if _, err := w.stock.Release(ctx, item.ProductID, item.Quantity, event.TicketID, "", event.Actor); err != nil {
			if errors.Is(err, models.ErrBusy) {
				return err
			}
			w.logger.Error("failed to release parts for cancelled ticket",
				zap.String("ticket_id", event.TicketID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	w.markDone(ctx, event)
	return nil
}

func (w *TicketWorker) handleCompleted(ctx context.Context, event *models.TicketEvent) error {
	if w.seen(ctx, event) {
		return nil
	}

	for _, item := range event.Items {
		if _, err := w.stock.Release(ctx, item.ProductID, item.Quantity, event.TicketID, "", event.Actor); err != nil {
			if errors.Is(err, models.ErrBusy) {
				return err
			}
			w.logger.Error("failed to release parts for completed ticket",
				zap.String("ticket_id", event.TicketID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			continue
		}

		_, err := w.stock.StockOut(ctx, item.ProductID, item.Quantity, models.RefTypeService, event.TicketID, "", event.Actor)
		if err != nil {
			if errors.Is(err, models.ErrBusy) {
				return err
			}
			w.logger.Error("failed to consume parts for completed ticket",
				zap.String("ticket_id", event.TicketID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	w.markDone(ctx, event)
	return nil
}

// AlertWorker watches stock events and surfaces low-stock alerts
type AlertWorker struct {
	consumer *broker.Consumer
	logger   *zap.Logger
}

// NewAlertWorker creates a new alert worker
func NewAlertWorker(consumer *broker.Consumer) *AlertWorker {
	return &AlertWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}
}

// Start starts the alert worker
func (aw *AlertWorker) Start(ctx context.Context) error {
	aw.logger.Info("Starting alert worker")

	return aw.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			aw.logger.Error("Failed to unmarshal event", zap.Error(err))
			return err
		}

		if baseEvent.EventType != models.EventTypeStockLow {
			return nil
		}

		var event models.StockLowEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			aw.logger.Error("Failed to unmarshal StockLow event", zap.Error(err))
			return err
		}

		aw.logger.Warn("Low stock alert",
			zap.Int64("product_id", event.ProductID),
			zap.Int("total", event.Total),
			zap.Int("available", event.Available),
			zap.Int("min_alert", event.MinAlert),
			zap.String("status", event.Status))
		return nil
	})
}

// Stop stops the alert worker
func (aw *AlertWorker) Stop() error {
	aw.logger.Info("Stopping alert worker")
	return aw.consumer.Close()
}

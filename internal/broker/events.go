package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing ledger domain events. Events are keyed
// by product so movements for one product stay ordered per partition.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishStockMoved publishes a StockMoved event
func (ep *EventPublisher) PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockAdjusted publishes a StockAdjusted event
func (ep *EventPublisher) PublishStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockLow publishes a StockLow event
func (ep *EventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// TicketEventHandler routes service-ticket events to registered handlers
type TicketEventHandler struct {
	onInProgress func(context.Context, *models.TicketEvent) error
	onCancelled  func(context.Context, *models.TicketEvent) error
	onCompleted  func(context.Context, *models.TicketEvent) error
}

// NewTicketEventHandler creates a new ticket event handler
func NewTicketEventHandler() *TicketEventHandler {
	return &TicketEventHandler{}
}

// OnInProgress registers a handler for TicketInProgress events
func (th *TicketEventHandler) OnInProgress(handler func(context.Context, *models.TicketEvent) error) {
	th.onInProgress = handler
}

// OnCancelled registers a handler for TicketCancelled events
func (th *TicketEventHandler) OnCancelled(handler func(context.Context, *models.TicketEvent) error) {
	th.onCancelled = handler
}

// OnCompleted registers a handler for TicketCompleted events
func (th *TicketEventHandler) OnCompleted(handler func(context.Context, *models.TicketEvent) error) {
	th.onCompleted = handler
}

// HandleMessage routes messages to the appropriate handler
func (th *TicketEventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TicketEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal ticket event: %w", err)
	}

	util.GetLogger().Debug("Handling ticket event",
		zap.String("type", event.EventType),
		zap.String("event_id", event.EventID),
		zap.String("ticket_id", event.TicketID))

	switch event.EventType {
	case models.EventTypeTicketInProgress:
		if th.onInProgress != nil {
			return th.onInProgress(ctx, &event)
		}
	case models.EventTypeTicketCancelled:
		if th.onCancelled != nil {
			return th.onCancelled(ctx, &event)
		}
	case models.EventTypeTicketCompleted:
		if th.onCompleted != nil {
			return th.onCompleted(ctx, &event)
		}
	default:
		util.GetLogger().Debug("Unhandled event type", zap.String("type", event.EventType))
	}

	return nil
}

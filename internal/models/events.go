package models

import "time"

// Event types
const (
	EventTypeStockMoved    = "STOCK_MOVED"
	EventTypeStockAdjusted = "STOCK_ADJUSTED"
	EventTypeStockLow      = "STOCK_LOW"

	EventTypeTicketInProgress = "TICKET_IN_PROGRESS"
	EventTypeTicketCancelled  = "TICKET_CANCELLED"
	EventTypeTicketCompleted  = "TICKET_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockMovedEvent published after any successful IN/OUT/RESERVE/RELEASE
type StockMovedEvent struct {
	BaseEvent
	EntryID        string `json:"entry_id"`
	ProductID      int64  `json:"product_id"`
	MovementType   string `json:"movement_type"`
	QuantityChange int    `json:"quantity_change"`
	ReferenceType  string `json:"reference_type"`
	ReferenceID    string `json:"reference_id,omitempty"`
	Actor          string `json:"actor"`
	Total          int    `json:"total"`
	Available      int    `json:"available"`
}

// StockAdjustedEvent published after a successful manual adjustment
type StockAdjustedEvent struct {
	BaseEvent
	AdjustmentID   string `json:"adjustment_id"`
	EntryID        string `json:"entry_id"`
	ProductID      int64  `json:"product_id"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	Reason         string `json:"reason"`
	Actor          string `json:"actor"`
}

// StockLowEvent published when a movement leaves a product low or out
type StockLowEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	MinAlert  int    `json:"min_alert"`
	Status    string `json:"status"`
}

// TicketItem is one part line on a service ticket
type TicketItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// TicketEvent is published by the service-ticket workflow. The ledger
// consumes it to reserve, release, or consume parts for a ticket.
type TicketEvent struct {
	BaseEvent
	TicketID string       `json:"ticket_id"`
	Items    []TicketItem `json:"items"`
	Actor    string       `json:"actor"`
}

package models

import "time"

// Product represents a part in the shop catalog. The ledger owns the
// total_stock and min_alert fields; everything else is catalog data.
type Product struct {
	ID            int64     `db:"id" json:"id"`
	SKU           string    `db:"sku" json:"sku"`
	Name          string    `db:"name" json:"name"`
	PurchasePrice int64     `db:"purchase_price" json:"purchase_price"`
	TotalStock    int       `db:"total_stock" json:"total_stock"`
	MinAlert      int       `db:"min_alert" json:"min_alert"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry is one immutable record of a stock-quantity change.
// Entries are never updated or deleted; corrections are new entries.
type LedgerEntry struct {
	Seq            int64     `db:"seq" json:"seq"`
	ID             string    `db:"id" json:"id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	Type           string    `db:"entry_type" json:"type"`
	ReferenceType  string    `db:"reference_type" json:"reference_type"`
	ReferenceID    string    `db:"reference_id" json:"reference_id,omitempty"`
	Note           string    `db:"note" json:"note,omitempty"`
	Actor          string    `db:"actor" json:"actor"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Adjustment is the audit record paired 1:1 with an ADJUST ledger entry.
type Adjustment struct {
	ID             string    `db:"id" json:"id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	Reason         string    `db:"reason" json:"reason"`
	ReasonNote     string    `db:"reason_note" json:"reason_note"`
	Actor          string    `db:"actor" json:"actor"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// StockStatus is derived on every read, never persisted. Total is the
// absolute on-hand quantity; QuantityChange on entries is always a delta.
type StockStatus struct {
	ProductID int64  `json:"product_id"`
	Total     int    `json:"total"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
	MinAlert  int    `json:"min_alert"`
	Status    string `json:"status"`
}

// Ledger entry types
const (
	EntryTypeIn      = "IN"
	EntryTypeOut     = "OUT"
	EntryTypeReserve = "RESERVE"
	EntryTypeRelease = "RELEASE"
	EntryTypeAdjust  = "ADJUST"
)

// Reference types linking an entry to its originating transaction
const (
	RefTypePurchase   = "purchase"
	RefTypeSale       = "sale"
	RefTypeService    = "service"
	RefTypeAdjustment = "adjustment"
	RefTypeCorrection = "correction"
	RefTypeReturn     = "return"
)

// Adjustment reason categories
const (
	ReasonPhysicalCount = "physical_count"
	ReasonDamaged       = "damaged"
	ReasonLost          = "lost"
	ReasonExpired       = "expired"
	ReasonCorrection    = "correction"
	ReasonOther         = "other"
)

// Stock status flags
const (
	StockStatusOut  = "out"
	StockStatusLow  = "low"
	StockStatusSafe = "safe"
)

// MinReasonNoteLen is the minimum trimmed length of an adjustment reason
// note. Adjustments bypass movement validation, so the note is a hard gate.
const MinReasonNoteLen = 10

// ValidReferenceType reports whether t is a known reference type.
func ValidReferenceType(t string) bool {
	switch t {
	case RefTypePurchase, RefTypeSale, RefTypeService, RefTypeAdjustment, RefTypeCorrection, RefTypeReturn:
		return true
	}
	return false
}

// ValidAdjustmentReason reports whether r is a known adjustment reason.
func ValidAdjustmentReason(r string) bool {
	switch r {
	case ReasonPhysicalCount, ReasonDamaged, ReasonLost, ReasonExpired, ReasonCorrection, ReasonOther:
		return true
	}
	return false
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

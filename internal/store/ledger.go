package store

import (
	"context"
	"database/sql"
	"fmt"

	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// Ledger is the persistence contract for stock movements. Implementations
// must make each movement atomic: the availability check, the entry append,
// and the total update happen in one transaction or not at all. There is no
// update or delete surface for entries.
type Ledger interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error

	// StockIn appends an IN entry and increments the product total.
	StockIn(ctx context.Context, e *models.LedgerEntry) error
	// StockOut appends an OUT entry and decrements the product total.
	// Fails with ErrInsufficientStock when the quantity exceeds on-hand.
	StockOut(ctx context.Context, e *models.LedgerEntry) error
	// Reserve appends a RESERVE entry without touching the total. Fails
	// with ErrInsufficientAvailable when the quantity exceeds available.
	Reserve(ctx context.Context, e *models.LedgerEntry) error
	// Release appends a RELEASE entry without touching the total. Returns
	// true when the release drove the aggregate reservation below zero.
	Release(ctx context.Context, e *models.LedgerEntry) (overReleased bool, err error)
	// Adjust sets the product total to adj.QuantityAfter, filling in the
	// before/change fields, and writes the audit record plus its paired
	// ADJUST entry.
	Adjust(ctx context.Context, adj *models.Adjustment, e *models.LedgerEntry) error

	// ReservedSum returns sum(RESERVE) + sum(RELEASE) for a product. The
	// raw value may be negative after an over-release; callers clamp.
	ReservedSum(ctx context.Context, productID int64) (int, error)
	EntriesForProduct(ctx context.Context, productID int64, limit int) ([]models.LedgerEntry, error)
	EntriesForReference(ctx context.Context, refType, refID string) ([]models.LedgerEntry, error)
	AdjustmentsForProduct(ctx context.Context, productID int64) ([]models.Adjustment, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

var _ Ledger = (*Store)(nil)

// lockProduct locks the product row for the duration of the transaction,
// serializing concurrent movements against the same product.
func lockProduct(ctx context.Context, tx *sqlx.Tx, productID int64) (int, error) {
	var total int
	err := tx.GetContext(ctx, &total,
		"SELECT total_stock FROM products WHERE id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return 0, models.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock product %d: %w", productID, err)
	}
	return total, nil
}

// insertEntry appends under the product row lock. created_at uses
// clock_timestamp(), not the transaction-start NOW(): a transaction that
// waited on the lock would otherwise insert a higher seq with an earlier
// timestamp, and per-product timestamps must never run backwards.
func insertEntry(ctx context.Context, tx *sqlx.Tx, e *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, product_id, quantity_change, entry_type, reference_type, reference_id, note, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		RETURNING seq, created_at`

	err := tx.QueryRowxContext(ctx, query,
		e.ID, e.ProductID, e.QuantityChange, e.Type, e.ReferenceType, e.ReferenceID, e.Note, e.Actor,
	).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func reservedSumTx(ctx context.Context, tx *sqlx.Tx, productID int64) (int, error) {
	var sum int
	err := tx.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(quantity_change), 0) FROM ledger_entries
		 WHERE product_id = $1 AND entry_type IN ('RESERVE', 'RELEASE')`, productID)
	return sum, err
}

// StockIn appends an IN entry and increments the total in one transaction
func (s *Store) StockIn(ctx context.Context, e *models.LedgerEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := lockProduct(ctx, tx, e.ProductID); err != nil {
		return err
	}

	if err := insertEntry(ctx, tx, e); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET total_stock = total_stock + $1, updated_at = NOW() WHERE id = $2",
		e.QuantityChange, e.ProductID)
	if err != nil {
		return fmt.Errorf("failed to update total: %w", err)
	}

	return tx.Commit()
}

// StockOut appends an OUT entry and decrements the total. The check is
// against total on-hand, not available: OUT consumes physical stock.
func (s *Store) StockOut(ctx context.Context, e *models.LedgerEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	total, err := lockProduct(ctx, tx, e.ProductID)
	if err != nil {
		return err
	}

	qty := -e.QuantityChange
	if qty > total {
		return fmt.Errorf("%w: requested=%d, total=%d", models.ErrInsufficientStock, qty, total)
	}

	if err := insertEntry(ctx, tx, e); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET total_stock = total_stock - $1, updated_at = NOW() WHERE id = $2",
		qty, e.ProductID)
	if err != nil {
		return fmt.Errorf("failed to update total: %w", err)
	}

	return tx.Commit()
}

// Reserve appends a RESERVE entry after checking availability under the
// product row lock, so two reservations cannot both pass a check that only
// one can satisfy.
func (s *Store) Reserve(ctx context.Context, e *models.LedgerEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	total, err := lockProduct(ctx, tx, e.ProductID)
	if err != nil {
		return err
	}

	reserved, err := reservedSumTx(ctx, tx, e.ProductID)
	if err != nil {
		return fmt.Errorf("failed to sum reservations: %w", err)
	}
	if reserved < 0 {
		reserved = 0
	}
	available := total - reserved
	if available < 0 {
		available = 0
	}

	if e.QuantityChange > available {
		return fmt.Errorf("%w: requested=%d, available=%d", models.ErrInsufficientAvailable, e.QuantityChange, available)
	}

	if err := insertEntry(ctx, tx, e); err != nil {
		return err
	}

	return tx.Commit()
}

// Release appends a RELEASE entry. Releasing more than was reserved is
// permitted at the ledger level; the negative aggregate is reported back so
// callers can flag bookkeeping drift.
func (s *Store) Release(ctx context.Context, e *models.LedgerEntry) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := lockProduct(ctx, tx, e.ProductID); err != nil {
		return false, err
	}

	if err := insertEntry(ctx, tx, e); err != nil {
		return false, err
	}

	sum, err := reservedSumTx(ctx, tx, e.ProductID)
	if err != nil {
		return false, fmt.Errorf("failed to sum reservations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return sum < 0, nil
}

// Adjust sets the total absolutely and writes both audit records in one
// transaction. quantityBefore is read under the row lock, never supplied by
// the caller.
func (s *Store) Adjust(ctx context.Context, adj *models.Adjustment, e *models.LedgerEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	before, err := lockProduct(ctx, tx, adj.ProductID)
	if err != nil {
		return err
	}

	adj.QuantityBefore = before
	adj.QuantityChange = adj.QuantityAfter - before
	e.QuantityChange = adj.QuantityChange

	// clock_timestamp() for the same reason as insertEntry: the audit
	// record is ordered by created_at and must follow lock-grant order.
	query := `
		INSERT INTO adjustments (id, product_id, quantity_before, quantity_after, quantity_change, reason, reason_note, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		RETURNING created_at`
	err = tx.QueryRowxContext(ctx, query,
		adj.ID, adj.ProductID, adj.QuantityBefore, adj.QuantityAfter, adj.QuantityChange,
		adj.Reason, adj.ReasonNote, adj.Actor,
	).Scan(&adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write adjustment: %w", err)
	}

	if err := insertEntry(ctx, tx, e); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET total_stock = $1, updated_at = NOW() WHERE id = $2",
		adj.QuantityAfter, adj.ProductID)
	if err != nil {
		return fmt.Errorf("failed to set total: %w", err)
	}

	return tx.Commit()
}

// ReservedSum returns the raw RESERVE/RELEASE aggregate for a product
func (s *Store) ReservedSum(ctx context.Context, productID int64) (int, error) {
	var sum int
	err := s.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(quantity_change), 0) FROM ledger_entries
		 WHERE product_id = $1 AND entry_type IN ('RESERVE', 'RELEASE')`, productID)
	return sum, err
}

// EntriesForProduct retrieves entries for a product, most recent first
func (s *Store) EntriesForProduct(ctx context.Context, productID int64, limit int) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM ledger_entries WHERE product_id = $1 ORDER BY seq DESC LIMIT $2",
		productID, limit)
	return entries, err
}

// EntriesForReference retrieves entries for an originating transaction,
// most recent first
func (s *Store) EntriesForReference(ctx context.Context, refType, refID string) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM ledger_entries WHERE reference_type = $1 AND reference_id = $2 ORDER BY seq DESC",
		refType, refID)
	return entries, err
}

// AdjustmentsForProduct retrieves adjustment audit records, most recent first
func (s *Store) AdjustmentsForProduct(ctx context.Context, productID int64) ([]models.Adjustment, error) {
	adjustments := []models.Adjustment{}
	err := s.db.SelectContext(ctx, &adjustments,
		"SELECT * FROM adjustments WHERE product_id = $1 ORDER BY created_at DESC, id DESC",
		productID)
	return adjustments, err
}

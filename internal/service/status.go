package service

import (
	"context"
	"errors"

	"stock-ledger/internal/models"
	"stock-ledger/internal/store"
)

// StatusFrom derives a StockStatus from a product snapshot and the raw
// RESERVE/RELEASE aggregate. Pure: same inputs, same output. The negative
// floor on reserved and available is a derivation rule, not a write-path
// exception.
func StatusFrom(productID int64, total, minAlert, reservedSum int) models.StockStatus {
	reserved := reservedSum
	if reserved < 0 {
		reserved = 0
	}
	available := total - reserved
	if available < 0 {
		available = 0
	}

	status := models.StockStatusSafe
	switch {
	case total == 0:
		status = models.StockStatusOut
	case total <= minAlert:
		// min_alert is an inclusive floor
		status = models.StockStatusLow
	}

	return models.StockStatus{
		ProductID: productID,
		Total:     total,
		Reserved:  reserved,
		Available: available,
		MinAlert:  minAlert,
		Status:    status,
	}
}

// ComputeStatus folds a product's ledger entries into a StockStatus.
// Equivalent to StatusFrom over the stored aggregate; kept for callers that
// already hold the entries.
func ComputeStatus(p *models.Product, entries []models.LedgerEntry) models.StockStatus {
	sum := 0
	for _, e := range entries {
		if e.Type == models.EntryTypeReserve || e.Type == models.EntryTypeRelease {
			sum += e.QuantityChange
		}
	}
	return StatusFrom(p.ID, p.TotalStock, p.MinAlert, sum)
}

// deriveStatus computes the point-in-time status from the ledger. An
// unknown product yields a zeroed "out" status rather than an error.
func deriveStatus(ctx context.Context, l store.Ledger, productID int64) (models.StockStatus, error) {
	p, err := l.GetProduct(ctx, productID)
	if errors.Is(err, models.ErrProductNotFound) {
		return StatusFrom(productID, 0, 0, 0), nil
	}
	if err != nil {
		return models.StockStatus{}, err
	}

	sum, err := l.ReservedSum(ctx, productID)
	if err != nil {
		return models.StockStatus{}, err
	}

	return StatusFrom(p.ID, p.TotalStock, p.MinAlert, sum), nil
}

package service

import (
	"context"
	"testing"

	"stock-ledger/config"
	"stock-ledger/internal/models"
	"stock-ledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdjustments(t *testing.T, total, minAlert int) (*AdjustmentService, *store.Memory, int64) {
	t.Helper()

	mem := store.NewMemory()
	p := &models.Product{SKU: "OIL-FLT-02", Name: "Oil filter", TotalStock: total, MinAlert: minAlert}
	require.NoError(t, mem.CreateProduct(context.Background(), p))

	svc := NewAdjustmentService(mem, nil, nil, config.LedgerConfig{})
	return svc, mem, p.ID
}

func TestAdjustSetsTotalAbsolutely(t *testing.T) {
	svc, mem, pid := newTestAdjustments(t, 10, 3)
	ctx := context.Background()

	result, err := svc.Adjust(ctx, pid, 0, models.ReasonDamaged, "Found water damage during physical count", "sari")
	require.NoError(t, err)

	assert.Equal(t, 10, result.Adjustment.QuantityBefore)
	assert.Equal(t, 0, result.Adjustment.QuantityAfter)
	assert.Equal(t, -10, result.Adjustment.QuantityChange)
	assert.Equal(t, 0, result.Status.Total)
	assert.Equal(t, models.StockStatusOut, result.Status.Status)

	// exactly one audit record and one paired ADJUST entry
	adjustments, err := mem.AdjustmentsForProduct(ctx, pid)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)

	entries, err := mem.EntriesForProduct(ctx, pid, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryTypeAdjust, entries[0].Type)
	assert.Equal(t, -10, entries[0].QuantityChange)
	assert.Equal(t, adjustments[0].ID, entries[0].ReferenceID)
	assert.Contains(t, entries[0].Note, "[damaged]")
	assert.Contains(t, entries[0].Note, "water damage")
}

func TestAdjustIsAbsoluteRegardlessOfPriorTotal(t *testing.T) {
	ctx := context.Background()

	for _, before := range []int{0, 3, 50} {
		svc, _, pid := newTestAdjustments(t, before, 2)

		result, err := svc.Adjust(ctx, pid, 7, models.ReasonPhysicalCount, "Counted seven on the back shelf", "sari")
		require.NoError(t, err)
		assert.Equal(t, 7, result.Status.Total)
		assert.Equal(t, 7-before, result.Adjustment.QuantityChange)
	}
}

func TestAdjustZeroChangeStillRecorded(t *testing.T) {
	svc, mem, pid := newTestAdjustments(t, 10, 3)
	ctx := context.Background()

	result, err := svc.Adjust(ctx, pid, 10, models.ReasonPhysicalCount, "Physical count confirms system total", "sari")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Adjustment.QuantityChange)

	entries, err := mem.EntriesForProduct(ctx, pid, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAdjustRejectsShortReasonNote(t *testing.T) {
	svc, mem, pid := newTestAdjustments(t, 10, 3)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, pid, 5, models.ReasonCorrection, "short", "sari")
	assert.ErrorIs(t, err, models.ErrInvalidReason)

	// whitespace padding does not satisfy the gate
	_, err = svc.Adjust(ctx, pid, 5, models.ReasonCorrection, "   short      ", "sari")
	assert.ErrorIs(t, err, models.ErrInvalidReason)

	// no state change on failure
	p, err := mem.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 10, p.TotalStock)

	entries, err := mem.EntriesForProduct(ctx, pid, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	adjustments, err := mem.AdjustmentsForProduct(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, adjustments)
}

func TestAdjustStatusOmittedWhenReadFails(t *testing.T) {
	mem := store.NewMemory()
	p := &models.Product{SKU: "OIL-FLT-02", Name: "Oil filter", TotalStock: 8, MinAlert: 3}
	require.NoError(t, mem.CreateProduct(context.Background(), p))

	svc := NewAdjustmentService(&flakyLedger{Ledger: mem, sumFailures: 1}, nil, nil, config.LedgerConfig{})
	ctx := context.Background()

	result, err := svc.Adjust(ctx, p.ID, 12, models.ReasonPhysicalCount, "Annual count found four extra units", "sari")
	require.NoError(t, err)
	require.NotNil(t, result.Adjustment)
	require.NotNil(t, result.Entry)
	assert.Nil(t, result.Status)

	// the adjustment itself committed
	got, err := mem.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalStock)
}

func TestAdjustRejectsBadInput(t *testing.T) {
	svc, _, pid := newTestAdjustments(t, 10, 3)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, pid, -1, models.ReasonLost, "Negative totals are never valid", "sari")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = svc.Adjust(ctx, pid, 5, "shrinkage", "Unknown reason category must be rejected", "sari")
	assert.ErrorIs(t, err, models.ErrInvalidReason)

	_, err = svc.Adjust(ctx, 9999, 5, models.ReasonLost, "Product does not exist at all", "sari")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

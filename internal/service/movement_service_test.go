package service

import (
	"context"
	"errors"
	"testing"

	"stock-ledger/config"
	"stock-ledger/internal/models"
	"stock-ledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLedger fails the reservation aggregate read a set number of times,
// then delegates. Writes always go through.
type flakyLedger struct {
	store.Ledger
	sumFailures int
}

func (f *flakyLedger) ReservedSum(ctx context.Context, productID int64) (int, error) {
	if f.sumFailures > 0 {
		f.sumFailures--
		return 0, errors.New("aggregate query timed out")
	}
	return f.Ledger.ReservedSum(ctx, productID)
}

func newTestStock(t *testing.T, total, minAlert int) (*StockService, *store.Memory, int64) {
	t.Helper()

	mem := store.NewMemory()
	p := &models.Product{SKU: "BRK-PAD-01", Name: "Brake pad", TotalStock: total, MinAlert: minAlert}
	require.NoError(t, mem.CreateProduct(context.Background(), p))

	svc := NewStockService(mem, nil, nil, config.LedgerConfig{})
	return svc, mem, p.ID
}

func entryCount(t *testing.T, mem *store.Memory, productID int64) int {
	t.Helper()
	entries, err := mem.EntriesForProduct(context.Background(), productID, 0)
	require.NoError(t, err)
	return len(entries)
}

func TestStockInIncrementsTotal(t *testing.T) {
	svc, _, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	result, err := svc.StockIn(ctx, pid, 5, models.RefTypePurchase, "po-17", "restock", "budi")
	require.NoError(t, err)

	assert.Equal(t, models.EntryTypeIn, result.Entry.Type)
	assert.Equal(t, 5, result.Entry.QuantityChange)
	assert.Equal(t, 15, result.Status.Total)
	assert.Equal(t, 15, result.Status.Available)
}

func TestStockOutScenario(t *testing.T) {
	// product starts at total=10, minAlert=3; stockOut 4 leaves total=6, safe
	svc, _, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	result, err := svc.StockOut(ctx, pid, 4, models.RefTypeSale, "sale-9", "", "budi")
	require.NoError(t, err)

	assert.Equal(t, 6, result.Status.Total)
	assert.Equal(t, models.StockStatusSafe, result.Status.Status)
}

func TestStockOutChecksTotalNotAvailable(t *testing.T) {
	svc, _, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	// reserve 8 so available=2, but total is still 10
	_, err := svc.Reserve(ctx, pid, 8, "svc-1", "", "budi")
	require.NoError(t, err)

	// OUT consumes physical stock; 5 <= total passes even though available=2
	result, err := svc.StockOut(ctx, pid, 5, models.RefTypeSale, "sale-1", "", "budi")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Status.Total)

	// but 6 > total=5 fails
	_, err = svc.StockOut(ctx, pid, 6, models.RefTypeSale, "sale-2", "", "budi")
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
}

func TestReserveAndFailOverReservation(t *testing.T) {
	svc, mem, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	_, err := svc.StockOut(ctx, pid, 4, models.RefTypeSale, "sale-9", "", "budi")
	require.NoError(t, err)

	// reserve 5 of the remaining 6
	result, err := svc.Reserve(ctx, pid, 5, "svc-1", "", "budi")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Status.Reserved)
	assert.Equal(t, 1, result.Status.Available)
	assert.Equal(t, 6, result.Status.Total)

	// a second reservation for 2 must fail: only 1 available
	before := entryCount(t, mem, pid)
	_, err = svc.Reserve(ctx, pid, 2, "svc-2", "", "budi")
	assert.ErrorIs(t, err, models.ErrInsufficientAvailable)

	// failed operations append nothing
	assert.Equal(t, before, entryCount(t, mem, pid))

	status, err := svc.GetStatus(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Reserved)
	assert.Equal(t, 1, status.Available)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	svc, _, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	_, err := svc.StockOut(ctx, pid, 4, models.RefTypeSale, "sale-9", "", "budi")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, pid, 5, "svc-1", "", "budi")
	require.NoError(t, err)

	result, err := svc.Release(ctx, pid, 5, "svc-1", "", "budi")
	require.NoError(t, err)
	assert.False(t, result.OverReleased)
	assert.Equal(t, 0, result.Status.Reserved)
	assert.Equal(t, 6, result.Status.Available)
}

func TestDoubleReleaseFloorsAtZero(t *testing.T) {
	svc, _, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, pid, 3, "svc-1", "", "budi")
	require.NoError(t, err)

	first, err := svc.Release(ctx, pid, 3, "svc-1", "", "budi")
	require.NoError(t, err)
	assert.False(t, first.OverReleased)

	// the ledger permits this, but it is flagged as drift
	second, err := svc.Release(ctx, pid, 3, "svc-1", "", "budi")
	require.NoError(t, err)
	assert.True(t, second.OverReleased)
	assert.Equal(t, 0, second.Status.Reserved)
	assert.Equal(t, 10, second.Status.Available)
	assert.GreaterOrEqual(t, second.Status.Available, 0)
}

func TestInvalidQuantities(t *testing.T) {
	svc, mem, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	_, err := svc.StockIn(ctx, pid, 0, models.RefTypePurchase, "", "", "budi")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = svc.StockOut(ctx, pid, -2, models.RefTypeSale, "", "", "budi")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = svc.Reserve(ctx, pid, 0, "svc-1", "", "budi")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = svc.Release(ctx, pid, -1, "svc-1", "", "budi")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = svc.Reserve(ctx, pid, 1, "", "", "budi")
	assert.ErrorIs(t, err, models.ErrInvalidReference)

	_, err = svc.StockIn(ctx, pid, 1, "warranty", "", "", "budi")
	assert.ErrorIs(t, err, models.ErrInvalidReference)

	assert.Equal(t, 0, entryCount(t, mem, pid))
}

func TestMovementsAgainstUnknownProduct(t *testing.T) {
	svc, _, _ := newTestStock(t, 10, 3)
	ctx := context.Background()

	_, err := svc.StockIn(ctx, 9999, 1, models.RefTypePurchase, "", "", "budi")
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	// status reads default instead of failing
	status, err := svc.GetStatus(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, models.StockStatusOut, status.Status)
	assert.Equal(t, 0, status.Total)
	assert.Equal(t, 0, status.Available)
}

func TestAvailableNeverNegative(t *testing.T) {
	svc, _, pid := newTestStock(t, 5, 2)
	ctx := context.Background()

	ops := []func() error{
		func() error { _, err := svc.Reserve(ctx, pid, 5, "svc-1", "", "a"); return err },
		func() error { _, err := svc.StockOut(ctx, pid, 5, models.RefTypeSale, "s-1", "", "a"); return err },
		func() error { _, err := svc.Release(ctx, pid, 9, "svc-1", "", "a"); return err },
		func() error { _, err := svc.StockIn(ctx, pid, 2, models.RefTypePurchase, "", "", "a"); return err },
		func() error { _, err := svc.StockOut(ctx, pid, 99, models.RefTypeSale, "s-2", "", "a"); return err },
	}

	for _, op := range ops {
		_ = op() // some of these fail; the invariant must hold regardless

		status, err := svc.GetStatus(ctx, pid)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, status.Available, 0)
		assert.GreaterOrEqual(t, status.Reserved, 0)
	}
}

func TestStatusOmittedWhenPostCommitReadFails(t *testing.T) {
	mem := store.NewMemory()
	p := &models.Product{SKU: "BRK-PAD-01", Name: "Brake pad", TotalStock: 10, MinAlert: 3}
	require.NoError(t, mem.CreateProduct(context.Background(), p))

	svc := NewStockService(&flakyLedger{Ledger: mem, sumFailures: 1}, nil, nil, config.LedgerConfig{})
	ctx := context.Background()

	result, err := svc.StockIn(ctx, p.ID, 5, models.RefTypePurchase, "po-3", "", "budi")
	require.NoError(t, err)
	require.NotNil(t, result.Entry)

	// the write committed but the totals could not be read back; the
	// result carries no status rather than a zeroed one
	assert.Nil(t, result.Status)

	got, err := mem.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.TotalStock)

	status, err := svc.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, status.Total)
	assert.Equal(t, models.StockStatusSafe, status.Status)
}

func TestEntriesForReference(t *testing.T) {
	svc, _, pid := newTestStock(t, 10, 3)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, pid, 2, "svc-7", "", "budi")
	require.NoError(t, err)
	_, err = svc.Release(ctx, pid, 2, "svc-7", "", "budi")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, pid, 1, "svc-8", "", "budi")
	require.NoError(t, err)

	entries, err := svc.EntriesForReference(ctx, models.RefTypeService, "svc-7")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// most recent first
	assert.Equal(t, models.EntryTypeRelease, entries[0].Type)
	assert.Equal(t, models.EntryTypeReserve, entries[1].Type)
}

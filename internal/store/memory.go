package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stock-ledger/internal/models"
)

// Memory is an in-memory Ledger for tests and local development. A single
// mutex serializes writes; reads take the read lock and copy out, so a
// caller never observes a partial entry.
type Memory struct {
	mu          sync.RWMutex
	products    map[int64]*models.Product
	entries     map[int64][]models.LedgerEntry
	adjustments map[int64][]models.Adjustment
	processed   map[string]string
	nextProduct int64
	nextSeq     int64
	lastWrite   map[int64]time.Time
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		products:    make(map[int64]*models.Product),
		entries:     make(map[int64][]models.LedgerEntry),
		adjustments: make(map[int64][]models.Adjustment),
		processed:   make(map[string]string),
		lastWrite:   make(map[int64]time.Time),
	}
}

func (m *Memory) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextProduct++
	p.ID = m.nextProduct
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

// appendLocked stamps the entry and appends it. Timestamps are forced
// non-decreasing per product in write order.
func (m *Memory) appendLocked(e *models.LedgerEntry) {
	m.nextSeq++
	e.Seq = m.nextSeq

	ts := time.Now()
	if last, ok := m.lastWrite[e.ProductID]; ok && ts.Before(last) {
		ts = last
	}
	m.lastWrite[e.ProductID] = ts
	e.CreatedAt = ts

	m.entries[e.ProductID] = append(m.entries[e.ProductID], *e)
}

func (m *Memory) reservedLocked(productID int64) int {
	sum := 0
	for _, e := range m.entries[productID] {
		if e.Type == models.EntryTypeReserve || e.Type == models.EntryTypeRelease {
			sum += e.QuantityChange
		}
	}
	return sum
}

func (m *Memory) StockIn(_ context.Context, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[e.ProductID]
	if !ok {
		return models.ErrProductNotFound
	}

	m.appendLocked(e)
	p.TotalStock += e.QuantityChange
	p.UpdatedAt = e.CreatedAt
	return nil
}

func (m *Memory) StockOut(_ context.Context, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[e.ProductID]
	if !ok {
		return models.ErrProductNotFound
	}

	qty := -e.QuantityChange
	if qty > p.TotalStock {
		return fmt.Errorf("%w: requested=%d, total=%d", models.ErrInsufficientStock, qty, p.TotalStock)
	}

	m.appendLocked(e)
	p.TotalStock -= qty
	p.UpdatedAt = e.CreatedAt
	return nil
}

func (m *Memory) Reserve(_ context.Context, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[e.ProductID]
	if !ok {
		return models.ErrProductNotFound
	}

	reserved := m.reservedLocked(e.ProductID)
	if reserved < 0 {
		reserved = 0
	}
	available := p.TotalStock - reserved
	if available < 0 {
		available = 0
	}

	if e.QuantityChange > available {
		return fmt.Errorf("%w: requested=%d, available=%d", models.ErrInsufficientAvailable, e.QuantityChange, available)
	}

	m.appendLocked(e)
	return nil
}

func (m *Memory) Release(_ context.Context, e *models.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[e.ProductID]; !ok {
		return false, models.ErrProductNotFound
	}

	m.appendLocked(e)
	return m.reservedLocked(e.ProductID) < 0, nil
}

func (m *Memory) Adjust(_ context.Context, adj *models.Adjustment, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[adj.ProductID]
	if !ok {
		return models.ErrProductNotFound
	}

	adj.QuantityBefore = p.TotalStock
	adj.QuantityChange = adj.QuantityAfter - adj.QuantityBefore
	e.QuantityChange = adj.QuantityChange

	m.appendLocked(e)
	adj.CreatedAt = e.CreatedAt
	m.adjustments[adj.ProductID] = append(m.adjustments[adj.ProductID], *adj)

	p.TotalStock = adj.QuantityAfter
	p.UpdatedAt = e.CreatedAt
	return nil
}

func (m *Memory) ReservedSum(_ context.Context, productID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reservedLocked(productID), nil
}

func (m *Memory) EntriesForProduct(_ context.Context, productID int64, limit int) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.entries[productID]
	n := len(src)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.LedgerEntry, 0, n)
	for i := len(src) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (m *Memory) EntriesForReference(_ context.Context, refType, refID string) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.LedgerEntry{}
	for _, entries := range m.entries {
		for _, e := range entries {
			if e.ReferenceType == refType && e.ReferenceID == refID {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out, nil
}

func (m *Memory) AdjustmentsForProduct(_ context.Context, productID int64) ([]models.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.adjustments[productID]
	out := make([]models.Adjustment, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (m *Memory) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *Memory) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = eventType
	return nil
}

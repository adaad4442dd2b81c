// Package store provides in-memory Store implementations for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	byItem     map[ledger.ItemID][]ledger.ConsumptionEvent
	byID       map[ledger.EventID]ledger.ConsumptionEvent
	salesLines map[string]bool // any event exists for the sales line
	saleItems  map[string]bool // (sales line, item) pairs already depleted
	reversed   map[ledger.EventID]bool

	items  map[ledger.ItemID]ledger.InventoryItem
	prices map[ledger.ItemID][]ledger.PriceRecord
}

func NewMemory() *Memory {
	return &Memory{
		byItem:     make(map[ledger.ItemID][]ledger.ConsumptionEvent),
		byID:       make(map[ledger.EventID]ledger.ConsumptionEvent),
		salesLines: make(map[string]bool),
		saleItems:  make(map[string]bool),
		reversed:   make(map[ledger.EventID]bool),
		items:      make(map[ledger.ItemID]ledger.InventoryItem),
		prices:     make(map[ledger.ItemID][]ledger.PriceRecord),
	}
}

// Append adds a single event. Append-only.
func (m *Memory) Append(_ context.Context, e ledger.ConsumptionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(e)
}

// AppendBatch adds multiple events atomically.
func (m *Memory) AppendBatch(_ context.Context, events []ledger.ConsumptionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	for _, e := range events {
		if e.SalesLineID != "" && m.saleItems[saleItemKey(e)] {
			return ledger.ErrDuplicateSalesLine
		}
	}
	for _, e := range events {
		if err := m.appendLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func saleItemKey(e ledger.ConsumptionEvent) string {
	return e.SalesLineID + "|" + string(e.ItemID)
}

// appendLocked enforces depletion uniqueness per (sales line, item):
// recipe fan-outs share one sales line across several items.
func (m *Memory) appendLocked(e ledger.ConsumptionEvent) error {
	if e.SalesLineID != "" && m.saleItems[saleItemKey(e)] {
		return ledger.ErrDuplicateSalesLine
	}

	evs := m.byItem[e.ItemID]

	// Binary search for insertion point keeps each item's slice ordered
	// by business timestamp.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].EventTs.After(e.EventTs)
	})
	evs = append(evs, ledger.ConsumptionEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = e
	m.byItem[e.ItemID] = evs

	m.byID[e.ID] = e
	if e.SalesLineID != "" {
		m.salesLines[e.SalesLineID] = true
		m.saleItems[saleItemKey(e)] = true
	}
	if e.ReversalOf != "" {
		m.reversed[e.ReversalOf] = true
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.EventID) (ledger.ConsumptionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return ledger.ConsumptionEvent{}, ledger.ErrEventNotFound
	}
	return e, nil
}

func (m *Memory) Query(_ context.Context, q ledger.EventQuery) ([]ledger.ConsumptionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.ConsumptionEvent
	if q.ItemID != "" {
		for _, e := range m.byItem[q.ItemID] {
			if q.Matches(e) {
				result = append(result, e)
			}
		}
	} else {
		for _, evs := range m.byItem {
			for _, e := range evs {
				if q.Matches(e) {
					result = append(result, e)
				}
			}
		}
		sort.Slice(result, func(i, j int) bool {
			return result[i].EventTs.Before(result[j].EventTs)
		})
	}

	if q.LiveOnly {
		result = ledger.FilterLive(result)
	}
	return result, nil
}

func (m *Memory) SumDeltas(_ context.Context, itemID ledger.ItemID, w ledger.Window) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range m.byItem[itemID] {
		if w.Contains(e.EventTs) {
			sum = sum.Add(e.Delta.Value)
		}
	}
	return sum, nil
}

func (m *Memory) SumDeltasByType(_ context.Context, itemID ledger.ItemID, t ledger.EventType, w ledger.Window) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range m.byItem[itemID] {
		if e.Type == t && w.Contains(e.EventTs) {
			sum = sum.Add(e.Delta.Value)
		}
	}
	return sum, nil
}

func (m *Memory) HasSalesLine(_ context.Context, salesLineID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.salesLines[salesLineID], nil
}

func (m *Memory) HasReversal(_ context.Context, id ledger.EventID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reversed[id], nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx simulates a transaction by staging writes and applying them only
// if fn succeeds. Good enough for tests; sqlite provides the real thing.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	staging := &txMemory{Memory: m}
	if err := fn(staging); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range staging.staged {
		if err := m.appendLocked(e); err != nil {
			return err
		}
	}
	return nil
}

type txMemory struct {
	*Memory
	staged []ledger.ConsumptionEvent
}

func (t *txMemory) Append(_ context.Context, e ledger.ConsumptionEvent) error {
	t.staged = append(t.staged, e)
	return nil
}

func (t *txMemory) AppendBatch(_ context.Context, events []ledger.ConsumptionEvent) error {
	t.staged = append(t.staged, events...)
	return nil
}

// HasReversal also sees staged reversals so a correction cannot double up
// within its own transaction.
func (t *txMemory) HasReversal(ctx context.Context, id ledger.EventID) (bool, error) {
	for _, e := range t.staged {
		if e.ReversalOf == id {
			return true, nil
		}
	}
	return t.Memory.HasReversal(ctx, id)
}

// =============================================================================
// ITEM CATALOG
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id ledger.ItemID) (ledger.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return ledger.InventoryItem{}, ledger.ErrItemNotFound
	}
	return item, nil
}

func (m *Memory) ListItems(_ context.Context, loc ledger.LocationID, activeOnly bool) ([]ledger.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.InventoryItem
	for _, item := range m.items {
		if item.LocationID != loc {
			continue
		}
		if activeOnly && !item.Active {
			continue
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveItem(_ context.Context, item ledger.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *Memory) AddPrice(_ context.Context, p ledger.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[p.ItemID] = append(m.prices[p.ItemID], p)
	return nil
}

func (m *Memory) PriceAt(_ context.Context, id ledger.ItemID, at time.Time) (ledger.PriceRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best ledger.PriceRecord
	found := false
	for _, p := range m.prices[id] {
		if !p.Covers(at) {
			continue
		}
		if !found || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
			found = true
		}
	}
	return best, found, nil
}

/*
store.go - Persistence interfaces for the consumption ledger

PURPOSE:
  Defines the interface between domain logic and the database. The Store
  persists ledger events while maintaining append-only semantics. Different
  implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): single event write
  - AppendBatch(): atomic multi-event write
  - NO Update() or Delete() methods exist
  Corrections are made via reversal events, never edits.

IDEMPOTENCY:
  Depletion events carry a SalesLineID. The store rejects a second event
  for the same sales line, so re-running a depletion batch is safe.

ATOMIC UNITS:
  WithTx() gives all-or-nothing semantics for the two multi-write
  operations in the system: event correction (reversal + replacement)
  and session close (adjustments + session end).

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - ledger/store: in-memory for tests and dev
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENT QUERY
// =============================================================================

// EventQuery filters a ledger read. Zero-value fields are ignored.
type EventQuery struct {
	LocationID LocationID
	ItemID     ItemID
	Types      []EventType
	Window     Window

	// LiveOnly excludes reversal events and the events they negate,
	// yielding the corrected view. Full-history sums (on-hand) must NOT
	// set this: reversals are part of the additive total.
	LiveOnly bool
}

func (q EventQuery) matchesType(t EventType) bool {
	if len(q.Types) == 0 {
		return true
	}
	for _, want := range q.Types {
		if t == want {
			return true
		}
	}
	return false
}

// Matches reports whether the event passes every filter except LiveOnly,
// which needs the full set to resolve reversal pairs.
func (q EventQuery) Matches(e ConsumptionEvent) bool {
	if q.LocationID != "" && e.LocationID != q.LocationID {
		return false
	}
	if q.ItemID != "" && e.ItemID != q.ItemID {
		return false
	}
	if !q.matchesType(e.Type) {
		return false
	}
	return q.Window.Contains(e.EventTs)
}

// =============================================================================
// STORE - Event persistence (append-only)
// =============================================================================

// Store handles persistence of consumption events.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists one event. Fails with ErrDuplicateSalesLine if the
	// event carries a SalesLineID that has already been consumed.
	Append(ctx context.Context, e ConsumptionEvent) error

	// AppendBatch persists multiple events atomically.
	AppendBatch(ctx context.Context, events []ConsumptionEvent) error

	// Get returns one event by ID, or ErrEventNotFound.
	Get(ctx context.Context, id EventID) (ConsumptionEvent, error)

	// Query returns matching events ordered by EventTs ascending.
	Query(ctx context.Context, q EventQuery) ([]ConsumptionEvent, error)

	// SumDeltas sums every event delta for the item inside the window,
	// regardless of type or reversal status. With only an upper bound this
	// is the canonical theoretical on-hand.
	SumDeltas(ctx context.Context, itemID ItemID, w Window) (decimal.Decimal, error)

	// SumDeltasByType sums deltas of a single event type for the item.
	SumDeltasByType(ctx context.Context, itemID ItemID, t EventType, w Window) (decimal.Decimal, error)

	// HasSalesLine reports whether a depletion event for the sales line
	// already exists. This is the batch idempotency check.
	HasSalesLine(ctx context.Context, salesLineID string) (bool, error)

	// HasReversal reports whether an event negating id has been appended.
	HasReversal(ctx context.Context, id EventID) (bool, error)
}

// TxStore wraps Store with transaction support. Use it for the atomic
// multi-write operations: corrections and session closes.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error the unit rolls back; otherwise it commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// ITEM CATALOG
// =============================================================================

// ItemStore persists the inventory item catalog and its price history.
// Items are soft-deleted via the Active flag, never removed.
type ItemStore interface {
	GetItem(ctx context.Context, id ItemID) (InventoryItem, error)
	ListItems(ctx context.Context, loc LocationID, activeOnly bool) ([]InventoryItem, error)
	SaveItem(ctx context.Context, item InventoryItem) error
	AddPrice(ctx context.Context, p PriceRecord) error

	// PriceAt returns the unit cost effective at the given instant.
	// ok is false when no price covers the instant; reports degrade to
	// null cost fields rather than failing.
	PriceAt(ctx context.Context, id ItemID, at time.Time) (PriceRecord, bool, error)
}

// PriceResolver is the narrow cost lookup consumed by reporting.
type PriceResolver interface {
	UnitCost(ctx context.Context, id ItemID, at time.Time) (decimal.Decimal, bool, error)
}

// StorePriceResolver adapts an ItemStore's price history to PriceResolver.
type StorePriceResolver struct {
	Items ItemStore
}

func (r StorePriceResolver) UnitCost(ctx context.Context, id ItemID, at time.Time) (decimal.Decimal, bool, error) {
	p, ok, err := r.Items.PriceAt(ctx, id, at)
	if err != nil || !ok {
		return decimal.Zero, false, err
	}
	return p.UnitCost, true, nil
}

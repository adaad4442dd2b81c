/*
ledger.go - Append-only consumption log

PURPOSE:
  The Ledger is the immutable source of truth for every inventory movement.
  Sales, deliveries, transfers, count adjustments, and reversals are all
  recorded here. On-hand is always computed by summing deltas - there is no
  separate "current stock" field that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, events cannot be modified
  3. ADDITIVE: sum of deltas through time T == on-hand at T, for any mix
     of event types; appending an event moves on-hand by exactly its delta
  4. IDEMPOTENT: One depletion event per sales line (no double-counting)

WHY APPEND-ONLY?
  - Audit: every on-hand figure is explainable from history
  - Corrections: reversal + replacement, both visible forever
  - Reconciliation: count adjustments are just more events

EXAMPLE FLOW:
  1. Case of 24 delivered:       receiving             +24
  2. One bottle sold:            pos_sale               -1
  3. Count finds 20, not 23:     inventory_count_adjustment -3
  On-hand: 24 - 1 - 3 = 20. The ledger explains the missing three.

SEE ALSO:
  - correction.go: Reversal + replacement protocol
  - store.go: Persistence interfaces
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only event log
// =============================================================================

// Ledger is the source of truth for all inventory movements.
//
// Appending is the only mutation. Reads are pure sums over the immutable
// log and tolerate concurrent writers.
type Ledger interface {
	// Append adds one event after validation.
	Append(ctx context.Context, e ConsumptionEvent) error

	// AppendBatch adds multiple events atomically.
	AppendBatch(ctx context.Context, events []ConsumptionEvent) error

	// Get returns one event by ID.
	Get(ctx context.Context, id EventID) (ConsumptionEvent, error)

	// Events returns matching events, chronologically by EventTs.
	Events(ctx context.Context, q EventQuery) ([]ConsumptionEvent, error)

	// OnHand computes theoretical on-hand as of a business timestamp:
	// the sum of every delta with EventTs <= asOf, all types included.
	OnHand(ctx context.Context, itemID ItemID, asOf time.Time) (decimal.Decimal, error)

	// SumDeltas sums all deltas for the item inside the window.
	SumDeltas(ctx context.Context, itemID ItemID, w Window) (decimal.Decimal, error)

	// SumDeltasByType sums deltas of one event type inside the window.
	SumDeltasByType(ctx context.Context, itemID ItemID, t EventType, w Window) (decimal.Decimal, error)

	// HasSalesLine reports whether any event for the originating sales
	// record exists. Depletion uses this as its skip check.
	HasSalesLine(ctx context.Context, salesLineID string) (bool, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation over Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

// ValidateEvent rejects malformed events before any write.
func ValidateEvent(e ConsumptionEvent) error {
	if e.ItemID == "" {
		return &ValidationError{Field: "itemId", Message: "required"}
	}
	if e.LocationID == "" {
		return &ValidationError{Field: "locationId", Message: "required"}
	}
	if !ValidEventType(e.Type) {
		return &ValidationError{Field: "eventType", Message: "unknown type " + string(e.Type)}
	}
	if !ValidUOM(e.Delta.UOM) {
		return &ValidationError{Field: "uom", Message: "unknown unit " + string(e.Delta.UOM)}
	}
	if e.EventTs.IsZero() {
		return &ValidationError{Field: "eventTs", Message: "required"}
	}
	return nil
}

func (l *DefaultLedger) Append(ctx context.Context, e ConsumptionEvent) error {
	if err := ValidateEvent(e); err != nil {
		return err
	}
	return l.Store.Append(ctx, e)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, events []ConsumptionEvent) error {
	for _, e := range events {
		if err := ValidateEvent(e); err != nil {
			return err
		}
	}
	return l.Store.AppendBatch(ctx, events)
}

func (l *DefaultLedger) Get(ctx context.Context, id EventID) (ConsumptionEvent, error) {
	return l.Store.Get(ctx, id)
}

func (l *DefaultLedger) Events(ctx context.Context, q EventQuery) ([]ConsumptionEvent, error) {
	return l.Store.Query(ctx, q)
}

func (l *DefaultLedger) OnHand(ctx context.Context, itemID ItemID, asOf time.Time) (decimal.Decimal, error) {
	return l.Store.SumDeltas(ctx, itemID, Through(asOf))
}

func (l *DefaultLedger) SumDeltas(ctx context.Context, itemID ItemID, w Window) (decimal.Decimal, error) {
	return l.Store.SumDeltas(ctx, itemID, w)
}

func (l *DefaultLedger) SumDeltasByType(ctx context.Context, itemID ItemID, t EventType, w Window) (decimal.Decimal, error) {
	return l.Store.SumDeltasByType(ctx, itemID, t, w)
}

func (l *DefaultLedger) HasSalesLine(ctx context.Context, salesLineID string) (bool, error) {
	return l.Store.HasSalesLine(ctx, salesLineID)
}

// =============================================================================
// LIVE FILTERING
// =============================================================================

// FilterLive removes reversal events and the events they negate, producing
// the corrected view of history. On-hand sums must NOT use this: the pairs
// cancel arithmetically and belong in the additive total.
func FilterLive(events []ConsumptionEvent) []ConsumptionEvent {
	reversed := make(map[EventID]bool)
	for _, e := range events {
		if e.ReversalOf != "" {
			reversed[e.ReversalOf] = true
		}
	}
	live := make([]ConsumptionEvent, 0, len(events))
	for _, e := range events {
		if e.ReversalOf != "" || reversed[e.ID] {
			continue
		}
		live = append(live, e)
	}
	return live
}

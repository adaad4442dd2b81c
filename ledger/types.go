/*
Package ledger provides the consumption ledger at the core of barstock.

PURPOSE:
  This package contains the types and algorithms for tracking inventory
  depletion as an event-sourced, append-only ledger. Every quantity change
  to an inventory item (a sale, a delivery, a transfer, a count adjustment)
  is one signed ConsumptionEvent. On-hand stock is never stored; it is always
  derived by summing deltas.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A signed decimal amount with a unit of measure
  - ConsumptionEvent: An immutable ledger entry recording a quantity delta
  - InventoryItem: The catalog entry a ledger entry points at
  - Typed IDs: EventID, ItemID, LocationID prevent mixing identifiers

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Sign convention: negative delta = depletion, positive = addition;
     summing deltas over time yields on-hand
  4. Auditability: Every event carries source, confidence, and notes

SEE ALSO:
  - ledger.go: Ledger interface and aggregation
  - correction.go: Reversal + replacement protocol
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Signed decimal amount with a unit of measure
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
	UOM   UOM
}

type UOM string

const (
	UOMUnits UOM = "units"
	UOMOz    UOM = "oz"
	UOMMl    UOM = "ml"
	UOMGrams UOM = "grams"
)

// ValidUOM reports whether u is one of the known units of measure.
func ValidUOM(u UOM) bool {
	switch u {
	case UOMUnits, UOMOz, UOMMl, UOMGrams:
		return true
	}
	return false
}

func NewQuantity(value float64, uom UOM) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value), UOM: uom}
}

func NewQuantityFromInt(value int, uom UOM) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value)), UOM: uom}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (q Quantity) Zero() Quantity                 { return Quantity{Value: decimal.Zero, UOM: q.UOM} }
func (q Quantity) Add(b Quantity) Quantity        { return Quantity{Value: q.Value.Add(b.Value), UOM: q.UOM} }
func (q Quantity) Sub(b Quantity) Quantity        { return Quantity{Value: q.Value.Sub(b.Value), UOM: q.UOM} }
func (q Quantity) Mul(s decimal.Decimal) Quantity { return Quantity{Value: q.Value.Mul(s), UOM: q.UOM} }
func (q Quantity) Div(s decimal.Decimal) Quantity { return Quantity{Value: q.Value.Div(s), UOM: q.UOM} }
func (q Quantity) Neg() Quantity                  { return Quantity{Value: q.Value.Neg(), UOM: q.UOM} }
func (q Quantity) Abs() Quantity                  { return Quantity{Value: q.Value.Abs(), UOM: q.UOM} }
func (q Quantity) IsNegative() bool               { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool               { return q.Value.IsPositive() }
func (q Quantity) IsZero() bool                   { return q.Value.IsZero() }
func (q Quantity) GreaterThan(b Quantity) bool    { return q.Value.GreaterThan(b.Value) }
func (q Quantity) LessThan(b Quantity) bool       { return q.Value.LessThan(b.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EventID string
type ItemID string
type LocationID string
type SessionID string
type VendorID string

// NewEventID returns a fresh random event identifier.
func NewEventID() EventID { return EventID(uuid.NewString()) }

// =============================================================================
// EVENT CLASSIFICATION
// =============================================================================

type EventType string

const (
	EventPOSSale         EventType = "pos_sale"
	EventTapFlow         EventType = "tap_flow"
	EventReceiving       EventType = "receiving"
	EventTransfer        EventType = "transfer"
	EventCountAdjustment EventType = "inventory_count_adjustment"
	EventManualAdjust    EventType = "manual_adjustment"
)

// DepletionTypes are the event types that represent demand. Forecasting
// derives daily usage from these and nothing else.
var DepletionTypes = []EventType{EventPOSSale, EventTapFlow}

func ValidEventType(t EventType) bool {
	switch t {
	case EventPOSSale, EventTapFlow, EventReceiving, EventTransfer,
		EventCountAdjustment, EventManualAdjust:
		return true
	}
	return false
}

type ConfidenceLevel string

const (
	ConfidenceTheoretical ConfidenceLevel = "theoretical"
	ConfidenceMeasured    ConfidenceLevel = "measured"
	ConfidenceEstimated   ConfidenceLevel = "estimated"
)

type SourceSystem string

const (
	SourceToast      SourceSystem = "toast"
	SourceSquare     SourceSystem = "square"
	SourceLightspeed SourceSystem = "lightspeed"
	SourceClover     SourceSystem = "clover"
	SourceOther      SourceSystem = "other"
	SourceManual     SourceSystem = "manual"
)

type VarianceReason string

const (
	ReasonWasteFoam      VarianceReason = "waste_foam"
	ReasonComp           VarianceReason = "comp"
	ReasonStaffDrink     VarianceReason = "staff_drink"
	ReasonTheft          VarianceReason = "theft"
	ReasonBreakage       VarianceReason = "breakage"
	ReasonLineCleaning   VarianceReason = "line_cleaning"
	ReasonTransfer       VarianceReason = "transfer"
	ReasonSessionExpired VarianceReason = "session_expired"
	ReasonUnknown        VarianceReason = "unknown"
)

// =============================================================================
// CONSUMPTION EVENT - The ledger row
// =============================================================================

// ConsumptionEvent is one signed quantity change against an inventory item.
//
// Immutable once written. The only mutation the ledger ever sees is the
// append of further events; corrections pair a reversal (negated delta,
// ReversalOf set) with a replacement.
type ConsumptionEvent struct {
	ID           EventID
	LocationID   LocationID
	ItemID       ItemID
	Type         EventType
	SourceSystem SourceSystem

	// EventTs is the business timestamp: when the movement happened, not
	// when the row was written. All aggregation keys on this.
	EventTs time.Time

	// Delta is signed in the item's base unit. Negative = depletion.
	Delta Quantity

	Confidence     ConfidenceLevel
	VarianceReason VarianceReason // empty unless this is an adjustment with a known cause
	Notes          string

	// SalesLineID links a pos_sale/tap_flow event back to its originating
	// sales record. Doubles as the depletion idempotency key.
	SalesLineID string

	// ReversalOf marks this event as the negation of another. Events with
	// ReversalOf set (and their targets) are excluded from corrected "live"
	// views, but full-history sums include them: the sign convention makes
	// the total self-correcting.
	ReversalOf EventID

	// RecordedBy identifies the staff member or system actor, when known.
	RecordedBy string

	CreatedAt time.Time
}

// IsReversal reports whether this event negates another event.
func (e ConsumptionEvent) IsReversal() bool { return e.ReversalOf != "" }

// IsDepletion reports whether this event type represents demand.
func (e ConsumptionEvent) IsDepletion() bool {
	return e.Type == EventPOSSale || e.Type == EventTapFlow
}

// =============================================================================
// INVENTORY ITEM - Catalog entry
// =============================================================================

type ItemType string

const (
	ItemPackagedBeer ItemType = "packaged_beer"
	ItemKegBeer      ItemType = "keg_beer"
	ItemLiquor       ItemType = "liquor"
	ItemWine         ItemType = "wine"
	ItemFood         ItemType = "food"
	ItemMisc         ItemType = "misc"
)

// InventoryItem is a product tracked by the ledger. Items are soft-deleted
// via Active; an item referenced by ledger rows is never removed.
type InventoryItem struct {
	ID         ItemID
	LocationID LocationID
	Type       ItemType
	Name       string
	Barcode    string
	VendorSKU  string
	BaseUOM    UOM

	// PackSize converts between the package UOM and the base UOM
	// (e.g. a 24-unit case). Zero when the item has no package form.
	PackSize decimal.Decimal
	PackUOM  UOM

	Active    bool
	CreatedAt time.Time
}

// PriceRecord is one effective-dated unit cost for an item.
type PriceRecord struct {
	ItemID        ItemID
	UnitCost      decimal.Decimal
	Currency      string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time // nil = still current
}

// Covers reports whether the price applies at the given instant.
func (p PriceRecord) Covers(at time.Time) bool {
	if p.EffectiveFrom.After(at) {
		return false
	}
	return p.EffectiveTo == nil || p.EffectiveTo.After(at)
}

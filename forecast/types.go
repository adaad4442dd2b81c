/*
Package forecast turns ledger depletion history into reorder predictions.

PURPOSE:
  Demand is read straight off the ledger: the absolute deltas of
  depletion events (pos_sale, tap_flow) over the trailing eight weeks,
  bucketed by day. A fixed-weight blend of the weekly totals gives the
  baseline daily usage, a day-of-week ratio reshapes it, and a 30-day
  walk against current stock yields days-to-stockout and reorder dates
  against configured par levels.

NOISY INPUTS:
  Bar usage is spiky. The weekly blend damps single-night spikes while
  still favoring recent weeks, and the day-of-week ratio keeps a
  Saturday from looking like a Tuesday. Items with almost no history
  fall back to a flat average and are labeled low confidence rather
  than erroring.
*/
package forecast

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// PAR LEVEL - Per item-vendor-location stocking configuration
// =============================================================================

// ParUOM selects which unit par quantities are expressed in.
type ParUOM string

const (
	// ParNative compares in the item's base unit of measure.
	ParNative ParUOM = "native"
	// ParPackage compares in packages (cases, kegs), converted through
	// the item's PackSize.
	ParPackage ParUOM = "package"
)

// ParLevel is the stocking target for one item from one vendor at one
// location, unique on that triple. Soft-deleted via Active while
// referenced, never removed.
type ParLevel struct {
	ID         string
	ItemID     ledger.ItemID
	VendorID   ledger.VendorID
	LocationID ledger.LocationID

	ParLevel decimal.Decimal // target stocking level
	MinLevel decimal.Decimal // reorder trigger level

	// ReorderQty overrides the computed suggestion when set.
	ReorderQty *decimal.Decimal

	ParUOM          ParUOM
	LeadTimeDays    int
	SafetyStockDays int

	Active    bool
	CreatedAt time.Time
}

// ParLevelStore persists par levels, unique on (item, vendor, location).
type ParLevelStore interface {
	SaveParLevel(ctx context.Context, p ParLevel) error
	GetParLevel(ctx context.Context, item ledger.ItemID, vendor ledger.VendorID, loc ledger.LocationID) (ParLevel, error)
	ListParLevels(ctx context.Context, loc ledger.LocationID, activeOnly bool) ([]ParLevel, error)

	// DeactivateParLevel soft-deletes; the row stays for history.
	DeactivateParLevel(ctx context.Context, id string) error
}

// =============================================================================
// RESULTS
// =============================================================================

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ItemForecast is the dashboard row for one item.
type ItemForecast struct {
	ItemID             ledger.ItemID    `json:"inventory_item_id"`
	ItemName           string           `json:"item_name"`
	UOM                ledger.UOM       `json:"uom"`
	CurrentLevel       decimal.Decimal  `json:"current_level"`
	ForecastDailyUsage decimal.Decimal  `json:"forecast_daily_usage"`
	DaysToStockout     *int             `json:"days_to_stockout"`
	ReorderByDate      *time.Time       `json:"reorder_by_date"`
	NeedsReorderSoon   bool             `json:"needs_reorder_soon"`
	ProjectedCost      *decimal.Decimal `json:"projected_cost"`
	Confidence         Confidence       `json:"confidence"`
}

// DayUsage is one bucketed day of observed or projected usage.
type DayUsage struct {
	Date  time.Time       `json:"date"`
	Usage decimal.Decimal `json:"usage"`
}

// ItemDetail is the drill-down view: the observed history, the forward
// projection, and the weekday pattern behind it.
type ItemDetail struct {
	ItemID     ledger.ItemID      `json:"inventory_item_id"`
	Historical []DayUsage         `json:"historical"`  // trailing HistoryDays, oldest first
	Forecast   []DayUsage         `json:"forecast"`    // next HorizonDays
	DowPattern [7]decimal.Decimal `json:"dow_pattern"` // indexed by time.Weekday
}

// ReorderSuggestion is the par-level dashboard row.
type ReorderSuggestion struct {
	ItemID       ledger.ItemID   `json:"inventory_item_id"`
	ItemName     string          `json:"item_name"`
	VendorID     ledger.VendorID `json:"vendor_id"`
	CurrentLevel decimal.Decimal `json:"current_level"` // in the par's UOM
	ParLevel     decimal.Decimal `json:"par_level"`
	MinLevel     decimal.Decimal `json:"min_level"`
	ParUOM       ParUOM          `json:"par_uom"`
	BelowPar     bool            `json:"below_par"`
	BelowMin     bool            `json:"below_min"`
	SuggestedQty decimal.Decimal `json:"suggested_qty"`
}

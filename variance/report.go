/*
Package variance analyzes the gap between counted and theoretical stock.

PURPOSE:
  Everything here is a derived, non-persisted read model computed from
  the ledger and closed count sessions. Nothing in this package writes
  events; the only adjustments that ever exist are the ones session
  close already emitted.

REPORTS:
  - VarianceReport: per-item theoretical vs actual over a window, costed
    via effective-dated unit prices
  - Pattern analysis: cross-session trends and shrinkage suspicion
  - Heatmap, reason distribution, staff accuracy: attribution views
*/
package variance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// VARIANCE REPORT - Windowed theoretical vs actual, costed
// =============================================================================

// ReportItem is one inventory item's variance over the report window.
// Cost fields are nil when no price covers the window; the report
// degrades rather than failing.
type ReportItem struct {
	ItemID          ledger.ItemID    `json:"inventory_item_id"`
	ItemName        string           `json:"item_name"`
	Theoretical     decimal.Decimal  `json:"theoretical"`
	Actual          decimal.Decimal  `json:"actual"`
	Variance        decimal.Decimal  `json:"variance"`
	VariancePercent decimal.Decimal  `json:"variance_percent"`
	UOM             ledger.UOM       `json:"uom"`
	UnitCost        *decimal.Decimal `json:"unit_cost"`
	ValueImpact     *decimal.Decimal `json:"value_impact"`
}

// Report is the windowed variance view for a location.
type Report struct {
	LocationID         ledger.LocationID `json:"location_id"`
	From               time.Time         `json:"from_date"`
	To                 time.Time         `json:"to_date"`
	Items              []ReportItem      `json:"items"`
	TotalVarianceValue decimal.Decimal   `json:"total_variance_value"`
}

// Reporter computes variance reports from the ledger.
type Reporter struct {
	Ledger ledger.Ledger
	Items  ledger.ItemStore
	Prices ledger.PriceResolver
}

func NewReporter(lg ledger.Ledger, items ledger.ItemStore, prices ledger.PriceResolver) *Reporter {
	return &Reporter{Ledger: lg, Items: items, Prices: prices}
}

// Report builds the per-item variance view over [from, to).
//
// Theoretical movement is POS depletion; actual adds the count
// adjustments recorded in the window, so variance is exactly the
// adjustment total - what the counts said the ledger had missed.
func (r *Reporter) Report(ctx context.Context, loc ledger.LocationID, from, to time.Time) (Report, error) {
	items, err := r.Items.ListItems(ctx, loc, true)
	if err != nil {
		return Report{}, err
	}

	report := Report{LocationID: loc, From: from, To: to, TotalVarianceValue: decimal.Zero}
	w := ledger.Between(from, to)

	for _, item := range items {
		theoretical, err := r.Ledger.SumDeltasByType(ctx, item.ID, ledger.EventPOSSale, w)
		if err != nil {
			return Report{}, err
		}
		adjustments, err := r.Ledger.SumDeltasByType(ctx, item.ID, ledger.EventCountAdjustment, w)
		if err != nil {
			return Report{}, err
		}

		actual := theoretical.Add(adjustments)
		v := actual.Sub(theoretical)

		ri := ReportItem{
			ItemID:      item.ID,
			ItemName:    item.Name,
			Theoretical: theoretical.Abs(),
			Actual:      actual.Abs(),
			Variance:    v,
			UOM:         item.BaseUOM,
		}
		if !theoretical.IsZero() {
			ri.VariancePercent = v.Div(theoretical.Abs()).Mul(hundred)
		}

		if cost, ok, err := r.Prices.UnitCost(ctx, item.ID, to); err != nil {
			return Report{}, err
		} else if ok {
			impact := v.Mul(cost)
			ri.UnitCost = &cost
			ri.ValueImpact = &impact
			report.TotalVarianceValue = report.TotalVarianceValue.Add(impact.Abs())
		}

		report.Items = append(report.Items, ri)
	}
	return report, nil
}

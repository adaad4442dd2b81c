/*
reorder.go - Par-level reorder suggestions

PURPOSE:
  Turns configured par levels into a shopping list. For each active par
  the current on-hand level is converted into the par's unit of measure
  (native or whole packages through the item's pack size) and compared
  against the par and minimum levels.

SUGGESTED QUANTITY:
  A configured reorder quantity wins whenever the item sits below par.
  Otherwise the suggestion is the gap back up to par, floored at zero.
*/
package forecast

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// ReorderSuggestions builds the par dashboard for one location. Pars
// pointing at items that no longer exist are skipped rather than
// failing the whole report.
func (e *Engine) ReorderSuggestions(ctx context.Context, loc ledger.LocationID) ([]ReorderSuggestion, error) {
	pars, err := e.Pars.ListParLevels(ctx, loc, true)
	if err != nil {
		return nil, err
	}
	now := e.Now()

	out := make([]ReorderSuggestion, 0, len(pars))
	for _, par := range pars {
		item, err := e.Items.GetItem(ctx, par.ItemID)
		if err != nil {
			if ledger.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		native, err := e.Ledger.OnHand(ctx, item.ID, now)
		if err != nil {
			return nil, err
		}
		current := e.toParUnits(item, par, native)

		s := ReorderSuggestion{
			ItemID:       item.ID,
			ItemName:     item.Name,
			VendorID:     par.VendorID,
			CurrentLevel: current,
			ParLevel:     par.ParLevel,
			MinLevel:     par.MinLevel,
			ParUOM:       par.ParUOM,
			BelowPar:     current.LessThan(par.ParLevel),
			BelowMin:     current.LessThan(par.MinLevel),
		}
		s.SuggestedQty = suggestedQty(par, current)
		out = append(out, s)
	}
	return out, nil
}

func suggestedQty(par ParLevel, current decimal.Decimal) decimal.Decimal {
	if !current.LessThan(par.ParLevel) {
		return decimal.Zero
	}
	if par.ReorderQty != nil {
		return *par.ReorderQty
	}
	return decimal.Max(decimal.Zero, par.ParLevel.Sub(current))
}

// toParUnits converts a base-unit level into the par's unit of measure.
// Package pars divide through the pack size; items without a pack size
// fall back to native units.
func (e *Engine) toParUnits(item ledger.InventoryItem, par ParLevel, native decimal.Decimal) decimal.Decimal {
	if par.ParUOM == ParPackage && item.PackSize.IsPositive() {
		return native.Div(item.PackSize)
	}
	return native
}

/*
engine.go - Stockout and reorder-date projection

PURPOSE:
  Walks the seasonal 30-day projection against current stock to answer
  three questions per item: when does it run out, when must the order go
  in (stockout day minus vendor lead time), and is the order already
  urgent (projected level after the lead time below the minimum).

BASELINE LEVEL:
  The walk starts from the ledger's on-hand now, which is exactly the
  last physical count adjusted by every movement since - the count
  adjustment is itself a ledger event.

CONFIDENCE:
  Predictions are labeled by the age of the last physical count: high
  needs a count within 3 days and observed depletion activity; medium a
  count within 7 days, stretched to 14 when receiving has landed since
  the count; anything staler is low. A negative predicted level forces
  low regardless - the ledger and the shelf disagree.
*/
package forecast

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// Engine computes forecasts from the ledger and par-level configuration.
type Engine struct {
	Ledger ledger.Ledger
	Items  ledger.ItemStore
	Pars   ParLevelStore
	Prices ledger.PriceResolver

	Now func() time.Time
}

func NewEngine(lg ledger.Ledger, items ledger.ItemStore, pars ParLevelStore, prices ledger.PriceResolver) *Engine {
	return &Engine{Ledger: lg, Items: items, Pars: pars, Prices: prices, Now: time.Now}
}

// =============================================================================
// LOCATION FORECAST
// =============================================================================

// Forecast computes the dashboard rows for every active item at the
// location. Items with no usage history come back with zero usage and
// low confidence rather than an error.
func (e *Engine) Forecast(ctx context.Context, loc ledger.LocationID) ([]ItemForecast, error) {
	items, err := e.Items.ListItems(ctx, loc, true)
	if err != nil {
		return nil, err
	}
	pars, err := e.parsByItem(ctx, loc)
	if err != nil {
		return nil, err
	}

	out := make([]ItemForecast, 0, len(items))
	for _, item := range items {
		f, err := e.forecastItem(ctx, item, pars[item.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ItemDetail returns the drill-down series for one item.
func (e *Engine) ItemDetail(ctx context.Context, itemID ledger.ItemID) (ItemDetail, error) {
	if _, err := e.Items.GetItem(ctx, itemID); err != nil {
		return ItemDetail{}, err
	}

	now := e.Now()
	h, err := buildHistory(ctx, e.Ledger, itemID, now)
	if err != nil {
		return ItemDetail{}, err
	}

	baseline := h.dailyBaseline()
	ratios := h.dowRatios()
	projection := project(baseline, ratios, now)

	return ItemDetail{
		ItemID:     itemID,
		Historical: h.historicalSeries(),
		Forecast:   projection,
		DowPattern: ratios,
	}, nil
}

// parsByItem indexes the location's active par levels, first per item.
func (e *Engine) parsByItem(ctx context.Context, loc ledger.LocationID) (map[ledger.ItemID]*ParLevel, error) {
	pars, err := e.Pars.ListParLevels(ctx, loc, true)
	if err != nil {
		return nil, err
	}
	byItem := make(map[ledger.ItemID]*ParLevel)
	for i := range pars {
		p := pars[i]
		if _, ok := byItem[p.ItemID]; !ok {
			byItem[p.ItemID] = &p
		}
	}
	return byItem, nil
}

func (e *Engine) forecastItem(ctx context.Context, item ledger.InventoryItem, par *ParLevel) (ItemForecast, error) {
	now := e.Now()

	h, err := buildHistory(ctx, e.Ledger, item.ID, now)
	if err != nil {
		return ItemForecast{}, err
	}
	baseline := h.dailyBaseline()
	ratios := h.dowRatios()
	projection := project(baseline, ratios, now)

	current, err := e.Ledger.OnHand(ctx, item.ID, now)
	if err != nil {
		return ItemForecast{}, err
	}

	f := ItemForecast{
		ItemID:             item.ID,
		ItemName:           item.Name,
		UOM:                item.BaseUOM,
		CurrentLevel:       current,
		ForecastDailyUsage: baseline,
	}

	f.DaysToStockout = daysToStockout(current, baseline, projection)

	if par != nil && !par.MinLevel.IsZero() {
		minNative := e.toNative(item, *par, par.MinLevel)
		f.ReorderByDate = reorderBy(current, minNative, projection, par.LeadTimeDays)
		f.NeedsReorderSoon = levelAfter(current, projection, par.LeadTimeDays).LessThan(minNative)
	}

	if cost, ok, err := e.Prices.UnitCost(ctx, item.ID, now); err != nil {
		return ItemForecast{}, err
	} else if ok {
		total := decimal.Zero
		for _, d := range projection {
			total = total.Add(d.Usage)
		}
		projected := total.Mul(cost)
		f.ProjectedCost = &projected
	}

	f.Confidence, err = e.confidence(ctx, item.ID, current, baseline, now)
	if err != nil {
		return ItemForecast{}, err
	}
	return f, nil
}

// =============================================================================
// PROJECTION WALKS
// =============================================================================

// project builds the HorizonDays forward series starting today.
func project(baseline decimal.Decimal, ratios [7]decimal.Decimal, now time.Time) []DayUsage {
	start := ledger.DayStart(now)
	out := make([]DayUsage, HorizonDays)
	for i := 0; i < HorizonDays; i++ {
		day := start.AddDate(0, 0, i)
		out[i] = DayUsage{Date: day, Usage: baseline.Mul(ratios[day.Weekday()])}
	}
	return out
}

// daysToStockout walks the projection subtracting daily forecast until
// the level reaches zero. When the horizon never crosses zero it falls
// back to current/baseline, and nil means "not within reach of a guess".
func daysToStockout(current, baseline decimal.Decimal, projection []DayUsage) *int {
	level := current
	for i, d := range projection {
		level = level.Sub(d.Usage)
		if !level.IsPositive() {
			days := i + 1
			return &days
		}
	}
	if baseline.IsPositive() {
		days := int(current.Div(baseline).IntPart())
		return &days
	}
	return nil
}

// reorderBy finds the first projected day the level crosses the minimum
// and backs off by the vendor lead time.
func reorderBy(current, minLevel decimal.Decimal, projection []DayUsage, leadTimeDays int) *time.Time {
	level := current
	for _, d := range projection {
		level = level.Sub(d.Usage)
		if level.LessThan(minLevel) {
			t := d.Date.AddDate(0, 0, -leadTimeDays)
			return &t
		}
	}
	return nil
}

// levelAfter returns the projected level after n days of forecast usage.
func levelAfter(current decimal.Decimal, projection []DayUsage, n int) decimal.Decimal {
	level := current
	for i := 0; i < n && i < len(projection); i++ {
		level = level.Sub(projection[i].Usage)
	}
	return level
}

// =============================================================================
// CONFIDENCE
// =============================================================================

func (e *Engine) confidence(ctx context.Context, itemID ledger.ItemID, current, baseline decimal.Decimal, now time.Time) (Confidence, error) {
	// A negative predicted level means the ledger and the shelf disagree.
	if current.IsNegative() {
		return ConfidenceLow, nil
	}

	counts, err := e.Ledger.Events(ctx, ledger.EventQuery{
		ItemID: itemID,
		Types:  []ledger.EventType{ledger.EventCountAdjustment},
		Window: ledger.Through(now),
	})
	if err != nil {
		return ConfidenceLow, err
	}
	if len(counts) == 0 {
		return ConfidenceLow, nil
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].EventTs.Before(counts[j].EventTs) })
	lastCount := counts[len(counts)-1].EventTs
	age := ledger.DaysBetween(lastCount, now)

	switch {
	case age <= 3 && baseline.IsPositive():
		return ConfidenceHigh, nil
	case age <= 7:
		return ConfidenceMedium, nil
	case age <= 14:
		received, err := e.Ledger.SumDeltasByType(ctx, itemID, ledger.EventReceiving, ledger.Between(lastCount, now))
		if err != nil {
			return ConfidenceLow, err
		}
		if received.IsPositive() {
			return ConfidenceMedium, nil
		}
	}
	return ConfidenceLow, nil
}

// toNative converts a par-configured quantity into the item's base unit.
func (e *Engine) toNative(item ledger.InventoryItem, par ParLevel, qty decimal.Decimal) decimal.Decimal {
	if par.ParUOM == ParPackage && !item.PackSize.IsZero() {
		return qty.Mul(item.PackSize)
	}
	return qty
}

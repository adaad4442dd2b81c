/*
engine_test.go - Usage baseline, projection walks, and reorder math

Tests for:
- Weekly-blend baseline and renormalization over quiet weeks
- Flat-average fallback for young items
- Day-of-week seasonality ratios
- Corrected sales counted once in the usage history
- Stockout and reorder-date walks
- Par-level reorder suggestions, native and package units
*/
package forecast_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LesCam/barstock/forecast"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testLoc = ledger.LocationID("loc-bar")

var now = time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return ledger.MustParseDecimal(s) }

func newTestEngine(t *testing.T) (*forecast.Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := forecast.NewEngine(ledger.NewLedger(store), store, store, ledger.StorePriceResolver{Items: store})
	e.Now = func() time.Time { return now }
	return e, store
}

func saveItem(t *testing.T, store *sqlite.Store, id ledger.ItemID, packSize int64) {
	t.Helper()
	require.NoError(t, store.SaveItem(context.Background(), ledger.InventoryItem{
		ID: id, LocationID: testLoc, Type: ledger.ItemLiquor,
		Name: string(id), BaseUOM: ledger.UOMUnits,
		PackSize: decimal.NewFromInt(packSize), Active: true,
	}))
}

func appendEvent(t *testing.T, store *sqlite.Store, item ledger.ItemID, typ ledger.EventType, qty string, ts time.Time) {
	t.Helper()
	require.NoError(t, store.Append(context.Background(), ledger.ConsumptionEvent{
		ID:         ledger.NewEventID(),
		LocationID: testLoc,
		ItemID:     item,
		Type:       typ,
		EventTs:    ts,
		Delta:      ledger.Quantity{Value: dec(qty), UOM: ledger.UOMUnits},
		Confidence: ledger.ConfidenceTheoretical,
		CreatedAt:  ts,
	}))
}

// seedDailySales writes one pos_sale per day across the trailing
// observation window. qtyFor returns the units sold on that day; empty
// string skips the day.
func seedDailySales(t *testing.T, store *sqlite.Store, item ledger.ItemID, qtyFor func(day time.Time) string) {
	t.Helper()
	start := ledger.DayStart(now).AddDate(0, 0, -forecast.HistoryDays)
	for i := 0; i < forecast.HistoryDays; i++ {
		day := start.AddDate(0, 0, i)
		qty := qtyFor(day)
		if qty == "" {
			continue
		}
		appendEvent(t, store, item, ledger.EventPOSSale, "-"+qty, day.Add(12*time.Hour))
	}
}

func forecastFor(t *testing.T, e *forecast.Engine, item ledger.ItemID) forecast.ItemForecast {
	t.Helper()
	rows, err := e.Forecast(context.Background(), testLoc)
	require.NoError(t, err)
	for _, f := range rows {
		if f.ItemID == item {
			return f
		}
	}
	t.Fatalf("no forecast row for %s", item)
	return forecast.ItemForecast{}
}

// =============================================================================
// BASELINE USAGE
// =============================================================================

func TestForecast_FlatHistoryYieldsFlatBaseline(t *testing.T) {
	// GIVEN: exactly 7 units sold every day for eight weeks
	e, store := newTestEngine(t)
	saveItem(t, store, "item-1", 1)
	seedDailySales(t, store, "item-1", func(time.Time) string { return "7" })

	// WHEN: forecasting
	f := forecastFor(t, e, "item-1")

	// THEN: the blend reproduces the flat rate
	assert.True(t, f.ForecastDailyUsage.Equal(dec("7")), "got %s", f.ForecastDailyUsage)
}

func TestForecast_QuietWeeksRenormalize(t *testing.T) {
	// GIVEN: usage only in the two most recent weeks, 10 units a day
	e, store := newTestEngine(t)
	saveItem(t, store, "item-1", 1)
	cutoff := ledger.DayStart(now).AddDate(0, 0, -14)
	seedDailySales(t, store, "item-1", func(day time.Time) string {
		if day.Before(cutoff) {
			return ""
		}
		return "10"
	})

	// WHEN: forecasting
	f := forecastFor(t, e, "item-1")

	// THEN: the empty weeks drop out instead of diluting the rate
	assert.True(t, f.ForecastDailyUsage.Equal(dec("10")), "got %s", f.ForecastDailyUsage)
}

func TestForecast_YoungItemFallsBackToFlatAverage(t *testing.T) {
	// GIVEN: only three trading days, all in the last week
	e, store := newTestEngine(t)
	saveItem(t, store, "item-1", 1)
	base := ledger.DayStart(now)
	appendEvent(t, store, "item-1", ledger.EventPOSSale, "-4", base.AddDate(0, 0, -3).Add(20*time.Hour))
	appendEvent(t, store, "item-1", ledger.EventPOSSale, "-6", base.AddDate(0, 0, -2).Add(20*time.Hour))
	appendEvent(t, store, "item-1", ledger.EventPOSSale, "-8", base.AddDate(0, 0, -1).Add(20*time.Hour))

	// WHEN: forecasting
	f := forecastFor(t, e, "item-1")

	// THEN: flat average over the days that saw usage
	assert.True(t, f.ForecastDailyUsage.Equal(dec("6")), "got %s", f.ForecastDailyUsage)
}

func TestForecast_NoHistoryIsZeroUsageLowConfidence(t *testing.T) {
	e, store := newTestEngine(t)
	saveItem(t, store, "item-1", 1)

	f := forecastFor(t, e, "item-1")

	assert.True(t, f.ForecastDailyUsage.IsZero())
	assert.True(t, f.CurrentLevel.IsZero())
	assert.Nil(t, f.DaysToStockout)
	assert.Equal(t, forecast.ConfidenceLow, f.Confidence)
}

// =============================================================================
// SEASONALITY
// =============================================================================

func TestItemDetail_CorrectedSaleCountsOnce(t *testing.T) {
	// GIVEN: a mis-rung sale of 2, corrected down to 1 the same day
	e, store := newTestEngine(t)
	saveItem(t, store, "item-1", 1)

	saleDay := ledger.DayStart(now).AddDate(0, 0, -10)
	original := ledger.ConsumptionEvent{
		ID:         "evt-misring",
		LocationID: testLoc,
		ItemID:     "item-1",
		Type:       ledger.EventPOSSale,
		EventTs:    saleDay.Add(12 * time.Hour),
		Delta:      ledger.Quantity{Value: dec("-2"), UOM: ledger.UOMUnits},
		Confidence: ledger.ConfidenceTheoretical,
		CreatedAt:  saleDay.Add(12 * time.Hour),
	}
	require.NoError(t, store.Append(context.Background(), original))

	corrector := ledger.NewCorrector(store)
	corrector.Now = func() time.Time { return saleDay.Add(13 * time.Hour) }
	_, err := corrector.CorrectEvent(context.Background(), "evt-misring",
		ledger.Quantity{Value: dec("-1"), UOM: ledger.UOMUnits}, "mis-ring")
	require.NoError(t, err)

	// WHEN: building the usage history
	detail, err := e.ItemDetail(context.Background(), "item-1")
	require.NoError(t, err)

	// THEN: only the replacement counts as demand. Absolute values do
	// not cancel, so an uncorrected view would read 2+2+1 = 5.
	total := decimal.Zero
	for _, d := range detail.Historical {
		total = total.Add(d.Usage)
	}
	assert.True(t, total.Equal(dec("1")), "got %s", total)
}

func TestItemDetail_DowPatternShapesTheWeek(t *testing.T) {
	// GIVEN: Saturdays sell double the rest of the week, for eight weeks
	e, store := newTestEngine(t)
	saveItem(t, store, "item-1", 1)
	seedDailySales(t, store, "item-1", func(day time.Time) string {
		if day.Weekday() == time.Saturday {
			return "14"
		}
		return "7"
	})

	// WHEN: drilling into the item
	detail, err := e.ItemDetail(context.Background(), "item-1")
	require.NoError(t, err)

	// THEN: ratios lift Saturday and dilute the quiet days
	assert.True(t, detail.DowPattern[time.Saturday].Equal(dec("1.75")), "got %s", detail.DowPattern[time.Saturday])
	assert.True(t, detail.DowPattern[time.Tuesday].Equal(dec("0.875")), "got %s", detail.DowPattern[time.Tuesday])
	assert.Len(t, detail.Historical, forecast.HistoryDays)
	assert.Len(t, detail.Forecast, forecast.HorizonDays)
	assert.Equal(t, ledger.DayStart(now), detail.Forecast[0].Date)
}

// =============================================================================
// STOCKOUT AND REORDER WALKS
// =============================================================================

func TestForecast_StockoutWalkAndReorderDate(t *testing.T) {
	// GIVEN: 7 a day, 20 on hand, min level 10, two-day lead time
	e, store := newTestEngine(t)
	ctx := context.Background()
	saveItem(t, store, "item-1", 1)
	seedDailySales(t, store, "item-1", func(time.Time) string { return "7" })
	// 56 days at 7 a day is 392 depleted; the count puts 20 back on hand
	appendEvent(t, store, "item-1", ledger.EventCountAdjustment, "412", now.Add(-24*time.Hour))
	require.NoError(t, store.AddPrice(ctx, ledger.PriceRecord{
		ItemID: "item-1", UnitCost: dec("2"), Currency: "USD",
		EffectiveFrom: now.AddDate(0, -1, 0),
	}))
	require.NoError(t, store.SaveParLevel(ctx, forecast.ParLevel{
		ID: uuid.NewString(), ItemID: "item-1", VendorID: "vendor-1",
		LocationID: testLoc, ParLevel: dec("40"), MinLevel: dec("10"),
		ParUOM: forecast.ParNative, LeadTimeDays: 2, Active: true, CreatedAt: now,
	}))

	// WHEN: forecasting
	f := forecastFor(t, e, "item-1")

	// THEN: the projection crosses zero on day three
	assert.True(t, f.CurrentLevel.Equal(dec("20")), "got %s", f.CurrentLevel)
	require.NotNil(t, f.DaysToStockout)
	assert.Equal(t, 3, *f.DaysToStockout)

	// AND: min level is crossed after day two, lead time backs off to yesterday
	require.NotNil(t, f.ReorderByDate)
	assert.Equal(t, ledger.DayStart(now).AddDate(0, 0, -1), *f.ReorderByDate)
	assert.True(t, f.NeedsReorderSoon)

	// AND: yesterday's count makes this a high-confidence call
	assert.Equal(t, forecast.ConfidenceHigh, f.Confidence)

	// AND: 30 days of usage at 7 costed at 2 per unit
	require.NotNil(t, f.ProjectedCost)
	assert.True(t, f.ProjectedCost.Equal(dec("420")), "got %s", f.ProjectedCost)
}

// =============================================================================
// REORDER SUGGESTIONS
// =============================================================================

func TestReorderSuggestions_ParComparisons(t *testing.T) {
	// GIVEN: pars in native units, package units, with an override, and at par
	e, store := newTestEngine(t)
	ctx := context.Background()

	override := dec("12")
	cases := []struct {
		item     ledger.ItemID
		packSize int64
		onHand   string
		par      forecast.ParLevel
	}{
		{"item-native", 1, "4", forecast.ParLevel{ParLevel: dec("10"), MinLevel: dec("6"), ParUOM: forecast.ParNative}},
		{"item-cased", 24, "96", forecast.ParLevel{ParLevel: dec("6"), MinLevel: dec("2"), ParUOM: forecast.ParPackage}},
		{"item-fixed", 1, "8", forecast.ParLevel{ParLevel: dec("10"), MinLevel: dec("2"), ReorderQty: &override, ParUOM: forecast.ParNative}},
		{"item-stocked", 1, "50", forecast.ParLevel{ParLevel: dec("10"), MinLevel: dec("2"), ParUOM: forecast.ParNative}},
	}
	for _, c := range cases {
		saveItem(t, store, c.item, c.packSize)
		appendEvent(t, store, c.item, ledger.EventReceiving, c.onHand, now.Add(-48*time.Hour))
		p := c.par
		p.ID = uuid.NewString()
		p.ItemID = c.item
		p.VendorID = "vendor-1"
		p.LocationID = testLoc
		p.Active = true
		p.CreatedAt = now
		require.NoError(t, store.SaveParLevel(ctx, p))
	}
	// A par for a vanished item must not sink the report
	require.NoError(t, store.SaveParLevel(ctx, forecast.ParLevel{
		ID: uuid.NewString(), ItemID: "item-ghost", VendorID: "vendor-1",
		LocationID: testLoc, ParLevel: dec("10"), MinLevel: dec("2"),
		ParUOM: forecast.ParNative, Active: true, CreatedAt: now,
	}))

	// WHEN: building the suggestion list
	suggestions, err := e.ReorderSuggestions(ctx, testLoc)
	require.NoError(t, err)

	byItem := make(map[ledger.ItemID]forecast.ReorderSuggestion)
	for _, s := range suggestions {
		byItem[s.ItemID] = s
	}
	require.Len(t, byItem, 4)

	// THEN: native par orders the gap back up to par
	native := byItem["item-native"]
	assert.True(t, native.BelowPar)
	assert.True(t, native.BelowMin)
	assert.True(t, native.SuggestedQty.Equal(dec("6")), "got %s", native.SuggestedQty)

	// AND: package par compares in cases through the pack size
	cased := byItem["item-cased"]
	assert.True(t, cased.CurrentLevel.Equal(dec("4")), "got %s", cased.CurrentLevel)
	assert.True(t, cased.BelowPar)
	assert.False(t, cased.BelowMin)
	assert.True(t, cased.SuggestedQty.Equal(dec("2")), "got %s", cased.SuggestedQty)

	// AND: a configured reorder quantity overrides the computed gap
	fixed := byItem["item-fixed"]
	assert.True(t, fixed.SuggestedQty.Equal(override), "got %s", fixed.SuggestedQty)

	// AND: at or above par suggests nothing
	stocked := byItem["item-stocked"]
	assert.False(t, stocked.BelowPar)
	assert.True(t, stocked.SuggestedQty.IsZero())
}

func TestParLevelStore_UpsertOnTripleAndDeactivate(t *testing.T) {
	// GIVEN: a saved par level
	_, store := newTestEngine(t)
	ctx := context.Background()

	first := forecast.ParLevel{
		ID: uuid.NewString(), ItemID: "item-1", VendorID: "vendor-1",
		LocationID: testLoc, ParLevel: dec("10"), MinLevel: dec("4"),
		ParUOM: forecast.ParNative, LeadTimeDays: 3, Active: true, CreatedAt: now,
	}
	require.NoError(t, store.SaveParLevel(ctx, first))

	// WHEN: saving the same (item, vendor, location) triple again
	second := first
	second.ID = uuid.NewString()
	second.ParLevel = dec("14")
	require.NoError(t, store.SaveParLevel(ctx, second))

	// THEN: the triple resolves to one row carrying the new target
	got, err := store.GetParLevel(ctx, "item-1", "vendor-1", testLoc)
	require.NoError(t, err)
	assert.True(t, got.ParLevel.Equal(dec("14")), "got %s", got.ParLevel)

	all, err := store.ListParLevels(ctx, testLoc, true)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// AND: deactivation hides it from active listings but keeps the row
	require.NoError(t, store.DeactivateParLevel(ctx, all[0].ID))
	active, err := store.ListParLevels(ctx, testLoc, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	got, err = store.GetParLevel(ctx, "item-1", "vendor-1", testLoc)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// AND: deactivating an unknown id reports not found
	assert.ErrorIs(t, store.DeactivateParLevel(ctx, "nope"), ledger.ErrParLevelNotFound)
}

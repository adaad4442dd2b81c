/*
usage.go - Usage history and the weekly-blend baseline

PURPOSE:
  Builds the per-day usage series from ledger depletion events and
  reduces it to a forecast daily usage figure plus a day-of-week
  seasonality ratio.

THE BLEND:
  Eight trailing weekly totals, most recent first, weighted
  [0.30 0.25 0.20 0.15 0.04 0.03 0.02 0.01]. Weeks with no usage drop
  out and the weights renormalize over what remains, so a young item is
  judged on the weeks it actually traded. Fewer than two weeks with any
  usage falls back to a flat average over the days that saw usage.
*/
package forecast

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

const (
	// HistoryDays is the trailing observation window.
	HistoryDays = 56
	// HistoryWeeks is the number of weekly totals the blend consumes.
	HistoryWeeks = 8
	// HorizonDays is how far forward projections run.
	HorizonDays = 30
)

// weeklyWeights blend the trailing weekly totals, most recent week first.
var weeklyWeights = []decimal.Decimal{
	decimal.NewFromFloat(0.30),
	decimal.NewFromFloat(0.25),
	decimal.NewFromFloat(0.20),
	decimal.NewFromFloat(0.15),
	decimal.NewFromFloat(0.04),
	decimal.NewFromFloat(0.03),
	decimal.NewFromFloat(0.02),
	decimal.NewFromFloat(0.01),
}

var seven = decimal.NewFromInt(7)

// usageHistory is the bucketed observation window for one item.
// days[0] is the oldest day, days[HistoryDays-1] is yesterday.
type usageHistory struct {
	start time.Time // day start of the oldest bucket
	days  [HistoryDays]decimal.Decimal
}

// buildHistory buckets the item's depletion events by UTC day over the
// HistoryDays window ending the day before asOf. Usage is the absolute
// value of depletion deltas: a sale of -1.5 oz is 1.5 oz of demand.
// Corrected events are taken live: absolute values do not cancel the
// way signed sums do, so a reversal pair would count as phantom demand.
func buildHistory(ctx context.Context, lg ledger.Ledger, itemID ledger.ItemID, asOf time.Time) (usageHistory, error) {
	end := ledger.DayStart(asOf)
	start := end.AddDate(0, 0, -HistoryDays)

	h := usageHistory{start: start}
	events, err := lg.Events(ctx, ledger.EventQuery{
		ItemID:   itemID,
		Types:    ledger.DepletionTypes,
		Window:   ledger.Between(start, end),
		LiveOnly: true,
	})
	if err != nil {
		return h, err
	}
	for _, e := range events {
		idx := ledger.DaysBetween(start, e.EventTs)
		if idx < 0 || idx >= HistoryDays {
			continue
		}
		h.days[idx] = h.days[idx].Add(e.Delta.Value.Abs())
	}
	return h, nil
}

// weeklyTotals folds the window into HistoryWeeks totals, most recent
// week first. Week 0 is the last seven days of the window.
func (h usageHistory) weeklyTotals() [HistoryWeeks]decimal.Decimal {
	var weeks [HistoryWeeks]decimal.Decimal
	for i := 0; i < HistoryDays; i++ {
		week := (HistoryDays - 1 - i) / 7
		weeks[week] = weeks[week].Add(h.days[i])
	}
	return weeks
}

// dailyBaseline reduces the window to a single forecast daily usage.
func (h usageHistory) dailyBaseline() decimal.Decimal {
	weeks := h.weeklyTotals()

	active := 0
	for _, w := range weeks {
		if !w.IsZero() {
			active++
		}
	}

	// Too little signal for the blend: flat average over days that
	// actually saw usage.
	if active < 2 {
		sum, observed := decimal.Zero, 0
		for _, d := range h.days {
			if d.IsZero() {
				continue
			}
			sum = sum.Add(d)
			observed++
		}
		if observed == 0 {
			return decimal.Zero
		}
		return sum.Div(decimal.NewFromInt(int64(observed)))
	}

	weighted, weightSum := decimal.Zero, decimal.Zero
	for i, w := range weeks {
		if w.IsZero() {
			continue
		}
		weighted = weighted.Add(w.Mul(weeklyWeights[i]))
		weightSum = weightSum.Add(weeklyWeights[i])
	}
	if weightSum.IsZero() {
		return decimal.Zero
	}
	return weighted.Div(weightSum).Div(seven)
}

// dowRatios computes each weekday's average usage relative to the
// overall daily average. Days with no usage still count in the
// averages, diluting quiet weekdays. A flat week yields all ones.
func (h usageHistory) dowRatios() [7]decimal.Decimal {
	var totals [7]decimal.Decimal
	var counts [7]int64
	overall := decimal.Zero

	for i := 0; i < HistoryDays; i++ {
		wd := h.start.AddDate(0, 0, i).Weekday()
		totals[wd] = totals[wd].Add(h.days[i])
		counts[wd]++
		overall = overall.Add(h.days[i])
	}

	var ratios [7]decimal.Decimal
	overallAvg := overall.Div(decimal.NewFromInt(HistoryDays))
	for wd := 0; wd < 7; wd++ {
		if overallAvg.IsZero() || counts[wd] == 0 {
			ratios[wd] = decimal.NewFromInt(1)
			continue
		}
		avg := totals[wd].Div(decimal.NewFromInt(counts[wd]))
		ratios[wd] = avg.Div(overallAvg)
	}
	return ratios
}

// historicalSeries exposes the window as dated buckets, oldest first.
func (h usageHistory) historicalSeries() []DayUsage {
	out := make([]DayUsage, HistoryDays)
	for i := 0; i < HistoryDays; i++ {
		out[i] = DayUsage{Date: h.start.AddDate(0, 0, i), Usage: h.days[i]}
	}
	return out
}

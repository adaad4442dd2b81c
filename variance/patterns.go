/*
patterns.go - Cross-session variance pattern detection

PURPOSE:
  Looks across a location's recent closed count sessions for items that
  keep coming up short. One number per item per session (the last counted
  line wins on duplicates), compared against theoretical on-hand at that
  session's start.

CLASSIFICATION:
  Trend: the chronological variance series is split at its midpoint and
  the half-means compared; a shift beyond +/-0.5 units marks the item
  improving or worsening. Sign convention: more negative variance = more
  loss, so a rising mean is improvement.

  Shrinkage suspicion requires a pattern, not a bad night: at least three
  session appearances, a negative mean, and strictly negative variances
  in more than half of the observations.

  Results sort ascending by mean variance - worst loss first.
*/
package variance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
)

// DefaultPatternSessions is how many recent closed sessions the analysis
// covers when the caller does not say.
const DefaultPatternSessions = 10

// MinPatternSessions is the fewest closed sessions the analysis accepts.
const MinPatternSessions = 2

// trendShift is the half-mean difference beyond which a trend is called.
var trendShift = decimal.NewFromFloat(0.5)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
)

// PatternItem is one item's behavior across the analyzed sessions.
type PatternItem struct {
	ItemID             ledger.ItemID     `json:"inventory_item_id"`
	ItemName           string            `json:"item_name"`
	Appearances        int               `json:"appearances"`
	Variances          []decimal.Decimal `json:"variances"`
	MeanVariance       decimal.Decimal   `json:"mean_variance"`
	Trend              Trend             `json:"trend"`
	IsShrinkageSuspect bool              `json:"is_shrinkage_suspect"`
}

// Analyzer computes cross-session patterns.
type Analyzer struct {
	Ledger   ledger.Ledger
	Items    ledger.ItemStore
	Sessions session.Store
}

func NewAnalyzer(lg ledger.Ledger, items ledger.ItemStore, sessions session.Store) *Analyzer {
	return &Analyzer{Ledger: lg, Items: items, Sessions: sessions}
}

// AnalyzePatterns examines the location's last sessionCount closed
// sessions (default 10). Fewer than two closed sessions yields an empty
// result: one data point is not a pattern.
func (a *Analyzer) AnalyzePatterns(ctx context.Context, loc ledger.LocationID, sessionCount int) ([]PatternItem, error) {
	if sessionCount <= 0 {
		sessionCount = DefaultPatternSessions
	}

	sessions, err := a.Sessions.RecentClosed(ctx, loc, sessionCount)
	if err != nil {
		return nil, err
	}
	if len(sessions) < MinPatternSessions {
		return nil, nil
	}

	// Oldest first so each item's variance series is chronological.
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedTs.Before(sessions[j].StartedTs)
	})

	series := make(map[ledger.ItemID][]decimal.Decimal)
	var order []ledger.ItemID

	for _, sess := range sessions {
		lines, err := a.Sessions.Lines(ctx, sess.ID)
		if err != nil {
			return nil, err
		}

		// Last line wins within a session for pattern purposes.
		counted := make(map[ledger.ItemID]decimal.Decimal)
		for _, l := range lines {
			counted[l.ItemID] = l.ActualValue()
		}

		for itemID, actual := range counted {
			theoretical, err := a.Ledger.OnHand(ctx, itemID, sess.StartedTs)
			if err != nil {
				return nil, err
			}
			if _, seen := series[itemID]; !seen {
				order = append(order, itemID)
			}
			series[itemID] = append(series[itemID], actual.Sub(theoretical))
		}
	}

	items := make([]PatternItem, 0, len(order))
	for _, itemID := range order {
		variances := series[itemID]
		p := PatternItem{
			ItemID:       itemID,
			Appearances:  len(variances),
			Variances:    variances,
			MeanVariance: Mean(variances),
			Trend:        ClassifyTrend(variances),
		}
		if item, err := a.Items.GetItem(ctx, itemID); err == nil {
			p.ItemName = item.Name
		}
		p.IsShrinkageSuspect = isShrinkageSuspect(variances, p.MeanVariance)
		items = append(items, p)
	}

	// Worst loss first.
	sort.Slice(items, func(i, j int) bool {
		return items[i].MeanVariance.LessThan(items[j].MeanVariance)
	})
	return items, nil
}

// =============================================================================
// SERIES MATH
// =============================================================================

// Mean averages a variance series; zero for an empty series.
func Mean(series []decimal.Decimal) decimal.Decimal {
	if len(series) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range series {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(series))))
}

// ClassifyTrend splits the chronological series at its midpoint and
// compares half-means. A single observation is always stable.
func ClassifyTrend(series []decimal.Decimal) Trend {
	if len(series) < 2 {
		return TrendStable
	}
	mid := len(series) / 2
	shift := Mean(series[mid:]).Sub(Mean(series[:mid]))
	switch {
	case shift.GreaterThan(trendShift):
		return TrendImproving
	case shift.LessThan(trendShift.Neg()):
		return TrendWorsening
	}
	return TrendStable
}

// isShrinkageSuspect flags a sustained-loss pattern: enough appearances,
// a negative mean, and mostly strictly-negative observations.
func isShrinkageSuspect(series []decimal.Decimal, mean decimal.Decimal) bool {
	if len(series) < 3 || !mean.IsNegative() {
		return false
	}
	negative := 0
	for _, v := range series {
		if v.IsNegative() {
			negative++
		}
	}
	return negative*2 > len(series)
}

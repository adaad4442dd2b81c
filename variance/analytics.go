/*
analytics.go - Variance attribution views

PURPOSE:
  Answers "when is stock going missing, what do we blame it on, and how
  well does each counter count": a day-of-week/hour heatmap of adjustment
  magnitude, a reason-code distribution, and per-staff counting accuracy.
  All three are pure reads over the ledger and closed sessions.
*/
package variance

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// ADJUSTMENT HEATMAP - When do adjustments land?
// =============================================================================

// HeatmapCell is one (weekday, hour) bucket of count-adjustment activity.
type HeatmapCell struct {
	Weekday   time.Weekday    `json:"weekday"`
	Hour      int             `json:"hour"`
	Events    int             `json:"events"`
	Magnitude decimal.Decimal `json:"magnitude"` // sum of absolute deltas
}

// AdjustmentHeatmap buckets the location's count adjustments in [from, to)
// by weekday and hour of their business timestamp. Only populated cells
// are returned, ordered weekday then hour.
func (a *Analyzer) AdjustmentHeatmap(ctx context.Context, loc ledger.LocationID, from, to time.Time) ([]HeatmapCell, error) {
	events, err := a.Ledger.Events(ctx, ledger.EventQuery{
		LocationID: loc,
		Types:      []ledger.EventType{ledger.EventCountAdjustment},
		Window:     ledger.Between(from, to),
	})
	if err != nil {
		return nil, err
	}

	type key struct {
		wd   time.Weekday
		hour int
	}
	cells := make(map[key]*HeatmapCell)
	for _, e := range events {
		ts := e.EventTs.UTC()
		k := key{wd: ts.Weekday(), hour: ts.Hour()}
		c, ok := cells[k]
		if !ok {
			c = &HeatmapCell{Weekday: k.wd, Hour: k.hour, Magnitude: decimal.Zero}
			cells[k] = c
		}
		c.Events++
		c.Magnitude = c.Magnitude.Add(e.Delta.Value.Abs())
	}

	out := make([]HeatmapCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}

// =============================================================================
// REASON DISTRIBUTION - What do we blame it on?
// =============================================================================

// ReasonBucket is one variance reason's share of adjustment activity.
type ReasonBucket struct {
	Reason    ledger.VarianceReason `json:"reason"`
	Events    int                   `json:"events"`
	Magnitude decimal.Decimal       `json:"magnitude"`
	Share     decimal.Decimal       `json:"share_percent"`
}

// ReasonDistribution groups the location's count adjustments in [from, to)
// by reason code. Adjustments recorded without a reason fall under
// "unknown". Buckets are ordered by magnitude, largest first.
func (a *Analyzer) ReasonDistribution(ctx context.Context, loc ledger.LocationID, from, to time.Time) ([]ReasonBucket, error) {
	events, err := a.Ledger.Events(ctx, ledger.EventQuery{
		LocationID: loc,
		Types:      []ledger.EventType{ledger.EventCountAdjustment},
		Window:     ledger.Between(from, to),
	})
	if err != nil {
		return nil, err
	}

	buckets := make(map[ledger.VarianceReason]*ReasonBucket)
	total := decimal.Zero
	for _, e := range events {
		reason := e.VarianceReason
		if reason == "" {
			reason = ledger.ReasonUnknown
		}
		b, ok := buckets[reason]
		if !ok {
			b = &ReasonBucket{Reason: reason, Magnitude: decimal.Zero}
			buckets[reason] = b
		}
		b.Events++
		b.Magnitude = b.Magnitude.Add(e.Delta.Value.Abs())
		total = total.Add(e.Delta.Value.Abs())
	}

	out := make([]ReasonBucket, 0, len(buckets))
	for _, b := range buckets {
		if !total.IsZero() {
			b.Share = b.Magnitude.Div(total).Mul(hundred)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Magnitude.GreaterThan(out[j].Magnitude)
	})
	return out, nil
}

// =============================================================================
// STAFF ACCURACY - How well does each counter count?
// =============================================================================

// StaffAccuracy scores one staff member's counting across the analyzed
// sessions: accuracy = 1 - linesWithVariance/linesCounted.
type StaffAccuracy struct {
	Staff             string          `json:"staff"`
	LinesCounted      int             `json:"lines_counted"`
	LinesWithVariance int             `json:"lines_with_variance"`
	Accuracy          decimal.Decimal `json:"accuracy"`
	Trend             Trend           `json:"trend"`
}

// StaffAccuracyScores examines the location's last sessionCount closed
// sessions and scores each counter. A line "has variance" when the item
// it counted ended that session with a non-zero variance. The trend
// applies the midpoint rule to each staff member's per-session variance
// rate; a falling rate is improvement.
func (a *Analyzer) StaffAccuracyScores(ctx context.Context, loc ledger.LocationID, sessionCount int) ([]StaffAccuracy, error) {
	if sessionCount <= 0 {
		sessionCount = DefaultPatternSessions
	}
	sessions, err := a.Sessions.RecentClosed(ctx, loc, sessionCount)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedTs.Before(sessions[j].StartedTs)
	})

	type tally struct {
		counted int
		varied  int
		rates   []decimal.Decimal
	}
	tallies := make(map[string]*tally)
	var order []string

	for _, sess := range sessions {
		lines, err := a.Sessions.Lines(ctx, sess.ID)
		if err != nil {
			return nil, err
		}

		counted := make(map[ledger.ItemID]decimal.Decimal)
		for _, l := range lines {
			counted[l.ItemID] = l.ActualValue()
		}
		varied := make(map[ledger.ItemID]bool)
		for itemID, actual := range counted {
			theoretical, err := a.Ledger.OnHand(ctx, itemID, sess.StartedTs)
			if err != nil {
				return nil, err
			}
			varied[itemID] = !actual.Sub(theoretical).IsZero()
		}

		perStaff := make(map[string]*[2]int) // counted, varied
		for _, l := range lines {
			staff := l.RecordedBy
			if staff == "" {
				staff = sess.CreatedBy
			}
			if staff == "" {
				continue
			}
			s, ok := perStaff[staff]
			if !ok {
				s = &[2]int{}
				perStaff[staff] = s
			}
			s[0]++
			if varied[l.ItemID] {
				s[1]++
			}
		}

		for staff, s := range perStaff {
			t, ok := tallies[staff]
			if !ok {
				t = &tally{}
				tallies[staff] = t
				order = append(order, staff)
			}
			t.counted += s[0]
			t.varied += s[1]
			rate := decimal.NewFromInt(int64(s[1])).Div(decimal.NewFromInt(int64(s[0])))
			t.rates = append(t.rates, rate)
		}
	}

	sort.Strings(order)
	out := make([]StaffAccuracy, 0, len(order))
	for _, staff := range order {
		t := tallies[staff]
		sa := StaffAccuracy{
			Staff:             staff,
			LinesCounted:      t.counted,
			LinesWithVariance: t.varied,
			Accuracy:          decimal.NewFromInt(1),
		}
		if t.counted > 0 {
			rate := decimal.NewFromInt(int64(t.varied)).Div(decimal.NewFromInt(int64(t.counted)))
			sa.Accuracy = decimal.NewFromInt(1).Sub(rate)
		}
		// Negate so a dropping variance rate classifies as improving.
		negated := make([]decimal.Decimal, len(t.rates))
		for i, r := range t.rates {
			negated[i] = r.Neg()
		}
		sa.Trend = ClassifyTrend(negated)
		out = append(out, sa)
	}
	return out, nil
}

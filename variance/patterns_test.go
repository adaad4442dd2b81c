/*
patterns_test.go - Cross-session shrinkage detection

Tests for:
- Series math (mean, trend midpoint rule)
- Shrinkage suspicion thresholds
- Pattern analysis over seeded count sessions
*/
package variance_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
	"github.com/LesCam/barstock/store/sqlite"
	"github.com/LesCam/barstock/variance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testLoc = ledger.LocationID("loc-bar")

func dec(s string) decimal.Decimal { return ledger.MustParseDecimal(s) }

func series(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(vals))
	for _, v := range vals {
		out = append(out, dec(v))
	}
	return out
}

func newAnalyzer(t *testing.T) (*variance.Analyzer, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return variance.NewAnalyzer(ledger.NewLedger(store), store, store), store
}

// seedCountSession writes a closed session whose single line counts the
// item at (on-hand + variance).
func seedCountSession(t *testing.T, store *sqlite.Store, item ledger.ItemID, startedTs time.Time, varianceUnits string, staff string) {
	t.Helper()
	ctx := context.Background()

	onHand, err := store.SumDeltas(ctx, item, ledger.Through(startedTs))
	require.NoError(t, err)
	counted := onHand.Add(dec(varianceUnits))

	id := session.NewSessionID()
	require.NoError(t, store.CreateSession(ctx, session.Session{
		ID: id, LocationID: testLoc, Type: session.TypeShift,
		StartedTs: startedTs, CreatedBy: staff, CreatedAt: startedTs,
	}))
	require.NoError(t, store.AddLine(ctx, session.Line{
		ID: uuid.NewString(), SessionID: id, ItemID: item,
		CountUnits: &counted, RecordedBy: staff, CreatedAt: startedTs,
	}))
	require.NoError(t, store.CloseSession(ctx, id, startedTs.Add(time.Hour), staff, nil))
}

// =============================================================================
// SERIES MATH
// =============================================================================

func TestMean(t *testing.T) {
	assert.True(t, variance.Mean(nil).IsZero())
	assert.True(t, variance.Mean(series("-2", "-4")).Equal(dec("-3")))
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name   string
		series []decimal.Decimal
		want   variance.Trend
	}{
		{"single observation", series("-4"), variance.TrendStable},
		{"flat", series("-2", "-2", "-2", "-2"), variance.TrendStable},
		{"small wobble", series("-2", "-3", "-1", "-4"), variance.TrendStable},
		{"losses shrinking", series("-5", "-5", "-1", "-1"), variance.TrendImproving},
		{"losses growing", series("-1", "-1", "-5", "-5"), variance.TrendWorsening},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, variance.ClassifyTrend(tc.series))
		})
	}
}

// =============================================================================
// PATTERN ANALYSIS
// =============================================================================

func TestAnalyzePatterns_RepeatedLossFlagsSuspect(t *testing.T) {
	// GIVEN: vodka short in four consecutive weekly counts
	analyzer, store := newAnalyzer(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, ledger.InventoryItem{
		ID: "item-vodka", LocationID: testLoc, Type: ledger.ItemLiquor,
		Name: "Well Vodka", BaseUOM: ledger.UOMUnits,
		PackSize: decimal.NewFromInt(1), Active: true,
	}))

	base := time.Date(2026, time.February, 2, 22, 0, 0, 0, time.UTC)
	for week, short := range []string{"-2", "-3", "-1", "-4"} {
		seedCountSession(t, store, "item-vodka", base.AddDate(0, 0, 7*week), short, "staff-1")
	}

	// WHEN: analyzing patterns
	items, err := analyzer.AnalyzePatterns(ctx, testLoc, 10)
	require.NoError(t, err)

	// THEN: the item is a suspect with a stable loss trend
	require.Len(t, items, 1)
	p := items[0]
	assert.Equal(t, ledger.ItemID("item-vodka"), p.ItemID)
	assert.Equal(t, "Well Vodka", p.ItemName)
	assert.Equal(t, 4, p.Appearances)
	assert.True(t, p.MeanVariance.Equal(dec("-2.5")), "got %s", p.MeanVariance)
	assert.Equal(t, variance.TrendStable, p.Trend)
	assert.True(t, p.IsShrinkageSuspect)
}

func TestAnalyzePatterns_MixedSignsNotSuspect(t *testing.T) {
	// GIVEN: counts that wobble around zero
	analyzer, store := newAnalyzer(t)
	ctx := context.Background()

	base := time.Date(2026, time.February, 2, 22, 0, 0, 0, time.UTC)
	for week, v := range []string{"2", "-1", "1", "-2"} {
		seedCountSession(t, store, "item-gin", base.AddDate(0, 0, 7*week), v, "staff-1")
	}

	items, err := analyzer.AnalyzePatterns(ctx, testLoc, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsShrinkageSuspect)
}

func TestAnalyzePatterns_TooFewSessionsIsEmpty(t *testing.T) {
	// One closed session is not a pattern
	analyzer, store := newAnalyzer(t)

	base := time.Date(2026, time.February, 2, 22, 0, 0, 0, time.UTC)
	seedCountSession(t, store, "item-gin", base, "-3", "staff-1")

	items, err := analyzer.AnalyzePatterns(context.Background(), testLoc, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAnalyzePatterns_WorstLossSortsFirst(t *testing.T) {
	analyzer, store := newAnalyzer(t)
	ctx := context.Background()

	base := time.Date(2026, time.February, 2, 22, 0, 0, 0, time.UTC)
	for week := 0; week < 3; week++ {
		ts := base.AddDate(0, 0, 7*week)
		seedCountSessionMulti(t, store, ts, map[ledger.ItemID]string{
			"item-mild":  "-1",
			"item-heavy": "-6",
		})
	}

	items, err := analyzer.AnalyzePatterns(ctx, testLoc, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ledger.ItemID("item-heavy"), items[0].ItemID)
	assert.Equal(t, ledger.ItemID("item-mild"), items[1].ItemID)
}

// seedCountSessionMulti writes one closed session counting several items.
func seedCountSessionMulti(t *testing.T, store *sqlite.Store, startedTs time.Time, variances map[ledger.ItemID]string) {
	t.Helper()
	ctx := context.Background()

	id := session.NewSessionID()
	require.NoError(t, store.CreateSession(ctx, session.Session{
		ID: id, LocationID: testLoc, Type: session.TypeShift,
		StartedTs: startedTs, CreatedBy: "staff-1", CreatedAt: startedTs,
	}))
	for item, v := range variances {
		onHand, err := store.SumDeltas(ctx, item, ledger.Through(startedTs))
		require.NoError(t, err)
		counted := onHand.Add(dec(v))
		require.NoError(t, store.AddLine(ctx, session.Line{
			ID: uuid.NewString(), SessionID: id, ItemID: item,
			CountUnits: &counted, RecordedBy: "staff-1", CreatedAt: startedTs,
		}))
	}
	require.NoError(t, store.CloseSession(ctx, id, startedTs.Add(time.Hour), "staff-1", nil))
}

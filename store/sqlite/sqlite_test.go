/*
sqlite_test.go - Persistence guarantees the services lean on

Tests for:
- Event round-trips and query filters
- Window bounds at whole-second and fractional-second timestamps
- One depletion event per (sales line, item)
- Transaction rollback
- The ended_ts IS NULL close guard
- Sales line re-import idempotency
- Mapping effectivity resolution
- Effective-dated price lookups
*/
package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LesCam/barstock/depletion"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
	"github.com/LesCam/barstock/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testLoc = ledger.LocationID("loc-bar")

var base = time.Date(2026, time.July, 1, 18, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return ledger.MustParseDecimal(s) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testEvent(id ledger.EventID, item ledger.ItemID, typ ledger.EventType, qty string, ts time.Time) ledger.ConsumptionEvent {
	return ledger.ConsumptionEvent{
		ID:         id,
		LocationID: testLoc,
		ItemID:     item,
		Type:       typ,
		EventTs:    ts,
		Delta:      ledger.Quantity{Value: dec(qty), UOM: ledger.UOMOz},
		Confidence: ledger.ConfidenceTheoretical,
		CreatedAt:  ts,
	}
}

// =============================================================================
// EVENT STORE
// =============================================================================

func TestAppendAndGet_RoundTrip(t *testing.T) {
	// GIVEN: an event carrying every optional field
	store := newStore(t)
	ctx := context.Background()

	e := testEvent("evt-1", "item-1", ledger.EventPOSSale, "-1.5", base)
	e.SourceSystem = ledger.SourceToast
	e.VarianceReason = ledger.ReasonComp
	e.Notes = "manager comp, table 9"
	e.SalesLineID = "line-1"
	e.RecordedBy = "dana"
	require.NoError(t, store.Append(ctx, e))

	// WHEN: reading it back
	got, err := store.Get(ctx, "evt-1")
	require.NoError(t, err)

	// THEN: everything survives the trip
	assert.Equal(t, e.ItemID, got.ItemID)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.SourceSystem, got.SourceSystem)
	assert.True(t, got.Delta.Value.Equal(dec("-1.5")))
	assert.Equal(t, ledger.UOMOz, got.Delta.UOM)
	assert.Equal(t, e.VarianceReason, got.VarianceReason)
	assert.Equal(t, e.Notes, got.Notes)
	assert.Equal(t, e.SalesLineID, got.SalesLineID)
	assert.Equal(t, e.RecordedBy, got.RecordedBy)
	assert.True(t, got.EventTs.Equal(base))

	_, err = store.Get(ctx, "evt-missing")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestAppend_OneEventPerSalesLineItem(t *testing.T) {
	// GIVEN: a depletion event already recorded for (line-1, item-keg)
	store := newStore(t)
	ctx := context.Background()

	first := testEvent("evt-1", "item-keg", ledger.EventPOSSale, "-16", base)
	first.SalesLineID = "line-1"
	require.NoError(t, store.Append(ctx, first))

	// WHEN: the same line tries to deplete the same item again
	dup := testEvent("evt-2", "item-keg", ledger.EventPOSSale, "-16", base)
	dup.SalesLineID = "line-1"
	err := store.Append(ctx, dup)

	// THEN: the identity index rejects it
	assert.ErrorIs(t, err, ledger.ErrDuplicateSalesLine)

	// AND: the same line may still deplete a different item, as a
	// recipe fan-out does
	other := testEvent("evt-3", "item-lime", ledger.EventPOSSale, "-1", base)
	other.SalesLineID = "line-1"
	assert.NoError(t, store.Append(ctx, other))

	// AND: events without a sales line never collide
	a := testEvent("evt-4", "item-keg", ledger.EventReceiving, "100", base)
	b := testEvent("evt-5", "item-keg", ledger.EventReceiving, "100", base)
	require.NoError(t, store.Append(ctx, a))
	assert.NoError(t, store.Append(ctx, b))
}

func TestQuery_FiltersAndOrdering(t *testing.T) {
	// GIVEN: a mixed day of activity
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testEvent("evt-1", "item-1", ledger.EventReceiving, "100", base)))
	require.NoError(t, store.Append(ctx, testEvent("evt-2", "item-1", ledger.EventPOSSale, "-16", base.Add(2*time.Hour))))
	require.NoError(t, store.Append(ctx, testEvent("evt-3", "item-2", ledger.EventPOSSale, "-12", base.Add(3*time.Hour))))
	require.NoError(t, store.Append(ctx, testEvent("evt-4", "item-1", ledger.EventPOSSale, "-8", base.Add(26*time.Hour))))

	// WHEN: querying item-1 sales within the first day
	events, err := store.Query(ctx, ledger.EventQuery{
		ItemID: "item-1",
		Types:  []ledger.EventType{ledger.EventPOSSale},
		Window: ledger.Between(base, base.Add(24*time.Hour)),
	})
	require.NoError(t, err)

	// THEN: only the in-window sale for that item comes back
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventID("evt-2"), events[0].ID)

	// AND: a location query returns everything in timestamp order
	all, err := store.Query(ctx, ledger.EventQuery{LocationID: testLoc})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ledger.EventID("evt-1"), all[0].ID)
	assert.Equal(t, ledger.EventID("evt-4"), all[3].ID)
}

func TestSumDeltas_IncludesEventAtExactAsOf(t *testing.T) {
	// GIVEN: a delivery stamped on a whole second
	store := newStore(t)
	ctx := context.Background()
	ts := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, testEvent("evt-1", "item-1", ledger.EventReceiving, "24", ts)))

	// WHEN: summing as of exactly that instant
	sum, err := store.SumDeltas(ctx, "item-1", ledger.Through(ts))
	require.NoError(t, err)

	// THEN: the event is inside the inclusive bound
	assert.True(t, sum.Equal(dec("24")), "got %s", sum)
}

func TestSumDeltas_DayWindowKeepsFractionalSeconds(t *testing.T) {
	// GIVEN: a sale half a second into the business day
	store := newStore(t)
	ctx := context.Background()
	midnight := time.Date(2026, time.July, 2, 0, 0, 0, 0, time.UTC)
	sale := testEvent("evt-1", "item-1", ledger.EventPOSSale, "-1", midnight.Add(500*time.Millisecond))
	require.NoError(t, store.Append(ctx, sale))

	// WHEN: summing the half-open day window [midnight, midnight+1d)
	sum, err := store.SumDeltas(ctx, "item-1", ledger.Between(midnight, midnight.AddDate(0, 0, 1)))
	require.NoError(t, err)

	// THEN: the fractional-second event counts
	assert.True(t, sum.Equal(dec("-1")), "got %s", sum)

	// AND: the same window returns it from Query
	events, err := store.Query(ctx, ledger.EventQuery{
		ItemID: "item-1",
		Window: ledger.Between(midnight, midnight.AddDate(0, 0, 1)),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a transaction that appends and then fails
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.Append(ctx, testEvent("evt-1", "item-1", ledger.EventReceiving, "10", base)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: the append rolled back with it
	_, err = store.Get(ctx, "evt-1")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

// =============================================================================
// SESSION CLOSE GUARD
// =============================================================================

func seedSession(t *testing.T, store *sqlite.Store, id ledger.SessionID) {
	t.Helper()
	require.NoError(t, store.CreateSession(context.Background(), session.Session{
		ID: id, LocationID: testLoc, Type: session.TypeShift,
		StartedTs: base, CreatedBy: "dana", CreatedAt: base,
	}))
}

func TestCloseSession_EndedGuard(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedSession(t, store, "sess-1")

	// Unknown session surfaces not-found, not the closed error
	err := store.CloseSession(ctx, "sess-missing", base.Add(time.Hour), "dana", nil)
	assert.ErrorIs(t, err, ledger.ErrSessionNotFound)

	// First close wins
	require.NoError(t, store.CloseSession(ctx, "sess-1", base.Add(time.Hour), "dana", nil))
	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got.EndedTs)
	assert.Equal(t, "dana", got.ClosedBy)

	// Second close loses on the ended_ts IS NULL guard
	err = store.CloseSession(ctx, "sess-1", base.Add(2*time.Hour), "miguel", nil)
	assert.ErrorIs(t, err, ledger.ErrSessionClosed)
	got, err = store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "dana", got.ClosedBy)
}

func TestCloseSession_FailedAdjustmentLeavesSessionOpen(t *testing.T) {
	// GIVEN: an adjustment whose ID already exists in the ledger
	store := newStore(t)
	ctx := context.Background()
	seedSession(t, store, "sess-1")
	require.NoError(t, store.Append(ctx, testEvent("evt-1", "item-1", ledger.EventReceiving, "10", base)))

	clash := testEvent("evt-1", "item-1", ledger.EventCountAdjustment, "-2", base.Add(time.Hour))

	// WHEN: closing with that adjustment
	err := store.CloseSession(ctx, "sess-1", base.Add(time.Hour), "dana", []ledger.ConsumptionEvent{clash})
	require.Error(t, err)

	// THEN: the close rolled back wholesale
	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got.EndedTs)
}

// =============================================================================
// SALES LINES
// =============================================================================

func salesLine(id string, receiptID, lineID string, soldAt time.Time) depletion.SalesLine {
	return depletion.SalesLine{
		ID:           id,
		SourceSystem: ledger.SourceToast,
		LocationID:   testLoc,
		BusinessDate: time.Date(soldAt.Year(), soldAt.Month(), soldAt.Day(), 0, 0, 0, 0, time.UTC),
		SoldAt:       soldAt,
		ReceiptID:    receiptID,
		LineID:       lineID,
		POSItemID:    "pos-1",
		POSItemName:  "House IPA",
		Quantity:     dec("2"),
		CreatedAt:    soldAt,
	}
}

func TestSaveSalesLine_ReimportIgnored(t *testing.T) {
	// GIVEN: a receipt line imported once
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSalesLine(ctx, salesLine("sl-1", "rcpt-1", "1", base)))

	// WHEN: the nightly import replays it under a fresh row ID
	require.NoError(t, store.SaveSalesLine(ctx, salesLine("sl-dup", "rcpt-1", "1", base)))
	// AND: a genuinely new line on the same receipt lands too
	require.NoError(t, store.SaveSalesLine(ctx, salesLine("sl-2", "rcpt-1", "2", base.Add(time.Minute))))

	// THEN: the replay collapsed into the original row
	lines, err := store.SalesLinesIn(ctx, testLoc, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "sl-1", lines[0].ID)
	assert.Equal(t, "sl-2", lines[1].ID)
}

// =============================================================================
// MAPPING EFFECTIVITY
// =============================================================================

func TestResolveMapping_EffectivityWindows(t *testing.T) {
	// GIVEN: a retired mapping and its open-ended replacement
	store := newStore(t)
	ctx := context.Background()

	cutover := base.AddDate(0, 0, 30)
	old := depletion.Mapping{
		ID: "map-old", LocationID: testLoc, SourceSystem: ledger.SourceToast,
		POSItemID: "pos-1", Mode: depletion.ModePackagedUnit,
		Packaged: &depletion.PackagedTarget{ItemID: "item-old"},
		Active:   true, EffectiveFrom: base, EffectiveTo: &cutover,
	}
	replacement := old
	replacement.ID = "map-new"
	replacement.Packaged = &depletion.PackagedTarget{ItemID: "item-new"}
	replacement.EffectiveFrom = cutover
	replacement.EffectiveTo = nil
	require.NoError(t, store.SaveMapping(ctx, old))
	require.NoError(t, store.SaveMapping(ctx, replacement))

	// THEN: a sale during the old window resolves the old target
	m, ok, err := store.ResolveMapping(ctx, testLoc, ledger.SourceToast, "pos-1", base.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.ItemID("item-old"), m.Packaged.ItemID)

	// AND: a sale after cutover resolves the replacement
	m, ok, err = store.ResolveMapping(ctx, testLoc, ledger.SourceToast, "pos-1", cutover.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.ItemID("item-new"), m.Packaged.ItemID)

	// AND: before either window there is no mapping at all
	_, ok, err = store.ResolveMapping(ctx, testLoc, ledger.SourceToast, "pos-1", base.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveMapping_InactiveSkipped(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	m := depletion.Mapping{
		ID: "map-1", LocationID: testLoc, SourceSystem: ledger.SourceToast,
		POSItemID: "pos-1", Mode: depletion.ModePackagedUnit,
		Packaged: &depletion.PackagedTarget{ItemID: "item-1"},
		Active:   false, EffectiveFrom: base,
	}
	require.NoError(t, store.SaveMapping(ctx, m))

	_, ok, err := store.ResolveMapping(ctx, testLoc, ledger.SourceToast, "pos-1", base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// PRICE HISTORY
// =============================================================================

func TestPriceAt_EffectiveDating(t *testing.T) {
	// GIVEN: a price raised mid-year
	store := newStore(t)
	ctx := context.Background()

	jan := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AddPrice(ctx, ledger.PriceRecord{
		ItemID: "item-1", UnitCost: dec("18"), Currency: "USD", EffectiveFrom: jan,
	}))
	require.NoError(t, store.AddPrice(ctx, ledger.PriceRecord{
		ItemID: "item-1", UnitCost: dec("21"), Currency: "USD", EffectiveFrom: jun,
	}))

	// THEN: lookups resolve to the price in force at the instant
	p, ok, err := store.PriceAt(ctx, "item-1", jan.AddDate(0, 2, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.UnitCost.Equal(dec("18")), "got %s", p.UnitCost)

	p, ok, err = store.PriceAt(ctx, "item-1", jun.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.UnitCost.Equal(dec("21")), "got %s", p.UnitCost)

	// AND: before any price existed there is none
	_, ok, err = store.PriceAt(ctx, "item-1", jan.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, ok)
}

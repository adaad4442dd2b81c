/*
correction_test.go - Reversal + replacement protocol

Tests for:
- Net effect of a correction on on-hand
- One-correction-per-event guard
- Missing original event
*/
package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/ledger/store"
)

func TestCorrectEvent_NetsOutToCorrectedValue(t *testing.T) {
	// GIVEN: a sale of -5 that should have been -3
	mem := store.NewMemory()
	lg := ledger.NewLedger(mem)
	ctx := context.Background()

	original := evt("item-1", ledger.EventPOSSale, -5, day(1))
	require.NoError(t, lg.Append(ctx, evt("item-1", ledger.EventReceiving, 20, day(1))))
	require.NoError(t, lg.Append(ctx, original))

	// WHEN: correcting to -3
	corrector := ledger.NewCorrector(mem)
	corrector.Now = func() time.Time { return day(2) }
	result, err := corrector.CorrectEvent(ctx, original.ID,
		ledger.NewQuantity(-3, ledger.UOMUnits), "keyed wrong quantity")
	require.NoError(t, err)
	require.NotEmpty(t, result.ReversalID)
	require.NotEmpty(t, result.ReplacementID)

	// THEN: on-hand reflects 20 - 3
	onHand, err := lg.OnHand(ctx, "item-1", day(3))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(17).Equal(onHand), "got %s", onHand)

	// AND: the reversal points back at the original
	reversal, err := lg.Get(ctx, result.ReversalID)
	require.NoError(t, err)
	assert.Equal(t, original.ID, reversal.ReversalOf)
	assert.True(t, reversal.Delta.Value.Equal(decimal.NewFromInt(5)))

	// AND: the original row is untouched
	stored, err := lg.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delta.Value.Equal(decimal.NewFromInt(-5)))
}

func TestCorrectEvent_SecondCorrectionRejected(t *testing.T) {
	// GIVEN: an event that has already been corrected
	mem := store.NewMemory()
	lg := ledger.NewLedger(mem)
	ctx := context.Background()

	original := evt("item-1", ledger.EventPOSSale, -5, day(1))
	require.NoError(t, lg.Append(ctx, original))

	corrector := ledger.NewCorrector(mem)
	_, err := corrector.CorrectEvent(ctx, original.ID,
		ledger.NewQuantity(-3, ledger.UOMUnits), "first fix")
	require.NoError(t, err)

	countBefore, err := lg.Events(ctx, ledger.EventQuery{ItemID: "item-1"})
	require.NoError(t, err)

	// WHEN: correcting the same event again
	_, err = corrector.CorrectEvent(ctx, original.ID,
		ledger.NewQuantity(-4, ledger.UOMUnits), "second fix")

	// THEN: rejected, and nothing was written
	assert.ErrorIs(t, err, ledger.ErrEventAlreadyReversed)

	countAfter, err := lg.Events(ctx, ledger.EventQuery{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, countAfter, len(countBefore))
}

func TestCorrectEvent_MissingOriginal(t *testing.T) {
	corrector := ledger.NewCorrector(store.NewMemory())

	_, err := corrector.CorrectEvent(context.Background(), "no-such-event",
		ledger.NewQuantity(-1, ledger.UOMUnits), "oops")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestCorrectEvent_RejectsUnknownUOM(t *testing.T) {
	corrector := ledger.NewCorrector(store.NewMemory())

	_, err := corrector.CorrectEvent(context.Background(), "whatever",
		ledger.NewQuantity(-1, "stone"), "oops")

	var verr *ledger.ValidationError
	assert.ErrorAs(t, err, &verr)
}

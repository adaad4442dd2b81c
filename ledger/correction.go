/*
correction.go - Reversal + replacement protocol

PURPOSE:
  Corrects a previously recorded event without mutating history. Two new
  events are written as one atomic unit:

    1. Reversal: the original delta negated, ReversalOf = original ID
    2. Replacement: the corrected delta, a normal event

  Any sum spanning both writes nets out to the corrected value, the
  original row is untouched, and the audit trail shows exactly what
  happened and when.

PRECONDITIONS:
  - The original event must exist
  - It must not already have a reversal (one correction per event)

ATOMICITY:
  A reversal without its replacement would silently zero out real
  consumption, so both writes run inside WithTx. A partial write is a
  correctness violation, not a degraded state.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// CorrectionResult identifies the two events a correction produced.
type CorrectionResult struct {
	ReversalID    EventID
	ReplacementID EventID
}

// Corrector applies the reversal + replacement protocol against a
// transactional store.
type Corrector struct {
	Store TxStore
	Now   func() time.Time // defaults to time.Now
}

func NewCorrector(store TxStore) *Corrector {
	return &Corrector{Store: store, Now: time.Now}
}

// CorrectEvent reverses originalID and records newDelta in its place.
// Fails with ErrEventNotFound or ErrEventAlreadyReversed without writing.
func (c *Corrector) CorrectEvent(ctx context.Context, originalID EventID, newDelta Quantity, reason string) (CorrectionResult, error) {
	if !ValidUOM(newDelta.UOM) {
		return CorrectionResult{}, &ValidationError{Field: "uom", Message: "unknown unit " + string(newDelta.UOM)}
	}

	now := c.Now()
	var result CorrectionResult

	err := c.Store.WithTx(ctx, func(s Store) error {
		original, err := s.Get(ctx, originalID)
		if err != nil {
			return err
		}

		reversed, err := s.HasReversal(ctx, originalID)
		if err != nil {
			return err
		}
		if reversed {
			return fmt.Errorf("correct event %s: %w", originalID, ErrEventAlreadyReversed)
		}

		reversal := ConsumptionEvent{
			ID:           NewEventID(),
			LocationID:   original.LocationID,
			ItemID:       original.ItemID,
			Type:         original.Type,
			SourceSystem: SourceManual,
			EventTs:      now,
			Delta:        original.Delta.Neg(),
			Confidence:   ConfidenceEstimated,
			ReversalOf:   original.ID,
			Notes:        "correction reversal: " + reason,
			CreatedAt:    now,
		}

		// The replacement is not itself marked as a reversal, so it
		// participates normally in future aggregates.
		replacement := ConsumptionEvent{
			ID:           NewEventID(),
			LocationID:   original.LocationID,
			ItemID:       original.ItemID,
			Type:         original.Type,
			SourceSystem: SourceManual,
			EventTs:      now,
			Delta:        newDelta,
			Confidence:   ConfidenceEstimated,
			Notes:        "correction replacement: " + reason,
			CreatedAt:    now,
		}

		if err := s.AppendBatch(ctx, []ConsumptionEvent{reversal, replacement}); err != nil {
			return err
		}
		result = CorrectionResult{ReversalID: reversal.ID, ReplacementID: replacement.ID}
		return nil
	})
	if err != nil {
		return CorrectionResult{}, err
	}
	return result, nil
}

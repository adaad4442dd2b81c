/*
engine.go - Batch depletion processor

PURPOSE:
  Walks a time window of canonical sales lines for one location and
  materializes ledger events for every mapped, non-voided, not yet
  processed record.

PER RECORD:
  1. already depleted?  -> skipped
  2. voided/refunded?   -> no event (tracked separately)
  3. no active mapping effective at SoldAt -> unmapped
  4. otherwise resolve the mapping and append one event per target,
     delta = -(per-unit quantity * quantity sold)

IDEMPOTENCY:
  The skip check reads the ledger's sales-line index, and the store
  additionally enforces uniqueness on (sales line, item). Re-running a
  window, or racing two runs of the same window, cannot double-deplete.

CANCELLATION:
  The run honors ctx between records. Partial progress is fine: each
  record's events are appended atomically, and the next run skips them.
*/
package depletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/LesCam/barstock/ledger"
)

// Stats summarizes a depletion run.
type Stats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Unmapped  int `json:"unmapped"`
	Skipped   int `json:"skipped"`
	Voided    int `json:"voided"`
}

// Engine converts sales lines into pos_sale ledger events.
type Engine struct {
	Ledger   ledger.Ledger
	Sales    SalesLineStore
	Mappings MappingResolver
	Log      zerolog.Logger
}

func NewEngine(lg ledger.Ledger, sales SalesLineStore, mappings MappingResolver) *Engine {
	return &Engine{Ledger: lg, Sales: sales, Mappings: mappings, Log: zerolog.Nop()}
}

// Run processes every sales line for the location with SoldAt in
// [from, to). Safe to re-run over any window.
func (e *Engine) Run(ctx context.Context, loc ledger.LocationID, from, to time.Time) (Stats, error) {
	if !to.After(from) {
		return Stats{}, &ledger.ValidationError{Field: "window", Message: "to must be after from"}
	}

	lines, err := e.Sales.SalesLinesIn(ctx, loc, from, to)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		depleted, err := e.Ledger.HasSalesLine(ctx, line.ID)
		if err != nil {
			return stats, err
		}
		if depleted {
			stats.Skipped++
			continue
		}
		stats.Processed++

		if line.IsVoided || line.IsRefunded {
			stats.Voided++
			continue
		}

		mapping, ok, err := e.Mappings.ResolveMapping(ctx, loc, line.SourceSystem, line.POSItemID, line.SoldAt)
		if err != nil {
			return stats, err
		}
		if !ok {
			e.Log.Debug().Str("pos_item", line.POSItemID).Str("location", string(loc)).
				Msg("no active mapping for sold item")
			stats.Unmapped++
			continue
		}

		created, err := e.depleteLine(ctx, line, mapping)
		if err != nil {
			// A concurrent run got this line first; its events are identical.
			if errors.Is(err, ledger.ErrDuplicateSalesLine) {
				stats.Processed--
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("deplete sales line %s: %w", line.ID, err)
		}
		stats.Created += created
	}

	e.Log.Info().Str("location", string(loc)).
		Time("from", from).Time("to", to).
		Int("processed", stats.Processed).Int("created", stats.Created).
		Int("unmapped", stats.Unmapped).Int("skipped", stats.Skipped).
		Int("voided", stats.Voided).
		Msg("depletion run complete")
	return stats, nil
}

// depleteLine appends the event(s) for one sales line as a single batch.
func (e *Engine) depleteLine(ctx context.Context, line SalesLine, mapping Mapping) (int, error) {
	targets := mapping.Resolve()
	if len(targets) == 0 {
		return 0, &ledger.ValidationError{Field: "mapping", Message: "mapping " + mapping.ID + " resolves to no targets"}
	}

	events := make([]ledger.ConsumptionEvent, 0, len(targets))
	for _, t := range targets {
		events = append(events, ledger.ConsumptionEvent{
			ID:           ledger.NewEventID(),
			LocationID:   line.LocationID,
			ItemID:       t.ItemID,
			Type:         ledger.EventPOSSale,
			SourceSystem: line.SourceSystem,
			EventTs:      line.SoldAt,
			Delta:        ledger.Quantity{Value: t.Quantity.Mul(line.Quantity).Neg(), UOM: t.UOM},
			Confidence:   ledger.ConfidenceTheoretical,
			SalesLineID:  line.ID,
			Notes:        "POS sale: " + line.POSItemName,
			CreatedAt:    time.Now(),
		})
	}
	if err := e.Ledger.AppendBatch(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

/*
service.go - Session reconciliation engine

PURPOSE:
  Drives the open -> closed state machine and turns counted quantities
  into ledger adjustments.

ON CLOSE:
  1. Aggregate lines by item (multiple lines for one item sum)
  2. theoretical = on-hand at session START
  3. variance = counted - theoretical
  4. Items over the variance threshold without a reason block the whole
     close; nothing is committed from a failed close
  5. One inventory_count_adjustment event per item with non-zero variance,
     written atomically together with the session end stamp

ANCHOR POINT:
  Theoretical on-hand is always computed as of session start, not close
  time. Counts represent a snapshot taken during the session window;
  anchoring at close would fold post-count sales into the variance.
*/
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// DefaultThreshold is the variance magnitude above which a close demands
// a reason, in the item's base unit.
var DefaultThreshold = decimal.NewFromInt(5)

var hundred = decimal.NewFromInt(100)

// Service coordinates sessions against the ledger.
type Service struct {
	Ledger ledger.Ledger
	Items  ledger.ItemStore
	Store  Store

	// Threshold overrides DefaultThreshold when set. An explicit zero
	// means every non-zero variance demands a reason.
	Threshold *decimal.Decimal

	Now func() time.Time
	Log zerolog.Logger
}

func NewService(lg ledger.Ledger, items ledger.ItemStore, store Store) *Service {
	return &Service{
		Ledger: lg,
		Items:  items,
		Store:  store,
		Now:    time.Now,
		Log:    zerolog.Nop(),
	}
}

func (s *Service) threshold() decimal.Decimal {
	if s.Threshold == nil {
		return DefaultThreshold
	}
	return *s.Threshold
}

// =============================================================================
// OPEN / ADD LINE
// =============================================================================

// Open starts a new session for the location. Any session still open
// there is force-closed first, without reconciliation: no adjustments,
// ClosedBy left empty to mark a system close.
func (s *Service) Open(ctx context.Context, loc ledger.LocationID, typ Type, createdBy string) (Session, error) {
	if loc == "" {
		return Session{}, &ledger.ValidationError{Field: "locationId", Message: "required"}
	}
	if typ == "" {
		typ = TypeShift
	}
	now := s.Now()

	if prev, ok, err := s.Store.OpenSessionFor(ctx, loc); err != nil {
		return Session{}, err
	} else if ok {
		if err := s.Store.CloseSession(ctx, prev.ID, now, "", nil); err != nil {
			return Session{}, fmt.Errorf("force-close session %s: %w", prev.ID, err)
		}
		s.Log.Info().Str("location", string(loc)).Str("session", string(prev.ID)).
			Msg("force-closed open session on reopen")
	}

	sess := Session{
		ID:         NewSessionID(),
		LocationID: loc,
		Type:       typ,
		StartedTs:  now,
		CreatedBy:  createdBy,
		CreatedAt:  now,
	}
	if err := s.Store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// AddLine appends a counted line to an open session.
func (s *Service) AddLine(ctx context.Context, id ledger.SessionID, l Line) (Line, error) {
	if err := l.Validate(); err != nil {
		return Line{}, err
	}
	sess, err := s.Store.GetSession(ctx, id)
	if err != nil {
		return Line{}, err
	}
	if sess.IsClosed() {
		return Line{}, fmt.Errorf("add line to session %s: %w", id, ledger.ErrSessionClosed)
	}

	l.SessionID = id
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = s.Now()
	if err := s.Store.AddLine(ctx, l); err != nil {
		return Line{}, err
	}
	return l, nil
}

// =============================================================================
// PREVIEW / CLOSE
// =============================================================================

// PreviewClose computes would-be variances without writing events or
// enforcing the reason threshold. Operators inspect this before committing.
func (s *Service) PreviewClose(ctx context.Context, id ledger.SessionID) (Preview, error) {
	sess, err := s.Store.GetSession(ctx, id)
	if err != nil {
		return Preview{}, err
	}
	items, err := s.computeVariances(ctx, sess)
	if err != nil {
		return Preview{}, err
	}
	return Preview{SessionID: id, Items: items}, nil
}

// Close reconciles and ends the session. Items whose variance magnitude
// exceeds the threshold (and whose theoretical is non-zero) need a reason
// in reasonsByItem; otherwise the close fails with
// ReconciliationIncompleteError and commits nothing.
func (s *Service) Close(ctx context.Context, id ledger.SessionID, reasonsByItem map[ledger.ItemID]ledger.VarianceReason, closedBy string) (CloseResult, error) {
	return s.close(ctx, id, reasonsByItem, closedBy, false)
}

// AutoClose ends the session as the system would at day-end: the fixed
// session_expired reason applies to every item, the reason prompt is
// skipped entirely, and ClosedBy stays empty.
func (s *Service) AutoClose(ctx context.Context, id ledger.SessionID) (CloseResult, error) {
	return s.close(ctx, id, nil, "", true)
}

func (s *Service) close(ctx context.Context, id ledger.SessionID, reasonsByItem map[ledger.ItemID]ledger.VarianceReason, closedBy string, expired bool) (CloseResult, error) {
	sess, err := s.Store.GetSession(ctx, id)
	if err != nil {
		return CloseResult{}, err
	}
	if sess.IsClosed() {
		return CloseResult{}, fmt.Errorf("close session %s: %w", id, ledger.ErrSessionClosed)
	}

	variances, err := s.computeVariances(ctx, sess)
	if err != nil {
		return CloseResult{}, err
	}

	threshold := s.threshold()
	var requires []ledger.ItemID
	for i := range variances {
		v := &variances[i]
		if expired {
			v.Reason = ledger.ReasonSessionExpired
			continue
		}
		if r, ok := reasonsByItem[v.ItemID]; ok {
			v.Reason = r
			continue
		}
		if !v.Theoretical.IsZero() && v.Variance.Abs().GreaterThan(threshold) {
			requires = append(requires, v.ItemID)
		}
	}
	if len(requires) > 0 {
		return CloseResult{}, &ledger.ReconciliationIncompleteError{SessionID: id, ItemIDs: requires}
	}

	now := s.Now()
	result := CloseResult{SessionID: id, TotalVariance: decimal.Zero}
	var adjustments []ledger.ConsumptionEvent
	for _, v := range variances {
		result.TotalVariance = result.TotalVariance.Add(v.Variance.Abs())
		if v.Variance.IsZero() {
			continue
		}
		adjustments = append(adjustments, ledger.ConsumptionEvent{
			ID:             ledger.NewEventID(),
			LocationID:     sess.LocationID,
			ItemID:         v.ItemID,
			Type:           ledger.EventCountAdjustment,
			SourceSystem:   ledger.SourceManual,
			EventTs:        now,
			Delta:          ledger.Quantity{Value: v.Variance, UOM: v.UOM},
			Confidence:     ledger.ConfidenceMeasured,
			VarianceReason: v.Reason,
			Notes:          fmt.Sprintf("count session %s adjustment", id),
			RecordedBy:     closedBy,
			CreatedAt:      now,
		})
		result.Adjustments = append(result.Adjustments, v)
	}
	result.AdjustmentsCreated = len(adjustments)

	if err := s.Store.CloseSession(ctx, id, now, closedBy, adjustments); err != nil {
		return CloseResult{}, err
	}

	s.Log.Info().Str("session", string(id)).Str("location", string(sess.LocationID)).
		Int("adjustments", result.AdjustmentsCreated).
		Str("total_variance", result.TotalVariance.String()).
		Bool("expired", expired).
		Msg("session closed")
	return result, nil
}

// computeVariances aggregates lines per item and compares the counted
// totals against on-hand at session start.
func (s *Service) computeVariances(ctx context.Context, sess Session) ([]ItemVariance, error) {
	lines, err := s.Store.Lines(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	totals := make(map[ledger.ItemID]decimal.Decimal)
	var order []ledger.ItemID
	for _, l := range lines {
		if _, seen := totals[l.ItemID]; !seen {
			order = append(order, l.ItemID)
		}
		totals[l.ItemID] = totals[l.ItemID].Add(l.ActualValue())
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	variances := make([]ItemVariance, 0, len(order))
	for _, itemID := range order {
		theoretical, err := s.Ledger.OnHand(ctx, itemID, sess.StartedTs)
		if err != nil {
			return nil, err
		}

		v := ItemVariance{
			ItemID:      itemID,
			Theoretical: theoretical,
			Actual:      totals[itemID],
			Variance:    totals[itemID].Sub(theoretical),
			UOM:         ledger.UOMUnits,
		}
		if item, err := s.Items.GetItem(ctx, itemID); err == nil {
			v.ItemName = item.Name
			v.UOM = item.BaseUOM
		}
		if !theoretical.IsZero() {
			v.VariancePercent = v.Variance.Div(theoretical.Abs()).Mul(hundred)
		}
		variances = append(variances, v)
	}
	return variances, nil
}

/*
Package session manages physical inventory count sessions and reconciles
them against the consumption ledger.

LIFECYCLE:
  created open -> lines appended while open -> closed exactly once.

  A location has at most one open session. Opening a new one force-closes
  any still-open session for that location without reconciliation, and a
  background scheduler expires stale sessions at day-end with the fixed
  session_expired reason.

CLOSING:
  Close aggregates counted lines per item, compares against theoretical
  on-hand at session START (counts are a snapshot taken during the session
  window), and emits one inventory_count_adjustment ledger event per item
  with non-zero variance. Items whose variance exceeds the threshold need
  a caller-supplied reason; a close missing reasons fails atomically with
  the list of items needing one.
*/
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// SESSION - Bounded physical-count exercise
// =============================================================================

type Type string

const (
	TypeShift   Type = "shift"
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
)

type Session struct {
	ID         ledger.SessionID
	LocationID ledger.LocationID
	Type       Type
	StartedTs  time.Time
	EndedTs    *time.Time // nil while open

	CreatedBy string
	// ClosedBy is empty on system closes (force-close on reopen, day-end
	// expiry), which distinguishes them from operator closes.
	ClosedBy string

	CreatedAt time.Time
}

func (s Session) IsClosed() bool { return s.EndedTs != nil }

func NewSessionID() ledger.SessionID { return ledger.SessionID(uuid.NewString()) }

// =============================================================================
// SESSION LINE - One counted value for one item
// =============================================================================

// Line carries exactly one actual-value representation: a discrete unit
// count, a derived volume, or a gross weight. Multiple lines for the same
// item within a session are additive (a partial case plus a weighed
// remainder).
type Line struct {
	ID        string
	SessionID ledger.SessionID
	ItemID    ledger.ItemID

	CountUnits       *decimal.Decimal // packaged items
	DerivedVolume    *decimal.Decimal // oz, from percent-remaining or scale
	GrossWeightGrams *decimal.Decimal // weight-based items

	SubAreaID  string
	Notes      string
	RecordedBy string
	CreatedAt  time.Time
}

// ActualValue returns the counted quantity this line represents, taking
// the first populated representation.
func (l Line) ActualValue() decimal.Decimal {
	switch {
	case l.CountUnits != nil:
		return *l.CountUnits
	case l.DerivedVolume != nil:
		return *l.DerivedVolume
	case l.GrossWeightGrams != nil:
		return *l.GrossWeightGrams
	}
	return decimal.Zero
}

// Validate rejects lines with no value, more than one value, or a
// negative count before any write.
func (l Line) Validate() error {
	populated := 0
	for _, v := range []*decimal.Decimal{l.CountUnits, l.DerivedVolume, l.GrossWeightGrams} {
		if v == nil {
			continue
		}
		populated++
		if v.IsNegative() {
			return &ledger.ValidationError{Field: "actualValue", Message: "must not be negative"}
		}
	}
	if populated == 0 {
		return &ledger.ValidationError{Field: "actualValue", Message: "one of countUnits, derivedVolume, grossWeightGrams required"}
	}
	if populated > 1 {
		return &ledger.ValidationError{Field: "actualValue", Message: "exactly one value representation allowed"}
	}
	if l.ItemID == "" {
		return &ledger.ValidationError{Field: "itemId", Message: "required"}
	}
	return nil
}

// =============================================================================
// CLOSE RESULTS
// =============================================================================

// ItemVariance is the per-item outcome of a close or preview.
type ItemVariance struct {
	ItemID          ledger.ItemID
	ItemName        string
	Theoretical     decimal.Decimal
	Actual          decimal.Decimal
	Variance        decimal.Decimal // actual - theoretical
	VariancePercent decimal.Decimal // vs. abs(theoretical); zero when theoretical is zero
	UOM             ledger.UOM
	Reason          ledger.VarianceReason
}

// CloseResult summarizes a committed close.
type CloseResult struct {
	SessionID          ledger.SessionID
	AdjustmentsCreated int
	// TotalVariance is the sum of absolute per-item variances.
	TotalVariance decimal.Decimal
	Adjustments   []ItemVariance
}

// Preview is the read-only view of what a close would do. No events are
// written and the reason threshold is not enforced.
type Preview struct {
	SessionID ledger.SessionID
	Items     []ItemVariance
}

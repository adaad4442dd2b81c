/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Downstream packages (session, depletion, api) wrap these with context.

ERROR CATEGORIES:
  1. Not found - referenced event/session/item does not exist
  2. Precondition - operation conflicts with current state (already closed,
     already reversed); caller must resolve before retrying
  3. Validation - malformed input, rejected before any write
  4. Reconciliation - session close blocked pending variance reasons;
     a structured "needs input" response, not a system failure

USAGE:
  if errors.Is(err, ledger.ErrEventAlreadyReversed) { ... }

  var incomplete *ledger.ReconciliationIncompleteError
  if errors.As(err, &incomplete) {
      resubmit with reasons for incomplete.ItemIDs
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEventNotFound is returned when a referenced ledger event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventAlreadyReversed is returned when correcting an event that
	// already has a reversal. Each event may be reversed at most once.
	ErrEventAlreadyReversed = errors.New("event already reversed")

	// ErrSessionNotFound is returned when a referenced count session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when writing to or closing a session
	// that has already ended. Close is non-idempotent by design.
	ErrSessionClosed = errors.New("session already closed")

	// ErrItemNotFound is returned when a referenced inventory item does not exist.
	ErrItemNotFound = errors.New("inventory item not found")

	// ErrDuplicateSalesLine is returned when appending an event whose
	// sales-line idempotency key has already been consumed.
	ErrDuplicateSalesLine = errors.New("sales line already depleted")

	// ErrParLevelNotFound is returned when a referenced par level does not exist.
	ErrParLevelNotFound = errors.New("par level not found")

	// ErrStoreRequired is returned when an operation needs a store
	// capability (e.g. transactions) the configured store lacks.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError rejects malformed input before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ReconciliationIncompleteError blocks a session close until the caller
// supplies variance reasons for the listed items. Nothing is committed:
// the caller resubmits the close with reasons attached.
type ReconciliationIncompleteError struct {
	SessionID SessionID
	ItemIDs   []ItemID
}

func (e *ReconciliationIncompleteError) Error() string {
	return fmt.Sprintf("session %s close requires variance reasons for %d item(s)", e.SessionID, len(e.ItemIDs))
}

// PreconditionError carries the blocking detail for a state conflict,
// e.g. how many rows still reference the thing being removed.
type PreconditionError struct {
	Op       string
	Detail   string
	RefCount int
	Err      error // sentinel this wraps, if any
}

func (e *PreconditionError) Error() string {
	if e.RefCount > 0 {
		return fmt.Sprintf("%s: %s (%d referencing rows)", e.Op, e.Detail, e.RefCount)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrParLevelNotFound)
}

// IsClientError reports whether the error is due to invalid client input
// or a resolvable state conflict, as opposed to a system failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ri *ReconciliationIncompleteError
	var pe *PreconditionError
	return errors.As(err, &ve) ||
		errors.As(err, &ri) ||
		errors.As(err, &pe) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrEventAlreadyReversed) ||
		errors.Is(err, ErrDuplicateSalesLine)
}

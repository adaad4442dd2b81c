package session

import (
	"context"
	"time"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// STORE - Session persistence
// =============================================================================

// Store persists sessions and their lines. Sessions transition open ->
// closed exactly once; lines are only appended while open.
type Store interface {
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns a session by ID, or ledger.ErrSessionNotFound.
	GetSession(ctx context.Context, id ledger.SessionID) (Session, error)

	// OpenSessionFor returns the location's open session, if any.
	// The store enforces at most one open session per location.
	OpenSessionFor(ctx context.Context, loc ledger.LocationID) (Session, bool, error)

	// ListOpenBefore returns open sessions started before the cutoff,
	// across all locations. Used by the day-end expiry scheduler.
	ListOpenBefore(ctx context.Context, cutoff time.Time) ([]Session, error)

	// RecentClosed returns the location's last n closed sessions, most
	// recently started first.
	RecentClosed(ctx context.Context, loc ledger.LocationID, n int) ([]Session, error)

	AddLine(ctx context.Context, l Line) error
	Lines(ctx context.Context, id ledger.SessionID) ([]Line, error)

	// CloseSession stamps EndedTs/ClosedBy and appends the adjustment
	// events as one atomic unit. Concurrent closes of the same session are
	// serialized; a second close fails with ledger.ErrSessionClosed and
	// must never double-apply adjustments.
	CloseSession(ctx context.Context, id ledger.SessionID, endedTs time.Time, closedBy string, adjustments []ledger.ConsumptionEvent) error
}

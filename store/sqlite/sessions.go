package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
)

// =============================================================================
// COUNT SESSIONS (session.Store interface)
// =============================================================================

const sessionColumns = `id, location_id, session_type, started_ts, ended_ts,
	       created_by, closed_by, created_at`

// CreateSession inserts a new open session.
func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO count_sessions
		(id, location_id, session_type, started_ts, ended_ts, created_by, closed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.LocationID, sess.Type,
		formatTs(sess.StartedTs),
		nullTime(sess.EndedTs),
		sess.CreatedBy, sess.ClosedBy,
		formatTs(createdAt),
	)
	return err
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id ledger.SessionID) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getSession(ctx, s.db, id)
}

func (s *Store) getSession(ctx context.Context, db querier, id ledger.SessionID) (session.Session, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM count_sessions WHERE id = ?", id)
	sess, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return session.Session{}, ledger.ErrSessionNotFound
	}
	return sess, err
}

// OpenSessionFor returns the location's open session, if any.
func (s *Store) OpenSessionFor(ctx context.Context, loc ledger.LocationID) (session.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+` FROM count_sessions
		 WHERE location_id = ? AND ended_ts IS NULL
		 ORDER BY started_ts DESC LIMIT 1`, loc)
	sess, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, err
	}
	return sess, true, nil
}

// ListOpenBefore returns open sessions started before the cutoff, across
// all locations.
func (s *Store) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM count_sessions
		WHERE ended_ts IS NULL AND started_ts < ?
		ORDER BY started_ts ASC`,
		formatTs(cutoff))
}

// RecentClosed returns the location's last n closed sessions, most
// recently started first.
func (s *Store) RecentClosed(ctx context.Context, loc ledger.LocationID, n int) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM count_sessions
		WHERE location_id = ? AND ended_ts IS NOT NULL
		ORDER BY started_ts DESC LIMIT ?`, loc, n)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInto(sc scannable) (session.Session, error) {
	var (
		sess      session.Session
		startedTs string
		endedTs   sql.NullString
		createdAt string
	)

	err := sc.Scan(
		&sess.ID, &sess.LocationID, &sess.Type, &startedTs, &endedTs,
		&sess.CreatedBy, &sess.ClosedBy, &createdAt,
	)
	if err != nil {
		return sess, err
	}

	sess.StartedTs, _ = time.Parse(time.RFC3339Nano, startedTs)
	sess.EndedTs = parseNullTime(endedTs)
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return sess, nil
}

func scanSession(rows *sql.Rows) (session.Session, error) { return scanInto(rows) }
func scanSessionRow(row *sql.Row) (session.Session, error) { return scanInto(row) }

// =============================================================================
// SESSION LINES
// =============================================================================

// AddLine appends one counted line to a session.
func (s *Store) AddLine(ctx context.Context, l session.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_lines
		(id, session_id, item_id, count_units, derived_volume, gross_weight_grams,
		 sub_area_id, notes, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, l.ItemID,
		nullDecimal(l.CountUnits),
		nullDecimal(l.DerivedVolume),
		nullDecimal(l.GrossWeightGrams),
		l.SubAreaID, l.Notes, l.RecordedBy,
		formatTs(createdAt),
	)
	return err
}

// Lines returns a session's lines in recording order.
func (s *Store) Lines(ctx context.Context, id ledger.SessionID) ([]session.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, item_id, count_units, derived_volume, gross_weight_grams,
		       sub_area_id, notes, recorded_by, created_at
		FROM session_lines
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session lines: %w", err)
	}
	defer rows.Close()

	var lines []session.Line
	for rows.Next() {
		var (
			l          session.Line
			countUnits sql.NullString
			volume     sql.NullString
			weight     sql.NullString
			createdAt  string
		)
		if err := rows.Scan(
			&l.ID, &l.SessionID, &l.ItemID, &countUnits, &volume, &weight,
			&l.SubAreaID, &l.Notes, &l.RecordedBy, &createdAt,
		); err != nil {
			return nil, err
		}

		l.CountUnits = parseNullDecimal(countUnits)
		l.DerivedVolume = parseNullDecimal(volume)
		l.GrossWeightGrams = parseNullDecimal(weight)
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// =============================================================================
// ATOMIC CLOSE
// =============================================================================

// CloseSession stamps the session closed and appends the adjustment
// events in one transaction. The UPDATE's ended_ts IS NULL guard
// serializes concurrent closes: the loser sees zero rows affected and
// fails without double-applying adjustments.
func (s *Store) CloseSession(ctx context.Context, id ledger.SessionID, endedTs time.Time, closedBy string, adjustments []ledger.ConsumptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE count_sessions SET ended_ts = ?, closed_by = ?
		WHERE id = ? AND ended_ts IS NULL`,
		formatTs(endedTs), closedBy, id)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.getSession(ctx, sqlTx, id); err != nil {
			return err
		}
		return ledger.ErrSessionClosed
	}

	for _, e := range adjustments {
		if err := s.appendEvent(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

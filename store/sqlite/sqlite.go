/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface in the system against one SQLite
  database. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store / ledger.TxStore:  Consumption event ledger (this file)
  ledger.ItemStore:               Item catalog + price history (catalog.go)
  session.Store:                  Count sessions and lines (sessions.go)
  depletion.SalesLineStore:       Canonical POS sales lines (sales.go)
  depletion.MappingStore:         POS item mappings (sales.go)
  forecast.ParLevelStore:         Par levels (parlevels.go)

APPEND-ONLY ENFORCEMENT:
  The event ledger has no UPDATE and no DELETE statements. Corrections
  are reversal events; counts are adjustment events. The only UPDATE in
  the whole package stamps a session closed, exactly once.

KEY INDEXES:
  - idx_events_item_ts:          on-hand and usage sums (hot path)
  - idx_events_sales_line_item:  UNIQUE, depletion idempotency per
                                 (sales line, item) so recipe fan-outs
                                 share one sales line across items
  - idx_events_reversal:         one-reversal-per-event checks
  - idx_sessions_loc_open:       the at-most-one-open-session lookup
  - idx_sales_identity:          UNIQUE, de-dupes re-imported POS lines

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/barstock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  lg := ledger.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset clears all data. Used by demo scenario loaders and tests.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"consumption_events",
		"session_lines",
		"count_sessions",
		"sales_lines",
		"pos_item_mappings",
		"par_levels",
		"price_history",
		"inventory_items",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("clearing %s: %w", t, err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Consumption events (append-only ledger)
	CREATE TABLE IF NOT EXISTS consumption_events (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		source_system TEXT NOT NULL,
		event_ts TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_uom TEXT NOT NULL,
		confidence TEXT NOT NULL,
		variance_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		sales_line_id TEXT NOT NULL DEFAULT '',
		reversal_of TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Balance and usage sums (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_item_ts
		ON consumption_events(item_id, event_ts);
	CREATE INDEX IF NOT EXISTS idx_events_location_ts
		ON consumption_events(location_id, event_ts);
	CREATE INDEX IF NOT EXISTS idx_events_type
		ON consumption_events(event_type);

	-- CRITICAL: depletion idempotency. One event per (sales line, item);
	-- recipe mappings fan one sales line out to several items, so the
	-- line ID alone is not unique.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_sales_line_item
		ON consumption_events(sales_line_id, item_id)
		WHERE sales_line_id != '';

	-- One reversal per event
	CREATE INDEX IF NOT EXISTS idx_events_reversal
		ON consumption_events(reversal_of) WHERE reversal_of != '';

	-- Inventory item catalog
	CREATE TABLE IF NOT EXISTS inventory_items (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		name TEXT NOT NULL,
		barcode TEXT NOT NULL DEFAULT '',
		vendor_sku TEXT NOT NULL DEFAULT '',
		base_uom TEXT NOT NULL,
		pack_size TEXT NOT NULL DEFAULT '0',
		pack_uom TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_location
		ON inventory_items(location_id, active);

	-- Effective-dated unit costs
	CREATE TABLE IF NOT EXISTS price_history (
		item_id TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		PRIMARY KEY (item_id, effective_from)
	);

	-- Count sessions
	CREATE TABLE IF NOT EXISTS count_sessions (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		session_type TEXT NOT NULL,
		started_ts TEXT NOT NULL,
		ended_ts TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		closed_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_loc_open
		ON count_sessions(location_id, started_ts) WHERE ended_ts IS NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_loc_closed
		ON count_sessions(location_id, started_ts DESC) WHERE ended_ts IS NOT NULL;

	-- Count session lines
	CREATE TABLE IF NOT EXISTS session_lines (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES count_sessions(id),
		item_id TEXT NOT NULL,
		count_units TEXT,
		derived_volume TEXT,
		gross_weight_grams TEXT,
		sub_area_id TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lines_session
		ON session_lines(session_id);

	-- Canonical POS sales lines
	CREATE TABLE IF NOT EXISTS sales_lines (
		id TEXT PRIMARY KEY,
		source_system TEXT NOT NULL,
		source_location_id TEXT NOT NULL DEFAULT '',
		location_id TEXT NOT NULL,
		business_date TEXT NOT NULL,
		sold_at TEXT NOT NULL,
		receipt_id TEXT NOT NULL DEFAULT '',
		line_id TEXT NOT NULL DEFAULT '',
		pos_item_id TEXT NOT NULL,
		pos_item_name TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		is_voided BOOLEAN NOT NULL DEFAULT FALSE,
		is_refunded BOOLEAN NOT NULL DEFAULT FALSE,
		size_modifier_id TEXT NOT NULL DEFAULT '',
		size_modifier_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- De-dupe re-imported exports on the line's natural identity
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_identity
		ON sales_lines(source_system, source_location_id, business_date,
		               receipt_id, line_id, size_modifier_id);
	CREATE INDEX IF NOT EXISTS idx_sales_loc_sold
		ON sales_lines(location_id, sold_at);

	-- POS item mappings (mode payload as JSON, versioned by effective dates)
	CREATE TABLE IF NOT EXISTS pos_item_mappings (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		source_system TEXT NOT NULL,
		pos_item_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		target_json TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_lookup
		ON pos_item_mappings(location_id, source_system, pos_item_id);

	-- Par levels
	CREATE TABLE IF NOT EXISTS par_levels (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		vendor_id TEXT NOT NULL DEFAULT '',
		location_id TEXT NOT NULL,
		par_level TEXT NOT NULL,
		min_level TEXT NOT NULL,
		reorder_qty TEXT,
		par_uom TEXT NOT NULL,
		lead_time_days INTEGER NOT NULL DEFAULT 0,
		safety_stock_days INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		UNIQUE(item_id, vendor_id, location_id)
	);

	CREATE INDEX IF NOT EXISTS idx_pars_location
		ON par_levels(location_id, active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (ledger.Store interface)
// =============================================================================

// execer is satisfied by both *sql.DB and *sql.Tx so appends work inside
// and outside transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append adds one event to the ledger.
func (s *Store) Append(ctx context.Context, e ledger.ConsumptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEvent(ctx, s.db, e)
}

func (s *Store) appendEvent(ctx context.Context, db execer, e ledger.ConsumptionEvent) error {
	query := `
		INSERT INTO consumption_events
		(id, location_id, item_id, event_type, source_system, event_ts,
		 delta_value, delta_uom, confidence, variance_reason, notes,
		 sales_line_id, reversal_of, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.LocationID,
		e.ItemID,
		e.Type,
		e.SourceSystem,
		formatTs(e.EventTs),
		e.Delta.Value.String(),
		e.Delta.UOM,
		e.Confidence,
		e.VarianceReason,
		e.Notes,
		e.SalesLineID,
		e.ReversalOf,
		e.RecordedBy,
		formatTs(createdAt),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSalesLine
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// AppendBatch adds multiple events atomically.
func (s *Store) AppendBatch(ctx context.Context, events []ledger.ConsumptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range events {
		if err := s.appendEvent(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

const eventColumns = `id, location_id, item_id, event_type, source_system, event_ts,
	       delta_value, delta_uom, confidence, variance_reason, notes,
	       sales_line_id, reversal_of, recorded_by, created_at`

// Get returns one event by ID.
func (s *Store) Get(ctx context.Context, id ledger.EventID) (ledger.ConsumptionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, err := s.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM consumption_events WHERE id = ?", id)
	if err != nil {
		return ledger.ConsumptionEvent{}, err
	}
	if len(events) == 0 {
		return ledger.ConsumptionEvent{}, ledger.ErrEventNotFound
	}
	return events[0], nil
}

// Query returns matching events ordered by business timestamp.
func (s *Store) Query(ctx context.Context, q ledger.EventQuery) ([]ledger.ConsumptionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := eventFilters(q)
	query := "SELECT " + eventColumns + " FROM consumption_events" +
		where + " ORDER BY event_ts ASC, created_at ASC"

	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if q.LiveOnly {
		events = ledger.FilterLive(events)
	}
	return events, nil
}

func eventFilters(q ledger.EventQuery) (string, []any) {
	var conds []string
	var args []any

	if q.LocationID != "" {
		conds = append(conds, "location_id = ?")
		args = append(args, q.LocationID)
	}
	if q.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, q.ItemID)
	}
	if len(q.Types) > 0 {
		marks := make([]string, len(q.Types))
		for i, t := range q.Types {
			marks[i] = "?"
			args = append(args, t)
		}
		conds = append(conds, "event_type IN ("+strings.Join(marks, ", ")+")")
	}
	if q.Window.From != nil {
		conds = append(conds, "event_ts >= ?")
		args = append(args, formatTs(*q.Window.From))
	}
	if q.Window.To != nil {
		conds = append(conds, "event_ts < ?")
		args = append(args, formatTs(*q.Window.To))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SumDeltas sums every delta for the item in the window. Summed in Go:
// deltas are stored as decimal strings and must not round through REAL.
func (s *Store) SumDeltas(ctx context.Context, itemID ledger.ItemID, w ledger.Window) (decimal.Decimal, error) {
	return s.sumDeltas(ctx, itemID, "", w)
}

// SumDeltasByType sums deltas of one event type for the item.
func (s *Store) SumDeltasByType(ctx context.Context, itemID ledger.ItemID, t ledger.EventType, w ledger.Window) (decimal.Decimal, error) {
	return s.sumDeltas(ctx, itemID, t, w)
}

func (s *Store) sumDeltas(ctx context.Context, itemID ledger.ItemID, t ledger.EventType, w ledger.Window) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := ledger.EventQuery{ItemID: itemID, Window: w}
	if t != "" {
		q.Types = []ledger.EventType{t}
	}
	where, args := eventFilters(q)

	rows, err := s.db.QueryContext(ctx,
		"SELECT delta_value FROM consumption_events"+where, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum deltas: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt delta value %q: %w", raw, err)
		}
		sum = sum.Add(d)
	}
	return sum, rows.Err()
}

// HasSalesLine reports whether any depletion event exists for the sales line.
func (s *Store) HasSalesLine(ctx context.Context, salesLineID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exists(ctx, s.db,
		"SELECT COUNT(*) FROM consumption_events WHERE sales_line_id = ?", salesLineID)
}

// HasReversal reports whether an event negating id has been appended.
func (s *Store) HasReversal(ctx context.Context, id ledger.EventID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exists(ctx, s.db,
		"SELECT COUNT(*) FROM consumption_events WHERE reversal_of = ?", id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exists(ctx context.Context, db querier, query string, args ...any) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count > 0, err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ledger.ConsumptionEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.ConsumptionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (ledger.ConsumptionEvent, error) {
	var (
		e          ledger.ConsumptionEvent
		eventTs    string
		deltaValue string
		createdAt  string
	)

	err := rows.Scan(
		&e.ID, &e.LocationID, &e.ItemID, &e.Type, &e.SourceSystem,
		&eventTs, &deltaValue, &e.Delta.UOM, &e.Confidence,
		&e.VarianceReason, &e.Notes, &e.SalesLineID, &e.ReversalOf,
		&e.RecordedBy, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan event: %w", err)
	}

	e.EventTs, _ = time.Parse(time.RFC3339Nano, eventTs)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.Delta.Value, err = decimal.NewFromString(deltaValue)
	if err != nil {
		return e, fmt.Errorf("corrupt delta value %q: %w", deltaValue, err)
	}
	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, e ledger.ConsumptionEvent) error {
	return ts.parent.appendEvent(ctx, ts.tx, e)
}

func (ts *txStore) AppendBatch(ctx context.Context, events []ledger.ConsumptionEvent) error {
	for _, e := range events {
		if err := ts.parent.appendEvent(ctx, ts.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Get(ctx context.Context, id ledger.EventID) (ledger.ConsumptionEvent, error) {
	rows, err := ts.tx.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM consumption_events WHERE id = ?", id)
	if err != nil {
		return ledger.ConsumptionEvent{}, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return ledger.ConsumptionEvent{}, ledger.ErrEventNotFound
	}
	return scanEvent(rows)
}

func (ts *txStore) Query(ctx context.Context, q ledger.EventQuery) ([]ledger.ConsumptionEvent, error) {
	// Locks are held by WithTx; read through the parent's connection is
	// not safe mid-transaction, so read through the tx.
	where, args := eventFilters(q)
	rows, err := ts.tx.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM consumption_events"+where+
			" ORDER BY event_ts ASC, created_at ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.ConsumptionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.LiveOnly {
		events = ledger.FilterLive(events)
	}
	return events, nil
}

func (ts *txStore) SumDeltas(ctx context.Context, itemID ledger.ItemID, w ledger.Window) (decimal.Decimal, error) {
	events, err := ts.Query(ctx, ledger.EventQuery{ItemID: itemID, Window: w})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range events {
		sum = sum.Add(e.Delta.Value)
	}
	return sum, nil
}

func (ts *txStore) SumDeltasByType(ctx context.Context, itemID ledger.ItemID, t ledger.EventType, w ledger.Window) (decimal.Decimal, error) {
	events, err := ts.Query(ctx, ledger.EventQuery{ItemID: itemID, Types: []ledger.EventType{t}, Window: w})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range events {
		sum = sum.Add(e.Delta.Value)
	}
	return sum, nil
}

func (ts *txStore) HasSalesLine(ctx context.Context, salesLineID string) (bool, error) {
	return ts.parent.exists(ctx, ts.tx,
		"SELECT COUNT(*) FROM consumption_events WHERE sales_line_id = ?", salesLineID)
}

func (ts *txStore) HasReversal(ctx context.Context, id ledger.EventID) (bool, error) {
	return ts.parent.exists(ctx, ts.tx,
		"SELECT COUNT(*) FROM consumption_events WHERE reversal_of = ?", id)
}

// =============================================================================
// HELPERS
// =============================================================================

// tsLayout is fixed width: RFC3339Nano trims trailing fractional zeros,
// so its strings do not sort chronologically under SQLite's lexicographic
// TEXT comparison ("…T12:00:00Z" sorts after "…T12:00:00.000000001Z").
// Every stored or compared timestamp goes through formatTs.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTs(t time.Time) string { return t.UTC().Format(tsLayout) }

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTs(*t)
	return &v
}

func nullDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

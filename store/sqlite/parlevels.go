package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/forecast"
	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// PAR LEVELS (forecast.ParLevelStore interface)
// =============================================================================

const parColumns = `id, item_id, vendor_id, location_id, par_level, min_level,
	       reorder_qty, par_uom, lead_time_days, safety_stock_days, active, created_at`

// SaveParLevel inserts or updates the par for (item, vendor, location).
func (s *Store) SaveParLevel(ctx context.Context, p forecast.ParLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO par_levels
		(id, item_id, vendor_id, location_id, par_level, min_level,
		 reorder_qty, par_uom, lead_time_days, safety_stock_days, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, vendor_id, location_id) DO UPDATE SET
			par_level = excluded.par_level,
			min_level = excluded.min_level,
			reorder_qty = excluded.reorder_qty,
			par_uom = excluded.par_uom,
			lead_time_days = excluded.lead_time_days,
			safety_stock_days = excluded.safety_stock_days,
			active = excluded.active`,
		p.ID, p.ItemID, p.VendorID, p.LocationID,
		p.ParLevel.String(), p.MinLevel.String(),
		nullDecimal(p.ReorderQty), p.ParUOM,
		p.LeadTimeDays, p.SafetyStockDays, p.Active,
		formatTs(createdAt),
	)
	return err
}

// GetParLevel retrieves the par for (item, vendor, location).
func (s *Store) GetParLevel(ctx context.Context, item ledger.ItemID, vendor ledger.VendorID, loc ledger.LocationID) (forecast.ParLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+parColumns+` FROM par_levels
		 WHERE item_id = ? AND vendor_id = ? AND location_id = ?`,
		item, vendor, loc)
	if err != nil {
		return forecast.ParLevel{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return forecast.ParLevel{}, ledger.ErrParLevelNotFound
	}
	return scanParLevel(rows)
}

// ListParLevels returns the location's pars, ordered by item.
func (s *Store) ListParLevels(ctx context.Context, loc ledger.LocationID, activeOnly bool) ([]forecast.ParLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + parColumns + " FROM par_levels WHERE location_id = ?"
	if activeOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY item_id ASC, vendor_id ASC"

	rows, err := s.db.QueryContext(ctx, query, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to query par levels: %w", err)
	}
	defer rows.Close()

	var pars []forecast.ParLevel
	for rows.Next() {
		p, err := scanParLevel(rows)
		if err != nil {
			return nil, err
		}
		pars = append(pars, p)
	}
	return pars, rows.Err()
}

// DeactivateParLevel soft-deletes a par; the row stays for history.
func (s *Store) DeactivateParLevel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE par_levels SET active = FALSE WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrParLevelNotFound
	}
	return nil
}

func scanParLevel(rows *sql.Rows) (forecast.ParLevel, error) {
	var (
		p          forecast.ParLevel
		parLevel   string
		minLevel   string
		reorderQty sql.NullString
		createdAt  string
	)

	err := rows.Scan(
		&p.ID, &p.ItemID, &p.VendorID, &p.LocationID, &parLevel, &minLevel,
		&reorderQty, &p.ParUOM, &p.LeadTimeDays, &p.SafetyStockDays,
		&p.Active, &createdAt,
	)
	if err != nil {
		return p, err
	}

	p.ParLevel, _ = decimal.NewFromString(parLevel)
	p.MinLevel, _ = decimal.NewFromString(minLevel)
	p.ReorderQty = parseNullDecimal(reorderQty)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return p, nil
}

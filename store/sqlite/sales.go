package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/depletion"
	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// SALES LINES (depletion.SalesLineStore interface)
// =============================================================================

// SaveSalesLine inserts a canonical sales line. Re-imports of the same
// receipt line hit the identity index and are silently ignored.
func (s *Store) SaveSalesLine(ctx context.Context, line depletion.SalesLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := line.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_lines
		(id, source_system, source_location_id, location_id, business_date, sold_at,
		 receipt_id, line_id, pos_item_id, pos_item_name, quantity,
		 is_voided, is_refunded, size_modifier_id, size_modifier_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_system, source_location_id, business_date,
		            receipt_id, line_id, size_modifier_id) DO NOTHING`,
		line.ID, line.SourceSystem, line.SourceLocationID, line.LocationID,
		line.BusinessDate.UTC().Format("2006-01-02"),
		formatTs(line.SoldAt),
		line.ReceiptID, line.LineID, line.POSItemID, line.POSItemName,
		line.Quantity.String(), line.IsVoided, line.IsRefunded,
		line.SizeModifierID, line.SizeModifierName,
		formatTs(createdAt),
	)
	return err
}

// SalesLinesIn returns the location's lines with SoldAt in [from, to).
func (s *Store) SalesLinesIn(ctx context.Context, loc ledger.LocationID, from, to time.Time) ([]depletion.SalesLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_system, source_location_id, location_id, business_date, sold_at,
		       receipt_id, line_id, pos_item_id, pos_item_name, quantity,
		       is_voided, is_refunded, size_modifier_id, size_modifier_name, created_at
		FROM sales_lines
		WHERE location_id = ? AND sold_at >= ? AND sold_at < ?
		ORDER BY sold_at ASC, id ASC`,
		loc, formatTs(from), formatTs(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query sales lines: %w", err)
	}
	defer rows.Close()

	var lines []depletion.SalesLine
	for rows.Next() {
		var (
			l            depletion.SalesLine
			businessDate string
			soldAt       string
			quantity     string
			createdAt    string
		)
		if err := rows.Scan(
			&l.ID, &l.SourceSystem, &l.SourceLocationID, &l.LocationID,
			&businessDate, &soldAt, &l.ReceiptID, &l.LineID,
			&l.POSItemID, &l.POSItemName, &quantity,
			&l.IsVoided, &l.IsRefunded, &l.SizeModifierID, &l.SizeModifierName,
			&createdAt,
		); err != nil {
			return nil, err
		}

		l.BusinessDate, _ = time.Parse("2006-01-02", businessDate)
		l.SoldAt, _ = time.Parse(time.RFC3339Nano, soldAt)
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		l.Quantity, err = decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("corrupt quantity %q: %w", quantity, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// =============================================================================
// POS ITEM MAPPINGS (depletion.MappingStore interface)
// =============================================================================

// mappingPayload is the stored JSON form of the mode-specific target.
type mappingPayload struct {
	ItemID      string              `json:"item_id,omitempty"`
	TapLineID   string              `json:"tap_line_id,omitempty"`
	PourOz      decimal.Decimal     `json:"pour_oz,omitempty"`
	Ingredients []ingredientPayload `json:"ingredients,omitempty"`
}

type ingredientPayload struct {
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UOM      string          `json:"uom"`
}

// SaveMapping inserts or updates a POS item mapping.
func (s *Store) SaveMapping(ctx context.Context, m depletion.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := json.Marshal(encodeMapping(m))
	if err != nil {
		return fmt.Errorf("failed to encode mapping target: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pos_item_mappings
		(id, location_id, source_system, pos_item_id, mode, target_json,
		 active, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			target_json = excluded.target_json,
			active = excluded.active,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to`,
		m.ID, m.LocationID, m.SourceSystem, m.POSItemID, m.Mode, string(target),
		m.Active, formatTs(m.EffectiveFrom),
		nullTime(m.EffectiveTo),
		formatTs(time.Now()),
	)
	return err
}

// ResolveMapping finds the mapping effective for the POS item at the
// given instant. Among overlapping mappings the most recently effective
// one wins.
func (s *Store) ResolveMapping(ctx context.Context, loc ledger.LocationID, src ledger.SourceSystem, posItemID string, asOf time.Time) (depletion.Mapping, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, source_system, pos_item_id, mode, target_json,
		       active, effective_from, effective_to
		FROM pos_item_mappings
		WHERE location_id = ? AND source_system = ? AND pos_item_id = ?
		ORDER BY effective_from DESC`,
		loc, src, posItemID)
	if err != nil {
		return depletion.Mapping{}, false, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return depletion.Mapping{}, false, err
		}
		if m.IsEffective(asOf) {
			return m, true, nil
		}
	}
	return depletion.Mapping{}, false, rows.Err()
}

func scanMapping(rows *sql.Rows) (depletion.Mapping, error) {
	var (
		m             depletion.Mapping
		targetJSON    string
		effectiveFrom string
		effectiveTo   sql.NullString
	)

	err := rows.Scan(
		&m.ID, &m.LocationID, &m.SourceSystem, &m.POSItemID, &m.Mode,
		&targetJSON, &m.Active, &effectiveFrom, &effectiveTo,
	)
	if err != nil {
		return m, err
	}

	m.EffectiveFrom, _ = time.Parse(time.RFC3339Nano, effectiveFrom)
	m.EffectiveTo = parseNullTime(effectiveTo)

	var payload mappingPayload
	if err := json.Unmarshal([]byte(targetJSON), &payload); err != nil {
		return m, fmt.Errorf("corrupt mapping target %q: %w", m.ID, err)
	}
	decodeMapping(&m, payload)
	return m, nil
}

func encodeMapping(m depletion.Mapping) mappingPayload {
	var p mappingPayload
	switch {
	case m.Packaged != nil:
		p.ItemID = string(m.Packaged.ItemID)
	case m.Draft != nil:
		p.ItemID = string(m.Draft.ItemID)
		p.TapLineID = m.Draft.TapLineID
		p.PourOz = m.Draft.PourOz
	case m.Recipe != nil:
		for _, ing := range m.Recipe.Ingredients {
			p.Ingredients = append(p.Ingredients, ingredientPayload{
				ItemID:   string(ing.ItemID),
				Quantity: ing.Quantity,
				UOM:      string(ing.UOM),
			})
		}
	}
	return p
}

func decodeMapping(m *depletion.Mapping, p mappingPayload) {
	switch m.Mode {
	case depletion.ModePackagedUnit:
		m.Packaged = &depletion.PackagedTarget{ItemID: ledger.ItemID(p.ItemID)}
	case depletion.ModeDraftByTap, depletion.ModeDraftByProduct:
		m.Draft = &depletion.DraftTarget{
			ItemID:    ledger.ItemID(p.ItemID),
			TapLineID: p.TapLineID,
			PourOz:    p.PourOz,
		}
	case depletion.ModeRecipe:
		target := &depletion.RecipeTarget{}
		for _, ing := range p.Ingredients {
			target.Ingredients = append(target.Ingredients, depletion.Ingredient{
				ItemID:   ledger.ItemID(ing.ItemID),
				Quantity: ing.Quantity,
				UOM:      ledger.UOM(ing.UOM),
			})
		}
		m.Recipe = target
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// ITEM CATALOG (ledger.ItemStore interface)
// =============================================================================

const itemColumns = `id, location_id, item_type, name, barcode, vendor_sku,
	       base_uom, pack_size, pack_uom, active, created_at`

// SaveItem inserts or updates a catalog item.
func (s *Store) SaveItem(ctx context.Context, item ledger.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO inventory_items
		(id, location_id, item_type, name, barcode, vendor_sku,
		 base_uom, pack_size, pack_uom, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_type = excluded.item_type,
			name = excluded.name,
			barcode = excluded.barcode,
			vendor_sku = excluded.vendor_sku,
			base_uom = excluded.base_uom,
			pack_size = excluded.pack_size,
			pack_uom = excluded.pack_uom,
			active = excluded.active
	`

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.LocationID, item.Type, item.Name, item.Barcode,
		item.VendorSKU, item.BaseUOM, item.PackSize.String(), item.PackUOM,
		item.Active, formatTs(createdAt),
	)
	return err
}

// GetItem retrieves a catalog item by ID.
func (s *Store) GetItem(ctx context.Context, id ledger.ItemID) (ledger.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM inventory_items WHERE id = ?", id)
	if err != nil {
		return ledger.InventoryItem{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return ledger.InventoryItem{}, ledger.ErrItemNotFound
	}
	return scanItem(rows)
}

// ListItems returns the location's catalog, sorted by name.
func (s *Store) ListItems(ctx context.Context, loc ledger.LocationID, activeOnly bool) ([]ledger.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + itemColumns + " FROM inventory_items WHERE location_id = ?"
	if activeOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query, loc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ledger.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(rows *sql.Rows) (ledger.InventoryItem, error) {
	var (
		item      ledger.InventoryItem
		packSize  string
		createdAt string
	)

	err := rows.Scan(
		&item.ID, &item.LocationID, &item.Type, &item.Name, &item.Barcode,
		&item.VendorSKU, &item.BaseUOM, &packSize, &item.PackUOM,
		&item.Active, &createdAt,
	)
	if err != nil {
		return item, err
	}

	item.PackSize, _ = decimal.NewFromString(packSize)
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return item, nil
}

// =============================================================================
// PRICE HISTORY
// =============================================================================

// AddPrice records an effective-dated unit cost.
func (s *Store) AddPrice(ctx context.Context, p ledger.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO price_history (item_id, unit_cost, currency, effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id, effective_from) DO UPDATE SET
			unit_cost = excluded.unit_cost,
			currency = excluded.currency,
			effective_to = excluded.effective_to
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ItemID, p.UnitCost.String(), p.Currency,
		formatTs(p.EffectiveFrom),
		nullTime(p.EffectiveTo),
	)
	return err
}

// PriceAt returns the cost effective at the instant. When effective
// windows overlap the most recently started price wins.
func (s *Store) PriceAt(ctx context.Context, id ledger.ItemID, at time.Time) (ledger.PriceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	atStr := formatTs(at)
	query := `
		SELECT item_id, unit_cost, currency, effective_from, effective_to
		FROM price_history
		WHERE item_id = ? AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to > ?)
		ORDER BY effective_from DESC
		LIMIT 1
	`

	var (
		p             ledger.PriceRecord
		unitCost      string
		effectiveFrom string
		effectiveTo   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id, atStr, atStr).Scan(
		&p.ItemID, &unitCost, &p.Currency, &effectiveFrom, &effectiveTo,
	)
	if err == sql.ErrNoRows {
		return ledger.PriceRecord{}, false, nil
	}
	if err != nil {
		return ledger.PriceRecord{}, false, err
	}

	p.UnitCost, _ = decimal.NewFromString(unitCost)
	p.EffectiveFrom, _ = time.Parse(time.RFC3339Nano, effectiveFrom)
	p.EffectiveTo = parseNullTime(effectiveTo)
	return p, true, nil
}

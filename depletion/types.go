/*
Package depletion converts canonical POS sales records into consumption
ledger events.

PURPOSE:
  This is the bridge between upstream point-of-sale systems and the
  ledger. POS adapters normalize their exports into SalesLine rows; the
  Engine walks a time window of those rows and materializes one pos_sale
  event per mapped record (or several, for recipe mappings).

KEY PRINCIPLES:
  1. POS-agnostic: only canonical SalesLine records are consumed
  2. Idempotent: one depletion per (sales line, item); re-runs are safe
  3. Immutable: events are created, never updated
  4. Tolerant: unmapped items are counted and skipped, not failed

MAPPING MODES:
  Mappings are a closed tagged union. Each mode carries exactly the
  fields it needs, and Resolve() flattens the union into plain
  (item, quantity, uom) targets so ledger code never sees mode logic:
    - packaged_unit:    one unit of one item per quantity sold
    - draft_by_tap:     a pour of fixed ounces from the item on a tap line
    - draft_by_product: a pour of fixed ounces from the product directly
    - recipe:           fan-out to each ingredient, scaled per serving
*/
package depletion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// SALES LINE - Canonical POS record
// =============================================================================

// SalesLine is the POS-agnostic representation of one sold line item.
// Its ID doubles as the depletion idempotency key.
type SalesLine struct {
	ID               string
	SourceSystem     ledger.SourceSystem
	SourceLocationID string
	LocationID       ledger.LocationID
	BusinessDate     time.Time
	SoldAt           time.Time
	ReceiptID        string
	LineID           string
	POSItemID        string
	POSItemName      string
	Quantity         decimal.Decimal
	IsVoided         bool
	IsRefunded       bool
	SizeModifierID   string
	SizeModifierName string
	CreatedAt        time.Time
}

// IdentityKey is the natural uniqueness of a sales line across imports:
// the same receipt line re-imported must not become a second row.
func (s SalesLine) IdentityKey() string {
	return string(s.SourceSystem) + "|" + s.SourceLocationID + "|" +
		s.BusinessDate.UTC().Format("2006-01-02") + "|" + s.ReceiptID + "|" +
		s.LineID + "|" + s.SizeModifierID
}

// =============================================================================
// MAPPING - Closed tagged union of depletion targets
// =============================================================================

type Mode string

const (
	ModePackagedUnit   Mode = "packaged_unit"
	ModeDraftByTap     Mode = "draft_by_tap"
	ModeDraftByProduct Mode = "draft_by_product"
	ModeRecipe         Mode = "recipe"
)

// Mapping links one POS item to its inventory depletion, versioned by
// effective dates. Exactly one of the mode payloads is set, matching Mode.
type Mapping struct {
	ID           string
	LocationID   ledger.LocationID
	SourceSystem ledger.SourceSystem
	POSItemID    string
	Mode         Mode

	Packaged *PackagedTarget
	Draft    *DraftTarget
	Recipe   *RecipeTarget

	Active        bool
	EffectiveFrom time.Time
	EffectiveTo   *time.Time // nil = still effective
}

// PackagedTarget depletes whole base units of one item.
type PackagedTarget struct {
	ItemID ledger.ItemID
}

// DraftTarget depletes a fixed pour from a draft item. TapLineID is set
// for draft_by_tap and empty for draft_by_product.
type DraftTarget struct {
	ItemID    ledger.ItemID
	TapLineID string
	PourOz    decimal.Decimal
}

// RecipeTarget fans one sale out into its ingredients.
type RecipeTarget struct {
	Ingredients []Ingredient
}

// Ingredient is one component of a recipe, scaled per serving sold.
type Ingredient struct {
	ItemID   ledger.ItemID
	Quantity decimal.Decimal
	UOM      ledger.UOM
}

// IsEffective reports whether the mapping applies at the given instant.
func (m Mapping) IsEffective(at time.Time) bool {
	if !m.Active {
		return false
	}
	if m.EffectiveFrom.After(at) {
		return false
	}
	return m.EffectiveTo == nil || m.EffectiveTo.After(at)
}

// Depletion is a flattened (item, quantity, uom) target. Quantity is the
// positive amount consumed per single unit sold.
type Depletion struct {
	ItemID   ledger.ItemID
	Quantity decimal.Decimal
	UOM      ledger.UOM
}

// Resolve flattens the tagged union into per-unit depletion targets.
// Downstream code multiplies by the sold quantity and negates; it never
// branches on mode again.
func (m Mapping) Resolve() []Depletion {
	switch m.Mode {
	case ModePackagedUnit:
		if m.Packaged == nil {
			return nil
		}
		return []Depletion{{ItemID: m.Packaged.ItemID, Quantity: decimal.NewFromInt(1), UOM: ledger.UOMUnits}}
	case ModeDraftByTap, ModeDraftByProduct:
		if m.Draft == nil {
			return nil
		}
		return []Depletion{{ItemID: m.Draft.ItemID, Quantity: m.Draft.PourOz, UOM: ledger.UOMOz}}
	case ModeRecipe:
		if m.Recipe == nil {
			return nil
		}
		out := make([]Depletion, 0, len(m.Recipe.Ingredients))
		for _, ing := range m.Recipe.Ingredients {
			out = append(out, Depletion{ItemID: ing.ItemID, Quantity: ing.Quantity, UOM: ing.UOM})
		}
		return out
	}
	return nil
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// MappingResolver finds the mapping effective for a POS item at a point
// in time. ok is false when no active mapping covers the instant; those
// sales are counted as unmapped and skipped.
type MappingResolver interface {
	ResolveMapping(ctx context.Context, loc ledger.LocationID, src ledger.SourceSystem, posItemID string, asOf time.Time) (Mapping, bool, error)
}

// SalesLineStore persists canonical sales lines.
type SalesLineStore interface {
	// SaveSalesLine inserts a line, ignoring duplicates of the same
	// identity key (re-imports are expected).
	SaveSalesLine(ctx context.Context, s SalesLine) error

	// SalesLinesIn returns the location's lines with SoldAt in [from, to).
	SalesLinesIn(ctx context.Context, loc ledger.LocationID, from, to time.Time) ([]SalesLine, error)
}

// MappingStore persists mappings and serves as the default resolver.
type MappingStore interface {
	MappingResolver
	SaveMapping(ctx context.Context, m Mapping) error
}

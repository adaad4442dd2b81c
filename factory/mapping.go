/*
Package factory provides JSON to Go mapping conversion.

PURPOSE:
  Converts JSON mapping definitions into depletion.Mapping values. POS
  item mappings arrive from the admin UI and bulk import as loosely-typed
  JSON; the factory resolves that shape into the closed tagged union
  exactly once, so everything downstream works with typed mode payloads.

JSON SCHEMA:
  {
    "id": "map-negra-modelo",
    "location_id": "loc-1",
    "source_system": "square",
    "pos_item_id": "SQ-123",
    "mode": "packaged_unit",
    "item_id": "item-negra-modelo",
    "effective_from": "2026-01-01T00:00:00Z"
  }

  Draft modes add "tap_line_id" and "pour_oz"; recipe mode replaces
  "item_id" with an "ingredients" array of {item_id, quantity, uom}.

VALIDATION:
  Each mode requires exactly its own fields. Unknown modes, missing
  targets, and non-positive quantities are rejected here, before any
  mapping reaches the resolver.
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/depletion"
	"github.com/LesCam/barstock/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MappingJSON is the wire representation of a POS item mapping.
type MappingJSON struct {
	ID           string           `json:"id,omitempty"`
	LocationID   string           `json:"location_id"`
	SourceSystem string           `json:"source_system"`
	POSItemID    string           `json:"pos_item_id"`
	Mode         string           `json:"mode"`
	ItemID       string           `json:"item_id,omitempty"`
	TapLineID    string           `json:"tap_line_id,omitempty"`
	PourOz       float64          `json:"pour_oz,omitempty"`
	Ingredients  []IngredientJSON `json:"ingredients,omitempty"`

	Active        *bool  `json:"active,omitempty"` // default true
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty"`
}

// IngredientJSON is one recipe component.
type IngredientJSON struct {
	ItemID   string  `json:"item_id"`
	Quantity float64 `json:"quantity"`
	UOM      string  `json:"uom"`
}

// =============================================================================
// MAPPING FACTORY
// =============================================================================

type MappingFactory struct{}

func NewMappingFactory() *MappingFactory { return &MappingFactory{} }

// ParseMapping converts a JSON document into a validated Mapping.
func (f *MappingFactory) ParseMapping(raw string) (depletion.Mapping, error) {
	var j MappingJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return depletion.Mapping{}, fmt.Errorf("parse mapping JSON: %w", err)
	}
	return f.FromJSON(j)
}

// FromJSON converts an already-decoded document into a validated Mapping.
func (f *MappingFactory) FromJSON(j MappingJSON) (depletion.Mapping, error) {
	if j.LocationID == "" {
		return depletion.Mapping{}, &ledger.ValidationError{Field: "location_id", Message: "required"}
	}
	if j.POSItemID == "" {
		return depletion.Mapping{}, &ledger.ValidationError{Field: "pos_item_id", Message: "required"}
	}

	from, err := parseTime(j.EffectiveFrom, true)
	if err != nil {
		return depletion.Mapping{}, &ledger.ValidationError{Field: "effective_from", Message: err.Error()}
	}
	var to *time.Time
	if j.EffectiveTo != "" {
		t, err := parseTime(j.EffectiveTo, true)
		if err != nil {
			return depletion.Mapping{}, &ledger.ValidationError{Field: "effective_to", Message: err.Error()}
		}
		to = t
	}

	m := depletion.Mapping{
		ID:            j.ID,
		LocationID:    ledger.LocationID(j.LocationID),
		SourceSystem:  ledger.SourceSystem(j.SourceSystem),
		POSItemID:     j.POSItemID,
		Mode:          depletion.Mode(j.Mode),
		Active:        j.Active == nil || *j.Active,
		EffectiveFrom: *from,
		EffectiveTo:   to,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	switch m.Mode {
	case depletion.ModePackagedUnit:
		if j.ItemID == "" {
			return depletion.Mapping{}, &ledger.ValidationError{Field: "item_id", Message: "required for packaged_unit"}
		}
		m.Packaged = &depletion.PackagedTarget{ItemID: ledger.ItemID(j.ItemID)}

	case depletion.ModeDraftByTap, depletion.ModeDraftByProduct:
		if j.ItemID == "" {
			return depletion.Mapping{}, &ledger.ValidationError{Field: "item_id", Message: "required for draft modes"}
		}
		if j.PourOz <= 0 {
			return depletion.Mapping{}, &ledger.ValidationError{Field: "pour_oz", Message: "must be positive"}
		}
		if m.Mode == depletion.ModeDraftByTap && j.TapLineID == "" {
			return depletion.Mapping{}, &ledger.ValidationError{Field: "tap_line_id", Message: "required for draft_by_tap"}
		}
		m.Draft = &depletion.DraftTarget{
			ItemID:    ledger.ItemID(j.ItemID),
			TapLineID: j.TapLineID,
			PourOz:    decimal.NewFromFloat(j.PourOz),
		}

	case depletion.ModeRecipe:
		if len(j.Ingredients) == 0 {
			return depletion.Mapping{}, &ledger.ValidationError{Field: "ingredients", Message: "required for recipe"}
		}
		recipe := &depletion.RecipeTarget{}
		for i, ing := range j.Ingredients {
			if ing.ItemID == "" {
				return depletion.Mapping{}, &ledger.ValidationError{Field: fmt.Sprintf("ingredients[%d].item_id", i), Message: "required"}
			}
			if ing.Quantity <= 0 {
				return depletion.Mapping{}, &ledger.ValidationError{Field: fmt.Sprintf("ingredients[%d].quantity", i), Message: "must be positive"}
			}
			uom := ledger.UOM(ing.UOM)
			if !ledger.ValidUOM(uom) {
				return depletion.Mapping{}, &ledger.ValidationError{Field: fmt.Sprintf("ingredients[%d].uom", i), Message: "unknown unit " + ing.UOM}
			}
			recipe.Ingredients = append(recipe.Ingredients, depletion.Ingredient{
				ItemID:   ledger.ItemID(ing.ItemID),
				Quantity: decimal.NewFromFloat(ing.Quantity),
				UOM:      uom,
			})
		}
		m.Recipe = recipe

	default:
		return depletion.Mapping{}, &ledger.ValidationError{Field: "mode", Message: "unknown mode " + j.Mode}
	}

	return m, nil
}

func parseTime(s string, required bool) (*time.Time, error) {
	if s == "" {
		if required {
			return nil, fmt.Errorf("required")
		}
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Also accept bare dates.
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("not a RFC3339 timestamp or date: %q", s)
		}
	}
	return &t, nil
}

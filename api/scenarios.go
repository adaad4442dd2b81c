/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates items, mappings,
	sales history, and count sessions that demonstrate specific features.

AVAILABLE SCENARIOS:

	taproom-week:           Two weeks of taproom sales with depletion run
	shrinkage-investigation: Taproom plus recurring negative vodka variance
	reorder-planning:       Taproom plus par levels and a near-empty keg

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create inventory items and prices
 3. Create POS item mappings (packaged, draft, recipe)
 4. Record receiving events and two weeks of sales lines
 5. Run the depletion processor over the window
 6. Optionally layer on count sessions or par levels

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "taproom-week"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - depletion/engine.go: Sales line processing
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/depletion"
	"github.com/LesCam/barstock/forecast"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "taproom-week",
		Name:        "Taproom Week",
		Description: "Two weeks of draft, packaged, and cocktail sales with depletion processed",
		Category:    "depletion",
	},
	{
		ID:          "shrinkage-investigation",
		Name:        "Shrinkage Investigation",
		Description: "Weekly count sessions with recurring unexplained vodka variance",
		Category:    "variance",
	},
	{
		ID:          "reorder-planning",
		Name:        "Reorder Planning",
		Description: "Par levels configured with a keg running low against steady demand",
		Category:    "forecast",
	},
}

const demoLocation = ledger.LocationID("loc-taproom")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if h.Resetter != nil {
		if err := h.Resetter.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to reset database", err)
			return
		}
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "taproom-week":
		err = h.loadTaproomScenario(ctx)
	case "shrinkage-investigation":
		err = h.loadShrinkageScenario(ctx)
	case "reorder-planning":
		err = h.loadReorderScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// SeedDemo loads the taproom scenario at startup when the catalog is
// empty. Existing data is never touched.
func (h *Handler) SeedDemo(ctx context.Context) error {
	items, err := h.Items.ListItems(ctx, demoLocation, false)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return nil
	}
	if err := h.loadTaproomScenario(ctx); err != nil {
		return err
	}
	h.currentScenario = "taproom-week"
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadTaproomScenario seeds the base taproom: four items, three POS
// mappings, receiving, and two weeks of sales processed into depletions.
func (h *Handler) loadTaproomScenario(ctx context.Context) error {
	_, err := h.seedTaproom(ctx)
	return err
}

// loadShrinkageScenario layers four weekly count sessions on the taproom.
// Vodka comes up short every week with no recorded reason, the pattern
// the shrinkage analyzer is built to surface.
func (h *Handler) loadShrinkageScenario(ctx context.Context) error {
	now, err := h.seedTaproom(ctx)
	if err != nil {
		return err
	}

	// Weekly vodka shortfalls in ml, oldest first
	vodkaShort := []string{"-120", "-180", "-90", "-150"}

	for week, short := range vodkaShort {
		startedTs := now.AddDate(0, 0, -28+week*7).Add(22 * time.Hour)
		sessID := session.NewSessionID()

		staff := "staff-dana"
		if week%2 == 1 {
			staff = "staff-miguel"
		}

		sess := session.Session{
			ID:         sessID,
			LocationID: demoLocation,
			Type:       session.TypeWeekly,
			StartedTs:  startedTs,
			CreatedBy:  staff,
			CreatedAt:  startedTs,
		}
		if err := h.SessionStore.CreateSession(ctx, sess); err != nil {
			return err
		}

		vodkaOnHand, err := h.Ledger.OnHand(ctx, "item-vodka", startedTs)
		if err != nil {
			return err
		}
		shortfall := ledger.MustParseDecimal(short)
		counted := vodkaOnHand.Add(shortfall)

		line := session.Line{
			ID:            uuid.NewString(),
			SessionID:     sessID,
			ItemID:        "item-vodka",
			DerivedVolume: &counted,
			RecordedBy:    staff,
			CreatedAt:     startedTs.Add(10 * time.Minute),
		}
		if err := h.SessionStore.AddLine(ctx, line); err != nil {
			return err
		}

		endedTs := startedTs.Add(30 * time.Minute)
		adjustment := ledger.ConsumptionEvent{
			ID:             ledger.NewEventID(),
			LocationID:     demoLocation,
			ItemID:         "item-vodka",
			Type:           ledger.EventCountAdjustment,
			SourceSystem:   ledger.SourceManual,
			EventTs:        endedTs,
			Delta:          ledger.Quantity{Value: shortfall, UOM: ledger.UOMMl},
			Confidence:     ledger.ConfidenceMeasured,
			VarianceReason: ledger.ReasonUnknown,
			Notes:          fmt.Sprintf("count session %s adjustment", sessID),
			RecordedBy:     "manager-kim",
			CreatedAt:      endedTs,
		}
		if err := h.SessionStore.CloseSession(ctx, sessID, endedTs, "manager-kim",
			[]ledger.ConsumptionEvent{adjustment}); err != nil {
			return err
		}
	}
	return nil
}

// loadReorderScenario layers par levels on the taproom. The IPA keg sits
// below both par and minimum after two weeks of pouring, so the reorder
// endpoint has something to suggest.
func (h *Handler) loadReorderScenario(ctx context.Context) error {
	now, err := h.seedTaproom(ctx)
	if err != nil {
		return err
	}

	pars := []struct {
		item    ledger.ItemID
		par     string
		min     string
		reorder string
		uom     string
		lead    int
	}{
		{"item-ipa-keg", "4", "1.5", "2", "package", 3}, // kegs
		{"item-lager-btl", "5", "2", "3", "package", 2}, // cases
		{"item-vodka", "9000", "3000", "", "native", 5}, // ml
		{"item-lime", "150", "50", "", "native", 1},     // each
	}
	for _, p := range pars {
		par := parLevelFor(p.item, p.par, p.min, p.reorder, p.uom, p.lead, now)
		if err := h.Pars.SaveParLevel(ctx, par); err != nil {
			return err
		}
	}
	return nil
}

func parLevelFor(item ledger.ItemID, par, min, reorder, uom string, lead int, now time.Time) forecast.ParLevel {
	p := forecast.ParLevel{
		ID:           uuid.NewString(),
		ItemID:       item,
		VendorID:     "vendor-main",
		LocationID:   demoLocation,
		ParLevel:     ledger.MustParseDecimal(par),
		MinLevel:     ledger.MustParseDecimal(min),
		ParUOM:       forecast.ParUOM(uom),
		LeadTimeDays: lead,
		Active:       true,
		CreatedAt:    now.AddDate(0, 0, -30),
	}
	if reorder != "" {
		q := ledger.MustParseDecimal(reorder)
		p.ReorderQty = &q
	}
	return p
}

// =============================================================================
// TAPROOM SEED
// =============================================================================

// seedTaproom builds the shared base data set and returns the reference
// time the history was anchored to (midnight UTC today).
func (h *Handler) seedTaproom(ctx context.Context) (time.Time, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	seedStart := now.AddDate(0, 0, -30)

	items := []ledger.InventoryItem{
		{
			ID: "item-ipa-keg", LocationID: demoLocation, Type: ledger.ItemKegBeer,
			Name: "Hazy IPA Half Barrel", VendorSKU: "HB-IPA-015",
			BaseUOM: ledger.UOMOz, PackSize: decimal.NewFromInt(1984), PackUOM: ledger.UOMUnits,
			Active: true, CreatedAt: seedStart,
		},
		{
			ID: "item-lager-btl", LocationID: demoLocation, Type: ledger.ItemPackagedBeer,
			Name: "Pilsner 12oz Bottle", Barcode: "078521364014", VendorSKU: "CS-PILS-24",
			BaseUOM: ledger.UOMUnits, PackSize: decimal.NewFromInt(24), PackUOM: ledger.UOMUnits,
			Active: true, CreatedAt: seedStart,
		},
		{
			ID: "item-vodka", LocationID: demoLocation, Type: ledger.ItemLiquor,
			Name: "Well Vodka 750ml", VendorSKU: "LQ-VODKA-750",
			BaseUOM: ledger.UOMMl, PackSize: decimal.NewFromInt(750), PackUOM: ledger.UOMUnits,
			Active: true, CreatedAt: seedStart,
		},
		{
			ID: "item-lime", LocationID: demoLocation, Type: ledger.ItemFood,
			Name: "Lime", BaseUOM: ledger.UOMUnits, PackSize: decimal.NewFromInt(1),
			Active: true, CreatedAt: seedStart,
		},
	}
	for _, item := range items {
		if err := h.Items.SaveItem(ctx, item); err != nil {
			return now, err
		}
	}

	prices := []struct {
		item ledger.ItemID
		cost string
	}{
		{"item-ipa-keg", "0.11"}, // per oz
		{"item-lager-btl", "1.15"},
		{"item-vodka", "0.016"}, // per ml
		{"item-lime", "0.35"},
	}
	for _, p := range prices {
		err := h.Items.AddPrice(ctx, ledger.PriceRecord{
			ItemID:        p.item,
			UnitCost:      ledger.MustParseDecimal(p.cost),
			Currency:      "USD",
			EffectiveFrom: seedStart,
		})
		if err != nil {
			return now, err
		}
	}

	mappings := []depletion.Mapping{
		{
			ID: "map-ipa-pint", LocationID: demoLocation, SourceSystem: ledger.SourceToast,
			POSItemID: "pos-ipa-pint", Mode: depletion.ModeDraftByTap,
			Draft: &depletion.DraftTarget{
				ItemID: "item-ipa-keg", TapLineID: "tap-1", PourOz: decimal.NewFromInt(16),
			},
			Active: true, EffectiveFrom: seedStart,
		},
		{
			ID: "map-lager", LocationID: demoLocation, SourceSystem: ledger.SourceToast,
			POSItemID: "pos-lager-btl", Mode: depletion.ModePackagedUnit,
			Packaged: &depletion.PackagedTarget{ItemID: "item-lager-btl"},
			Active:   true, EffectiveFrom: seedStart,
		},
		{
			ID: "map-gimlet", LocationID: demoLocation, SourceSystem: ledger.SourceToast,
			POSItemID: "pos-vodka-gimlet", Mode: depletion.ModeRecipe,
			Recipe: &depletion.RecipeTarget{Ingredients: []depletion.Ingredient{
				{ItemID: "item-vodka", Quantity: decimal.NewFromInt(60), UOM: ledger.UOMMl},
				{ItemID: "item-lime", Quantity: decimal.NewFromInt(1), UOM: ledger.UOMUnits},
			}},
			Active: true, EffectiveFrom: seedStart,
		},
	}
	for _, m := range mappings {
		if err := h.Mappings.SaveMapping(ctx, m); err != nil {
			return now, err
		}
	}

	receiving := []struct {
		item ledger.ItemID
		qty  int
		uom  ledger.UOM
	}{
		{"item-ipa-keg", 7936, ledger.UOMOz}, // four half barrels
		{"item-lager-btl", 288, ledger.UOMUnits},
		{"item-vodka", 9000, ledger.UOMMl},
		{"item-lime", 200, ledger.UOMUnits},
	}
	for _, rec := range receiving {
		err := h.Ledger.Append(ctx, ledger.ConsumptionEvent{
			ID:           ledger.NewEventID(),
			LocationID:   demoLocation,
			ItemID:       rec.item,
			Type:         ledger.EventReceiving,
			SourceSystem: ledger.SourceManual,
			EventTs:      seedStart.Add(9 * time.Hour),
			Delta:        ledger.NewQuantityFromInt(rec.qty, rec.uom),
			Confidence:   ledger.ConfidenceMeasured,
			Notes:        "opening delivery",
			RecordedBy:   "manager-kim",
			CreatedAt:    seedStart.Add(9 * time.Hour),
		})
		if err != nil {
			return now, err
		}
	}

	// Two weeks of sales, weekends busier
	for day := 14; day >= 1; day-- {
		date := now.AddDate(0, 0, -day)
		soldAt := date.Add(20 * time.Hour)

		pints, bottles, gimlets := 22, 14, 5
		switch date.Weekday() {
		case time.Friday:
			pints, bottles, gimlets = 40, 26, 10
		case time.Saturday:
			pints, bottles, gimlets = 48, 30, 12
		case time.Sunday:
			pints, bottles, gimlets = 30, 18, 7
		case time.Monday:
			pints, bottles, gimlets = 14, 9, 3
		}

		sales := []struct {
			pos string
			qty int
		}{
			{"pos-ipa-pint", pints},
			{"pos-lager-btl", bottles},
			{"pos-vodka-gimlet", gimlets},
		}
		for i, sale := range sales {
			err := h.Sales.SaveSalesLine(ctx, depletion.SalesLine{
				ID:           uuid.NewString(),
				SourceSystem: ledger.SourceToast,
				LocationID:   demoLocation,
				BusinessDate: date,
				SoldAt:       soldAt,
				ReceiptID:    fmt.Sprintf("r-%s", date.Format("20060102")),
				LineID:       fmt.Sprintf("%d", i+1),
				POSItemID:    sale.pos,
				Quantity:     decimal.NewFromInt(int64(sale.qty)),
				CreatedAt:    soldAt,
			})
			if err != nil {
				return now, err
			}
		}
	}

	_, err := h.Depletion.Run(ctx, demoLocation, now.AddDate(0, 0, -14), now)
	return now, err
}

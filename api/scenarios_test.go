/*
scenarios_test.go - Demo scenario loaders

Tests that each scenario leaves the database in the state its
description promises: the taproom has stock and processed sales, the
shrinkage scenario surfaces the vodka pattern, and the reorder scenario
has pars the suggestion endpoint can chew on.
*/
package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LesCam/barstock/api"
	"github.com/LesCam/barstock/forecast"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/variance"
)

const demoLoc = "loc-taproom"

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": id,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListScenarios(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []api.ScenarioDTO
	decode(t, rec, &list)
	require.Len(t, list, 3)
	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.Contains(t, ids, "taproom-week")
	assert.Contains(t, ids, "shrinkage-investigation")
	assert.Contains(t, ids, "reorder-planning")
}

func TestLoadScenario_TaproomWeek(t *testing.T) {
	// GIVEN: the taproom scenario
	_, router := newTestServer(t)
	loadScenario(t, router, "taproom-week")

	// THEN: the catalog holds the four demo items
	rec := do(t, router, http.MethodGet, "/api/locations/"+demoLoc+"/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []api.ItemDTO
	decode(t, rec, &items)
	assert.Len(t, items, 4)

	// AND: two weeks of processed sales left positive stock everywhere
	rec = do(t, router, http.MethodGet, "/api/locations/"+demoLoc+"/on-hand", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report api.OnHandReportDTO
	decode(t, rec, &report)
	require.Len(t, report.Items, 4)
	for _, item := range report.Items {
		assert.True(t, item.OnHand.IsPositive(), "%s on hand %s", item.ItemID, item.OnHand)
	}
	assert.True(t, report.TotalValue.IsPositive())

	// AND: the current-scenario endpoint reflects the load
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current api.ScenarioDTO
	decode(t, rec, &current)
	assert.Equal(t, "taproom-week", current.ID)
}

func TestLoadScenario_ShrinkageSurfacesVodka(t *testing.T) {
	// GIVEN: the shrinkage scenario
	_, router := newTestServer(t)
	loadScenario(t, router, "shrinkage-investigation")

	// WHEN: asking for recurring variance patterns
	rec := do(t, router, http.MethodGet, "/api/locations/"+demoLoc+"/variance/patterns", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: vodka shows up as the shrinkage suspect
	var patterns []variance.PatternItem
	decode(t, rec, &patterns)
	require.NotEmpty(t, patterns)

	var vodka *variance.PatternItem
	for i := range patterns {
		if patterns[i].ItemID == ledger.ItemID("item-vodka") {
			vodka = &patterns[i]
		}
	}
	require.NotNil(t, vodka, "no pattern for item-vodka")
	assert.Equal(t, 4, vodka.Appearances)
	assert.True(t, vodka.MeanVariance.IsNegative())
	assert.True(t, vodka.IsShrinkageSuspect)
}

func TestLoadScenario_ReorderPlanning(t *testing.T) {
	// GIVEN: the reorder scenario
	_, router := newTestServer(t)
	loadScenario(t, router, "reorder-planning")

	// WHEN: asking for reorder suggestions
	rec := do(t, router, http.MethodGet, "/api/locations/"+demoLoc+"/reorder-suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: every configured par produces a row and the poured-down keg
	// sits below its minimum
	var suggestions []forecast.ReorderSuggestion
	decode(t, rec, &suggestions)
	require.Len(t, suggestions, 4)

	byItem := make(map[ledger.ItemID]forecast.ReorderSuggestion)
	for _, s := range suggestions {
		byItem[s.ItemID] = s
	}
	keg := byItem["item-ipa-keg"]
	assert.True(t, keg.BelowPar)
	assert.True(t, keg.BelowMin)
	assert.True(t, keg.SuggestedQty.IsPositive())
}

func TestLoadScenario_UnknownRejected(t *testing.T) {
	_, router := newTestServer(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "time-travel",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCurrentScenario_NoneLoaded(t *testing.T) {
	_, router := newTestServer(t)
	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

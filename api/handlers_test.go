/*
handlers_test.go - HTTP API tests over the in-memory sqlite store

Tests for:
- Event append, lookup, and the correction endpoint
- Session close gating and the 422 payload
- On-hand reporting with costing
- Sales ingest and depletion runs end to end
- Error status mapping
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LesCam/barstock/api"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testLoc = "loc-bar"

func newTestServer(t *testing.T) (*api.Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := api.NewHandler(store, zerolog.Nop())
	return h, api.NewRouter(h, nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func postEvent(t *testing.T, router http.Handler, item, eventType, delta, uom string) api.EventDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/events", map[string]any{
		"location_id":       testLoc,
		"inventory_item_id": item,
		"event_type":        eventType,
		"quantity_delta":    delta,
		"uom":               uom,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto api.EventDTO
	decode(t, rec, &dto)
	return dto
}

func postItem(t *testing.T, router http.Handler, id, name, uom string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/items", map[string]any{
		"id":          id,
		"location_id": testLoc,
		"item_type":   "liquor",
		"name":        name,
		"base_uom":    uom,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// EVENTS
// =============================================================================

func TestAppendAndGetEvent(t *testing.T) {
	// GIVEN: a receiving event posted to the ledger
	_, router := newTestServer(t)
	created := postEvent(t, router, "item-1", "receiving", "100", "units")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "measured", created.Confidence)

	// WHEN: fetching it back
	rec := do(t, router, http.MethodGet, "/api/events/"+string(created.ID), nil)

	// THEN: the stored event matches what was posted
	require.Equal(t, http.StatusOK, rec.Code)
	var got api.EventDTO
	decode(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, got.Delta.Equal(decimal.NewFromInt(100)))

	// AND: unknown IDs are a 404
	rec = do(t, router, http.MethodGet, "/api/events/evt-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppendEvent_UnknownTypeRejected(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/events", map[string]any{
		"location_id":       testLoc,
		"inventory_item_id": "item-1",
		"event_type":        "teleport",
		"quantity_delta":    "1",
		"uom":               "units",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp api.ErrorResponse
	decode(t, rec, &errResp)
	assert.NotEmpty(t, errResp.Error)
}

func TestCorrectEvent_ReversesAndReplaces(t *testing.T) {
	// GIVEN: a receiving and a fat-fingered pour
	_, router := newTestServer(t)
	postEvent(t, router, "item-1", "receiving", "100", "oz")
	sale := postEvent(t, router, "item-1", "pos_sale", "-50", "oz")

	// WHEN: correcting the pour down to -5
	rec := do(t, router, http.MethodPost, "/api/events/"+string(sale.ID)+"/correct", map[string]any{
		"new_quantity_delta": "-5",
		"uom":                "oz",
		"reason":             "entry error",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var correction api.CorrectionDTO
	decode(t, rec, &correction)
	assert.NotEmpty(t, correction.ReversalID)
	assert.NotEmpty(t, correction.ReplacementID)

	// THEN: the live view hides the reversed pair
	rec = do(t, router, http.MethodGet, "/api/locations/"+testLoc+"/events?live=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live []api.EventDTO
	decode(t, rec, &live)
	require.Len(t, live, 2)

	// AND: a second correction of the same event conflicts
	rec = do(t, router, http.MethodPost, "/api/events/"+string(sale.ID)+"/correct", map[string]any{
		"new_quantity_delta": "-4",
		"uom":                "oz",
		"reason":             "again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestCloseSession_BlockedWithoutReasons(t *testing.T) {
	// GIVEN: 90 on hand and a count of 100
	_, router := newTestServer(t)
	postItem(t, router, "item-vodka", "Well Vodka", "ml")
	postEvent(t, router, "item-vodka", "receiving", "90", "ml")

	rec := do(t, router, http.MethodPost, "/api/sessions", map[string]any{
		"location_id": testLoc,
		"created_by":  "dana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess api.SessionDTO
	decode(t, rec, &sess)

	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/lines", sess.ID), map[string]any{
		"inventory_item_id": "item-vodka",
		"count_units":       "100",
		"recorded_by":       "dana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: closing without explaining the 10 ml variance
	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/close", sess.ID), map[string]any{
		"closed_by": "dana",
	})

	// THEN: the close is blocked and names the offending item
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	var errResp api.ErrorResponse
	decode(t, rec, &errResp)
	assert.Equal(t, []ledger.ItemID{"item-vodka"}, errResp.ItemIDs)

	// WHEN: retrying with a reason
	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/close", sess.ID), map[string]any{
		"closed_by": "dana",
		"reasons":   map[string]string{"item-vodka": "comp"},
	})

	// THEN: one adjustment commits
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result api.CloseResultDTO
	decode(t, rec, &result)
	assert.Equal(t, 1, result.AdjustmentsCreated)
	assert.True(t, result.TotalVariance.Equal(decimal.NewFromInt(10)), "got %s", result.TotalVariance)

	// AND: the session reads back closed
	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/sessions/%s", sess.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed struct {
		api.SessionDTO
		Lines []api.LineDTO `json:"lines"`
	}
	decode(t, rec, &closed)
	require.NotNil(t, closed.EndedTs)
	assert.Equal(t, "dana", closed.ClosedBy)
	assert.Len(t, closed.Lines, 1)
}

func TestOpenSessionFor_NoneOpen(t *testing.T) {
	_, router := newTestServer(t)
	rec := do(t, router, http.MethodGet, "/api/locations/"+testLoc+"/sessions/open", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ON-HAND REPORT
// =============================================================================

func TestOnHandReport_ValuesStock(t *testing.T) {
	// GIVEN: 6 bottles on hand at 2 dollars each
	_, router := newTestServer(t)
	postItem(t, router, "item-1", "Pale Lager", "units")
	rec := do(t, router, http.MethodPost, "/api/items/item-1/prices", map[string]any{
		"unit_cost":      "2",
		"effective_from": "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	postEvent(t, router, "item-1", "receiving", "10", "units")
	postEvent(t, router, "item-1", "pos_sale", "-4", "units")

	// WHEN: requesting the report
	rec = do(t, router, http.MethodGet, "/api/locations/"+testLoc+"/on-hand", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: levels and value line up
	var report api.OnHandReportDTO
	decode(t, rec, &report)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].OnHand.Equal(decimal.NewFromInt(6)))
	require.NotNil(t, report.Items[0].TotalValue)
	assert.True(t, report.Items[0].TotalValue.Equal(decimal.NewFromInt(12)))
	assert.True(t, report.TotalValue.Equal(decimal.NewFromInt(12)))
}

// =============================================================================
// SALES INGEST AND DEPLETION
// =============================================================================

func TestSalesIngestAndDepletionRun(t *testing.T) {
	// GIVEN: a keg, a tap mapping, and an ingested pint sale
	_, router := newTestServer(t)
	postItem(t, router, "item-keg", "House IPA", "oz")
	postEvent(t, router, "item-keg", "receiving", "1984", "oz")

	rec := do(t, router, http.MethodPost, "/api/mappings", map[string]any{
		"id":             "map-pint",
		"location_id":    testLoc,
		"source_system":  "toast",
		"pos_item_id":    "pos-pint",
		"mode":           "draft_by_tap",
		"item_id":        "item-keg",
		"tap_line_id":    "tap-1",
		"pour_oz":        16,
		"effective_from": "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/sales-lines", map[string]any{
		"lines": []map[string]any{{
			"id":            "sl-1",
			"source_system": "toast",
			"location_id":   testLoc,
			"business_date": "2026-07-01",
			"sold_at":       "2026-07-01T21:00:00Z",
			"receipt_id":    "rcpt-1",
			"line_id":       "1",
			"pos_item_id":   "pos-pint",
			"quantity":      "2",
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: running depletion over the day
	rec = do(t, router, http.MethodPost, "/api/locations/"+testLoc+"/depletion/run", map[string]any{
		"from": "2026-07-01T00:00:00Z",
		"to":   "2026-07-02T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stats struct {
		Processed int `json:"processed"`
		Created   int `json:"created"`
		Skipped   int `json:"skipped"`
	}
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Created)

	// THEN: two pints came off the keg
	rec = do(t, router, http.MethodGet, "/api/locations/"+testLoc+"/on-hand", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report api.OnHandReportDTO
	decode(t, rec, &report)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].OnHand.Equal(decimal.NewFromInt(1952)), "got %s", report.Items[0].OnHand)

	// AND: re-running the window moves nothing
	rec = do(t, router, http.MethodPost, "/api/locations/"+testLoc+"/depletion/run", map[string]any{
		"from": "2026-07-01T00:00:00Z",
		"to":   "2026-07-02T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Created)
}

// =============================================================================
// PAR LEVELS
// =============================================================================

func TestParLevelLifecycle(t *testing.T) {
	// GIVEN: a par level created over the API
	_, router := newTestServer(t)
	postItem(t, router, "item-1", "Well Gin", "units")

	rec := do(t, router, http.MethodPost, "/api/par-levels", map[string]any{
		"inventory_item_id": "item-1",
		"vendor_id":         "vendor-main",
		"location_id":       testLoc,
		"par_level":         "12",
		"min_level":         "4",
		"lead_time_days":    3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var par api.ParLevelDTO
	decode(t, rec, &par)
	require.NotEmpty(t, par.ID)
	assert.Equal(t, "native", par.ParUOM)

	// THEN: it lists for the location
	rec = do(t, router, http.MethodGet, "/api/locations/"+testLoc+"/par-levels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pars []api.ParLevelDTO
	decode(t, rec, &pars)
	require.Len(t, pars, 1)

	// AND: deleting deactivates it
	rec = do(t, router, http.MethodDelete, "/api/par-levels/"+par.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/locations/"+testLoc+"/par-levels", nil)
	decode(t, rec, &pars)
	assert.Empty(t, pars)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	_, router := newTestServer(t)
	rec := do(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

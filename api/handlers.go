/*
handlers.go - HTTP API handlers for the inventory depletion engine

PURPOSE:
  Exposes the consumption ledger, depletion processor, count sessions,
  variance analytics, and forecasting via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Events:
    POST   /api/events                     Append a ledger event
    GET    /api/events/{id}                Get one event
    POST   /api/events/{id}/correct        Reverse and replace an event

  Catalog:
    POST   /api/items                      Create/update inventory item
    GET    /api/items/{id}                 Get item
    POST   /api/items/{id}/prices          Record effective-dated unit cost
    GET    /api/items/{id}/forecast        Per-item forecast detail

  Locations:
    GET    /api/locations/{id}/items       List items
    GET    /api/locations/{id}/on-hand     On-hand report with value
    GET    /api/locations/{id}/events      Query ledger events
    GET    /api/locations/{id}/variance    Variance report for a window
    GET    /api/locations/{id}/variance/patterns  Recurring variance items
    GET    /api/locations/{id}/variance/heatmap   Weekday/hour heatmap
    GET    /api/locations/{id}/variance/reasons   Reason distribution
    GET    /api/locations/{id}/variance/staff     Staff accuracy scores
    GET    /api/locations/{id}/forecast    All-item usage forecast
    GET    /api/locations/{id}/reorder-suggestions  Par-driven reorder list
    GET    /api/locations/{id}/par-levels  List par configurations
    GET    /api/locations/{id}/sessions/open  Currently open count session
    POST   /api/locations/{id}/depletion/run  Process sales lines in window

  Sessions:
    POST   /api/sessions                   Open a count session
    GET    /api/sessions/{id}              Get session with lines
    POST   /api/sessions/{id}/lines        Record a counted value
    GET    /api/sessions/{id}/preview      Dry-run reconciliation
    POST   /api/sessions/{id}/close        Commit reconciliation

  Ingest:
    POST   /api/sales-lines                Ingest canonical POS lines
    POST   /api/mappings                   Create POS item mapping

  Pars:
    POST   /api/par-levels                 Create/update par level
    DELETE /api/par-levels/{id}            Deactivate par level

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (already reversed, session closed, duplicate sales line)
  - 422: Reconciliation blocked pending variance reasons
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/depletion"
	"github.com/LesCam/barstock/factory"
	"github.com/LesCam/barstock/forecast"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
	"github.com/LesCam/barstock/store/sqlite"
	"github.com/LesCam/barstock/variance"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Fields are exported
// so tests can assemble one around the in-memory store.
type Handler struct {
	Ledger    ledger.Ledger
	Corrector *ledger.Corrector
	Items     ledger.ItemStore

	Sessions     *session.Service
	SessionStore session.Store

	Depletion *depletion.Engine
	Sales     depletion.SalesLineStore
	Mappings  depletion.MappingStore

	Variance  *variance.Reporter
	Analytics *variance.Analyzer
	Forecast  *forecast.Engine
	Pars      forecast.ParLevelStore

	Mapper *factory.MappingFactory
	Log    zerolog.Logger

	// Resetter clears all persisted data before a scenario load.
	Resetter interface {
		Reset(ctx context.Context) error
	}

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires a handler around the sqlite store, which backs every
// persistence interface the services need.
func NewHandler(store *sqlite.Store, log zerolog.Logger) *Handler {
	lg := ledger.NewLedger(store)
	prices := ledger.StorePriceResolver{Items: store}
	svc := session.NewService(lg, store, store)
	svc.Log = log
	return &Handler{
		Ledger:       lg,
		Corrector:    ledger.NewCorrector(store),
		Items:        store,
		Sessions:     svc,
		SessionStore: store,
		Depletion:    depletion.NewEngine(lg, store, store),
		Sales:        store,
		Mappings:     store,
		Variance:     variance.NewReporter(lg, store, prices),
		Analytics:    variance.NewAnalyzer(lg, store, store),
		Forecast: &forecast.Engine{
			Ledger: lg,
			Items:  store,
			Pars:   store,
			Prices: prices,
		},
		Pars:     store,
		Mapper:   factory.NewMappingFactory(),
		Log:      log,
		Resetter: store,
	}
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// AppendEvent handles POST /api/events.
func (h *Handler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	var req AppendEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	eventTs := time.Now().UTC()
	if req.EventTs != "" {
		ts, err := time.Parse(time.RFC3339, req.EventTs)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event_ts", err)
			return
		}
		eventTs = ts
	}

	confidence := ledger.ConfidenceLevel(req.Confidence)
	if req.Confidence == "" {
		confidence = ledger.ConfidenceMeasured
	}

	e := ledger.ConsumptionEvent{
		ID:             ledger.NewEventID(),
		LocationID:     ledger.LocationID(req.LocationID),
		ItemID:         ledger.ItemID(req.ItemID),
		Type:           ledger.EventType(req.EventType),
		SourceSystem:   ledger.SourceSystem(req.SourceSystem),
		EventTs:        eventTs,
		Delta:          ledger.Quantity{Value: req.Delta, UOM: ledger.UOM(req.UOM)},
		Confidence:     confidence,
		VarianceReason: ledger.VarianceReason(req.Reason),
		Notes:          req.Notes,
		RecordedBy:     req.RecordedBy,
	}

	if err := h.Ledger.Append(r.Context(), e); err != nil {
		h.respondError(w, err)
		return
	}

	stored, err := h.Ledger.Get(r.Context(), e.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(stored))
}

// GetEvent handles GET /api/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := ledger.EventID(chi.URLParam(r, "id"))
	e, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(e))
}

// CorrectEvent handles POST /api/events/{id}/correct.
func (h *Handler) CorrectEvent(w http.ResponseWriter, r *http.Request) {
	id := ledger.EventID(chi.URLParam(r, "id"))

	var req CorrectEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UOM == "" {
		writeError(w, http.StatusBadRequest, "uom is required", nil)
		return
	}

	result, err := h.Corrector.CorrectEvent(r.Context(), id,
		ledger.Quantity{Value: req.NewDelta, UOM: ledger.UOM(req.UOM)}, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CorrectionDTO{
		ReversalID:    result.ReversalID,
		ReplacementID: result.ReplacementID,
	})
}

// ListEvents handles GET /api/locations/{id}/events.
// Query params: item_id, types (comma separated), from, to (RFC3339),
// live (exclude reversed pairs).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))

	q := ledger.EventQuery{
		LocationID: loc,
		ItemID:     ledger.ItemID(r.URL.Query().Get("item_id")),
		LiveOnly:   r.URL.Query().Get("live") == "true",
	}
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			q.Types = append(q.Types, ledger.EventType(strings.TrimSpace(t)))
		}
	}
	window, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time window", err)
		return
	}
	q.Window = window

	events, err := h.Ledger.Events(r.Context(), q)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]EventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// SaveItem handles POST /api/items.
func (h *Handler) SaveItem(w http.ResponseWriter, r *http.Request) {
	var req SaveItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.LocationID == "" || req.Name == "" || req.BaseUOM == "" {
		writeError(w, http.StatusBadRequest, "id, location_id, name, and base_uom are required", nil)
		return
	}

	item := ledger.InventoryItem{
		ID:         ledger.ItemID(req.ID),
		LocationID: ledger.LocationID(req.LocationID),
		Type:       ledger.ItemType(req.ItemType),
		Name:       req.Name,
		Barcode:    req.Barcode,
		VendorSKU:  req.VendorSKU,
		BaseUOM:    ledger.UOM(req.BaseUOM),
		PackSize:   decimal.NewFromInt(1),
		PackUOM:    ledger.UOM(req.PackUOM),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if req.PackSize != nil {
		item.PackSize = *req.PackSize
	}
	if req.Active != nil {
		item.Active = *req.Active
	}

	if err := h.Items.SaveItem(r.Context(), item); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// GetItem handles GET /api/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := ledger.ItemID(chi.URLParam(r, "id"))
	item, err := h.Items.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// ListItems handles GET /api/locations/{id}/items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	activeOnly := r.URL.Query().Get("active") != "false"

	items, err := h.Items.ListItems(r.Context(), loc, activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]ItemDTO, 0, len(items))
	for _, i := range items {
		out = append(out, toItemDTO(i))
	}
	writeJSON(w, http.StatusOK, out)
}

// AddPrice handles POST /api/items/{id}/prices.
func (h *Handler) AddPrice(w http.ResponseWriter, r *http.Request) {
	id := ledger.ItemID(chi.URLParam(r, "id"))

	var req AddPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	from, err := time.Parse(time.RFC3339, req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid effective_from", err)
		return
	}
	p := ledger.PriceRecord{
		ItemID:        id,
		UnitCost:      req.UnitCost,
		Currency:      req.Currency,
		EffectiveFrom: from,
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if req.EffectiveTo != "" {
		to, err := time.Parse(time.RFC3339, req.EffectiveTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid effective_to", err)
			return
		}
		p.EffectiveTo = &to
	}

	if err := h.Items.AddPrice(r.Context(), p); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// OnHandReport handles GET /api/locations/{id}/on-hand.
// Query params: as_of (RFC3339, defaults to now).
func (h *Handler) OnHandReport(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of", err)
			return
		}
		asOf = ts
	}

	items, err := h.Items.ListItems(r.Context(), loc, true)
	if err != nil {
		h.respondError(w, err)
		return
	}

	report := OnHandReportDTO{
		LocationID: string(loc),
		AsOf:       asOf.Format(time.RFC3339Nano),
		Items:      make([]OnHandItemDTO, 0, len(items)),
		TotalValue: decimal.Zero,
	}
	for _, item := range items {
		onHand, err := h.Ledger.OnHand(r.Context(), item.ID, asOf)
		if err != nil {
			h.respondError(w, err)
			return
		}
		row := OnHandItemDTO{
			ItemID:   string(item.ID),
			ItemName: item.Name,
			OnHand:   onHand,
			UOM:      string(item.BaseUOM),
		}
		price, ok, err := h.Items.PriceAt(r.Context(), item.ID, asOf)
		if err != nil {
			h.respondError(w, err)
			return
		}
		if ok {
			value := onHand.Mul(price.UnitCost)
			row.UnitCost = &price.UnitCost
			row.TotalValue = &value
			report.TotalValue = report.TotalValue.Add(value)
		}
		report.Items = append(report.Items, row)
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// OpenSession handles POST /api/sessions.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.LocationID == "" {
		writeError(w, http.StatusBadRequest, "location_id is required", nil)
		return
	}

	sess, err := h.Sessions.Open(r.Context(), ledger.LocationID(req.LocationID),
		session.Type(req.SessionType), req.CreatedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

// GetSession handles GET /api/sessions/{id}. The response embeds the
// session's lines.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := ledger.SessionID(chi.URLParam(r, "id"))

	sess, err := h.SessionStore.GetSession(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	lines, err := h.SessionStore.Lines(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	lineDTOs := make([]LineDTO, 0, len(lines))
	for _, l := range lines {
		lineDTOs = append(lineDTOs, toLineDTO(l))
	}
	writeJSON(w, http.StatusOK, struct {
		SessionDTO
		Lines []LineDTO `json:"lines"`
	}{toSessionDTO(sess), lineDTOs})
}

// OpenSessionFor handles GET /api/locations/{id}/sessions/open.
func (h *Handler) OpenSessionFor(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))

	sess, ok, err := h.SessionStore.OpenSessionFor(r.Context(), loc)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no open session", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// AddSessionLine handles POST /api/sessions/{id}/lines.
func (h *Handler) AddSessionLine(w http.ResponseWriter, r *http.Request) {
	id := ledger.SessionID(chi.URLParam(r, "id"))

	var req AddLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	line, err := h.Sessions.AddLine(r.Context(), id, session.Line{
		ItemID:           ledger.ItemID(req.ItemID),
		CountUnits:       req.CountUnits,
		DerivedVolume:    req.DerivedVolume,
		GrossWeightGrams: req.GrossWeightGrams,
		SubAreaID:        req.SubAreaID,
		Notes:            req.Notes,
		RecordedBy:       req.RecordedBy,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineDTO(line))
}

// PreviewClose handles GET /api/sessions/{id}/preview.
func (h *Handler) PreviewClose(w http.ResponseWriter, r *http.Request) {
	id := ledger.SessionID(chi.URLParam(r, "id"))

	preview, err := h.Sessions.PreviewClose(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		SessionID: preview.SessionID,
		Items:     toItemVarianceDTOs(preview.Items),
	})
}

// CloseSession handles POST /api/sessions/{id}/close.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := ledger.SessionID(chi.URLParam(r, "id"))

	var req CloseSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reasons := make(map[ledger.ItemID]ledger.VarianceReason, len(req.Reasons))
	for itemID, reason := range req.Reasons {
		reasons[ledger.ItemID(itemID)] = ledger.VarianceReason(reason)
	}

	result, err := h.Sessions.Close(r.Context(), id, reasons, req.ClosedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseResultDTO(result))
}

// =============================================================================
// DEPLETION HANDLERS
// =============================================================================

// IngestSalesLines handles POST /api/sales-lines.
func (h *Handler) IngestSalesLines(w http.ResponseWriter, r *http.Request) {
	var req IngestSalesLinesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	saved := 0
	for i, j := range req.Lines {
		line, err := salesLineFromJSON(j)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("line %d invalid", i), err)
			return
		}
		if err := h.Sales.SaveSalesLine(r.Context(), line); err != nil {
			h.respondError(w, err)
			return
		}
		saved++
	}
	writeJSON(w, http.StatusCreated, map[string]int{"saved": saved})
}

// SaveMapping handles POST /api/mappings. The body is mapping JSON as
// produced by the factory package.
func (h *Handler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	var j factory.MappingJSON
	if err := decodeJSON(r, &j); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	m, err := h.Mapper.FromJSON(j)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mapping", err)
		return
	}
	if err := h.Mappings.SaveMapping(r.Context(), m); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// RunDepletion handles POST /api/locations/{id}/depletion/run.
func (h *Handler) RunDepletion(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))

	var req RunDepletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from", err)
		return
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to", err)
		return
	}

	stats, err := h.Depletion.Run(r.Context(), loc, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// VARIANCE HANDLERS
// =============================================================================

// VarianceReport handles GET /api/locations/{id}/variance.
// Query params: from, to (RFC3339; default last 7 days).
func (h *Handler) VarianceReport(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	from, to, err := rangeFromQuery(r, 7*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time window", err)
		return
	}

	report, err := h.Variance.Report(r.Context(), loc, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// VariancePatterns handles GET /api/locations/{id}/variance/patterns.
// Query params: sessions (count of recent sessions to analyze).
func (h *Handler) VariancePatterns(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	count := intQuery(r, "sessions", 10)

	patterns, err := h.Analytics.AnalyzePatterns(r.Context(), loc, count)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

// VarianceHeatmap handles GET /api/locations/{id}/variance/heatmap.
func (h *Handler) VarianceHeatmap(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	from, to, err := rangeFromQuery(r, 30*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time window", err)
		return
	}

	cells, err := h.Analytics.AdjustmentHeatmap(r.Context(), loc, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cells)
}

// VarianceReasons handles GET /api/locations/{id}/variance/reasons.
func (h *Handler) VarianceReasons(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	from, to, err := rangeFromQuery(r, 30*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time window", err)
		return
	}

	buckets, err := h.Analytics.ReasonDistribution(r.Context(), loc, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// StaffAccuracy handles GET /api/locations/{id}/variance/staff.
func (h *Handler) StaffAccuracy(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	count := intQuery(r, "sessions", 10)

	scores, err := h.Analytics.StaffAccuracyScores(r.Context(), loc, count)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// =============================================================================
// FORECAST HANDLERS
// =============================================================================

// LocationForecast handles GET /api/locations/{id}/forecast.
func (h *Handler) LocationForecast(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))

	forecasts, err := h.Forecast.Forecast(r.Context(), loc)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecasts)
}

// ItemForecastDetail handles GET /api/items/{id}/forecast.
func (h *Handler) ItemForecastDetail(w http.ResponseWriter, r *http.Request) {
	id := ledger.ItemID(chi.URLParam(r, "id"))

	detail, err := h.Forecast.ItemDetail(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ReorderSuggestions handles GET /api/locations/{id}/reorder-suggestions.
func (h *Handler) ReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))

	suggestions, err := h.Forecast.ReorderSuggestions(r.Context(), loc)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// =============================================================================
// PAR LEVEL HANDLERS
// =============================================================================

// SaveParLevel handles POST /api/par-levels.
func (h *Handler) SaveParLevel(w http.ResponseWriter, r *http.Request) {
	var req SaveParLevelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ItemID == "" || req.LocationID == "" {
		writeError(w, http.StatusBadRequest, "inventory_item_id and location_id are required", nil)
		return
	}

	p := forecast.ParLevel{
		ID:              req.ID,
		ItemID:          ledger.ItemID(req.ItemID),
		VendorID:        ledger.VendorID(req.VendorID),
		LocationID:      ledger.LocationID(req.LocationID),
		ParLevel:        req.ParLevel,
		MinLevel:        req.MinLevel,
		ReorderQty:      req.ReorderQty,
		ParUOM:          forecast.ParUOM(req.ParUOM),
		LeadTimeDays:    req.LeadTimeDays,
		SafetyStockDays: req.SafetyStockDays,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ParUOM == "" {
		p.ParUOM = forecast.ParNative
	}

	if err := h.Pars.SaveParLevel(r.Context(), p); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParLevelDTO(p))
}

// ListParLevels handles GET /api/locations/{id}/par-levels.
func (h *Handler) ListParLevels(w http.ResponseWriter, r *http.Request) {
	loc := ledger.LocationID(chi.URLParam(r, "id"))
	activeOnly := r.URL.Query().Get("active") != "false"

	pars, err := h.Pars.ListParLevels(r.Context(), loc, activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]ParLevelDTO, 0, len(pars))
	for _, p := range pars {
		out = append(out, toParLevelDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeactivateParLevel handles DELETE /api/par-levels/{id}.
func (h *Handler) DeactivateParLevel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Pars.DeactivateParLevel(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func salesLineFromJSON(j SalesLineJSON) (depletion.SalesLine, error) {
	businessDate, err := time.Parse("2006-01-02", j.BusinessDate)
	if err != nil {
		return depletion.SalesLine{}, fmt.Errorf("business_date: %w", err)
	}
	soldAt, err := time.Parse(time.RFC3339, j.SoldAt)
	if err != nil {
		return depletion.SalesLine{}, fmt.Errorf("sold_at: %w", err)
	}
	if j.LocationID == "" || j.SourceSystem == "" || j.POSItemID == "" {
		return depletion.SalesLine{}, errors.New("location_id, source_system, and pos_item_id are required")
	}
	line := depletion.SalesLine{
		ID:               j.ID,
		SourceSystem:     ledger.SourceSystem(j.SourceSystem),
		SourceLocationID: j.SourceLocationID,
		LocationID:       ledger.LocationID(j.LocationID),
		BusinessDate:     businessDate,
		SoldAt:           soldAt,
		ReceiptID:        j.ReceiptID,
		LineID:           j.LineID,
		POSItemID:        j.POSItemID,
		POSItemName:      j.POSItemName,
		Quantity:         j.Quantity,
		IsVoided:         j.IsVoided,
		IsRefunded:       j.IsRefunded,
		SizeModifierID:   j.SizeModifierID,
		SizeModifierName: j.SizeModifierName,
	}
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	return line, nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// windowFromQuery reads optional from/to query params into a ledger
// window. Missing params leave the window open on that side.
func windowFromQuery(r *http.Request) (ledger.Window, error) {
	var w ledger.Window
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.Window{}, fmt.Errorf("from: %w", err)
		}
		w.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.Window{}, fmt.Errorf("to: %w", err)
		}
		w.To = &to
	}
	return w, nil
}

// rangeFromQuery reads from/to query params, defaulting to the trailing
// span ending now.
func rangeFromQuery(r *http.Request, span time.Duration) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.Add(-span)
	if raw := r.URL.Query().Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
		}
		to = ts
		from = to.Add(-span)
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
		}
		from = ts
	}
	return from, to, nil
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// respondError maps domain errors to HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var incomplete *ledger.ReconciliationIncompleteError
	if errors.As(err, &incomplete) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "reconciliation incomplete",
			Details: incomplete.Error(),
			ItemIDs: incomplete.ItemIDs,
		})
		return
	}

	var validation *ledger.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, ledger.ErrSessionClosed),
		errors.Is(err, ledger.ErrEventAlreadyReversed),
		errors.Is(err, ledger.ErrDuplicateSalesLine):
		writeError(w, http.StatusConflict, "conflict", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent, nothing else to do
		return
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

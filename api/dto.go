/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

  Quantities travel as decimal strings so nothing rounds through float64
  on the way in or out. Timestamps are RFC3339.

TYPES:
  Events:
    EventDTO, AppendEventRequest, CorrectEventRequest, CorrectionDTO

  Catalog:
    ItemDTO, SaveItemRequest, AddPriceRequest
    OnHandItemDTO, OnHandReportDTO

  Sessions:
    SessionDTO, OpenSessionRequest
    LineDTO, AddLineRequest
    ItemVarianceDTO, PreviewDTO, CloseSessionRequest, CloseResultDTO

  Depletion:
    SalesLineJSON, IngestSalesLinesRequest, RunDepletionRequest

  Pars:
    ParLevelDTO, SaveParLevelRequest

SEE ALSO:
  - handlers.go: Produces and consumes these types
  - ledger/types.go, session/types.go, forecast/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/forecast"
	"github.com/LesCam/barstock/ledger"
	"github.com/LesCam/barstock/session"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// ItemIDs lists the items still needing variance reasons when a
	// session close is blocked.
	ItemIDs []ledger.ItemID `json:"item_ids,omitempty"`
}

// =============================================================================
// EVENTS
// =============================================================================

// AppendEventRequest records one ledger event.
type AppendEventRequest struct {
	LocationID   string          `json:"location_id"`
	ItemID       string          `json:"inventory_item_id"`
	EventType    string          `json:"event_type"`
	SourceSystem string          `json:"source_system,omitempty"`
	EventTs      string          `json:"event_ts,omitempty"` // RFC3339, defaults to now
	Delta        decimal.Decimal `json:"quantity_delta"`
	UOM          string          `json:"uom"`
	Confidence   string          `json:"confidence,omitempty"`
	Reason       string          `json:"variance_reason,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	RecordedBy   string          `json:"recorded_by,omitempty"`
}

// EventDTO is one ledger event on the wire.
type EventDTO struct {
	ID           ledger.EventID  `json:"id"`
	LocationID   string          `json:"location_id"`
	ItemID       string          `json:"inventory_item_id"`
	EventType    string          `json:"event_type"`
	SourceSystem string          `json:"source_system,omitempty"`
	EventTs      string          `json:"event_ts"`
	Delta        decimal.Decimal `json:"quantity_delta"`
	UOM          string          `json:"uom"`
	Confidence   string          `json:"confidence"`
	Reason       string          `json:"variance_reason,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	SalesLineID  string          `json:"sales_line_id,omitempty"`
	ReversalOf   ledger.EventID  `json:"reversal_of,omitempty"`
	RecordedBy   string          `json:"recorded_by,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

func toEventDTO(e ledger.ConsumptionEvent) EventDTO {
	return EventDTO{
		ID:           e.ID,
		LocationID:   string(e.LocationID),
		ItemID:       string(e.ItemID),
		EventType:    string(e.Type),
		SourceSystem: string(e.SourceSystem),
		EventTs:      e.EventTs.UTC().Format(time.RFC3339Nano),
		Delta:        e.Delta.Value,
		UOM:          string(e.Delta.UOM),
		Confidence:   string(e.Confidence),
		Reason:       string(e.VarianceReason),
		Notes:        e.Notes,
		SalesLineID:  e.SalesLineID,
		ReversalOf:   e.ReversalOf,
		RecordedBy:   e.RecordedBy,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// CorrectEventRequest reverses an event and records a replacement.
type CorrectEventRequest struct {
	NewDelta decimal.Decimal `json:"new_quantity_delta"`
	UOM      string          `json:"uom"`
	Reason   string          `json:"reason"`
}

// CorrectionDTO reports the reversal/replacement pair.
type CorrectionDTO struct {
	ReversalID    ledger.EventID `json:"reversal_event_id"`
	ReplacementID ledger.EventID `json:"replacement_event_id"`
}

// =============================================================================
// CATALOG
// =============================================================================

// SaveItemRequest creates or updates a catalog item.
type SaveItemRequest struct {
	ID         string           `json:"id"`
	LocationID string           `json:"location_id"`
	ItemType   string           `json:"item_type"`
	Name       string           `json:"name"`
	Barcode    string           `json:"barcode,omitempty"`
	VendorSKU  string           `json:"vendor_sku,omitempty"`
	BaseUOM    string           `json:"base_uom"`
	PackSize   *decimal.Decimal `json:"pack_size,omitempty"`
	PackUOM    string           `json:"pack_uom,omitempty"`
	Active     *bool            `json:"active,omitempty"` // default true
}

// ItemDTO is one catalog item on the wire.
type ItemDTO struct {
	ID         string          `json:"id"`
	LocationID string          `json:"location_id"`
	ItemType   string          `json:"item_type"`
	Name       string          `json:"name"`
	Barcode    string          `json:"barcode,omitempty"`
	VendorSKU  string          `json:"vendor_sku,omitempty"`
	BaseUOM    string          `json:"base_uom"`
	PackSize   decimal.Decimal `json:"pack_size"`
	PackUOM    string          `json:"pack_uom,omitempty"`
	Active     bool            `json:"active"`
}

func toItemDTO(i ledger.InventoryItem) ItemDTO {
	return ItemDTO{
		ID:         string(i.ID),
		LocationID: string(i.LocationID),
		ItemType:   string(i.Type),
		Name:       i.Name,
		Barcode:    i.Barcode,
		VendorSKU:  i.VendorSKU,
		BaseUOM:    string(i.BaseUOM),
		PackSize:   i.PackSize,
		PackUOM:    string(i.PackUOM),
		Active:     i.Active,
	}
}

// AddPriceRequest records an effective-dated unit cost.
type AddPriceRequest struct {
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Currency      string          `json:"currency,omitempty"` // default USD
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   string          `json:"effective_to,omitempty"`
}

// OnHandItemDTO is one row of the location on-hand report.
type OnHandItemDTO struct {
	ItemID     string           `json:"inventory_item_id"`
	ItemName   string           `json:"item_name"`
	OnHand     decimal.Decimal  `json:"on_hand"`
	UOM        string           `json:"uom"`
	UnitCost   *decimal.Decimal `json:"unit_cost,omitempty"`
	TotalValue *decimal.Decimal `json:"total_value,omitempty"`
}

// OnHandReportDTO is the location on-hand view with total value.
type OnHandReportDTO struct {
	LocationID string          `json:"location_id"`
	AsOf       string          `json:"as_of"`
	Items      []OnHandItemDTO `json:"items"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// =============================================================================
// SESSIONS
// =============================================================================

// OpenSessionRequest starts a count session.
type OpenSessionRequest struct {
	LocationID  string `json:"location_id"`
	SessionType string `json:"session_type,omitempty"` // default shift
	CreatedBy   string `json:"created_by,omitempty"`
}

// SessionDTO is one session on the wire.
type SessionDTO struct {
	ID          ledger.SessionID `json:"id"`
	LocationID  string           `json:"location_id"`
	SessionType string           `json:"session_type"`
	StartedTs   string           `json:"started_ts"`
	EndedTs     *string          `json:"ended_ts"`
	CreatedBy   string           `json:"created_by,omitempty"`
	ClosedBy    string           `json:"closed_by,omitempty"`
}

func toSessionDTO(s session.Session) SessionDTO {
	dto := SessionDTO{
		ID:          s.ID,
		LocationID:  string(s.LocationID),
		SessionType: string(s.Type),
		StartedTs:   s.StartedTs.UTC().Format(time.RFC3339Nano),
		CreatedBy:   s.CreatedBy,
		ClosedBy:    s.ClosedBy,
	}
	if s.EndedTs != nil {
		ended := s.EndedTs.UTC().Format(time.RFC3339Nano)
		dto.EndedTs = &ended
	}
	return dto
}

// AddLineRequest records one counted value. Exactly one of the three
// value fields must be set.
type AddLineRequest struct {
	ItemID           string           `json:"inventory_item_id"`
	CountUnits       *decimal.Decimal `json:"count_units,omitempty"`
	DerivedVolume    *decimal.Decimal `json:"derived_volume,omitempty"`
	GrossWeightGrams *decimal.Decimal `json:"gross_weight_grams,omitempty"`
	SubAreaID        string           `json:"sub_area_id,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	RecordedBy       string           `json:"recorded_by,omitempty"`
}

// LineDTO is one session line on the wire.
type LineDTO struct {
	ID               string           `json:"id"`
	SessionID        ledger.SessionID `json:"session_id"`
	ItemID           string           `json:"inventory_item_id"`
	CountUnits       *decimal.Decimal `json:"count_units,omitempty"`
	DerivedVolume    *decimal.Decimal `json:"derived_volume,omitempty"`
	GrossWeightGrams *decimal.Decimal `json:"gross_weight_grams,omitempty"`
	SubAreaID        string           `json:"sub_area_id,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	RecordedBy       string           `json:"recorded_by,omitempty"`
}

func toLineDTO(l session.Line) LineDTO {
	return LineDTO{
		ID:               l.ID,
		SessionID:        l.SessionID,
		ItemID:           string(l.ItemID),
		CountUnits:       l.CountUnits,
		DerivedVolume:    l.DerivedVolume,
		GrossWeightGrams: l.GrossWeightGrams,
		SubAreaID:        l.SubAreaID,
		Notes:            l.Notes,
		RecordedBy:       l.RecordedBy,
	}
}

// CloseSessionRequest commits a reconciliation. Reasons maps item IDs to
// variance reason codes for items over the threshold.
type CloseSessionRequest struct {
	Reasons  map[string]string `json:"reasons,omitempty"`
	ClosedBy string            `json:"closed_by,omitempty"`
}

// ItemVarianceDTO is one item's reconciliation outcome.
type ItemVarianceDTO struct {
	ItemID          string          `json:"inventory_item_id"`
	ItemName        string          `json:"item_name"`
	Theoretical     decimal.Decimal `json:"theoretical"`
	Actual          decimal.Decimal `json:"actual"`
	Variance        decimal.Decimal `json:"variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
	UOM             string          `json:"uom"`
	Reason          string          `json:"reason,omitempty"`
}

func toItemVarianceDTO(v session.ItemVariance) ItemVarianceDTO {
	return ItemVarianceDTO{
		ItemID:          string(v.ItemID),
		ItemName:        v.ItemName,
		Theoretical:     v.Theoretical,
		Actual:          v.Actual,
		Variance:        v.Variance,
		VariancePercent: v.VariancePercent,
		UOM:             string(v.UOM),
		Reason:          string(v.Reason),
	}
}

func toItemVarianceDTOs(vs []session.ItemVariance) []ItemVarianceDTO {
	out := make([]ItemVarianceDTO, 0, len(vs))
	for _, v := range vs {
		out = append(out, toItemVarianceDTO(v))
	}
	return out
}

// PreviewDTO is the dry-run close view.
type PreviewDTO struct {
	SessionID ledger.SessionID  `json:"session_id"`
	Items     []ItemVarianceDTO `json:"items"`
}

// CloseResultDTO summarizes a committed close.
type CloseResultDTO struct {
	SessionID          ledger.SessionID  `json:"session_id"`
	AdjustmentsCreated int               `json:"adjustments_created"`
	TotalVariance      decimal.Decimal   `json:"total_variance"`
	Adjustments        []ItemVarianceDTO `json:"adjustments"`
}

func toCloseResultDTO(r session.CloseResult) CloseResultDTO {
	return CloseResultDTO{
		SessionID:          r.SessionID,
		AdjustmentsCreated: r.AdjustmentsCreated,
		TotalVariance:      r.TotalVariance,
		Adjustments:        toItemVarianceDTOs(r.Adjustments),
	}
}

// =============================================================================
// DEPLETION
// =============================================================================

// RunDepletionRequest processes a window of sales lines.
type RunDepletionRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// IngestSalesLinesRequest persists a batch of canonical POS lines.
type IngestSalesLinesRequest struct {
	Lines []SalesLineJSON `json:"lines"`
}

// SalesLineJSON is one canonical POS line on the wire.
type SalesLineJSON struct {
	ID               string          `json:"id,omitempty"`
	SourceSystem     string          `json:"source_system"`
	SourceLocationID string          `json:"source_location_id,omitempty"`
	LocationID       string          `json:"location_id"`
	BusinessDate     string          `json:"business_date"` // YYYY-MM-DD
	SoldAt           string          `json:"sold_at"`       // RFC3339
	ReceiptID        string          `json:"receipt_id,omitempty"`
	LineID           string          `json:"line_id,omitempty"`
	POSItemID        string          `json:"pos_item_id"`
	POSItemName      string          `json:"pos_item_name,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	IsVoided         bool            `json:"is_voided,omitempty"`
	IsRefunded       bool            `json:"is_refunded,omitempty"`
	SizeModifierID   string          `json:"size_modifier_id,omitempty"`
	SizeModifierName string          `json:"size_modifier_name,omitempty"`
}

// =============================================================================
// PAR LEVELS
// =============================================================================

// SaveParLevelRequest creates or updates a par configuration.
type SaveParLevelRequest struct {
	ID              string           `json:"id,omitempty"`
	ItemID          string           `json:"inventory_item_id"`
	VendorID        string           `json:"vendor_id,omitempty"`
	LocationID      string           `json:"location_id"`
	ParLevel        decimal.Decimal  `json:"par_level"`
	MinLevel        decimal.Decimal  `json:"min_level"`
	ReorderQty      *decimal.Decimal `json:"reorder_qty,omitempty"`
	ParUOM          string           `json:"par_uom,omitempty"` // native | package
	LeadTimeDays    int              `json:"lead_time_days,omitempty"`
	SafetyStockDays int              `json:"safety_stock_days,omitempty"`
}

// ParLevelDTO is one par configuration on the wire.
type ParLevelDTO struct {
	ID              string           `json:"id"`
	ItemID          string           `json:"inventory_item_id"`
	VendorID        string           `json:"vendor_id,omitempty"`
	LocationID      string           `json:"location_id"`
	ParLevel        decimal.Decimal  `json:"par_level"`
	MinLevel        decimal.Decimal  `json:"min_level"`
	ReorderQty      *decimal.Decimal `json:"reorder_qty,omitempty"`
	ParUOM          string           `json:"par_uom"`
	LeadTimeDays    int              `json:"lead_time_days"`
	SafetyStockDays int              `json:"safety_stock_days"`
	Active          bool             `json:"active"`
}

func toParLevelDTO(p forecast.ParLevel) ParLevelDTO {
	return ParLevelDTO{
		ID:              p.ID,
		ItemID:          string(p.ItemID),
		VendorID:        string(p.VendorID),
		LocationID:      string(p.LocationID),
		ParLevel:        p.ParLevel,
		MinLevel:        p.MinLevel,
		ReorderQty:      p.ReorderQty,
		ParUOM:          string(p.ParUOM),
		LeadTimeDays:    p.LeadTimeDays,
		SafetyStockDays: p.SafetyStockDays,
		Active:          p.Active,
	}
}

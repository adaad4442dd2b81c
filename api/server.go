/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/events/*         Consumption ledger
  /api/items/*          Inventory catalog and prices
  /api/locations/*      Per-location views (on-hand, variance, forecast)
  /api/sessions/*       Count sessions and reconciliation
  /api/sales-lines      POS line ingest
  /api/mappings         POS item mappings
  /api/par-levels/*     Stocking configuration
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. origins is
// the CORS allow-list; empty means same-origin only.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Ledger routes
		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.AppendEvent)
			r.Get("/{id}", h.GetEvent)
			r.Post("/{id}/correct", h.CorrectEvent)
		})

		// Catalog routes
		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.SaveItem)
			r.Get("/{id}", h.GetItem)
			r.Post("/{id}/prices", h.AddPrice)
			r.Get("/{id}/forecast", h.ItemForecastDetail)
		})

		// Per-location views
		r.Route("/locations/{id}", func(r chi.Router) {
			r.Get("/items", h.ListItems)
			r.Get("/on-hand", h.OnHandReport)
			r.Get("/events", h.ListEvents)
			r.Get("/sessions/open", h.OpenSessionFor)
			r.Get("/par-levels", h.ListParLevels)
			r.Post("/depletion/run", h.RunDepletion)

			r.Route("/variance", func(r chi.Router) {
				r.Get("/", h.VarianceReport)
				r.Get("/patterns", h.VariancePatterns)
				r.Get("/heatmap", h.VarianceHeatmap)
				r.Get("/reasons", h.VarianceReasons)
				r.Get("/staff", h.StaffAccuracy)
			})

			r.Get("/forecast", h.LocationForecast)
			r.Get("/reorder-suggestions", h.ReorderSuggestions)
		})

		// Count session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.OpenSession)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/lines", h.AddSessionLine)
			r.Get("/{id}/preview", h.PreviewClose)
			r.Post("/{id}/close", h.CloseSession)
		})

		// Ingest routes
		r.Post("/sales-lines", h.IngestSalesLines)
		r.Post("/mappings", h.SaveMapping)

		// Par level routes
		r.Route("/par-levels", func(r chi.Router) {
			r.Post("/", h.SaveParLevel)
			r.Delete("/{id}", h.DeactivateParLevel)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

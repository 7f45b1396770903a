/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request, logged with every line
  2. RequestLogger: Access log through logrus
  3. Recoverer:    Panic recovery (500 instead of crash)
  4. CORS:         Cross-origin requests for the sales frontend
  5. RequireActor: X-Actor-ID on mutating routes

ROUTE GROUPS:
  /healthz              Liveness + store ping
  /api/units/*          Unit and plan template management
  /api/reservations/*   Reservation lifecycle
  /api/payments/*       Payment recording
  /api/admin/*          Manual sweeps

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.Log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		// Unit routes
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Get("/{id}", h.GetUnit)
			r.Get("/{id}/plans", h.ListPlanTemplates)
			r.Post("/{id}/plans/quote", h.QuotePlan)

			r.With(RequireActor).Post("/", h.CreateUnit)
			r.With(RequireActor).Put("/{id}/status", h.SetUnitStatus)
			r.With(RequireActor).Post("/{id}/plans", h.CreatePlanTemplate)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/{id}", h.GetReservation)
			r.Get("/{id}/payments", h.ListPayments)

			r.Group(func(r chi.Router) {
				r.Use(RequireActor)
				r.Post("/", h.CreateReservation)
				r.Post("/{id}/convert", h.ConvertReservation)
				r.Post("/{id}/cancel", h.CancelReservation)
			})
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Use(RequireActor)
			r.Post("/{id}/pay", h.MarkPaymentPaid)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireActor)
			r.Post("/sweeps/overdue", h.SweepOverdue)
			r.Post("/sweeps/expiry", h.SweepExpiry)
		})
	})

	return r
}

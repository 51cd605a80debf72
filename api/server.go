/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, picked up by handler logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the society portal

ROUTE GROUPS:
  /api/members/*        Member management and coverage
  /api/categories/*     Payment categories
  /api/payments/*       Payment ledger
  /api/dashboard/*      Dues headline
  /api/dues/*           Full dues output and CSV export
  /api/admin/*          Scan history and manual scans (rate limited)
  /api/scenarios/*      Demo scenarios (dev only)
  /metrics              Prometheus scrape endpoint
  /                     Plain index of the API

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
	"golang.org/x/time/rate"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// ScanLimiter throttles manual scans. Defaults to 1/s, burst 3.
	ScanLimiter *rate.Limiter
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	scanLimiter := opts.ScanLimiter
	if scanLimiter == nil {
		scanLimiter = rate.NewLimiter(1, 3)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Post("/{id}/ban", h.BanMember)
			r.Post("/{id}/unban", h.UnbanMember)
			r.Get("/{id}/payments", h.GetMemberPayments)
			r.Get("/{id}/coverage", h.GetMemberCoverage)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.CreatePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Get("/dashboard/dues", h.GetDashboardDues)

		r.Route("/dues", func(r chi.Router) {
			r.Get("/", h.GetDues)
			r.Get("/export.csv", h.ExportDuesCSV)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/scans", h.ListScans)
			r.With(RateLimit(scanLimiter, h.logger())).Post("/scans", h.TriggerScan)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexPage))
	})

	return r
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Society Dues Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Society Dues Engine API</h1>
<ul>
<li><a href="/api/dashboard/dues">/api/dashboard/dues</a> - Paid vs overdue</li>
<li><a href="/api/dues">/api/dues</a> - Full dues output</li>
<li><a href="/api/dues/export.csv">/api/dues/export.csv</a> - Members with dues (CSV)</li>
<li><a href="/api/members">/api/members</a> - Members</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the desk frontend
  5. otelhttp:   Server spans (when tracing is enabled)
  6. Identity:   X-Staff-ID / X-Staff-Role from the auth gateway (/api only)

ROUTE GROUPS:
  /health               Liveness check
  /metrics              Prometheus scrape endpoint
  /api/checkins         Door decisions
  /api/payments         Payments
  /api/members/*        Member management and status
  /api/plans/*          Plan catalog
  /api/products/*       Counter products and stock
  /api/shifts/*         Cash drawer shifts
  /api/attendance/*     Attendance feed
  /api/subscriptions/*  Expiring memberships
  /api/reports/*        Dashboard and exports
  /api/scenarios/*      Demo scenarios
  /api/admin/*          Admin operations
  /*                    Static files (frontend)

SECURITY NOTE:
  Authentication happens in the gateway in front of this server. Every
  /api route requires X-Staff-ID; catalog changes, exports, scenarios and
  admin operations also require X-Staff-Role: admin.

SEE ALSO:
  - handlers.go: Handler implementations
  - identity.go: Staff identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterOptions toggles the optional parts of the router.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        bool
	Tracing        bool
	// StaticDir holds a built frontend. Empty or missing serves a landing page.
	StaticDir string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderStaffID, HeaderStaffRole},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	if opts.Tracing {
		r.Use(otelhttp.NewMiddleware("frontdesk"))
	}

	r.Get("/health", h.Health)
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireStaff)

		r.Post("/checkins", h.CheckIn)
		r.Post("/payments", h.RecordPayment)

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Put("/{id}", h.UpdateMember)
			r.With(RequireAdmin).Delete("/{id}", h.DeleteMember)
			r.With(RequireAdmin).Put("/{id}/subscription/expiration", h.SetExpiration)
			r.Get("/{id}/status", h.GetMemberStatus)
			r.Get("/{id}/stats", h.GetMemberStats)
			r.Get("/{id}/subscriptions", h.GetMemberSubscriptions)
			r.Get("/{id}/payments", h.GetMemberPayments)
			r.With(RequireAdmin).Post("/{id}/visits", h.CreditVisits)
		})

		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.With(RequireAdmin).Post("/", h.CreatePlan)
			r.With(RequireAdmin).Put("/{id}/active", h.SetPlanActive)
		})

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.With(RequireAdmin).Post("/", h.CreateProduct)
			r.With(RequireAdmin).Put("/{id}", h.UpdateProduct)
			r.With(RequireAdmin).Delete("/{id}", h.DeactivateProduct)
			r.With(RequireAdmin).Post("/{id}/restock", h.RestockProduct)
		})

		// Shift routes
		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.ListShifts)
			r.Post("/", h.OpenShift)
			r.Get("/current", h.CurrentShift)
			r.Get("/{id}", h.GetShift)
			r.Post("/{id}/expenses", h.RegisterExpense)
			r.Post("/{id}/close", h.CloseShift)
		})

		r.Get("/attendance/today", h.TodayAttendance)
		r.Get("/subscriptions/expiring", h.ListExpiring)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/revenue", h.WeeklyRevenue)
			r.Get("/peak-hours", h.PeakHours)
			r.With(RequireAdmin).Get("/shifts.xlsx", h.ExportShifts)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(RequireAdmin).Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/status-sweep", h.StatusSweep)
		})
	})

	// Serve static files (desk frontend)
	staticDir := opts.StaticDir
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err != nil {
			staticDir = ""
		}
	}

	if staticDir != "" {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Front Desk</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Front Desk API</h1>
<p>No frontend is configured. Requests under /api need the X-Staff-ID header.</p>
<h2>API Endpoints</h2>
<ul>
<li>POST /api/checkins - Check a member in</li>
<li>POST /api/payments - Record a payment</li>
<li>GET /api/members/{id}/status - Membership status</li>
<li>POST /api/shifts - Open a shift</li>
<li>GET /api/reports/dashboard - Today's figures</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (slog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the browser UI

ROUTE GROUPS:
  /api/balance, /api/accrual/*   Balance and timer
  /api/catalog                   Coupon types
  /api/redemptions               Redeem, history, clear
  /api/events                    WebSocket stream
  /api/health                    Liveness
  /metrics                       Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - events.go: WebSocket stream
  - cmd/server/main.go: Server startup
*/
package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the router-level settings.
type RouterConfig struct {
	// AllowedOrigins for CORS, e.g. "http://localhost:*".
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(structuredLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if h.OriginPatterns == nil {
		h.OriginPatterns = originPatterns(cfg.AllowedOrigins)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/balance", h.GetBalance)
		r.Get("/health", h.HealthCheck)

		r.Route("/accrual", func(r chi.Router) {
			r.Post("/start", h.StartAccrual)
			r.Post("/stop", h.StopAccrual)
		})

		r.Get("/catalog", h.ListCatalog)

		r.Route("/redemptions", func(r chi.Router) {
			r.Get("/", h.ListRedemptions)
			r.Post("/", h.Redeem)
			r.Delete("/", h.ClearRedemptions)
		})

		r.Get("/events", h.StreamEvents)
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// originPatterns converts CORS origins ("http://localhost:*") into the host
// patterns nhooyr.io/websocket matches against ("localhost:*").
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "http://")
		o = strings.TrimPrefix(o, "https://")
		out = append(out, o)
	}
	return out
}

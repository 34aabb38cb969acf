package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/envelope-relay/internal/engine"
	ws "github.com/Priya8975/envelope-relay/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Deps are the collaborators the router wires into handlers. Optional
// fields may be nil.
type Deps struct {
	Projects  ProjectStore
	Users     UserStore
	Envelopes EnvelopeReader
	Stats     StatsStore

	Ingest    *engine.IngestService
	Scheduler *engine.Scheduler
	Limiter   RateLimiter
	Limits    IngestLimits

	Pipeline Pipeline
	Circuits CircuitReader
	Redis    PoolReporter
	Hub      *ws.Hub

	HealthChecks map[string]HealthCheck

	// DSNScheme and DSNHost build the DSNs shown for projects.
	DSNScheme string
	DSNHost   string

	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	envHandler := &EnvelopeHandler{
		projects:  d.Projects,
		users:     d.Users,
		envelopes: d.Envelopes,
		ingest:    d.Ingest,
		scheduler: d.Scheduler,
		limiter:   d.Limiter,
		limits:    d.Limits,
		logger:    d.Logger,
	}
	statsHandler := &StatsHandler{
		store:    d.Stats,
		pipeline: d.Pipeline,
		circuits: d.Circuits,
		redis:    d.Redis,
	}
	if d.Hub != nil {
		envHandler.feed = d.Hub
		statsHandler.clients = d.Hub
		r.Get("/ws", d.Hub.HandleWebSocket)
	}
	projectHandler := NewProjectHandler(d.Projects, d.DSNScheme, d.DSNHost)
	userHandler := NewUserHandler(d.Users)

	r.Handle("/metrics", promhttp.Handler())

	// SDK ingestion endpoint. SDKs post with and without the trailing slash.
	r.Post("/api/{project_id}/envelope/", envHandler.Ingest)
	r.Post("/api/{project_id}/envelope", envHandler.Ingest)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(Version, d.HealthChecks))
		r.Get("/stats", statsHandler.Stats)

		r.Route("/envelopes", func(r chi.Router) {
			r.Get("/", envHandler.List)
			r.Get("/{id}", envHandler.Get)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", projectHandler.Create)
			r.Get("/", projectHandler.List)
			r.Get("/{id}", projectHandler.Get)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.Create)
			r.Get("/", userHandler.List)
			r.Get("/{id}", userHandler.Get)
			r.Patch("/{id}", userHandler.Update)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for the dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, X-Sentry-Auth")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

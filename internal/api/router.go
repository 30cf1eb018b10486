package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olneyjr/flightdeck/internal/config"
	"github.com/olneyjr/flightdeck/internal/websocket"
	"github.com/olneyjr/flightdeck/pkg/logger"
)

// Router wires the API handlers, WebSocket endpoint and Prometheus
// exposition into one HTTP handler
type Router struct {
	handler     *Handler
	cfg         *config.Config
	wsServer    *websocket.Server
	promHandler http.Handler
	logger      *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	provider FlightDataProvider,
	history SummaryHistory,
	cfg *config.Config,
	wsServer *websocket.Server,
	promHandler http.Handler,
	log *logger.Logger,
) *Router {
	return &Router{
		handler:     NewHandler(provider, history, cfg.Pipeline.MajorAirports, log),
		cfg:         cfg,
		wsServer:    wsServer,
		promHandler: promHandler,
		logger:      log.Named("api-router"),
	}
}

// Routes builds the route tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	allowedOrigins := rt.cfg.Server.CORSAllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", rt.handler.Health)
	r.Get("/metrics", rt.promHandler.ServeHTTP)
	r.Get("/ws", rt.wsServer.HandleConnection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/regions", rt.handler.GetRegions)
		r.Get("/states", rt.handler.GetStates)
		r.Get("/metrics", rt.handler.GetMetrics)
		r.Get("/metrics/history", rt.handler.GetMetricsHistory)
		r.Get("/flights", rt.handler.GetFlights)
		r.Get("/airports", rt.handler.GetAirports)
		r.Route("/airports/{icao}", func(r chi.Router) {
			r.Get("/arrivals", rt.handler.GetAirportArrivals)
			r.Get("/departures", rt.handler.GetAirportDepartures)
		})
	})

	return r
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/internal/pipeline"
	"github.com/olneyjr/flightdeck/internal/storage/sqlite"
	"github.com/olneyjr/flightdeck/pkg/logger"
)

// FlightDataProvider exposes the pipeline's latest output and the lenient
// flight queries to the API layer
type FlightDataProvider interface {
	Regions() []string
	Latest(region string) (*pipeline.RegionSnapshot, bool)
	CollectAirportTraffic(ctx context.Context, airport string, begin, end int64) pipeline.AirportTraffic
	FlightsInInterval(ctx context.Context, begin, end int64) []opensky.Flight
}

// SummaryHistory reads persisted metrics summaries
type SummaryHistory interface {
	RecentSummaries(region string, limit int) ([]sqlite.StoredSummary, error)
}

// Handler contains the API handlers
type Handler struct {
	provider FlightDataProvider
	history  SummaryHistory
	airports []string
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(provider FlightDataProvider, history SummaryHistory, airports []string, log *logger.Logger) *Handler {
	return &Handler{
		provider: provider,
		history:  history,
		airports: airports,
		logger:   log.Named("api-handler"),
	}
}

// GetRegions returns the configured region names
func (h *Handler) GetRegions(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"regions": h.provider.Regions(),
	})
}

// GetStates returns the latest enriched records for a region. An empty
// record set is a valid "no data" response, not an error.
func (h *Handler) GetStates(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "" {
		h.respondError(w, http.StatusBadRequest, "region query parameter is required")
		return
	}

	snap, ok := h.provider.Latest(region)
	if !ok {
		if !h.knownRegion(region) {
			h.respondError(w, http.StatusNotFound, "unknown region: "+region)
			return
		}
		// Known region, no refresh cycle completed yet
		h.respondJSON(w, http.StatusOK, map[string]any{
			"region": region,
			"count":  0,
			"states": []pipeline.EnrichedRecord{},
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"region":     snap.Region,
		"fetched_at": snap.FetchedAt,
		"count":      len(snap.Records),
		"states":     snap.Records,
	})
}

// GetMetrics returns the latest metrics summary for a region
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "" {
		h.respondError(w, http.StatusBadRequest, "region query parameter is required")
		return
	}

	snap, ok := h.provider.Latest(region)
	if !ok {
		if !h.knownRegion(region) {
			h.respondError(w, http.StatusNotFound, "unknown region: "+region)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]any{
			"region":  region,
			"summary": pipeline.MetricsSummary{},
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"region":     snap.Region,
		"fetched_at": snap.FetchedAt,
		"summary":    snap.Summary,
	})
}

// GetMetricsHistory returns persisted summaries for a region, newest first
func (h *Handler) GetMetricsHistory(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "" {
		h.respondError(w, http.StatusBadRequest, "region query parameter is required")
		return
	}

	limit := 24
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	summaries, err := h.history.RecentSummaries(region, limit)
	if err != nil {
		h.logger.Error("Failed to read summary history",
			logger.String("region", region),
			logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to read summary history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"region":    region,
		"count":     len(summaries),
		"summaries": summaries,
	})
}

// GetAirports returns the configured major airport ICAO codes
func (h *Handler) GetAirports(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"airports": h.airports,
	})
}

// GetAirportArrivals returns arrivals for an airport over a time window
func (h *Handler) GetAirportArrivals(w http.ResponseWriter, r *http.Request) {
	airport := chi.URLParam(r, "icao")
	begin, end, err := parseTimeWindow(r, 24*time.Hour)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	traffic := h.provider.CollectAirportTraffic(r.Context(), airport, begin, end)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"airport":  airport,
		"begin":    begin,
		"end":      end,
		"count":    len(traffic.Arrivals),
		"arrivals": traffic.Arrivals,
	})
}

// GetAirportDepartures returns departures for an airport over a time window
func (h *Handler) GetAirportDepartures(w http.ResponseWriter, r *http.Request) {
	airport := chi.URLParam(r, "icao")
	begin, end, err := parseTimeWindow(r, 24*time.Hour)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	traffic := h.provider.CollectAirportTraffic(r.Context(), airport, begin, end)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"airport":    airport,
		"begin":      begin,
		"end":        end,
		"count":      len(traffic.Departures),
		"departures": traffic.Departures,
	})
}

// GetFlights returns all flights in a time window
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	begin, end, err := parseTimeWindow(r, time.Hour)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flights := h.provider.FlightsInInterval(r.Context(), begin, end)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"begin":   begin,
		"end":     end,
		"count":   len(flights),
		"flights": flights,
	})
}

// Health returns a liveness response
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (h *Handler) knownRegion(region string) bool {
	for _, name := range h.provider.Regions() {
		if name == region {
			return true
		}
	}
	return false
}

// parseTimeWindow reads optional begin/end query parameters (unix
// seconds), defaulting to the trailing window of the given length
func parseTimeWindow(r *http.Request, window time.Duration) (int64, int64, error) {
	now := time.Now().Unix()
	begin := now - int64(window.Seconds())
	end := now

	if v := r.URL.Query().Get("begin"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, errInvalidParam("begin")
		}
		begin = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, errInvalidParam("end")
		}
		end = parsed
	}
	if begin > end {
		return 0, 0, errInvalidParam("begin/end")
	}

	return begin, end, nil
}

type paramError string

func errInvalidParam(name string) paramError {
	return paramError("invalid " + name + " parameter")
}

func (e paramError) Error() string { return string(e) }

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]any{"error": message})
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/internal/pipeline"
	"github.com/olneyjr/flightdeck/internal/storage/sqlite"
	"github.com/olneyjr/flightdeck/pkg/logger"
)

type fakeProvider struct {
	snapshots map[string]*pipeline.RegionSnapshot
	flights   []opensky.Flight
	traffic   pipeline.AirportTraffic
}

func (f *fakeProvider) Regions() []string {
	names := make([]string, 0, len(f.snapshots))
	for name := range f.snapshots {
		names = append(names, name)
	}
	return names
}

func (f *fakeProvider) Latest(region string) (*pipeline.RegionSnapshot, bool) {
	snap, ok := f.snapshots[region]
	if snap == nil {
		return nil, false
	}
	return snap, ok
}

func (f *fakeProvider) CollectAirportTraffic(ctx context.Context, airport string, begin, end int64) pipeline.AirportTraffic {
	traffic := f.traffic
	traffic.Airport = airport
	return traffic
}

func (f *fakeProvider) FlightsInInterval(ctx context.Context, begin, end int64) []opensky.Flight {
	return f.flights
}

type fakeHistory struct {
	summaries []sqlite.StoredSummary
	gotLimit  int
}

func (f *fakeHistory) RecentSummaries(region string, limit int) ([]sqlite.StoredSummary, error) {
	f.gotLimit = limit
	return f.summaries, nil
}

func newTestHandler(t *testing.T, provider FlightDataProvider, history SummaryHistory) *Handler {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)
	return NewHandler(provider, history, []string{"KJFK", "EGLL"}, log)
}

func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/regions", h.GetRegions)
	r.Get("/api/v1/states", h.GetStates)
	r.Get("/api/v1/metrics", h.GetMetrics)
	r.Get("/api/v1/metrics/history", h.GetMetricsHistory)
	r.Get("/api/v1/flights", h.GetFlights)
	r.Get("/api/v1/airports", h.GetAirports)
	r.Get("/api/v1/airports/{icao}/arrivals", h.GetAirportArrivals)
	r.Get("/api/v1/airports/{icao}/departures", h.GetAirportDepartures)
	r.Get("/health", h.Health)
	return r
}

func doRequest(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGetRegions(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]*pipeline.RegionSnapshot{
		"europe": nil,
	}}
	router := testRouter(newTestHandler(t, provider, &fakeHistory{}))

	rec, body := doRequest(t, router, "/api/v1/regions")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"europe"}, body["regions"])
}

func TestGetStatesRequiresRegion(t *testing.T) {
	router := testRouter(newTestHandler(t, &fakeProvider{}, &fakeHistory{}))

	rec, body := doRequest(t, router, "/api/v1/states")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "region")
}

func TestGetStatesUnknownRegion(t *testing.T) {
	router := testRouter(testHandlerWithSnapshot(t, nil))

	rec, body := doRequest(t, router, "/api/v1/states?region=atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "atlantis")
}

func TestGetStatesKnownRegionNotRefreshed(t *testing.T) {
	router := testRouter(testHandlerWithSnapshot(t, nil))

	rec, body := doRequest(t, router, "/api/v1/states?region=europe")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, body["states"])
}

func TestGetStatesWithData(t *testing.T) {
	snap := &pipeline.RegionSnapshot{
		Region:    "europe",
		FetchedAt: time.Unix(1700000000, 0).UTC(),
		Records: []pipeline.EnrichedRecord{
			{ICAO24: "abc123", OriginCountry: "Germany", AltitudeFt: 32808.4},
		},
		Summary: pipeline.MetricsSummary{TotalFlights: 1},
	}
	router := testRouter(testHandlerWithSnapshot(t, snap))

	rec, body := doRequest(t, router, "/api/v1/states?region=europe")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "europe", body["region"])
	assert.Equal(t, float64(1), body["count"])

	states := body["states"].([]any)
	require.Len(t, states, 1)
	assert.Equal(t, "abc123", states[0].(map[string]any)["icao24"])
}

func TestGetMetrics(t *testing.T) {
	snap := &pipeline.RegionSnapshot{
		Region:    "europe",
		FetchedAt: time.Unix(1700000000, 0).UTC(),
		Summary: pipeline.MetricsSummary{
			TotalFlights: 42,
			Countries:    7,
		},
	}
	router := testRouter(testHandlerWithSnapshot(t, snap))

	rec, body := doRequest(t, router, "/api/v1/metrics?region=europe")
	assert.Equal(t, http.StatusOK, rec.Code)

	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(42), summary["total_flights"])
	assert.Equal(t, float64(7), summary["countries"])
}

func TestGetMetricsHistory(t *testing.T) {
	history := &fakeHistory{summaries: []sqlite.StoredSummary{
		{Region: "europe", Summary: pipeline.MetricsSummary{TotalFlights: 10}},
		{Region: "europe", Summary: pipeline.MetricsSummary{TotalFlights: 9}},
	}}
	provider := &fakeProvider{snapshots: map[string]*pipeline.RegionSnapshot{"europe": nil}}
	router := testRouter(newTestHandler(t, provider, history))

	rec, body := doRequest(t, router, "/api/v1/metrics/history?region=europe")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, 24, history.gotLimit, "limit defaults to 24")

	rec, _ = doRequest(t, router, "/api/v1/metrics/history?region=europe&limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.gotLimit)

	rec, _ = doRequest(t, router, "/api/v1/metrics/history?region=europe&limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAirports(t *testing.T) {
	router := testRouter(newTestHandler(t, &fakeProvider{}, &fakeHistory{}))

	rec, body := doRequest(t, router, "/api/v1/airports")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"KJFK", "EGLL"}, body["airports"])
}

func TestGetAirportArrivals(t *testing.T) {
	provider := &fakeProvider{traffic: pipeline.AirportTraffic{
		Arrivals: []opensky.Flight{{ICAO24: "abc123", EstArrivalAirport: "KJFK"}},
	}}
	router := testRouter(newTestHandler(t, provider, &fakeHistory{}))

	rec, body := doRequest(t, router, "/api/v1/airports/KJFK/arrivals")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KJFK", body["airport"])
	assert.Equal(t, float64(1), body["count"])
}

func TestGetAirportDeparturesInvalidWindow(t *testing.T) {
	router := testRouter(newTestHandler(t, &fakeProvider{}, &fakeHistory{}))

	rec, body := doRequest(t, router, "/api/v1/airports/KJFK/departures?begin=notanumber")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "begin")

	// begin after end
	rec, _ = doRequest(t, router, "/api/v1/airports/KJFK/departures?begin=2000&end=1000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFlights(t *testing.T) {
	provider := &fakeProvider{flights: []opensky.Flight{
		{ICAO24: "abc123"}, {ICAO24: "def456"},
	}}
	router := testRouter(newTestHandler(t, provider, &fakeHistory{}))

	rec, body := doRequest(t, router, "/api/v1/flights?begin=1000&end=2000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(1000), body["begin"])
	assert.Equal(t, float64(2000), body["end"])
}

func TestHealth(t *testing.T) {
	router := testRouter(newTestHandler(t, &fakeProvider{}, &fakeHistory{}))

	rec, body := doRequest(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

// testHandlerWithSnapshot builds a handler whose provider knows the europe
// region, optionally with a latest snapshot
func testHandlerWithSnapshot(t *testing.T, snap *pipeline.RegionSnapshot) *Handler {
	t.Helper()
	provider := &fakeProvider{snapshots: map[string]*pipeline.RegionSnapshot{
		"europe": snap,
	}}
	return newTestHandler(t, provider, &fakeHistory{})
}

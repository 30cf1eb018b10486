package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olneyjr/flightdeck/internal/metrics"
	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/pkg/logger"
)

type fakeStore struct {
	mu        sync.Mutex
	states    map[string]int
	summaries map[string]MetricsSummary
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:    make(map[string]int),
		summaries: make(map[string]MetricsSummary),
	}
}

func (f *fakeStore) SaveStates(region string, fetchedAt time.Time, states []opensky.StateVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[region] += len(states)
	return nil
}

func (f *fakeStore) SaveSummary(region string, fetchedAt time.Time, summary MetricsSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[region] = summary
	return nil
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	regions []string
}

func (f *fakeBroadcaster) BroadcastMetrics(region string, fetchedAt time.Time, summary MetricsSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, region)
}

func serviceTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

// newStatesServer serves a token endpoint and a /states/all endpoint with
// the given handler behind one mux
func newStatesServer(t *testing.T, states http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/states/all", states)
	return httptest.NewServer(mux)
}

func newTestService(t *testing.T, srv *httptest.Server, store SnapshotStore, ws Broadcaster) *Service {
	t.Helper()
	log := serviceTestLogger(t)
	client := opensky.NewClient(opensky.Config{
		BaseURL:  srv.URL,
		TokenURL: srv.URL + "/token",
		Credentials: opensky.Credentials{
			ClientID:     "test-id",
			ClientSecret: "test-secret",
		},
	}, log)

	regions := map[string]opensky.BoundingBox{
		"europe": {LatMin: 36, LatMax: 71, LonMin: -10, LonMax: 40},
	}

	return NewService(client, store, regions, time.Minute, ws, metrics.New(), log)
}

func TestRefreshAllUpdatesLatestSnapshot(t *testing.T) {
	srv := newStatesServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"time": 1700000000,
			"states": [][]any{
				{"abc123", "UAL456 ", "United States", 1700000000.0, 1700000000.0,
					-73.9, 40.7, 10000.0, false, 250.0, 180.0, 0.0, nil, 10500.0,
					"1234", false, 0.0},
				{"def456", "GND1 ", "Germany", 1700000000.0, 1700000000.0,
					8.5, 50.0, 0.0, true, 5.0, 90.0, 0.0, nil, 0.0,
					"7000", false, 0.0},
			},
		})
	})
	defer srv.Close()

	store := newFakeStore()
	ws := &fakeBroadcaster{}
	svc := newTestService(t, srv, store, ws)

	svc.RefreshAll(context.Background())

	snap, ok := svc.Latest("europe")
	require.True(t, ok)
	assert.Equal(t, "europe", snap.Region)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snap.FetchedAt)

	// Grounded row dropped, one enriched record survives
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "abc123", snap.Records[0].ICAO24)
	assert.Equal(t, 1, snap.Summary.TotalFlights)

	// Raw pull snapshotted before filtering
	assert.Equal(t, 2, store.states["europe"])
	assert.Equal(t, 1, store.summaries["europe"].TotalFlights)

	assert.Equal(t, []string{"europe"}, ws.regions)
}

func TestRefreshAllSkipsRegionOnRateLimit(t *testing.T) {
	srv := newStatesServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Retry-After-Seconds", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	store := newFakeStore()
	ws := &fakeBroadcaster{}
	svc := newTestService(t, srv, store, ws)

	svc.RefreshAll(context.Background())

	_, ok := svc.Latest("europe")
	assert.False(t, ok, "rate limited region keeps no snapshot")
	assert.Empty(t, store.summaries)
	assert.Empty(t, ws.regions)
}

func TestRefreshAllKeepsPreviousSnapshotOnError(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	srv := newStatesServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		shouldFail := fail
		mu.Unlock()
		if shouldFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"time": 1700000000,
			"states": [][]any{
				{"abc123", "UAL456 ", "United States", 1700000000.0, 1700000000.0,
					-73.9, 40.7, 10000.0, false, 250.0, 180.0, 0.0, nil, 10500.0,
					"1234", false, 0.0},
			},
		})
	})
	defer srv.Close()

	store := newFakeStore()
	svc := newTestService(t, srv, store, &fakeBroadcaster{})

	svc.RefreshAll(context.Background())
	first, ok := svc.Latest("europe")
	require.True(t, ok)

	mu.Lock()
	fail = true
	mu.Unlock()

	svc.RefreshAll(context.Background())
	second, ok := svc.Latest("europe")
	require.True(t, ok)
	assert.Equal(t, first, second, "failed cycle must not clobber the last good snapshot")
}

func TestServiceStartStop(t *testing.T) {
	srv := newStatesServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"time": 0, "states": [][]any{}})
	})
	defer srv.Close()

	svc := newTestService(t, srv, newFakeStore(), &fakeBroadcaster{})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start(), "second start is a no-op")
	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop(), "second stop is a no-op")
}

func TestServiceRegionsSorted(t *testing.T) {
	log := serviceTestLogger(t)
	client := opensky.NewClient(opensky.Config{}, log)
	svc := NewService(client, newFakeStore(), map[string]opensky.BoundingBox{
		"europe":        {},
		"asia":          {},
		"north_america": {},
	}, time.Minute, nil, metrics.New(), log)

	assert.Equal(t, []string{"asia", "europe", "north_america"}, svc.Regions())
}

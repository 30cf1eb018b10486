package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/olneyjr/flightdeck/internal/metrics"
	"github.com/olneyjr/flightdeck/internal/opensky"
	"github.com/olneyjr/flightdeck/pkg/logger"
)

// SnapshotStore persists raw pulls and per-cycle summaries. The pipeline
// only writes snapshots; it never reads them back.
type SnapshotStore interface {
	SaveStates(region string, fetchedAt time.Time, states []opensky.StateVector) error
	SaveSummary(region string, fetchedAt time.Time, summary MetricsSummary) error
}

// Broadcaster pushes a refresh notification to connected clients
type Broadcaster interface {
	BroadcastMetrics(region string, fetchedAt time.Time, summary MetricsSummary)
}

// RegionSnapshot is the latest pipeline output for one region
type RegionSnapshot struct {
	Region    string           `json:"region"`
	FetchedAt time.Time        `json:"fetched_at"`
	Records   []EnrichedRecord `json:"records"`
	Summary   MetricsSummary   `json:"summary"`
}

// AirportTraffic combines arrivals and departures for one airport
type AirportTraffic struct {
	Airport    string           `json:"airport"`
	Arrivals   []opensky.Flight `json:"arrivals"`
	Departures []opensky.Flight `json:"departures"`
}

// Service drives the collect -> transform -> aggregate cycle for every
// configured region and keeps the latest snapshot per region available to
// the API layer.
type Service struct {
	client    *opensky.Client
	storage   SnapshotStore
	regions   map[string]opensky.BoundingBox
	interval  time.Duration
	ws        Broadcaster
	collector *metrics.Collector
	logger    *logger.Logger

	mu     sync.RWMutex
	latest map[string]*RegionSnapshot

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stateMu sync.Mutex
}

// NewService creates a new collection service
func NewService(
	client *opensky.Client,
	storage SnapshotStore,
	regions map[string]opensky.BoundingBox,
	interval time.Duration,
	ws Broadcaster,
	collector *metrics.Collector,
	log *logger.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		client:    client,
		storage:   storage,
		regions:   regions,
		interval:  interval,
		ws:        ws,
		collector: collector,
		logger:    log.Named("pipeline"),
		latest:    make(map[string]*RegionSnapshot),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the background refresh loop
func (s *Service) Start() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.started {
		return nil // Already started
	}

	s.logger.Info("Starting collection service",
		logger.Int("regions", len(s.regions)),
		logger.Duration("interval", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshLoop()
	}()

	s.started = true
	return nil
}

// Stop gracefully shuts down the service
func (s *Service) Stop() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping collection service")
	s.cancel()
	s.wg.Wait()
	s.started = false
	s.logger.Info("Collection service stopped")
	return nil
}

// Regions returns the configured region names in sorted order
func (s *Service) Regions() []string {
	names := make([]string, 0, len(s.regions))
	for name := range s.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest returns the most recent snapshot for a region, or false when the
// region is unknown or has not been refreshed yet
func (s *Service) Latest(region string) (*RegionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[region]
	return snap, ok
}

// RefreshAll runs one synchronous collection cycle over every configured
// region. Regions are processed sequentially in name order; one region's
// failure never blocks the others.
func (s *Service) RefreshAll(ctx context.Context) {
	for _, name := range s.Regions() {
		s.refreshRegion(ctx, name, s.regions[name])
	}
}

// CollectAirportTraffic gathers arrivals and departures for an airport
// over [begin, end]. The underlying endpoints are lenient: failures
// degrade to empty slices.
func (s *Service) CollectAirportTraffic(ctx context.Context, airport string, begin, end int64) AirportTraffic {
	return AirportTraffic{
		Airport:    airport,
		Arrivals:   s.client.ArrivalsForAirport(ctx, airport, begin, end),
		Departures: s.client.DeparturesForAirport(ctx, airport, begin, end),
	}
}

// FlightsInInterval exposes the lenient /flights/all query
func (s *Service) FlightsInInterval(ctx context.Context, begin, end int64) []opensky.Flight {
	return s.client.FlightsInInterval(ctx, begin, end)
}

func (s *Service) refreshLoop() {
	// Initial cycle before the first tick
	s.RefreshAll(s.ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RefreshAll(s.ctx)
		}
	}
}

func (s *Service) refreshRegion(ctx context.Context, name string, bbox opensky.BoundingBox) {
	start := time.Now()

	batch, err := s.client.FetchStates(ctx, opensky.StateRequest{BBox: &bbox})
	if err != nil {
		var rateLimited *opensky.RateLimitError
		if errors.As(err, &rateLimited) {
			// No automatic retry: the next tick is our backoff.
			s.collector.RateLimited.Inc()
			s.collector.FetchesTotal.WithLabelValues(name, "rate_limited").Inc()
			s.logger.Warn("Rate limited, skipping region until next cycle",
				logger.String("region", name),
				logger.Duration("retry_after", rateLimited.RetryAfter))
			return
		}

		s.collector.FetchesTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("Failed to fetch state vectors",
			logger.String("region", name),
			logger.Error(err))
		return
	}

	s.collector.FetchesTotal.WithLabelValues(name, "success").Inc()
	s.collector.StatesFetched.WithLabelValues(name).Add(float64(len(batch.States)))

	if err := s.storage.SaveStates(name, batch.Time, batch.States); err != nil {
		// Snapshotting is best-effort; the cycle continues.
		s.logger.Warn("Failed to snapshot raw states",
			logger.String("region", name),
			logger.Error(err))
	}

	records, stats := Transform(batch.States, batch.Time)
	summary := Aggregate(records)

	s.collector.RowsDropped.WithLabelValues(name, "grounded").Add(float64(stats.Grounded))
	s.collector.RowsDropped.WithLabelValues(name, "missing_fields").Add(float64(stats.MissingFields))
	s.collector.RecordsLatest.WithLabelValues(name).Set(float64(len(records)))

	if err := s.storage.SaveSummary(name, batch.Time, summary); err != nil {
		s.logger.Warn("Failed to persist metrics summary",
			logger.String("region", name),
			logger.Error(err))
	}

	snap := &RegionSnapshot{
		Region:    name,
		FetchedAt: batch.Time,
		Records:   records,
		Summary:   summary,
	}

	s.mu.Lock()
	s.latest[name] = snap
	s.mu.Unlock()

	if s.ws != nil {
		s.ws.BroadcastMetrics(name, batch.Time, summary)
	}

	s.logger.Info("Region refresh complete",
		logger.String("region", name),
		logger.Int("raw_rows", len(batch.States)),
		logger.Int("records", len(records)),
		logger.Int("dropped", stats.Dropped()),
		logger.Duration("elapsed", time.Since(start)))
}

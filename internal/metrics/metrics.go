package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's Prometheus instruments
type Collector struct {
	registry *prometheus.Registry

	FetchesTotal  *prometheus.CounterVec // fetch attempts by region and result
	StatesFetched *prometheus.CounterVec // raw rows received by region
	RowsDropped   *prometheus.CounterVec // rows discarded by transform, by region and reason
	RecordsLatest *prometheus.GaugeVec   // enriched records in the latest snapshot
	RateLimited   prometheus.Counter     // 429 responses observed
}

// New creates a Collector with all instruments registered on a private
// registry
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightdeck",
			Name:      "fetches_total",
			Help:      "State vector fetch attempts by region and result.",
		}, []string{"region", "result"}),
		StatesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightdeck",
			Name:      "states_fetched_total",
			Help:      "Raw state vector rows received by region.",
		}, []string{"region"}),
		RowsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightdeck",
			Name:      "rows_dropped_total",
			Help:      "Rows discarded by the transform stage, by region and reason.",
		}, []string{"region", "reason"}),
		RecordsLatest: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flightdeck",
			Name:      "records_latest",
			Help:      "Enriched records in the latest snapshot per region.",
		}, []string{"region"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "flightdeck",
			Name:      "rate_limited_total",
			Help:      "Rate-limited (429) responses from the upstream API.",
		}),
	}
}

// Handler returns an http.Handler serving the collector's registry in the
// Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

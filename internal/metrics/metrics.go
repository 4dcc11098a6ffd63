package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	SourcesLoaded  *prometheus.CounterVec
	VideosUpserted prometheus.Counter
	RefreshSources *prometheus.CounterVec
	RemoteCalls    *prometheus.CounterVec
	CatalogLoad    prometheus.Histogram
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SourcesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubenest_sources_loaded_total",
			Help: "Sources loaded into the catalog, by kind and result.",
		}, []string{"kind", "result"}),
		VideosUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubenest_videos_upserted_total",
			Help: "Video records written to the store.",
		}),
		RefreshSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubenest_refresh_sources_total",
			Help: "Stale sources processed by refresh passes, by result.",
		}, []string{"result"}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubenest_remote_calls_total",
			Help: "Remote catalog calls, by operation and result.",
		}, []string{"op", "result"}),
		CatalogLoad: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tubenest_catalog_load_seconds",
			Help:    "Duration of full catalog loads.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.SourcesLoaded, m.VideosUpserted, m.RefreshSources, m.RemoteCalls, m.CatalogLoad)
	return m
}

// SourceLoaded counts one source loaded by the aggregator
func (m *Metrics) SourceLoaded(kind, result string) {
	if m == nil {
		return
	}
	m.SourcesLoaded.WithLabelValues(kind, result).Inc()
}

// Upserted counts written video records
func (m *Metrics) Upserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.VideosUpserted.Add(float64(n))
}

// Refreshed counts one source handled by a refresh pass
func (m *Metrics) Refreshed(result string) {
	if m == nil {
		return
	}
	m.RefreshSources.WithLabelValues(result).Inc()
}

// RemoteCall counts one remote catalog call attempt
func (m *Metrics) RemoteCall(op, result string) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(op, result).Inc()
}

// CatalogLoaded records the duration of a catalog load started at start
func (m *Metrics) CatalogLoaded(start time.Time) {
	if m == nil {
		return
	}
	m.CatalogLoad.Observe(time.Since(start).Seconds())
}

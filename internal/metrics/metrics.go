// Package metrics defines the Prometheus instrumentation shared across the
// scanner: feed, gateway, scheduler, and publication counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the process exports.
type Registry struct {
	reg *prometheus.Registry

	// Feed subscriber
	FeedConnects   prometheus.Counter
	FeedReconnects prometheus.Counter
	FeedFrames     *prometheus.CounterVec
	FeedUpserts    prometheus.Counter

	// Provider gateway
	ProviderRequests  *prometheus.CounterVec
	ProviderRetries   prometheus.Counter
	ProviderCacheHits prometheus.Counter
	ProviderCacheMiss prometheus.Counter
	ProviderInFlight  prometheus.Gauge

	// Scheduler / lifecycle
	TickDuration prometheus.ObserverVec
	TickErrors   *prometheus.CounterVec
	Transitions  *prometheus.CounterVec

	// Publication
	ArtifactBuilds prometheus.Counter
	ArtifactTokens prometheus.Gauge
}

// New creates a registry with all scanner metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		FeedConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_feed_connects_total",
			Help: "Successful WebSocket feed connections",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_feed_reconnects_total",
			Help: "Reconnect attempts after a feed failure",
		}),
		FeedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenscout_feed_frames_total",
			Help: "Feed frames received by outcome",
		}, []string{"outcome"}),
		FeedUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_feed_upserts_total",
			Help: "Tokens upserted from migration events",
		}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenscout_provider_requests_total",
			Help: "Upstream market-data requests by result kind",
		}, []string{"result"}),
		ProviderRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_provider_retries_total",
			Help: "Upstream request retries",
		}),
		ProviderCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_provider_cache_hits_total",
			Help: "Gateway cache hits",
		}),
		ProviderCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_provider_cache_misses_total",
			Help: "Gateway cache misses",
		}),
		ProviderInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tokenscout_provider_in_flight",
			Help: "Upstream requests currently holding a semaphore slot",
		}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenscout_tick_duration_seconds",
			Help:    "Scheduler tick duration by kind",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenscout_tick_errors_total",
			Help: "Per-token errors skipped during scheduler ticks",
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenscout_transitions_total",
			Help: "Token status transitions by reason",
		}, []string{"reason"}),
		ArtifactBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenscout_artifact_builds_total",
			Help: "Publication artifact generations",
		}),
		ArtifactTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tokenscout_artifact_tokens",
			Help: "Token count in the most recent artifact",
		}),
	}

	reg.MustRegister(
		r.FeedConnects, r.FeedReconnects, r.FeedFrames, r.FeedUpserts,
		r.ProviderRequests, r.ProviderRetries, r.ProviderCacheHits,
		r.ProviderCacheMiss, r.ProviderInFlight,
		r.TickDuration, r.TickErrors, r.Transitions,
		r.ArtifactBuilds, r.ArtifactTokens,
	)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

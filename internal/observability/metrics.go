package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "matches_total", Help: "Total number of match queries served"})
	MatchLatency      = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "roadside", Name: "match_latency_seconds", Help: "Match latency seconds"})
	MatchResults      = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "roadside", Name: "match_results", Help: "Providers returned per match", Buckets: []float64{0, 1, 2, 3, 5, 8, 13}})
	ProviderUpdates   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "provider_position_updates_total", Help: "Provider position updates accepted"})
	RoutedETAFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "routed_eta_failures_total", Help: "Routed ETA lookups that fell back to the heuristic"})

	TrackingActive        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "roadside", Name: "tracking_sessions_active", Help: "Tracking sessions currently ticking"})
	TrackingTicksTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "tracking_ticks_total", Help: "Tracking ticks computed"})
	TrackingArrivals      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "tracking_arrivals_total", Help: "Tracking sessions that reached the destination"})
	TrackingCancellations = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "tracking_cancellations_total", Help: "Tracking sessions cancelled by the user"})
	PublishErrors         = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roadside", Name: "publish_errors_total", Help: "Snapshot or event publish failures"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roadside", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roadside",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

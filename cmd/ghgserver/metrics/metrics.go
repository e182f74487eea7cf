// Package metrics provides Prometheus instrumentation for ghgserver.
//
// Metrics exposed:
//   - ghgcast_requests_total: requests by endpoint and status
//   - ghgcast_request_duration_seconds: request latency by endpoint
//   - ghgcast_predict_seconds: model forward pass latency per subsector
//   - ghgcast_forecast_seconds: full forecast latency including gas passes
//   - ghgcast_explain_seconds: integrated gradients latency
//   - ghgcast_subsector_failures_total: failed subsector predictions
//   - ghgcast_cache_requests_total: response cache lookups by kind and result
//   - ghgcast_asset_loaded: 1 when an asset came from its file, 0 on fallback
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements the recorders of the forecast runner, the service
// and the gRPC server.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	PredictSeconds     prometheus.Histogram
	ForecastSeconds    prometheus.Histogram
	ExplainSeconds     prometheus.Histogram
	SubsectorFailures  *prometheus.CounterVec
	CacheRequestsTotal *prometheus.CounterVec
	AssetLoaded        *prometheus.GaugeVec
}

// New registers the metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghgcast_requests_total",
			Help: "Total number of API requests by endpoint and status",
		}, []string{"endpoint", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghgcast_request_duration_seconds",
			Help:    "Duration of API requests by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		PredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghgcast_predict_seconds",
			Help:    "Time spent in one model forward pass",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),

		ForecastSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghgcast_forecast_seconds",
			Help:    "Time spent computing a forecast and its gas composition",
			Buckets: prometheus.DefBuckets,
		}),

		ExplainSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghgcast_explain_seconds",
			Help:    "Time spent computing integrated gradients",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		SubsectorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghgcast_subsector_failures_total",
			Help: "Total number of subsector predictions that failed",
		}, []string{"subsector"}),

		CacheRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghgcast_cache_requests_total",
			Help: "Response cache lookups by kind and result",
		}, []string{"kind", "result"}),

		AssetLoaded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ghgcast_asset_loaded",
			Help: "1 if the asset was read from its file, 0 if a fallback is in use",
		}, []string{"asset"}),
	}
}

func (m *Metrics) ObserveRequest(endpoint, status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) ObservePredict(seconds float64) {
	m.PredictSeconds.Observe(seconds)
}

func (m *Metrics) ObserveForecast(seconds float64) {
	m.ForecastSeconds.Observe(seconds)
}

func (m *Metrics) ObserveExplain(seconds float64) {
	m.ExplainSeconds.Observe(seconds)
}

func (m *Metrics) RecordSubsectorFailure(subsector string) {
	m.SubsectorFailures.WithLabelValues(subsector).Inc()
}

func (m *Metrics) RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetAssetLoaded(asset string, fromFile bool) {
	v := 0.0
	if fromFile {
		v = 1
	}
	m.AssetLoaded.WithLabelValues(asset).Set(v)
}

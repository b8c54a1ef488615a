package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk service.
type Metrics struct {
	Assessments *prometheus.CounterVec // labels: outcome={success,invalid,not_found,acquisition_error,not_ready,error}
	RiskLevels  *prometheus.CounterVec // labels: level={Low,Moderate,High}
	Predictions prometheus.Counter

	// Data provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
	ProviderDuration *prometheus.HistogramVec // labels: provider
	GeocodeCache     *prometheus.CounterVec   // labels: tier={memory,redis}, result={hit,miss}

	// Model metrics.
	ModelReady        prometheus.Gauge
	TrainingDuration  prometheus.Histogram
	RowsSkipped       prometheus.Counter
	CategoryFallbacks *prometheus.CounterVec // labels: field, reason={missing,unrecognized}

	// Publishing metrics.
	AssessmentsPublished prometheus.Counter
	PublishFailures      prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Location assessments by outcome.",
		}, []string{"outcome"}),
		RiskLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_level_total",
			Help:      "Risk decisions by level.",
		}, []string{"level"}),
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total classifier predictions served.",
		}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "External data provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "External data provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "1 when classifier parameters are loaded, 0 otherwise.",
		}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Duration of a complete classifier training run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_rows_skipped_total",
			Help:      "Malformed training rows dropped while loading datasets.",
		}),
		CategoryFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_fallbacks_total",
			Help:      "Features filled with a default during encoding, by field and reason.",
		}, []string{"field", "reason"}),
		AssessmentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_published_total",
			Help:      "Assessments written to the event topic.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Assessments that could not be published.",
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Assessments,
		m.RiskLevels,
		m.Predictions,
		m.ProviderRequests,
		m.ProviderDuration,
		m.GeocodeCache,
		m.ModelReady,
		m.TrainingDuration,
		m.RowsSkipped,
		m.CategoryFallbacks,
		m.AssessmentsPublished,
		m.PublishFailures,
	}
}

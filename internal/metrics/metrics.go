// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindalert_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_http_panics_total",
		Help: "Handler panics recovered by route pattern",
	}, []string{"route"})

	IntakeRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_intake_rejected_total",
		Help: "Uploads rejected by the intake gate by reason",
	}, []string{"reason"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_submissions_total",
		Help: "Pipeline runs started by trigger",
	}, []string{"trigger"})

	DegradedRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindalert_pipeline_degraded_total",
		Help: "Pipeline runs that completed in degraded mode",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindalert_pipeline_stage_duration_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"stage"})

	ConfigGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindalert_config_gaps_total",
		Help: "Runs that needed an alert but had no recipient configured",
	})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_alerts_created_total",
		Help: "Email alerts persisted by type",
	}, []string{"type"})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_delivery_attempts_total",
		Help: "Alert delivery attempts by outcome",
	}, []string{"outcome"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindalert_provider_errors_total",
		Help: "Transcription and analysis provider failures by provider and kind",
	}, []string{"provider", "kind"})
)

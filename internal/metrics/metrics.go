package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Report generation metrics
	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insoctor_reports_generated_total",
			Help: "Total number of generated reports",
		},
		[]string{"trigger"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insoctor_reports_generation_duration_seconds",
			Help:    "Duration of report generation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WidgetFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insoctor_reports_widget_failures_total",
			Help: "Total number of widgets that failed during generation",
		},
		[]string{"data_source"},
	)

	// Data source metrics
	AdapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insoctor_reports_adapter_duration_seconds",
			Help:    "Duration of data source fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"data_source"},
	)

	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insoctor_reports_adapter_errors_total",
			Help: "Total number of failed data source fetches",
		},
		[]string{"data_source", "kind"},
	)

	AdapterRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insoctor_reports_adapter_records_total",
			Help: "Total number of records returned by data sources",
		},
		[]string{"data_source"},
	)

	// Cache metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insoctor_reports_cache_requests_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"data_source", "result"},
	)

	// Scheduler metrics
	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insoctor_reports_scheduled_runs_total",
			Help: "Total number of scheduled generations",
		},
		[]string{"status"},
	)
)

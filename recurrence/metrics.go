package recurrence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicepro_recurring_runs_total",
			Help: "Recurring invoice generation runs by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoicepro_recurring_run_duration_seconds",
			Help:    "Duration of recurring invoice generation runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	occurrencesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicepro_recurring_invoices_created_total",
			Help: "Invoices materialized from recurring templates, by frequency",
		},
		[]string{"frequency"},
	)

	templateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invoicepro_recurring_template_failures_total",
			Help: "Per-template failures during generation runs",
		},
	)

	runsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invoicepro_recurring_runs_skipped_total",
			Help: "Triggers skipped because a run was already in progress",
		},
	)

	lastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invoicepro_recurring_last_success_timestamp_seconds",
			Help: "Unix time of the last generation run that completed",
		},
	)
)

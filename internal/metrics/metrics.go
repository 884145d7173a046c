// Package metrics exposes run counters for the server's /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed counts resolved items by kind and outcome status.
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gitops_updater",
		Name:      "items_processed_total",
		Help:      "Items processed, by kind and outcome status.",
	}, []string{"kind", "status"})

	// RegistryErrors counts registry call failures by registry type and
	// failure class.
	RegistryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gitops_updater",
		Name:      "registry_errors_total",
		Help:      "Registry call failures, by registry type and error kind.",
	}, []string{"registry", "kind"})

	// RegistryRetries counts transient-failure retries by registry type.
	RegistryRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gitops_updater",
		Name:      "registry_retries_total",
		Help:      "Retries after transient registry failures, by registry type.",
	}, []string{"registry"})

	// RunDuration observes full run duration by phase.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gitops_updater",
		Name:      "run_duration_seconds",
		Help:      "Duration of update run phases.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"phase"})

	// MajorAvailable tracks items with a newer major version upstream.
	MajorAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gitops_updater",
		Name:      "major_available_items",
		Help:      "Items whose upstream has a newer major version.",
	})
)

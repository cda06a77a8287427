package possync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_runs_total",
		Help: "Product sync runs by direction and outcome.",
	}, []string{"direction", "outcome"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_items_total",
		Help: "Items handled by product sync runs.",
	}, []string{"direction", "action"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "possync_run_duration_seconds",
		Help:    "Wall time of product sync runs.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"direction"})
)

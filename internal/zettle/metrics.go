package zettle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zettle_probe_attempts_total",
		Help: "Zettle endpoint candidates tried, by resource and outcome.",
	}, []string{"resource", "candidate", "outcome"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zettle_token_refreshes_total",
		Help: "Access token refresh attempts by outcome.",
	}, []string{"outcome"})
)

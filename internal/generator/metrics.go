package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "problemgen",
		Subsystem: "generator",
		Name:      "calls_total",
		Help:      "Generator calls by kind and outcome class.",
	}, []string{"kind", "class"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "problemgen",
		Subsystem: "generator",
		Name:      "call_duration_seconds",
		Help:      "Latency of generator calls including parsing.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"kind"})
)

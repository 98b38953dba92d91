package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "problemgen",
		Subsystem: "pipeline",
		Name:      "runs_started_total",
		Help:      "Problems created with an enrichment run scheduled.",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "problemgen",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Finished enrichment runs by outcome.",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "problemgen",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration of the asynchronous enrichment phase.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"outcome"})

	inflightRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "problemgen",
		Subsystem: "pipeline",
		Name:      "inflight_runs",
		Help:      "Enrichment runs currently executing in this process.",
	})

	reapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "problemgen",
		Subsystem: "pipeline",
		Name:      "reaped_total",
		Help:      "Running problems failed by the stale-run reaper.",
	})
)

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// solvesTotal counts solves by start kind and result
	solvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocrew_solves_total",
		Help: "Contact solves by start (warm, cold) and result (ok, not_converged, error)",
	}, []string{"start", "result"})

	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autocrew_solve_duration_seconds",
		Help:    "Contact solve duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"start"})

	solveIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autocrew_solve_iterations",
		Help:    "BFGS iterations spent by one solve",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	contactsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autocrew_contacts",
		Help: "Contacts currently tracked",
	})
)

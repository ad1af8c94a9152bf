package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_op_runs_total",
		Help: "Total number of successful operation runs",
	}, []string{"op", "runtime"})

	opRunErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_op_run_errors_total",
		Help: "Total number of failed operation runs",
	}, []string{"op", "runtime"})

	opRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernels_op_run_duration_seconds",
		Help:    "Wall time of operation runs",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"op", "runtime"})

	opConstructions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_op_constructions_total",
		Help: "Total number of operations constructed from the registry",
	}, []string{"op", "runtime", "dtype"})
)

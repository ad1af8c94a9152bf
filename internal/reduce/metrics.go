package reduce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reduceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernels_reduce_duration_seconds",
		Help:    "Time spent executing CPU reduce kernels",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"type", "dtype", "rank"})

	reduceElements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_reduce_input_elements_total",
		Help: "Total number of input elements consumed by CPU reduce kernels",
	}, []string{"type"})
)

package opencl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kernelStateBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_opencl_kernel_builds_total",
		Help: "Total number of operator kernels built, by program",
	}, []string{"program"})

	kernelStateRebinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_opencl_arg_rebinds_total",
		Help: "Total number of argument rebinds triggered by shape changes",
	}, []string{"kernel"})

	gpuLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_opencl_launches_total",
		Help: "Total number of kernel launches issued by operators",
	}, []string{"kernel"})

	tuningHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernels_opencl_tuning_hits_total",
		Help: "Launches that replayed a stored local work size",
	})

	tuningMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernels_opencl_tuning_misses_total",
		Help: "Launches whose tuning key had no stored local work size",
	})

	tuningSearches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernels_opencl_tuning_searches_total",
		Help: "Local work size searches run",
	})
)

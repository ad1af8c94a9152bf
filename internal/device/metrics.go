package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kernelBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_device_builds_total",
		Help: "Total number of kernels compiled, by program",
	}, []string{"program"})

	kernelBuildErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_device_build_errors_total",
		Help: "Total number of failed kernel compilations, by program",
	}, []string{"program"})

	kernelArgBinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_device_arg_binds_total",
		Help: "Total number of kernel arguments bound, by program",
	}, []string{"program"})

	kernelLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_device_launches_total",
		Help: "Total number of kernel launches, by program",
	}, []string{"program"})

	kernelLaunchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernels_device_launch_errors_total",
		Help: "Total number of rejected kernel launches, by program",
	}, []string{"program"})
)

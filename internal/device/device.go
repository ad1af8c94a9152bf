// Package device defines the GPU runtime capability consumed by the OpenCL
// operators: kernel compilation, device queries, and N-dimensional launches.
package device

import "context"

// Kernel is a compiled program entry point. Arguments are bound by position
// and stay bound across launches until overwritten.
type Kernel interface {
	Name() string
	SetArg(index uint32, value any) error
}

// Event tracks one enqueued launch.
type Event interface {
	// Wait blocks until the launch has completed.
	Wait() error
	// Stats returns profiling timestamps. Valid after Wait.
	Stats() CallStats
}

// CallStats holds device-side start and end timestamps in microseconds.
type CallStats struct {
	StartMicros int64
	EndMicros   int64
}

// Duration returns the elapsed device time in microseconds.
func (s CallStats) Duration() int64 {
	return s.EndMicros - s.StartMicros
}

// Future is the profiling sink of one operator run. A kernel that waited on
// its events installs WaitFn to report the aggregated timing.
type Future struct {
	WaitFn func(stats *CallStats)
}

// Wait reports the stats collected for the run. It is a no-op when nothing
// was recorded.
func (f *Future) Wait(stats *CallStats) {
	if f != nil && f.WaitFn != nil {
		f.WaitFn(stats)
	}
}

// Executor is the device runtime: program compilation, device queries and
// launches on a single in-order command queue.
type Executor interface {
	Name() string

	// BuildKernel compiles entry point kernelName of program with the given
	// preprocessor options.
	BuildKernel(program, kernelName string, options []string) (Kernel, error)

	// KernelMaxWorkGroupSize returns the largest work-group the device can run
	// k with. Zero means unknown.
	KernelMaxWorkGroupSize(k Kernel) uint64

	GlobalMemCacheSize() uint64
	ComputeUnits() uint32
	NonUniformWorkGroupsSupported() bool
	ProfilingEnabled() bool

	// Enqueue launches k over gws with work-group size lws.
	Enqueue(ctx context.Context, k Kernel, gws, lws []uint32) (Event, error)
}

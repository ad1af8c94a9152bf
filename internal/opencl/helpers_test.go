package opencl

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

func getMetricValue(m prometheus.Metric) float64 {
	var metric dto.Metric
	_ = m.Write(&metric)
	if metric.Counter != nil {
		return *metric.Counter.Value
	}
	if metric.Gauge != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func newHostExecutor(t *testing.T, cfg device.HostConfig) *device.HostExecutor {
	t.Helper()
	exec := device.NewHostExecutor(cfg)
	require.NoError(t, RegisterHostPrograms(exec))
	return exec
}

func newRunContext(exec device.Executor, search bool) *RunContext {
	return &RunContext{
		Ctx:        context.Background(),
		Executor:   exec,
		Dispatcher: NewTuner(nil, search),
	}
}

// countingExecutor counts kernel builds and argument binds of a host
// executor.
type countingExecutor struct {
	*device.HostExecutor
	builds atomic.Int32
	binds  atomic.Int32
}

type countingKernel struct {
	device.Kernel
	binds *atomic.Int32
}

func (k *countingKernel) SetArg(index uint32, value any) error {
	k.binds.Add(1)
	return k.Kernel.SetArg(index, value)
}

func (e *countingExecutor) BuildKernel(program, kernelName string, options []string) (device.Kernel, error) {
	k, err := e.HostExecutor.BuildKernel(program, kernelName, options)
	if err != nil {
		return nil, err
	}
	e.builds.Add(1)
	return &countingKernel{Kernel: k, binds: &e.binds}, nil
}

func (e *countingExecutor) Enqueue(ctx context.Context, k device.Kernel, gws, lws []uint32) (device.Event, error) {
	if ck, ok := k.(*countingKernel); ok {
		k = ck.Kernel
	}
	return e.HostExecutor.Enqueue(ctx, k, gws, lws)
}

func randomTensor(r *rand.Rand, name string, lo, hi float32, shape ...int) *tensor.Tensor {
	data := make([]float32, tensor.NumElements(shape))
	for i := range data {
		data[i] = lo + r.Float32()*(hi-lo)
	}
	return tensor.FromSlice(name, data, shape...)
}

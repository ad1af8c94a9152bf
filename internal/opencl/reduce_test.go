package opencl

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/reduce"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/threadpool"
)

func TestReduceModeFor(t *testing.T) {
	tests := []struct {
		axes []int
		mode ReduceMode
		ok   bool
	}{
		{[]int{1, 2}, ReduceHW, true},
		{[]int{2, 1}, ReduceHW, true},
		{[]int{-3, -2}, ReduceHW, true},
		{[]int{3}, ReduceC, true},
		{[]int{-1}, ReduceC, true},
		{[]int{1}, 0, false},
		{[]int{0, 3}, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		mode, ok := ReduceModeFor(tt.axes)
		assert.Equal(t, tt.ok, ok, "axes %v", tt.axes)
		if tt.ok {
			assert.Equal(t, tt.mode, mode, "axes %v", tt.axes)
		}
	}
}

func TestNewReduceKernel_RejectsUnsupportedAxes(t *testing.T) {
	_, err := NewReduceKernel(reduce.Sum, []int{0}, false)
	assert.ErrorIs(t, err, status.ErrConfiguration)

	_, err = NewReduceKernel(reduce.Type(42), []int{3}, false)
	assert.ErrorIs(t, err, status.ErrConfiguration)
}

func TestReduceKernel_MatchesCPU(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	configs := map[string]device.HostConfig{"non-uniform": device.DefaultHostConfig()}
	uniform := device.DefaultHostConfig()
	uniform.NonUniformWorkGroups = false
	configs["uniform"] = uniform

	for cfgName, cfg := range configs {
		exec := newHostExecutor(t, cfg)
		for _, axes := range [][]int{{1, 2}, {3}} {
			for _, typ := range []reduce.Type{reduce.Mean, reduce.Min, reduce.Max, reduce.Prod, reduce.Sum} {
				t.Run(fmt.Sprintf("%s/%v/%s", cfgName, axes, typ), func(t *testing.T) {
					input := randomTensor(r, "in", 0.5, 1.5, 2, 3, 5, 6)

					k, err := NewReduceKernel(typ, axes, true)
					require.NoError(t, err)
					gpu := tensor.New("gpu", tensor.Float32)
					require.NoError(t, k.Compute(newRunContext(exec, false), input, gpu))

					reducer, err := reduce.NewReducer(reduce.Config{Type: typ, Axes: axes, KeepDims: true})
					require.NoError(t, err)
					cpu := tensor.New("cpu", tensor.Float32)
					require.NoError(t, reducer.Run(threadpool.Serial{}, input, cpu))

					require.Equal(t, cpu.Shape(), gpu.Shape())
					want, got := tensor.Data[float32](cpu), tensor.Data[float32](gpu)
					for i := range want {
						assert.InEpsilon(t, want[i], got[i], 1e-5, "index %d", i)
					}
				})
			}
		}
	}
}

func TestReduceKernel_RejectsUnsupportedInputs(t *testing.T) {
	exec := newHostExecutor(t, device.DefaultHostConfig())
	rc := newRunContext(exec, false)
	k, err := NewReduceKernel(reduce.Sum, []int{1, 2}, false)
	require.NoError(t, err)

	err = k.Compute(rc, tensor.New("in", tensor.Float32, 2, 3, 4), tensor.New("out", tensor.Float32))
	assert.ErrorIs(t, err, status.ErrConfiguration)

	err = k.Compute(rc, tensor.New("in", tensor.Int32, 1, 2, 2, 4), tensor.New("out", tensor.Int32))
	assert.ErrorIs(t, err, status.ErrNotImplemented)
	assert.Equal(t, Unbuilt, k.State().State())
}

func TestReduceKernel_CachesBuildAndArguments(t *testing.T) {
	exec := &countingExecutor{HostExecutor: newHostExecutor(t, device.DefaultHostConfig())}
	rc := newRunContext(exec, false)
	k, err := NewReduceKernel(reduce.Sum, []int{1, 2}, false)
	require.NoError(t, err)
	out := tensor.New("out", tensor.Float32)
	rebinds := getMetricValue(kernelStateRebinds.WithLabelValues(ProgramReduce))

	first := tensor.FromSlice("a", onesF32(4*4*8), 1, 4, 4, 8)
	require.NoError(t, k.Compute(rc, first, out))
	assert.Equal(t, int32(1), exec.builds.Load())
	assert.Equal(t, int32(5), exec.binds.Load())
	assert.Equal(t, ArgsFresh, k.State().State())

	require.NoError(t, k.Compute(rc, first, out))
	assert.Equal(t, int32(5), exec.binds.Load(), "same shape must not rebind")

	second := tensor.FromSlice("b", onesF32(2*2*8), 1, 2, 2, 8)
	require.NoError(t, k.Compute(rc, second, out))
	assert.Equal(t, int32(1), exec.builds.Load())
	assert.Equal(t, int32(10), exec.binds.Load(), "shape change must rebind")
	assert.Equal(t, 2.0, getMetricValue(kernelStateRebinds.WithLabelValues(ProgramReduce))-rebinds)

	assert.Equal(t, []int{1, 1, 1, 8}, out.Shape())
	for _, v := range tensor.Data[float32](out) {
		assert.Equal(t, float32(4), v)
	}
}

func TestReduceKernel_TuningKeyStoredOnSearch(t *testing.T) {
	exec := newHostExecutor(t, device.DefaultHostConfig())
	tuner := NewTuner(nil, true)
	tuner.SetRounds(1)
	rc := &RunContext{Executor: exec, Dispatcher: tuner}
	k, err := NewReduceKernel(reduce.Max, []int{3}, false)
	require.NoError(t, err)

	in := randomTensor(rand.New(rand.NewPCG(5, 6)), "in", -1, 1, 1, 2, 3, 8)
	out := tensor.New("out", tensor.Float32)
	require.NoError(t, k.Compute(rc, in, out))

	_, ok := tuner.Store().Get(TuningKey("reduce_opencl_kernel", 1, 2, 3, 1))
	assert.True(t, ok)
}

func onesF32(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = 1
	}
	return data
}

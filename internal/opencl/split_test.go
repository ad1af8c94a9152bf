package opencl

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

func newOutputs(n int) []*tensor.Tensor {
	outs := make([]*tensor.Tensor, n)
	for i := range outs {
		outs[i] = tensor.New(fmt.Sprintf("out%d", i), tensor.Float32)
	}
	return outs
}

func TestSplitKernel_SlicesChannels(t *testing.T) {
	uniform := device.DefaultHostConfig()
	uniform.NonUniformWorkGroups = false
	configs := map[string]device.HostConfig{"non-uniform": device.DefaultHostConfig(), "uniform": uniform}

	r := rand.New(rand.NewPCG(31, 32))
	for cfgName, cfg := range configs {
		exec := newHostExecutor(t, cfg)
		for _, tc := range []struct{ channels, n int }{{16, 4}, {16, 2}, {6, 1}, {24, 3}} {
			t.Run(fmt.Sprintf("%s/%dx%d", cfgName, tc.channels, tc.n), func(t *testing.T) {
				in := randomTensor(r, "in", -1, 1, 2, 3, 5, tc.channels)
				outs := newOutputs(tc.n)
				require.NoError(t, NewSplitKernel(false).Compute(newRunContext(exec, false), in, outs))

				outC := tc.channels / tc.n
				src := tensor.Data[float32](in)
				for i, out := range outs {
					require.Equal(t, []int{2, 3, 5, outC}, out.Shape())
					dst := tensor.Data[float32](out)
					for p := 0; p < 2*3*5; p++ {
						for c := 0; c < outC; c++ {
							assert.Equal(t, src[p*tc.channels+i*outC+c], dst[p*outC+c], "output %d pixel %d channel %d", i, p, c)
						}
					}
				}
			})
		}
	}
}

func TestSplitKernel_AggregatesStats(t *testing.T) {
	exec := newHostExecutor(t, device.DefaultHostConfig())
	future := &device.Future{}
	rc := newRunContext(exec, false)
	rc.Future = future

	k := NewSplitKernel(true)
	launches := getMetricValue(gpuLaunches.WithLabelValues(device.ObfuscateSymbol(ProgramSplit, true)))
	in := tensor.New("in", tensor.Float32, 1, 4, 4, 12)
	require.NoError(t, k.Compute(rc, in, newOutputs(3)))
	assert.Equal(t, 3.0, getMetricValue(gpuLaunches.WithLabelValues(device.ObfuscateSymbol(ProgramSplit, true)))-launches)

	require.NotNil(t, future.WaitFn)
	var stats device.CallStats
	future.Wait(&stats)
	assert.Positive(t, stats.StartMicros)
	assert.GreaterOrEqual(t, stats.EndMicros, stats.StartMicros)
}

func TestSplitKernel_FakeWarmupBindsWithoutLaunching(t *testing.T) {
	exec := &countingExecutor{HostExecutor: newHostExecutor(t, device.DefaultHostConfig())}
	rc := newRunContext(exec, false)
	rc.FakeWarmup = true
	rc.Future = &device.Future{}

	k := NewSplitKernel(false)
	launches := getMetricValue(gpuLaunches.WithLabelValues(ProgramSplit))
	in := tensor.FromSlice("in", onesF32(2*2*8), 1, 2, 2, 8)
	outs := newOutputs(2)
	require.NoError(t, k.Compute(rc, in, outs))

	assert.Equal(t, 0.0, getMetricValue(gpuLaunches.WithLabelValues(ProgramSplit))-launches)
	assert.Equal(t, int32(1), exec.builds.Load())
	assert.Equal(t, int32(6), exec.binds.Load())
	assert.Equal(t, ArgsFresh, k.State().State())
	assert.Nil(t, rc.Future.WaitFn)
	for _, out := range outs {
		for _, v := range tensor.Data[float32](out) {
			assert.Zero(t, v)
		}
	}
}

func TestSplitKernel_Errors(t *testing.T) {
	exec := newHostExecutor(t, device.DefaultHostConfig())
	rc := newRunContext(exec, false)
	k := NewSplitKernel(false)

	err := k.Compute(rc, tensor.New("in", tensor.Float32, 1, 2, 2, 10), newOutputs(4))
	assert.ErrorIs(t, err, status.ErrConfiguration)

	err = k.Compute(rc, tensor.New("in", tensor.Float32, 1, 2, 2, 12), newOutputs(2))
	assert.ErrorIs(t, err, status.ErrNotImplemented)

	err = k.Compute(rc, tensor.New("in", tensor.Float32, 2, 2, 8), newOutputs(2))
	assert.ErrorIs(t, err, status.ErrConfiguration)

	err = k.Compute(rc, tensor.New("in", tensor.Float32, 1, 2, 2, 8), nil)
	assert.ErrorIs(t, err, status.ErrConfiguration)

	err = k.Compute(rc, tensor.New("in", tensor.Int32, 1, 2, 2, 8), newOutputs(2))
	assert.ErrorIs(t, err, status.ErrNotImplemented)
}

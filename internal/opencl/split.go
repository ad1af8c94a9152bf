package opencl

import (
	"math"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// SplitKernel splits a 4-D NHWC float tensor into equal channel slices.
type SplitKernel struct {
	obfuscate bool
	state     KernelState
}

func NewSplitKernel(obfuscate bool) *SplitKernel {
	return &SplitKernel{obfuscate: obfuscate}
}

// State exposes the kernel cache for inspection.
func (k *SplitKernel) State() *KernelState { return &k.state }

// Compute writes len(outputs) channel slices of input. Arguments are bound
// for every output on every call since all outputs share one kernel.
func (k *SplitKernel) Compute(rc *RunContext, input *tensor.Tensor, outputs []*tensor.Tensor) error {
	if input.Rank() != 4 {
		return status.Configurationf("split needs a 4-D input, got %v", input.Shape())
	}
	if input.DataType() != tensor.Float32 {
		return status.NotImplementedf("gpu split on %s", input.DataType())
	}
	n := len(outputs)
	if n == 0 {
		return status.Configurationf("split needs at least one output")
	}
	channels := input.Dim(3)
	if channels%n != 0 {
		return status.Configurationf("split of %d channels into %d outputs", channels, n)
	}
	outC := channels / n
	if n > 1 && outC%4 != 0 {
		return status.NotImplementedf("gpu split needs output channels divisible by 4, got %d", outC)
	}
	for _, out := range outputs {
		if out.DataType() != tensor.Float32 {
			return status.NotImplementedf("gpu split output of %s", out.DataType())
		}
		out.Resize([]int{input.Dim(0), input.Dim(1), input.Dim(2), outC})
	}

	exec := rc.Executor
	if !k.state.Built() {
		name := device.ObfuscateSymbol(ProgramSplit, k.obfuscate)
		dt, err := device.DataTypeOptions(tensor.Float32)
		if err != nil {
			return err
		}
		if err := k.state.Build(exec, ProgramSplit, name, BuildOptions(exec, ProgramSplit, name, dt...)); err != nil {
			return err
		}
	}

	channelBlk := RoundUpDiv4(outC)
	gws := []uint32{
		uint32(channelBlk),
		uint32(input.Dim(2)),
		uint32(input.Dim(0) * input.Dim(1)),
	}
	lws := Default3DLocalWS(exec, gws, k.state.MaxWorkGroupSize())
	kernel := k.state.Kernel()

	stats := device.CallStats{StartMicros: math.MaxInt64}
	profiling := rc.Future != nil && exec.ProfilingEnabled()
	for i, out := range outputs {
		b := NewBinder(exec, kernel, gws)
		b.Set(input)
		b.Set(int32(channelBlk * i))
		b.Set(out)
		if err := b.Err(); err != nil {
			k.state.Invalidate()
			return err
		}
		k.state.MarkBound(input.Shape())
		if rc.FakeWarmup {
			continue
		}
		ev, err := launch(rc, kernel, gws, lws)
		if err != nil {
			return err
		}
		if profiling {
			if err := ev.Wait(); err != nil {
				return status.Device("wait "+kernel.Name(), err)
			}
			s := ev.Stats()
			stats.StartMicros = min(stats.StartMicros, s.StartMicros)
			stats.EndMicros += s.Duration()
		}
	}

	if profiling && !rc.FakeWarmup {
		rc.Future.WaitFn = func(s *device.CallStats) {
			if s != nil {
				s.StartMicros = stats.StartMicros
				s.EndMicros = stats.StartMicros + stats.EndMicros
			}
		}
	}
	return nil
}

// splitProgram emulates the split kernel. Arguments after the bounds: input,
// channel block offset, output.
func splitProgram(l *device.Launch) (device.WorkItemFunc, error) {
	bounds, i, err := l.Bounds()
	if err != nil {
		return nil, err
	}
	r := &argReader{l: l, i: i}
	in, offset, out := r.tensor(), r.int(), r.tensor()
	if r.err != nil {
		return nil, r.err
	}
	inC, outC := in.Dim(3), out.Dim(3)
	if offset*4+outC > inC {
		return nil, status.Check(false, "%s: channel block %d out of range for %v", l.Kernel, offset, in.Shape())
	}
	src, dst := tensor.Data[float32](in), tensor.Data[float32](out)
	width := out.Dim(2)
	return func(gid [3]int) {
		if gid[0] >= bounds[0] || gid[1] >= bounds[1] || gid[2] >= bounds[2] {
			return
		}
		pixel := gid[2]*width + gid[1]
		for c := gid[0] * 4; c < min(gid[0]*4+4, outC); c++ {
			dst[pixel*outC+c] = src[pixel*inC+offset*4+c]
		}
	}, nil
}

package opencl

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/reduce"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// ReduceMode is the axis set the GPU reduce kernel handles.
type ReduceMode int

const (
	// ReduceHW folds height and width of an NHWC tensor.
	ReduceHW ReduceMode = iota
	// ReduceC folds the channels of an NHWC tensor.
	ReduceC
)

// ReduceModeFor classifies axes for a 4-D NHWC input. ok is false when the
// GPU kernel cannot run them.
func ReduceModeFor(axes []int) (ReduceMode, bool) {
	norm := make([]int, 0, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += 4
		}
		norm = append(norm, a)
	}
	slices.Sort(norm)
	norm = slices.Compact(norm)
	switch {
	case slices.Equal(norm, []int{1, 2}):
		return ReduceHW, true
	case slices.Equal(norm, []int{3}):
		return ReduceC, true
	}
	return 0, false
}

// ReduceKernel reduces a 4-D float NHWC tensor over {H, W} or {C} keeping
// dimensions.
type ReduceKernel struct {
	typ       reduce.Type
	mode      ReduceMode
	obfuscate bool
	state     KernelState
}

// NewReduceKernel validates axes and returns the kernel.
func NewReduceKernel(typ reduce.Type, axes []int, obfuscate bool) (*ReduceKernel, error) {
	if !typ.Valid() {
		return nil, status.Configurationf("unknown reduce type %d", int(typ))
	}
	mode, ok := ReduceModeFor(axes)
	if !ok {
		return nil, status.Configurationf("gpu reduce supports axes {1,2} or {3}, got %v", axes)
	}
	return &ReduceKernel{typ: typ, mode: mode, obfuscate: obfuscate}, nil
}

// State exposes the kernel cache for inspection.
func (k *ReduceKernel) State() *KernelState { return &k.state }

func (k *ReduceKernel) Compute(rc *RunContext, input, output *tensor.Tensor) error {
	if input.Rank() != 4 {
		return status.Configurationf("gpu reduce needs a 4-D input, got %v", input.Shape())
	}
	if input.DataType() != tensor.Float32 || output.DataType() != tensor.Float32 {
		return status.NotImplementedf("gpu reduce on %s", input.DataType())
	}
	batch, height, width, channels := input.Dim(0), input.Dim(1), input.Dim(2), input.Dim(3)

	var gws []uint32
	switch k.mode {
	case ReduceHW:
		output.Resize([]int{batch, 1, 1, channels})
		gws = []uint32{uint32(RoundUpDiv4(channels)), 1, uint32(batch)}
	default:
		output.Resize([]int{batch, height, width, 1})
		gws = []uint32{1, uint32(width), uint32(batch * height)}
	}

	exec := rc.Executor
	if !k.state.Built() {
		name := device.ObfuscateSymbol(ProgramReduce, k.obfuscate)
		dt, err := device.DataTypeOptions(tensor.Float32)
		if err != nil {
			return err
		}
		modeOpt := "-DREDUCE_HW"
		if k.mode == ReduceC {
			modeOpt = "-DREDUCE_C"
		}
		opts := BuildOptions(exec, ProgramReduce, name, append(dt, modeOpt, fmt.Sprintf("-DREDUCE_TYPE=%d", int(k.typ)))...)
		if err := k.state.Build(exec, ProgramReduce, name, opts); err != nil {
			return err
		}
	}

	err := k.state.Rebind(exec, gws, input.Shape(), func(b *Binder) {
		b.Set(input)
		b.Set(output)
		b.Set(int32(height))
		b.Set(int32(width))
		b.Set(int32(channels))
	})
	if err != nil {
		return err
	}

	lws := Default3DLocalWS(exec, gws, k.state.MaxWorkGroupSize())
	key := TuningKey("reduce_opencl_kernel", output.Shape()...)
	return rc.Dispatcher.TuningOrRun(rc, k.state.Kernel(), key, gws, lws)
}

// reduceProgram emulates the reduce kernel. Arguments after the bounds:
// input, output, height, width, channels.
func reduceProgram(l *device.Launch) (device.WorkItemFunc, error) {
	bounds, i, err := l.Bounds()
	if err != nil {
		return nil, err
	}
	r := &argReader{l: l, i: i}
	in, out := r.tensor(), r.tensor()
	height, width, channels := r.int(), r.int(), r.int()
	if r.err != nil {
		return nil, r.err
	}
	code, err := strconv.Atoi(l.Defines["REDUCE_TYPE"])
	if err != nil || !reduce.Type(code).Valid() {
		return nil, status.Check(false, "%s: bad REDUCE_TYPE %q", l.Kernel, l.Defines["REDUCE_TYPE"])
	}
	typ := reduce.Type(code)
	if in.Size() != tensor.NumElements([]int{in.Dim(0), height, width, channels}) {
		return nil, status.Check(false, "%s: input %v does not match bound dims", l.Kernel, in.Shape())
	}
	src, dst := tensor.Data[float32](in), tensor.Data[float32](out)

	if l.Defined("REDUCE_C") {
		return func(gid [3]int) {
			if gid[0] >= bounds[0] || gid[1] >= bounds[1] || gid[2] >= bounds[2] {
				return
			}
			base := (gid[2]*width + gid[1]) * channels
			dst[gid[2]*width+gid[1]] = fold(typ, channels, func(c int) float32 { return src[base+c] })
		}, nil
	}
	return func(gid [3]int) {
		if gid[0] >= bounds[0] || gid[1] >= bounds[1] || gid[2] >= bounds[2] {
			return
		}
		b := gid[2]
		for c := gid[0] * 4; c < min(gid[0]*4+4, channels); c++ {
			dst[b*channels+c] = fold(typ, height*width, func(p int) float32 {
				return src[(b*height*width+p)*channels+c]
			})
		}
	}, nil
}

// fold reduces n values produced by at.
func fold(typ reduce.Type, n int, at func(i int) float32) float32 {
	switch typ {
	case reduce.Min, reduce.Max:
		acc := at(0)
		for i := 1; i < n; i++ {
			v := at(i)
			if (typ == reduce.Min && v < acc) || (typ == reduce.Max && v > acc) {
				acc = v
			}
		}
		return acc
	case reduce.Prod:
		acc := float32(1)
		for i := 0; i < n; i++ {
			acc *= at(i)
		}
		return acc
	}
	var acc float32
	for i := 0; i < n; i++ {
		acc += at(i)
	}
	if typ == reduce.Mean {
		acc /= float32(n)
	}
	return acc
}

package opencl

import (
	"math"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// Conv2DParams configures a convolution. Padding holds the total padding per
// spatial dimension; kernels pad by half of it at the top and left.
type Conv2DParams struct {
	Strides               [2]int
	Padding               [2]int
	Dilations             [2]int
	Activation            device.ActivationType
	ReluxMaxLimit         float32
	ActivationCoefficient float32
}

func (p Conv2DParams) withDefaults() Conv2DParams {
	for i := range 2 {
		if p.Strides[i] <= 0 {
			p.Strides[i] = 1
		}
		if p.Dilations[i] <= 0 {
			p.Dilations[i] = 1
		}
	}
	return p
}

// conv2dVariant describes one specialised convolution program.
type conv2dVariant struct {
	program   string
	tuningKey string
	localWS   func(DeviceInfo, []uint32, uint32) []uint32
	// spatial reports whether the program reads padding and dilation.
	spatial bool
}

var (
	conv1x1 = conv2dVariant{program: ProgramConv1x1, tuningKey: "conv2d_1x1_opencl_kernel", localWS: Conv1x1LocalWS}
	conv3x3 = conv2dVariant{program: ProgramConv3x3, tuningKey: "conv2d_3x3_opencl_kernel", localWS: Conv3x3LocalWS, spatial: true}
)

// Conv2DKernel runs an NHWC float convolution with an OIHW filter, picking
// the 1x1 or 3x3 program from the filter shape on first use.
type Conv2DKernel struct {
	params    Conv2DParams
	obfuscate bool
	variant   *conv2dVariant
	state     KernelState
}

// NewConv2DKernel returns a kernel for params.
func NewConv2DKernel(params Conv2DParams, obfuscate bool) (*Conv2DKernel, error) {
	if _, err := device.ActivationOptions(params.Activation); err != nil {
		return nil, err
	}
	return &Conv2DKernel{params: params.withDefaults(), obfuscate: obfuscate}, nil
}

// State exposes the kernel cache for inspection.
func (k *Conv2DKernel) State() *KernelState { return &k.state }

// OutputShape returns the NHWC output shape for input and an OIHW filter.
func (k *Conv2DKernel) OutputShape(input, filter []int) []int {
	p := k.params
	kh, kw := filter[2], filter[3]
	if kh == 1 && kw == 1 {
		p.Padding, p.Dilations = [2]int{}, [2]int{1, 1}
	}
	outH := (input[1]+p.Padding[0]-p.Dilations[0]*(kh-1)-1)/p.Strides[0] + 1
	outW := (input[2]+p.Padding[1]-p.Dilations[1]*(kw-1)-1)/p.Strides[1] + 1
	return []int{input[0], outH, outW, filter[0]}
}

// Compute convolves input with filter, adding bias when non-nil.
func (k *Conv2DKernel) Compute(rc *RunContext, input, filter, bias, output *tensor.Tensor) error {
	if input.Rank() != 4 || filter.Rank() != 4 {
		return status.Configurationf("conv2d needs 4-D input and filter, got %v and %v", input.Shape(), filter.Shape())
	}
	if input.DataType() != tensor.Float32 || filter.DataType() != tensor.Float32 {
		return status.NotImplementedf("gpu conv2d on %s", input.DataType())
	}
	if filter.Dim(1) != input.Dim(3) {
		return status.Configurationf("filter %v does not match input channels %d", filter.Shape(), input.Dim(3))
	}
	if bias != nil && bias.DataType() != tensor.Float32 {
		return status.NotImplementedf("gpu conv2d bias of %s", bias.DataType())
	}
	if bias != nil && bias.Size() != filter.Dim(0) {
		return status.Configurationf("bias holds %d values for %d output channels", bias.Size(), filter.Dim(0))
	}

	variant := k.variant
	if variant == nil {
		switch kh, kw := filter.Dim(2), filter.Dim(3); {
		case kh == 1 && kw == 1:
			variant = &conv1x1
		case kh == 3 && kw == 3:
			variant = &conv3x3
		default:
			return status.NotImplementedf("gpu conv2d with %dx%d filter", kh, kw)
		}
	} else if kh := filter.Dim(2); (variant == &conv1x1) != (kh == 1) {
		return status.Configurationf("conv2d filter changed from %s to %v", variant.program, filter.Shape())
	}

	outShape := k.OutputShape(input.Shape(), filter.Shape())
	if outShape[1] <= 0 || outShape[2] <= 0 {
		return status.Configurationf("conv2d output %v is empty for input %v", outShape, input.Shape())
	}
	if input.Dim(0) != outShape[0] {
		return status.Check(false, "conv2d batch mismatch")
	}
	output.Resize(outShape)
	batch, height, width, channels := outShape[0], outShape[1], outShape[2], outShape[3]

	exec := rc.Executor
	if !k.state.Built() {
		name := device.ObfuscateSymbol(variant.program, k.obfuscate)
		dt, err := device.DataTypeOptions(tensor.Float32)
		if err != nil {
			return err
		}
		act, err := device.ActivationOptions(k.params.Activation)
		if err != nil {
			return err
		}
		extra := append(dt, act...)
		if bias != nil {
			extra = append(extra, "-DBIAS")
		}
		if err := k.state.Build(exec, variant.program, name, BuildOptions(exec, variant.program, name, extra...)); err != nil {
			return err
		}
		k.variant = variant
	}

	gws := []uint32{
		uint32(RoundUpDiv4(channels)),
		uint32(RoundUpDiv4(width)),
		uint32(height * batch),
	}
	p := k.params
	err := k.state.Rebind(exec, gws, input.Shape(), func(b *Binder) {
		b.Set(input)
		b.Set(filter)
		if bias != nil {
			b.Set(bias)
		}
		b.Set(output)
		b.Set(p.ReluxMaxLimit)
		b.Set(p.ActivationCoefficient)
		b.Set(int32(input.Dim(1)))
		b.Set(int32(input.Dim(2)))
		b.Set(int32(RoundUpDiv4(input.Dim(3))))
		b.Set(int32(height))
		b.Set(int32(width))
		b.Set(int32(p.Strides[0]))
		b.Set(int32(p.Strides[1]))
		if variant.spatial {
			b.Set(int32(p.Padding[0] / 2))
			b.Set(int32(p.Padding[1] / 2))
			b.Set(int32(p.Dilations[0]))
			b.Set(int32(p.Dilations[1]))
		}
	})
	if err != nil {
		return err
	}

	lws := variant.localWS(exec, gws, k.state.MaxWorkGroupSize())
	key := TuningKey(variant.tuningKey, batch, height, width, channels)
	return rc.Dispatcher.TuningOrRun(rc, k.state.Kernel(), key, gws, lws)
}

// convArgs are the decoded arguments of a conv program launch.
type convArgs struct {
	in, filter, bias, out []float32
	inH, inW, inC         int
	outH, outW, outC      int
	kh, kw                int
	strideH, strideW      int
	padTop, padLeft       int
	dilH, dilW            int
	reluxMax, coef        float32
}

func decodeConvArgs(l *device.Launch, spatial bool) (*convArgs, [3]int, error) {
	bounds, i, err := l.Bounds()
	if err != nil {
		return nil, bounds, err
	}
	r := &argReader{l: l, i: i}
	in, filter := r.tensor(), r.tensor()
	var bias *tensor.Tensor
	if l.Defined("BIAS") {
		bias = r.tensor()
	}
	out := r.tensor()
	a := &convArgs{dilH: 1, dilW: 1}
	a.reluxMax, a.coef = r.float(), r.float()
	a.inH, a.inW = r.int(), r.int()
	_ = r.int() // input channel blocks
	a.outH, a.outW = r.int(), r.int()
	a.strideH, a.strideW = r.int(), r.int()
	if spatial {
		a.padTop, a.padLeft = r.int(), r.int()
		a.dilH, a.dilW = r.int(), r.int()
	}
	if r.err != nil {
		return nil, bounds, r.err
	}

	a.in, a.filter, a.out = tensor.Data[float32](in), tensor.Data[float32](filter), tensor.Data[float32](out)
	if bias != nil {
		a.bias = tensor.Data[float32](bias)
	}
	a.inC, a.outC = in.Dim(3), out.Dim(3)
	a.kh, a.kw = filter.Dim(2), filter.Dim(3)
	if in.Dim(1) != a.inH || in.Dim(2) != a.inW || out.Dim(1) != a.outH || out.Dim(2) != a.outW {
		return nil, bounds, status.Check(false, "%s: bound dims do not match tensors", l.Kernel)
	}
	return a, bounds, nil
}

// convProgram emulates the conv programs. Each work-item produces a block of
// four output channels by four output columns.
func convProgram(spatial bool) device.HostProgram {
	return func(l *device.Launch) (device.WorkItemFunc, error) {
		a, bounds, err := decodeConvArgs(l, spatial)
		if err != nil {
			return nil, err
		}
		act := activationFor(l)
		return func(gid [3]int) {
			if gid[0] >= bounds[0] || gid[1] >= bounds[1] || gid[2] >= bounds[2] {
				return
			}
			b, oh := gid[2]/a.outH, gid[2]%a.outH
			for oc := gid[0] * 4; oc < min(gid[0]*4+4, a.outC); oc++ {
				for ow := gid[1] * 4; ow < min(gid[1]*4+4, a.outW); ow++ {
					var sum float32
					if a.bias != nil {
						sum = a.bias[oc]
					}
					for y := 0; y < a.kh; y++ {
						ih := oh*a.strideH - a.padTop + y*a.dilH
						if ih < 0 || ih >= a.inH {
							continue
						}
						for x := 0; x < a.kw; x++ {
							iw := ow*a.strideW - a.padLeft + x*a.dilW
							if iw < 0 || iw >= a.inW {
								continue
							}
							src := ((b*a.inH+ih)*a.inW + iw) * a.inC
							for ic := 0; ic < a.inC; ic++ {
								sum += a.in[src+ic] * a.filter[((oc*a.inC+ic)*a.kh+y)*a.kw+x]
							}
						}
					}
					a.out[((b*a.outH+oh)*a.outW+ow)*a.outC+oc] = act(sum, a.reluxMax, a.coef)
				}
			}
		}, nil
	}
}

func activationFor(l *device.Launch) func(x, limit, coef float32) float32 {
	switch {
	case l.Defined("USE_RELU"):
		return func(x, _, _ float32) float32 { return max(x, 0) }
	case l.Defined("USE_RELUX"):
		return func(x, limit, _ float32) float32 { return min(max(x, 0), limit) }
	case l.Defined("USE_TANH"):
		return func(x, _, _ float32) float32 { return float32(math.Tanh(float64(x))) }
	case l.Defined("USE_SIGMOID"):
		return func(x, _, _ float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }
	case l.Defined("USE_LEAKYRELU"):
		return func(x, _, coef float32) float32 { return max(x, 0) + min(x, 0)*coef }
	case l.Defined("USE_ELU"):
		return func(x, _, coef float32) float32 {
			if x < 0 {
				return coef * float32(math.Exp(float64(x))-1)
			}
			return x
		}
	}
	return func(x, _, _ float32) float32 { return x }
}

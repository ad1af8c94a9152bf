package ops

import (
	"context"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/opencl"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

type conv2D struct {
	base
	kernel *opencl.Conv2DKernel
}

func pair(cc *ConstructContext, name string) ([2]int, error) {
	var out [2]int
	v, err := cc.Ints(name)
	if err != nil || v == nil {
		return out, err
	}
	if len(v) != 2 {
		return out, status.Configurationf("%s: %s needs 2 values, got %v", cc.OpType, name, v)
	}
	return [2]int{v[0], v[1]}, nil
}

// newConv2D reads strides, padding_values, dilations, activation, max_limit
// and activation_coefficient (leakyrelu_coefficient is an alias).
func newConv2D(cc *ConstructContext) (Operation, error) {
	if err := cc.expectTensors(2, 1); err != nil {
		return nil, err
	}
	var p opencl.Conv2DParams
	var err error
	if p.Strides, err = pair(cc, "strides"); err != nil {
		return nil, err
	}
	if p.Padding, err = pair(cc, "padding_values"); err != nil {
		return nil, err
	}
	if p.Dilations, err = pair(cc, "dilations"); err != nil {
		return nil, err
	}
	name, err := cc.String("activation", "NOOP")
	if err != nil {
		return nil, err
	}
	if p.Activation, err = device.ParseActivation(name); err != nil {
		return nil, err
	}
	if p.ReluxMaxLimit, err = cc.Float("max_limit", 0); err != nil {
		return nil, err
	}
	coefName := "activation_coefficient"
	if !cc.Has(coefName) && cc.Has("leakyrelu_coefficient") {
		coefName = "leakyrelu_coefficient"
	}
	if p.ActivationCoefficient, err = cc.Float(coefName, 0); err != nil {
		return nil, err
	}
	k, err := opencl.NewConv2DKernel(p, cc.Obfuscate)
	if err != nil {
		return nil, err
	}
	return &conv2D{base: newBase(cc), kernel: k}, nil
}

func (op *conv2D) Run(ctx *Context) error {
	return op.traced(ctx, func(c context.Context) error {
		rc, err := ctx.openCL(c)
		if err != nil {
			return err
		}
		var bias *tensor.Tensor
		if len(op.inputs) > 2 {
			bias = op.inputs[2]
		}
		return op.kernel.Compute(rc, op.inputs[0], op.inputs[1], bias, op.outputs[0])
	})
}

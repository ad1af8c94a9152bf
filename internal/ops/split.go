package ops

import (
	"context"

	"github.com/23skdu/longbow-kernels/internal/opencl"
	"github.com/23skdu/longbow-kernels/internal/status"
)

type split struct {
	base
	kernel *opencl.SplitKernel
}

// newSplit accepts axis 3 (or -1): the image kernel only splits channels.
func newSplit(cc *ConstructContext) (Operation, error) {
	if err := cc.expectTensors(1, 1); err != nil {
		return nil, err
	}
	axis, err := cc.Int("axis", 3)
	if err != nil {
		return nil, err
	}
	if axis != 3 && axis != -1 {
		return nil, status.NotImplementedf("gpu split along axis %d", axis)
	}
	return &split{base: newBase(cc), kernel: opencl.NewSplitKernel(cc.Obfuscate)}, nil
}

func (op *split) Run(ctx *Context) error {
	return op.traced(ctx, func(c context.Context) error {
		rc, err := ctx.openCL(c)
		if err != nil {
			return err
		}
		return op.kernel.Compute(rc, op.inputs[0], op.outputs)
	})
}

package ops

import (
	"context"

	"github.com/23skdu/longbow-kernels/internal/opencl"
	"github.com/23skdu/longbow-kernels/internal/reduce"
	"github.com/23skdu/longbow-kernels/internal/status"
)

// reduceConfig reads the Reduce arguments: reduce_type (int code or name,
// default mean), axis, keepdims and has_data_format.
func reduceConfig(cc *ConstructContext) (reduce.Config, error) {
	var cfg reduce.Config
	switch v := cc.Args["reduce_type"].(type) {
	case nil:
		cfg.Type = reduce.Mean
	case string:
		t, err := reduce.ParseType(v)
		if err != nil {
			return cfg, err
		}
		cfg.Type = t
	default:
		code, err := cc.Int("reduce_type", int(reduce.Mean))
		if err != nil {
			return cfg, err
		}
		cfg.Type = reduce.Type(code)
	}
	if !cfg.Type.Valid() {
		return cfg, status.Configurationf("unknown reduce type %d", int(cfg.Type))
	}

	var err error
	if cfg.Axes, err = cc.Ints("axis"); err != nil {
		return cfg, err
	}
	if cfg.KeepDims, err = cc.Bool("keepdims", false); err != nil {
		return cfg, err
	}
	if cfg.HasDataFormat, err = cc.Bool("has_data_format", false); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReducePlacement allows the GPU only for keep-dims reductions of a 4-D
// input over {H, W} or {C}.
func ReducePlacement(cc *ConstructContext) bool {
	cfg, err := reduceConfig(cc)
	if err != nil || !cfg.KeepDims {
		return false
	}
	if len(cc.Inputs) == 0 || cc.Inputs[0].Rank() != 4 {
		return false
	}
	_, ok := opencl.ReduceModeFor(cfg.Axes)
	return ok
}

type cpuReduce struct {
	base
	reducer *reduce.Reducer
}

func newCPUReduce(cc *ConstructContext) (Operation, error) {
	if err := cc.expectTensors(1, 1); err != nil {
		return nil, err
	}
	cfg, err := reduceConfig(cc)
	if err != nil {
		return nil, err
	}
	if err := reduce.CheckSupported(cfg.Type, cc.DataType); err != nil {
		return nil, err
	}
	r, err := reduce.NewReducer(cfg)
	if err != nil {
		return nil, err
	}
	return &cpuReduce{base: newBase(cc), reducer: r}, nil
}

func (op *cpuReduce) Run(ctx *Context) error {
	return op.traced(ctx, func(context.Context) error {
		return op.reducer.Run(ctx.pool(), op.inputs[0], op.outputs[0])
	})
}

type gpuReduce struct {
	base
	kernel *opencl.ReduceKernel
}

func newGPUReduce(cc *ConstructContext) (Operation, error) {
	if err := cc.expectTensors(1, 1); err != nil {
		return nil, err
	}
	cfg, err := reduceConfig(cc)
	if err != nil {
		return nil, err
	}
	if !cfg.KeepDims {
		return nil, status.Configurationf("gpu reduce requires keepdims")
	}
	k, err := opencl.NewReduceKernel(cfg.Type, cfg.Axes, cc.Obfuscate)
	if err != nil {
		return nil, err
	}
	return &gpuReduce{base: newBase(cc), kernel: k}, nil
}

func (op *gpuReduce) Run(ctx *Context) error {
	return op.traced(ctx, func(c context.Context) error {
		rc, err := ctx.openCL(c)
		if err != nil {
			return err
		}
		return op.kernel.Compute(rc, op.inputs[0], op.outputs[0])
	})
}

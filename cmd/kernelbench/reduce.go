package main

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-kernels/internal/ops"
	"github.com/23skdu/longbow-kernels/internal/reduce"
	"github.com/23skdu/longbow-kernels/internal/reference"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

type reduceOptions struct {
	in         inputOptions
	output     string
	typ        string
	axes       []int
	allAxes    bool
	keepDims   bool
	runtime    string
	iterations int
	verify     bool
	tolerance  float64
	outScale   float32
	outZero    int32
}

func newReduceCmd(root *rootOptions) *cobra.Command {
	o := &reduceOptions{}
	cmd := &cobra.Command{
		Use:   "reduce",
		Short: "Run a reduction, verify it against the reference and time it",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReduce(cmd, root, o)
		},
	}
	o.in.register(cmd, []int{1, 32, 32, 64})
	flags := cmd.Flags()
	flags.StringVar(&o.typ, "type", "mean", "Reduction (mean, min, max, prod, sum)")
	flags.IntSliceVar(&o.axes, "axes", []int{1, 2}, "Axes to reduce; negative values count from the end")
	flags.BoolVar(&o.allAxes, "all-axes", false, "Reduce every axis")
	flags.BoolVar(&o.keepDims, "keepdims", true, "Keep reduced axes as size 1")
	flags.StringVar(&o.runtime, "runtime", "cpu", "Preferred runtime (cpu, gpu)")
	flags.IntVarP(&o.iterations, "iterations", "n", 10, "Timed runs")
	flags.BoolVar(&o.verify, "verify", true, "Compare the result with the reference reduction")
	flags.Float64Var(&o.tolerance, "tolerance", 0, "Largest accepted relative error (0 picks one from the element type)")
	flags.StringVarP(&o.output, "output", "o", "", "Write the result as an Arrow IPC stream")
	flags.Float32Var(&o.outScale, "out-scale", 0, "Output scale of a quantized sum (0 derives one from the reduced count)")
	flags.Int32Var(&o.outZero, "out-zero-point", 128, "Output zero point of a quantized sum")
	return cmd
}

// reducedCount is how many input elements fold into each output element.
func reducedCount(shape, axes []int) int {
	if len(axes) == 0 {
		return tensor.NumElements(shape)
	}
	var seen []int
	n := 1
	for _, a := range axes {
		if a < 0 {
			a += len(shape)
		}
		if a < 0 || a >= len(shape) || slices.Contains(seen, a) {
			continue
		}
		seen = append(seen, a)
		n *= shape[a]
	}
	return n
}

// newReduceOutput allocates the result tensor. A quantized sum carries its
// own quantization; a zero scale derives one that keeps the mean code in
// range.
func newReduceOutput(input *tensor.Tensor, typ reduce.Type, axes []int, scale float32, zeroPoint int32) *tensor.Tensor {
	output := tensor.New("output", input.DataType())
	if input.DataType() == tensor.Uint8 && typ == reduce.Sum {
		if scale == 0 {
			scale = input.Scale() * float32(reducedCount(input.Shape(), axes))
		}
		output.SetScale(scale)
		output.SetZeroPoint(zeroPoint)
	}
	return output
}

// defaultTolerance bounds the relative error each element type can reach.
func defaultTolerance(out *tensor.Tensor) float64 {
	switch out.DataType() {
	case tensor.Float16:
		return 2e-2
	case tensor.Int32:
		return 1
	case tensor.Uint8:
		return float64(out.Scale())
	}
	return 1e-4
}

func runReduce(cmd *cobra.Command, root *rootOptions, o *reduceOptions) error {
	typ, err := reduce.ParseType(o.typ)
	if err != nil {
		return err
	}
	rt, err := ops.ParseRuntimeType(o.runtime)
	if err != nil {
		return err
	}
	input, err := o.in.load("input")
	if err != nil {
		return err
	}
	axes := o.axes
	if o.allAxes {
		axes = nil
	}

	output := newReduceOutput(input, typ, axes, o.outScale, o.outZero)

	eng, err := newEngine(root)
	if err != nil {
		return err
	}
	cc := &ops.ConstructContext{
		OpType:   ops.OpReduce,
		DataType: input.DataType(),
		Inputs:   []*tensor.Tensor{input},
		Outputs:  []*tensor.Tensor{output},
		Args: map[string]any{
			"reduce_type": typ.String(),
			"axis":        axes,
			"keepdims":    o.keepDims,
		},
	}
	op, err := eng.construct(cc, rt)
	if err != nil {
		return err
	}

	log.Info().Str("type", typ.String()).Ints("axes", axes).Ints("shape", input.Shape()).
		Str("runtime", op.Runtime().String()).Int("iterations", o.iterations).Msg("Running reduction")
	res, err := benchmark(cmd.Context(), eng, op, input, []*tensor.Tensor{output}, o.iterations)
	if err != nil {
		return err
	}

	if o.verify {
		want, wantShape, err := reference.Tensor(typ, input, axes, o.keepDims)
		if err != nil {
			return err
		}
		if !slices.Equal(wantShape, output.Shape()) {
			return fmt.Errorf("output shape %v, reference %v", output.Shape(), wantShape)
		}
		res.verified = true
		res.maxRelErr = reference.MaxRelativeError(output.Float32s(), want)
	}

	renderReport(cmd.OutOrStdout(), []*benchResult{res})

	if o.output != "" {
		if err := writeTensorFile(o.output, output); err != nil {
			return err
		}
		log.Info().Str("path", o.output).Ints("shape", output.Shape()).Msg("Wrote result")
	}
	if err := eng.close(); err != nil {
		return err
	}

	if res.verified {
		tol := o.tolerance
		if tol == 0 {
			tol = defaultTolerance(output)
		}
		if res.maxRelErr > tol {
			return fmt.Errorf("verification failed: max relative error %g exceeds %g", res.maxRelErr, tol)
		}
	}
	return nil
}

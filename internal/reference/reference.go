// Package reference computes reductions directly over the uncollapsed input
// shape in float64. It is slow and is used to verify the collapsed kernels.
package reference

import (
	"gonum.org/v1/gonum/floats"

	"github.com/23skdu/longbow-kernels/internal/reduce"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// Reduce folds data (row-major with the given shape) over axes. An empty
// axes list reduces every axis. It returns the output values and shape.
func Reduce(typ reduce.Type, data []float64, shape, axes []int, keepDims bool) ([]float64, []int, error) {
	rank := len(shape)
	if len(data) != tensor.NumElements(shape) {
		return nil, nil, status.Configurationf("%d values do not match shape %v", len(data), shape)
	}
	reduced := make([]bool, rank)
	if len(axes) == 0 {
		for i := range reduced {
			reduced[i] = true
		}
	}
	for _, axis := range axes {
		if axis < -rank || axis >= rank {
			return nil, nil, status.Configurationf("axis %d is out of range for rank %d", axis, rank)
		}
		if axis < 0 {
			axis += rank
		}
		reduced[axis] = true
	}

	var outShape, keptDims []int
	for i, d := range shape {
		switch {
		case !reduced[i]:
			outShape = append(outShape, d)
			keptDims = append(keptDims, i)
		case keepDims:
			outShape = append(outShape, 1)
		}
	}

	groups := make([][]float64, tensor.NumElements(outShape))
	index := make([]int, rank)
	for flat, v := range data {
		rem := flat
		for i := rank - 1; i >= 0; i-- {
			index[i] = rem % shape[i]
			rem /= shape[i]
		}
		o := 0
		for _, d := range keptDims {
			o = o*shape[d] + index[d]
		}
		groups[o] = append(groups[o], v)
	}

	out := make([]float64, len(groups))
	for i, g := range groups {
		switch typ {
		case reduce.Mean:
			out[i] = floats.Sum(g) / float64(len(g))
		case reduce.Min:
			out[i] = floats.Min(g)
		case reduce.Max:
			out[i] = floats.Max(g)
		case reduce.Prod:
			out[i] = floats.Prod(g)
		case reduce.Sum:
			out[i] = floats.Sum(g)
		default:
			return nil, nil, status.Configurationf("unknown reduce type %d", int(typ))
		}
	}
	if outShape == nil {
		outShape = []int{}
	}
	return out, outShape, nil
}

// Tensor runs Reduce over a tensor's dequantized values.
func Tensor(typ reduce.Type, t *tensor.Tensor, axes []int, keepDims bool) ([]float64, []int, error) {
	vals := t.Float32s()
	data := make([]float64, len(vals))
	for i, v := range vals {
		data[i] = float64(v)
	}
	return Reduce(typ, data, t.Shape(), axes, keepDims)
}

// MaxRelativeError returns the largest |got-want| / max(1, |want|).
func MaxRelativeError(got []float32, want []float64) float64 {
	worst := 0.0
	n := min(len(got), len(want))
	diff := make([]float64, n)
	scale := make([]float64, n)
	for i := 0; i < n; i++ {
		diff[i] = float64(got[i]) - want[i]
		scale[i] = max(1, abs(want[i]))
	}
	floats.Div(diff, scale)
	for _, d := range diff {
		worst = max(worst, abs(d))
	}
	return worst
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

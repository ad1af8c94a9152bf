package reduce

import (
	"slices"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// MaxRank is the largest collapsed rank the kernels execute.
const MaxRank = 4

// Plan is the per-invocation execution shape of a reduction.
//
// DataReshape alternates reduced and kept groups, starting with a reduced
// group when ReduceFirstAxis is set. Its product equals the input element
// count.
type Plan struct {
	DataReshape     []int
	ReduceFirstAxis bool
	OutShape        []int
}

// Plan validates the configured axes against shape and simplifies.
// Axes must satisfy -rank <= axis < rank.
func (c Config) Plan(shape []int, dtype tensor.DataType) (*Plan, error) {
	rank := len(shape)
	axes := make([]int, 0, len(c.Axes))
	remap := c.HasDataFormat && rank == 4 && dtype != tensor.Uint8
	for _, axis := range c.Axes {
		if axis < -rank || axis >= rank {
			return nil, status.Configurationf("axis %d is out of range for rank %d", axis, rank)
		}
		index := axis
		if index < 0 {
			index += rank
		}
		if remap {
			switch index {
			case 1, 2:
				index++
			case 3:
				index = 1
			}
		}
		axes = append(axes, index)
	}
	return Simplify(shape, axes, c.KeepDims, true)
}

// Simplify collapses shape and axes into at most four alternating groups.
//
// Consecutive dimensions with the same reduced/kept status merge into one
// extent, a size-1 dimension takes the status of its predecessor, and leading
// size-1 dimensions are skipped. An all-ones shape becomes [1] reduced.
// When axes is empty every dimension is reduced if reduceAllIfEmpty is set,
// otherwise none is.
func Simplify(shape, axes []int, keepDims, reduceAllIfEmpty bool) (*Plan, error) {
	rank := len(shape)
	for _, d := range shape {
		if d <= 0 {
			return nil, status.Configurationf("dimension %d in shape %v is not positive", d, shape)
		}
	}

	bitmap := make([]bool, rank)
	if len(axes) == 0 {
		if reduceAllIfEmpty {
			for i := range bitmap {
				bitmap[i] = true
			}
		}
	} else {
		for _, axis := range axes {
			if axis < -rank || axis >= rank {
				return nil, status.Configurationf("axis %d is out of range for rank %d", axis, rank)
			}
			if axis < 0 {
				axis += rank
			}
			bitmap[axis] = true
		}
	}

	p := &Plan{OutShape: make([]int, 0, rank)}
	for i, d := range shape {
		if !bitmap[i] {
			p.OutShape = append(p.OutShape, d)
		} else if keepDims {
			p.OutShape = append(p.OutShape, 1)
		}
	}

	dim := 0
	for dim < rank && shape[dim] == 1 {
		dim++
	}
	if dim >= rank {
		p.ReduceFirstAxis = true
		p.DataReshape = []int{1}
		return p, nil
	}

	p.ReduceFirstAxis = bitmap[dim]
	p.DataReshape = append(p.DataReshape, shape[dim])
	for dim++; dim < rank; dim++ {
		n := shape[dim]
		if n == 1 {
			bitmap[dim] = bitmap[dim-1]
		}
		if bitmap[dim-1] != bitmap[dim] {
			p.DataReshape = append(p.DataReshape, n)
		} else {
			p.DataReshape[len(p.DataReshape)-1] *= n
		}
	}

	if len(p.DataReshape) > MaxRank {
		return nil, status.NotImplementedf("reduction collapses to rank %d (reshape %v), at most %d is supported",
			len(p.DataReshape), p.DataReshape, MaxRank)
	}
	return p, nil
}

// Rank returns the collapsed rank.
func (p *Plan) Rank() int {
	return len(p.DataReshape)
}

// ReducedCount returns how many input elements fold into each output element.
func (p *Plan) ReducedCount() int {
	n := 1
	for i, d := range p.DataReshape {
		if p.reduced(i) {
			n *= d
		}
	}
	return n
}

// reduced reports whether group i of DataReshape is a reduced group.
func (p *Plan) reduced(i int) bool {
	return (i%2 == 0) == p.ReduceFirstAxis
}

// OutSize returns the number of output elements.
func (p *Plan) OutSize() int {
	return tensor.NumElements(p.OutShape)
}

// Equal reports whether two plans describe the same execution.
func (p *Plan) Equal(o *Plan) bool {
	return p.ReduceFirstAxis == o.ReduceFirstAxis &&
		slices.Equal(p.DataReshape, o.DataReshape) &&
		slices.Equal(p.OutShape, o.OutShape)
}

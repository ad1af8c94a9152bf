package reduce

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

func TestSimplify(t *testing.T) {
	cases := []struct {
		name        string
		shape, axes []int
		keepDims    bool
		reshape     []int
		first       bool
		out         []int
	}{
		{"middle axis", []int{2, 3, 4}, []int{1}, false, []int{2, 3, 4}, false, []int{2, 4}},
		{"middle axis keep", []int{2, 3, 4}, []int{1}, true, []int{2, 3, 4}, false, []int{2, 1, 4}},
		{"all axes implicit", []int{1, 1, 1, 8}, nil, false, []int{8}, true, []int{}},
		{"all axes keep", []int{1, 1, 1, 8}, nil, true, []int{8}, true, []int{1, 1, 1, 1}},
		{"unit dim inherits", []int{2, 1, 3}, []int{0}, false, []int{2, 3}, true, []int{1, 3}},
		{"alternating four", []int{2, 3, 4, 5}, []int{1, 3}, false, []int{2, 3, 4, 5}, false, []int{2, 4}},
		{"merge reduced run", []int{2, 3, 4, 5}, []int{1, 2}, true, []int{2, 12, 5}, false, []int{2, 1, 1, 5}},
		{"negative axis", []int{2, 3}, []int{-1}, false, []int{2, 3}, false, []int{2}},
		{"all ones", []int{1, 1, 1}, []int{1}, true, []int{1}, true, []int{1, 1, 1}},
		{"scalar", []int{}, nil, false, []int{1}, true, []int{}},
		{"duplicate axes", []int{4, 6}, []int{0, 0, -2}, false, []int{4, 6}, true, []int{6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Simplify(tc.shape, tc.axes, tc.keepDims, true)
			require.NoError(t, err)
			assert.Equal(t, tc.reshape, p.DataReshape)
			assert.Equal(t, tc.first, p.ReduceFirstAxis)
			assert.Equal(t, tc.out, p.OutShape)
		})
	}
}

func TestSimplify_EmptyAxesWithoutReduceAll(t *testing.T) {
	p, err := Simplify([]int{2, 3}, nil, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, p.DataReshape)
	assert.False(t, p.ReduceFirstAxis)
	assert.Equal(t, []int{2, 3}, p.OutShape)
}

func TestSimplify_MoreThanFourGroupsIsNotImplemented(t *testing.T) {
	_, err := Simplify([]int{2, 3, 4, 5, 6}, []int{0, 2, 4}, false, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrNotImplemented)
}

func TestSimplify_RejectsNonPositiveDims(t *testing.T) {
	_, err := Simplify([]int{2, 0, 3}, []int{1}, false, true)
	assert.ErrorIs(t, err, status.ErrConfiguration)
}

func TestConfigPlan_AxisRange(t *testing.T) {
	shape := []int{2, 3, 4}
	for _, axis := range []int{-3, -1, 0, 2} {
		_, err := Config{Type: Sum, Axes: []int{axis}}.Plan(shape, tensor.Float32)
		assert.NoError(t, err, "axis %d", axis)
	}
	for _, axis := range []int{-4, 3, 10} {
		_, err := Config{Type: Sum, Axes: []int{axis}}.Plan(shape, tensor.Float32)
		assert.ErrorIs(t, err, status.ErrConfiguration, "axis %d", axis)
	}
}

func TestConfigPlan_DataFormatRemap(t *testing.T) {
	cfg := Config{Type: Mean, Axes: []int{1}, HasDataFormat: true}

	p, err := cfg.Plan([]int{2, 3, 4, 5}, tensor.Float32)
	require.NoError(t, err)
	// axis 1 is read as axis 2 of the stored layout
	assert.Equal(t, []int{6, 4, 5}, p.DataReshape)
	assert.False(t, p.ReduceFirstAxis)
	assert.Equal(t, []int{2, 3, 5}, p.OutShape)

	// quantized tensors are never remapped
	p, err = cfg.Plan([]int{2, 3, 4, 5}, tensor.Uint8)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 20}, p.DataReshape)

	// neither are tensors of other ranks
	p, err = cfg.Plan([]int{2, 3, 4}, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, p.DataReshape)

	p, err = Config{Axes: []int{3}, HasDataFormat: true}.Plan([]int{2, 3, 4, 5}, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 20}, p.DataReshape)
}

func TestSimplify_Invariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for iter := 0; iter < 500; iter++ {
		rank := rng.IntN(6)
		shape := make([]int, rank)
		for i := range shape {
			shape[i] = 1 + rng.IntN(4)
		}
		var axes []int
		for i := 0; i < rank; i++ {
			if rng.IntN(2) == 0 {
				axes = append(axes, i)
			}
		}
		keep := rng.IntN(2) == 0

		p, err := Simplify(shape, axes, keep, true)
		if err != nil {
			require.ErrorIs(t, err, status.ErrNotImplemented, "shape %v axes %v", shape, axes)
			continue
		}
		assert.Equal(t, tensor.NumElements(shape), tensor.NumElements(p.DataReshape), "shape %v axes %v", shape, axes)
		assert.LessOrEqual(t, p.Rank(), MaxRank)
		for _, d := range p.DataReshape {
			assert.Positive(t, d)
		}
		assert.Equal(t, tensor.NumElements(shape), p.OutSize()*p.ReducedCount(), "shape %v axes %v", shape, axes)
		if keep {
			assert.Len(t, p.OutShape, rank)
			for _, axis := range axes {
				assert.Equal(t, 1, p.OutShape[axis])
			}
		}
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{Mean, Min, Max, Prod, Sum} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("median")
	assert.ErrorIs(t, err, status.ErrConfiguration)
}

func TestCheckSupported(t *testing.T) {
	assert.NoError(t, CheckSupported(Prod, tensor.Float32))
	assert.NoError(t, CheckSupported(Sum, tensor.Uint8))
	assert.ErrorIs(t, CheckSupported(Prod, tensor.Uint8), status.ErrNotImplemented)
	assert.ErrorIs(t, CheckSupported(Sum, tensor.Invalid), status.ErrNotImplemented)
	assert.ErrorIs(t, CheckSupported(Type(9), tensor.Float32), status.ErrConfiguration)
}

package threadpool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Compute1DCoversEachIndexOnce(t *testing.T) {
	cases := []struct {
		threads, start, end, step int
	}{
		{1, 0, 10, 1},
		{4, 0, 10, 1},
		{4, 0, 3, 1},
		{8, 0, 1000, 1},
		{3, 2, 17, 3},
		{16, 0, 5, 2},
	}
	for _, tc := range cases {
		pool := New(tc.threads)
		hits := make([]atomic.Int32, tc.end)
		pool.Compute1D(func(start, end, step int) {
			for i := start; i < end; i += step {
				hits[i].Add(1)
			}
		}, tc.start, tc.end, tc.step)

		for i := range hits {
			want := int32(0)
			if i >= tc.start && (i-tc.start)%tc.step == 0 {
				want = 1
			}
			assert.Equal(t, want, hits[i].Load(), "threads=%d index=%d", tc.threads, i)
		}
	}
}

func TestPool_Compute2DCoversEachCellOnce(t *testing.T) {
	cases := []struct {
		threads, rows, cols int
	}{
		{1, 3, 4},
		{4, 2, 9},
		{4, 9, 2},
		{8, 1, 100},
		{6, 5, 5},
		{32, 3, 1},
	}
	for _, tc := range cases {
		pool := New(tc.threads)
		hits := make([]atomic.Int32, tc.rows*tc.cols)
		var calls atomic.Int32
		pool.Compute2D(func(s0, e0, st0, s1, e1, st1 int) {
			calls.Add(1)
			for i := s0; i < e0; i += st0 {
				for j := s1; j < e1; j += st1 {
					hits[i*tc.cols+j].Add(1)
				}
			}
		}, 0, tc.rows, 1, 0, tc.cols, 1)

		for i := range hits {
			require.Equal(t, int32(1), hits[i].Load(), "threads=%d cell=%d", tc.threads, i)
		}
		assert.LessOrEqual(t, int(calls.Load()), max(tc.threads, 1)*2)
	}
}

func TestPool_EmptyRanges(t *testing.T) {
	pool := New(4)
	called := false
	pool.Compute1D(func(int, int, int) { called = true }, 5, 5, 1)
	pool.Compute2D(func(int, int, int, int, int, int) { called = true }, 0, 0, 1, 0, 4, 1)
	assert.False(t, called)
}

func TestSerial_SingleRange(t *testing.T) {
	var ranges [][2]int
	Serial{}.Compute1D(func(start, end, step int) {
		ranges = append(ranges, [2]int{start, end})
	}, 0, 7, 1)
	assert.Equal(t, [][2]int{{0, 7}}, ranges)
}

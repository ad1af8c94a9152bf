package reduce

import "github.com/x448/float16"

// arith is the element arithmetic a fold needs. Accumulation happens in the
// element type itself.
type arith[T any] interface {
	add(a, b T) T
	mul(a, b T) T
	less(a, b T) bool
	div(a T, n int) T
	zero() T
	one() T
}

type native[T ~int32 | ~float32] struct{}

func (native[T]) add(a, b T) T { return a + b }
func (native[T]) mul(a, b T) T { return a * b }
func (native[T]) less(a, b T) bool { return a < b }
func (native[T]) div(a T, n int) T { return a / T(n) }
func (native[T]) zero() T { return 0 }
func (native[T]) one() T { return 1 }

// half rounds back to binary16 after every operation.
type half struct{}

func (half) add(a, b float16.Float16) float16.Float16 {
	return float16.Fromfloat32(a.Float32() + b.Float32())
}

func (half) mul(a, b float16.Float16) float16.Float16 {
	return float16.Fromfloat32(a.Float32() * b.Float32())
}

func (half) less(a, b float16.Float16) bool {
	return a.Float32() < b.Float32()
}

func (half) div(a float16.Float16, n int) float16.Float16 {
	return float16.Fromfloat32(a.Float32() / float32(n))
}

func (half) zero() float16.Float16 { return float16.Fromfloat32(0) }
func (half) one() float16.Float16 { return float16.Fromfloat32(1) }

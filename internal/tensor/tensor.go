// Package tensor provides the dense, row-major tensors consumed by the kernels.
package tensor

import (
	"fmt"
	"slices"

	"github.com/x448/float16"

	"github.com/23skdu/longbow-kernels/internal/status"
)

// DataType tags the element type held by a Tensor.
type DataType int

const (
	Invalid DataType = iota
	Float32
	Float16
	Int32
	// Uint8 holds affine-quantized codes: real = scale * (code - zeroPoint).
	Uint8
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// Size returns the byte width of one element.
func (d DataType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	case Uint8:
		return 1
	default:
		return 0
	}
}

// ParseDataType maps a name such as "float32" to its DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32", "fp32", "f32":
		return Float32, nil
	case "float16", "fp16", "f16", "half":
		return Float16, nil
	case "int32", "i32", "int":
		return Int32, nil
	case "uint8", "u8", "quint8":
		return Uint8, nil
	}
	return Invalid, status.Configurationf("unknown data type %q", s)
}

// Element is the closed set of Go types backing a Tensor.
type Element interface {
	float32 | float16.Float16 | int32 | uint8
}

// Tensor is a dense row-major buffer with a shape. Quantized tensors also
// carry a scale and zero point.
type Tensor struct {
	name      string
	dtype     DataType
	shape     []int
	data      any
	scale     float32
	zeroPoint int32
}

// New allocates a zero-filled tensor.
func New(name string, dtype DataType, shape ...int) *Tensor {
	t := &Tensor{name: name, dtype: dtype, scale: 1}
	t.shape = slices.Clone(shape)
	t.data = makeBuffer(dtype, NumElements(shape))
	return t
}

// FromSlice wraps data (not copied) as a tensor of the given shape.
func FromSlice[T Element](name string, data []T, shape ...int) *Tensor {
	if len(data) != NumElements(shape) {
		panic(fmt.Sprintf("tensor %s: %d elements do not match shape %v", name, len(data), shape))
	}
	return &Tensor{
		name:  name,
		dtype: dataTypeOf[T](),
		shape: slices.Clone(shape),
		data:  data,
		scale: 1,
	}
}

func dataTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case int32:
		return Int32
	case uint8:
		return Uint8
	}
	return Invalid
}

func makeBuffer(dtype DataType, n int) any {
	switch dtype {
	case Float32:
		return make([]float32, n)
	case Float16:
		return make([]float16.Float16, n)
	case Int32:
		return make([]int32, n)
	case Uint8:
		return make([]uint8, n)
	}
	return nil
}

// NumElements returns the product of shape; an empty shape is a scalar.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) Name() string { return t.name }
func (t *Tensor) DataType() DataType { return t.dtype }
func (t *Tensor) Rank() int { return len(t.shape) }
func (t *Tensor) Size() int { return NumElements(t.shape) }

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Dim returns dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

func (t *Tensor) Scale() float32 { return t.scale }
func (t *Tensor) ZeroPoint() int32 { return t.zeroPoint }
func (t *Tensor) SetScale(s float32) { t.scale = s }
func (t *Tensor) SetZeroPoint(z int32) { t.zeroPoint = z }

// Resize changes the shape, reallocating when the buffer is too small.
// Existing contents are not preserved.
func (t *Tensor) Resize(shape []int) {
	n := NumElements(shape)
	t.shape = slices.Clone(shape)
	if bufferCap(t.data) < n {
		t.data = makeBuffer(t.dtype, n)
		return
	}
	t.data = reslice(t.data, n)
}

// Reshape changes the shape without touching the buffer.
func (t *Tensor) Reshape(shape []int) error {
	if NumElements(shape) != t.Size() {
		return fmt.Errorf("tensor %s: cannot reshape %v to %v", t.name, t.shape, shape)
	}
	t.shape = slices.Clone(shape)
	return nil
}

// Zero clears the buffer.
func (t *Tensor) Zero() {
	switch d := t.data.(type) {
	case []float32:
		clear(d)
	case []float16.Float16:
		clear(d)
	case []int32:
		clear(d)
	case []uint8:
		clear(d)
	}
}

func bufferCap(data any) int {
	switch d := data.(type) {
	case []float32:
		return cap(d)
	case []float16.Float16:
		return cap(d)
	case []int32:
		return cap(d)
	case []uint8:
		return cap(d)
	}
	return 0
}

func reslice(data any, n int) any {
	switch d := data.(type) {
	case []float32:
		return d[:n]
	case []float16.Float16:
		return d[:n]
	case []int32:
		return d[:n]
	case []uint8:
		return d[:n]
	}
	return data
}

// Data returns the typed buffer. It panics when T does not match the tensor's
// data type, which is always a programming error.
func Data[T Element](t *Tensor) []T {
	d, ok := t.data.([]T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("tensor %s: holds %s, not %T", t.name, t.dtype, zero))
	}
	return d
}

// Float32s converts the contents to float32 regardless of the element type.
// Quantized codes are dequantized.
func (t *Tensor) Float32s() []float32 {
	out := make([]float32, t.Size())
	switch d := t.data.(type) {
	case []float32:
		copy(out, d)
	case []float16.Float16:
		for i, v := range d {
			out[i] = v.Float32()
		}
	case []int32:
		for i, v := range d {
			out[i] = float32(v)
		}
	case []uint8:
		for i, v := range d {
			out[i] = t.scale * float32(int32(v)-t.zeroPoint)
		}
	}
	return out
}

// ShapeEqual reports whether a and b have identical dimensions.
func ShapeEqual(a, b []int) bool {
	return slices.Equal(a, b)
}

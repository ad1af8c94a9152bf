// Package tensorio stores tensors as Arrow IPC streams: one "data" column
// holding the flattened elements, with shape, element type and quantization
// parameters in the schema metadata.
package tensorio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowf16 "github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/x448/float16"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

const (
	keyName      = "kernels.name"
	keyShape     = "kernels.shape"
	keyDataType  = "kernels.dtype"
	keyScale     = "kernels.scale"
	keyZeroPoint = "kernels.zero_point"

	dataColumn = "data"
)

// DefaultChunkSize is the number of elements per record batch.
const DefaultChunkSize = 1 << 16

func arrowType(dt tensor.DataType) (arrow.DataType, error) {
	switch dt {
	case tensor.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case tensor.Float16:
		return arrow.FixedWidthTypes.Float16, nil
	case tensor.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case tensor.Uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	}
	return nil, status.NotImplementedf("arrow encoding of %s", dt)
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseShape(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 {
			return nil, status.Configurationf("bad shape %q", s)
		}
		shape[i] = d
	}
	return shape, nil
}

// Write encodes t as an Arrow IPC stream in batches of chunk elements
// (DefaultChunkSize when chunk <= 0).
func Write(w io.Writer, t *tensor.Tensor, chunk int) error {
	typ, err := arrowType(t.DataType())
	if err != nil {
		return err
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	md := arrow.NewMetadata(
		[]string{keyName, keyShape, keyDataType, keyScale, keyZeroPoint},
		[]string{
			t.Name(),
			formatShape(t.Shape()),
			t.DataType().String(),
			strconv.FormatFloat(float64(t.Scale()), 'g', -1, 32),
			strconv.Itoa(int(t.ZeroPoint())),
		},
	)
	schema := arrow.NewSchema([]arrow.Field{{Name: dataColumn, Type: typ}}, &md)

	mem := memory.NewGoAllocator()
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	n := t.Size()
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		col := buildColumn(mem, t, start, end)
		rec := array.NewRecordBatch(schema, []arrow.Array{col}, int64(end-start))
		err := writer.Write(rec)
		rec.Release()
		col.Release()
		if err != nil {
			_ = writer.Close()
			return fmt.Errorf("write tensor %s: %w", t.Name(), err)
		}
	}
	return writer.Close()
}

func buildColumn(mem memory.Allocator, t *tensor.Tensor, start, end int) arrow.Array {
	switch t.DataType() {
	case tensor.Float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(tensor.Data[float32](t)[start:end], nil)
		return b.NewArray()
	case tensor.Float16:
		b := array.NewFloat16Builder(mem)
		defer b.Release()
		for _, v := range tensor.Data[float16.Float16](t)[start:end] {
			b.Append(arrowf16.FromBits(v.Bits()))
		}
		return b.NewArray()
	case tensor.Int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(tensor.Data[int32](t)[start:end], nil)
		return b.NewArray()
	default:
		b := array.NewUint8Builder(mem)
		defer b.Release()
		b.AppendValues(tensor.Data[uint8](t)[start:end], nil)
		return b.NewArray()
	}
}

func metadataValue(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

// Read decodes a tensor written by Write.
func Read(r io.Reader) (*tensor.Tensor, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open tensor stream: %w", err)
	}
	defer reader.Release()

	md := reader.Schema().Metadata()
	dtName, ok := metadataValue(md, keyDataType)
	if !ok {
		return nil, status.Configurationf("tensor stream has no %s metadata", keyDataType)
	}
	dt, err := tensor.ParseDataType(dtName)
	if err != nil {
		return nil, err
	}
	shapeText, ok := metadataValue(md, keyShape)
	if !ok {
		return nil, status.Configurationf("tensor stream has no %s metadata", keyShape)
	}
	shape, err := parseShape(shapeText)
	if err != nil {
		return nil, err
	}
	name, _ := metadataValue(md, keyName)

	t := tensor.New(name, dt, shape...)
	if s, ok := metadataValue(md, keyScale); ok {
		scale, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, status.Configurationf("bad scale %q", s)
		}
		t.SetScale(float32(scale))
	}
	if s, ok := metadataValue(md, keyZeroPoint); ok {
		zp, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, status.Configurationf("bad zero point %q", s)
		}
		t.SetZeroPoint(int32(zp))
	}

	offset := 0
	for reader.Next() {
		rec := reader.Record()
		if rec.NumCols() != 1 {
			return nil, status.Configurationf("tensor batch has %d columns", rec.NumCols())
		}
		n, err := copyColumn(t, offset, rec.Column(0))
		if err != nil {
			return nil, err
		}
		offset += n
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read tensor stream: %w", err)
	}
	if offset != t.Size() {
		return nil, status.Configurationf("tensor %s holds %d elements, shape %v needs %d", name, offset, shape, t.Size())
	}
	return t, nil
}

func copyColumn(t *tensor.Tensor, offset int, col arrow.Array) (int, error) {
	if col.NullN() > 0 {
		return 0, status.Configurationf("tensor column holds %d nulls", col.NullN())
	}
	if offset+col.Len() > t.Size() {
		return 0, status.Configurationf("tensor column overflows shape %v", t.Shape())
	}
	switch a := col.(type) {
	case *array.Float32:
		if t.DataType() == tensor.Float32 {
			return copy(tensor.Data[float32](t)[offset:], a.Float32Values()), nil
		}
	case *array.Float16:
		if t.DataType() == tensor.Float16 {
			dst := tensor.Data[float16.Float16](t)[offset:]
			for i, v := range a.Values() {
				dst[i] = float16.Frombits(v.Uint16())
			}
			return a.Len(), nil
		}
	case *array.Int32:
		if t.DataType() == tensor.Int32 {
			return copy(tensor.Data[int32](t)[offset:], a.Int32Values()), nil
		}
	case *array.Uint8:
		if t.DataType() == tensor.Uint8 {
			return copy(tensor.Data[uint8](t)[offset:], a.Uint8Values()), nil
		}
	}
	return 0, status.Configurationf("column of %s does not match %s tensor", col.DataType(), t.DataType())
}

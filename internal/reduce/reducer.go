package reduce

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/x448/float16"

	"github.com/23skdu/longbow-kernels/internal/quantize"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/threadpool"
)

// Reducer runs a configured reduction on host tensors.
type Reducer struct {
	cfg  Config
	plan *Plan
	// shape the cached plan was computed for
	shape []int
}

// NewReducer validates cfg and returns a Reducer. Plans are computed lazily
// per input shape.
func NewReducer(cfg Config) (*Reducer, error) {
	if !cfg.Type.Valid() {
		return nil, status.Configurationf("unknown reduce type %d", int(cfg.Type))
	}
	return &Reducer{cfg: cfg}, nil
}

// Config returns the reducer's configuration.
func (r *Reducer) Config() Config {
	return r.cfg
}

// Run reduces input into output, resizing output to the plan's out shape.
// For uint8 inputs, output inherits the input's quantization parameters
// unless the type is Sum, in which case both tensors must carry valid scales.
func (r *Reducer) Run(pool threadpool.ThreadPool, input, output *tensor.Tensor) error {
	if err := CheckSupported(r.cfg.Type, input.DataType()); err != nil {
		return err
	}
	if output.DataType() != input.DataType() {
		return status.Configurationf("output %s has type %s, input %s has %s",
			output.Name(), output.DataType(), input.Name(), input.DataType())
	}

	shape := input.Shape()
	if r.plan == nil || !tensor.ShapeEqual(shape, r.shape) {
		p, err := r.cfg.Plan(shape, input.DataType())
		if err != nil {
			return err
		}
		r.plan, r.shape = p, shape
		log.Debug().
			Str("type", r.cfg.Type.String()).
			Ints("shape", shape).
			Ints("reshape", p.DataReshape).
			Bool("reduce_first", p.ReduceFirstAxis).
			Ints("out_shape", p.OutShape).
			Msg("reduce plan")
	}

	output.Resize(r.plan.OutShape)
	if input.DataType() == tensor.Uint8 && r.cfg.Type != Sum {
		output.SetScale(input.Scale())
		output.SetZeroPoint(input.ZeroPoint())
	}
	return Execute(pool, r.plan, r.cfg.Type, input, output)
}

// Execute runs p over input into output. output must already hold
// p.OutSize elements; it is zeroed before the kernel runs.
func Execute(pool threadpool.ThreadPool, p *Plan, typ Type, input, output *tensor.Tensor) error {
	if err := CheckSupported(typ, input.DataType()); err != nil {
		return err
	}
	if n := p.Rank(); n < 1 || n > MaxRank {
		return status.NotImplementedf("reduce kernel for collapsed rank %d", n)
	}
	if output.Size() != p.OutSize() {
		return status.Configurationf("output %s holds %d elements, plan produces %d",
			output.Name(), output.Size(), p.OutSize())
	}
	if input.Size() != tensor.NumElements(p.DataReshape) {
		return status.Configurationf("input %s holds %d elements, plan expects %d",
			input.Name(), input.Size(), tensor.NumElements(p.DataReshape))
	}
	if pool == nil {
		pool = threadpool.Serial{}
	}

	started := time.Now()
	output.Zero()
	switch input.DataType() {
	case tensor.Float32:
		in, out := tensor.Data[float32](input), tensor.Data[float32](output)
		execute(pool, in, out, p, foldCell[float32, native[float32]](in, typ))
	case tensor.Int32:
		in, out := tensor.Data[int32](input), tensor.Data[int32](output)
		execute(pool, in, out, p, foldCell[int32, native[int32]](in, typ))
	case tensor.Float16:
		in, out := tensor.Data[float16.Float16](input), tensor.Data[float16.Float16](output)
		execute(pool, in, out, p, foldCell[float16.Float16, half](in, typ))
	case tensor.Uint8:
		inQ := quantize.Params{Scale: input.Scale(), ZeroPoint: input.ZeroPoint()}
		outQ := quantize.Params{Scale: output.Scale(), ZeroPoint: output.ZeroPoint()}
		if typ == Sum && (!inQ.Valid() || !outQ.Valid()) {
			return status.Configurationf("quantized sum needs valid scales, got input %v output %v",
				input.Scale(), output.Scale())
		}
		in, out := tensor.Data[uint8](input), tensor.Data[uint8](output)
		execute(pool, in, out, p, quantizedCell(in, typ, inQ, outQ))
	}

	reduceDuration.WithLabelValues(typ.String(), input.DataType().String(), strconv.Itoa(p.Rank())).
		Observe(time.Since(started).Seconds())
	reduceElements.WithLabelValues(typ.String()).Add(float64(input.Size()))
	return nil
}

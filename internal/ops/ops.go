// Package ops wires kernels into operations: the unit a graph executor
// constructs once per node and runs once per inference.
package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/opencl"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/threadpool"
)

var tracer = otel.Tracer("longbow-kernels/ops")

// RuntimeType is where an operation executes.
type RuntimeType int

const (
	CPU RuntimeType = iota
	OpenCL
)

func (r RuntimeType) String() string {
	switch r {
	case CPU:
		return "cpu"
	case OpenCL:
		return "opencl"
	}
	return fmt.Sprintf("RuntimeType(%d)", int(r))
}

// ParseRuntimeType accepts "cpu", "gpu" and "opencl".
func ParseRuntimeType(s string) (RuntimeType, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return CPU, nil
	case "gpu", "opencl":
		return OpenCL, nil
	}
	return CPU, status.Configurationf("unknown runtime %q", s)
}

// Context carries the per-run handles an operation may need.
type Context struct {
	Ctx        context.Context
	ThreadPool threadpool.ThreadPool
	Executor   device.Executor
	// Dispatcher picks local work sizes. Nil launches with the heuristic hint.
	Dispatcher opencl.Dispatcher
	// Future receives profiling stats of GPU runs when non-nil.
	Future *device.Future
	// FakeWarmup builds kernels and binds arguments without launching.
	FakeWarmup bool
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) pool() threadpool.ThreadPool {
	if c.ThreadPool == nil {
		return threadpool.Serial{}
	}
	return c.ThreadPool
}

func (c *Context) openCL(ctx context.Context) (*opencl.RunContext, error) {
	if c.Executor == nil {
		return nil, status.Configurationf("opencl operation run without a device executor")
	}
	dispatcher := c.Dispatcher
	if dispatcher == nil {
		dispatcher = opencl.NewTuner(nil, false)
	}
	return &opencl.RunContext{
		Ctx:        ctx,
		Executor:   c.Executor,
		Dispatcher: dispatcher,
		Future:     c.Future,
		FakeWarmup: c.FakeWarmup,
	}, nil
}

// Operation is one constructed operator node.
type Operation interface {
	Type() string
	Runtime() RuntimeType
	DataType() tensor.DataType
	// Run executes the operation over the tensors it was constructed with.
	Run(ctx *Context) error
}

// ConstructContext describes the node being constructed: its type,
// placement, tensors and arguments.
type ConstructContext struct {
	OpType    string
	Runtime   RuntimeType
	DataType  tensor.DataType
	Inputs    []*tensor.Tensor
	Outputs   []*tensor.Tensor
	Args      map[string]any
	Obfuscate bool
}

// Has reports whether argument name was supplied.
func (c *ConstructContext) Has(name string) bool {
	_, ok := c.Args[name]
	return ok
}

// Int returns integer argument name, or def when absent.
func (c *ConstructContext) Int(name string, def int) (int, error) {
	v, ok := c.Args[name]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return def, status.Configurationf("%s: argument %s is %T, want int", c.OpType, name, v)
}

// Ints returns repeated integer argument name, nil when absent.
func (c *ConstructContext) Ints(name string) ([]int, error) {
	v, ok := c.Args[name]
	if !ok {
		return nil, nil
	}
	switch n := v.(type) {
	case []int:
		return n, nil
	case []int32:
		out := make([]int, len(n))
		for i, x := range n {
			out[i] = int(x)
		}
		return out, nil
	case []int64:
		out := make([]int, len(n))
		for i, x := range n {
			out[i] = int(x)
		}
		return out, nil
	}
	return nil, status.Configurationf("%s: argument %s is %T, want []int", c.OpType, name, v)
}

// Bool returns boolean argument name, or def when absent. Integers are
// accepted with non-zero meaning true.
func (c *ConstructContext) Bool(name string, def bool) (bool, error) {
	v, ok := c.Args[name]
	if !ok {
		return def, nil
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := c.Int(name, 0)
	if err != nil {
		return def, status.Configurationf("%s: argument %s is %T, want bool", c.OpType, name, v)
	}
	return n != 0, nil
}

// Float returns float argument name, or def when absent.
func (c *ConstructContext) Float(name string, def float32) (float32, error) {
	v, ok := c.Args[name]
	if !ok {
		return def, nil
	}
	switch f := v.(type) {
	case float32:
		return f, nil
	case float64:
		return float32(f), nil
	case int:
		return float32(f), nil
	}
	return def, status.Configurationf("%s: argument %s is %T, want float", c.OpType, name, v)
}

// String returns string argument name, or def when absent.
func (c *ConstructContext) String(name, def string) (string, error) {
	v, ok := c.Args[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, status.Configurationf("%s: argument %s is %T, want string", c.OpType, name, v)
	}
	return s, nil
}

func (c *ConstructContext) expectTensors(inputs, outputs int) error {
	if len(c.Inputs) < inputs {
		return status.Configurationf("%s needs %d inputs, got %d", c.OpType, inputs, len(c.Inputs))
	}
	if len(c.Outputs) < outputs {
		return status.Configurationf("%s needs %d outputs, got %d", c.OpType, outputs, len(c.Outputs))
	}
	return nil
}

// base holds what every operation shares.
type base struct {
	opType  string
	runtime RuntimeType
	dtype   tensor.DataType
	inputs  []*tensor.Tensor
	outputs []*tensor.Tensor
}

func newBase(cc *ConstructContext) base {
	return base{opType: cc.OpType, runtime: cc.Runtime, dtype: cc.DataType, inputs: cc.Inputs, outputs: cc.Outputs}
}

func (b *base) Type() string { return b.opType }
func (b *base) Runtime() RuntimeType { return b.runtime }
func (b *base) DataType() tensor.DataType { return b.dtype }

// traced runs fn inside a span and records run metrics.
func (b *base) traced(ctx *Context, fn func(ctx context.Context) error) error {
	spanCtx, span := tracer.Start(ctx.context(), b.opType, trace.WithAttributes(
		attribute.String("op.type", b.opType),
		attribute.String("op.runtime", b.runtime.String()),
		attribute.String("op.dtype", b.dtype.String()),
		attribute.IntSlice("op.input_shape", b.inputs[0].Shape()),
		attribute.Bool("op.fake_warmup", ctx.FakeWarmup),
	))
	defer span.End()

	start := time.Now()
	err := fn(spanCtx)
	labels := []string{b.opType, b.runtime.String()}
	opRunDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	if err != nil {
		opRunErrors.WithLabelValues(labels...).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s on %s: %w", b.opType, b.runtime, err)
	}
	opRuns.WithLabelValues(labels...).Inc()
	return nil
}

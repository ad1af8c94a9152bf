package ops

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// Factory constructs an operation for a node.
type Factory func(cc *ConstructContext) (Operation, error)

// PlacementFunc reports whether a node may run on a non-CPU runtime.
type PlacementFunc func(cc *ConstructContext) bool

// Key identifies one registered factory.
type Key struct {
	Op       string
	Runtime  RuntimeType
	DataType tensor.DataType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Op, k.Runtime, k.DataType)
}

// Registry maps (op, runtime, dtype) to factories. It is filled once at
// start-up and then only read.
type Registry struct {
	factories  map[Key]Factory
	placements map[string]PlacementFunc
}

func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[Key]Factory),
		placements: make(map[string]PlacementFunc),
	}
}

// Register adds f under (op, rt, dt). Registering a key twice is an error.
func (r *Registry) Register(op string, rt RuntimeType, dt tensor.DataType, f Factory) error {
	k := Key{Op: op, Runtime: rt, DataType: dt}
	if _, ok := r.factories[k]; ok {
		return status.Configurationf("operation %s already registered", k)
	}
	r.factories[k] = f
	return nil
}

// SetPlacement installs the rule deciding when op may leave the CPU.
func (r *Registry) SetPlacement(op string, fn PlacementFunc) {
	r.placements[op] = fn
}

// Registered reports whether a factory exists for the key.
func (r *Registry) Registered(op string, rt RuntimeType, dt tensor.DataType) bool {
	_, ok := r.factories[Key{Op: op, Runtime: rt, DataType: dt}]
	return ok
}

// Keys lists every registered key in a stable order.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(
			cmp.Compare(a.Op, b.Op),
			cmp.Compare(a.Runtime, b.Runtime),
			cmp.Compare(a.DataType, b.DataType),
		)
	})
	return keys
}

// Place returns preferred when a factory is registered for it and the op's
// placement rule accepts the node, CPU otherwise.
func (r *Registry) Place(cc *ConstructContext, preferred RuntimeType) RuntimeType {
	if preferred == CPU || !r.Registered(cc.OpType, preferred, cc.DataType) {
		return CPU
	}
	if fn, ok := r.placements[cc.OpType]; ok && !fn(cc) {
		log.Debug().Str("op", cc.OpType).Str("runtime", preferred.String()).Msg("placement rule kept op on cpu")
		return CPU
	}
	return preferred
}

// Create constructs the operation registered for cc.
func (r *Registry) Create(cc *ConstructContext) (Operation, error) {
	k := Key{Op: cc.OpType, Runtime: cc.Runtime, DataType: cc.DataType}
	f, ok := r.factories[k]
	if !ok {
		return nil, status.NotImplementedf("no operation registered for %s", k)
	}
	op, err := f(cc)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", k, err)
	}
	opConstructions.WithLabelValues(cc.OpType, cc.Runtime.String(), cc.DataType.String()).Inc()
	return op, nil
}

// Operation type names.
const (
	OpReduce = "Reduce"
	OpConv2D = "Conv2D"
	OpSplit  = "Split"
)

// RegisterDefaults registers every operation in this package.
func RegisterDefaults(r *Registry) error {
	regs := []struct {
		op string
		rt RuntimeType
		dt tensor.DataType
		f  Factory
	}{
		{OpReduce, CPU, tensor.Float32, newCPUReduce},
		{OpReduce, CPU, tensor.Float16, newCPUReduce},
		{OpReduce, CPU, tensor.Int32, newCPUReduce},
		{OpReduce, CPU, tensor.Uint8, newCPUReduce},
		{OpReduce, OpenCL, tensor.Float32, newGPUReduce},
		{OpConv2D, OpenCL, tensor.Float32, newConv2D},
		{OpSplit, OpenCL, tensor.Float32, newSplit},
	}
	for _, reg := range regs {
		if err := r.Register(reg.op, reg.rt, reg.dt, reg.f); err != nil {
			return err
		}
	}
	r.SetPlacement(OpReduce, ReducePlacement)
	return nil
}

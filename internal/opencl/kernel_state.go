package opencl

import (
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/status"
)

// State is the lifecycle stage of a KernelState.
type State int

const (
	Unbuilt State = iota
	ArgsStale
	ArgsFresh
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case ArgsStale:
		return "args-stale"
	case ArgsFresh:
		return "args-fresh"
	}
	return "unknown"
}

// KernelState owns one operator instance's compiled kernel, its max
// work-group size and the input shape its arguments were last bound for.
//
// The kernel is built once; arguments are rebound only when the input shape
// changes. A KernelState must not be used from several goroutines at once.
type KernelState struct {
	kernel    device.Kernel
	kwg       uint32
	prevShape []int
	bound     bool
}

// State reports the current lifecycle stage.
func (s *KernelState) State() State {
	switch {
	case s.kernel == nil:
		return Unbuilt
	case !s.bound:
		return ArgsStale
	}
	return ArgsFresh
}

// Kernel returns the compiled kernel, nil before Build.
func (s *KernelState) Kernel() device.Kernel { return s.kernel }

// MaxWorkGroupSize returns the size queried at build time.
func (s *KernelState) MaxWorkGroupSize() uint32 { return s.kwg }

// Built reports whether the kernel has been compiled.
func (s *KernelState) Built() bool { return s.kernel != nil }

// Build compiles program once. Later calls are no-ops.
func (s *KernelState) Build(exec device.Executor, program, kernelName string, options []string) error {
	if s.kernel != nil {
		return nil
	}
	k, err := exec.BuildKernel(program, kernelName, options)
	if err != nil {
		return err
	}
	s.kernel = k
	s.kwg = uint32(min(exec.KernelMaxWorkGroupSize(k), uint64(^uint32(0))))
	s.bound = false
	s.prevShape = nil
	kernelStateBuilds.WithLabelValues(program).Inc()
	return nil
}

// ResetArgsNeeded reports whether arguments must be rebound for shape.
func (s *KernelState) ResetArgsNeeded(shape []int) bool {
	return !s.bound || !slices.Equal(s.prevShape, shape)
}

// MarkBound records that arguments are bound for shape.
func (s *KernelState) MarkBound(shape []int) {
	s.prevShape = slices.Clone(shape)
	s.bound = true
}

// Invalidate forces the next invocation to rebind.
func (s *KernelState) Invalidate() {
	s.bound = false
}

// Binder sets kernel arguments in positional order. The first failure is
// kept and every later call becomes a no-op.
type Binder struct {
	kernel device.Kernel
	idx    uint32
	err    error
}

// NewBinder starts binding at index 0. When the device cannot run
// non-uniform work-groups the logical global size is bound first.
func NewBinder(exec device.Executor, k device.Kernel, gws []uint32) *Binder {
	b := &Binder{kernel: k}
	if !exec.NonUniformWorkGroupsSupported() {
		for _, g := range gws {
			b.Set(g)
		}
	}
	return b
}

// Set binds v at the next index.
func (b *Binder) Set(v any) {
	if b.err != nil {
		return
	}
	b.err = b.kernel.SetArg(b.idx, v)
	b.idx++
}

// Count returns how many arguments have been bound.
func (b *Binder) Count() uint32 { return b.idx }

// Err returns the first binding error.
func (b *Binder) Err() error { return b.err }

// Rebind binds arguments through bind when shape differs from the last bound
// shape, then marks the state fresh.
func (s *KernelState) Rebind(exec device.Executor, gws []uint32, shape []int, bind func(b *Binder)) error {
	if !s.ResetArgsNeeded(shape) {
		return nil
	}
	if s.kernel == nil {
		return status.Check(false, "rebind before build")
	}
	b := NewBinder(exec, s.kernel, gws)
	bind(b)
	if err := b.Err(); err != nil {
		s.bound = false
		return err
	}
	s.MarkBound(shape)
	kernelStateRebinds.WithLabelValues(s.kernel.Name()).Inc()
	log.Debug().Str("kernel", s.kernel.Name()).Ints("shape", shape).Uint32("args", b.Count()).Msg("rebound kernel args")
	return nil
}

// BuildOptions assembles the common option set: the entry-point define and,
// when supported, the non-uniform work-group define.
func BuildOptions(exec device.Executor, program, kernelName string, extra ...string) []string {
	opts := []string{device.EntryOption(program, kernelName)}
	if exec.NonUniformWorkGroupsSupported() {
		opts = append(opts, device.NonUniformWorkGroupOption)
	}
	for _, o := range extra {
		if o != "" {
			opts = append(opts, o)
		}
	}
	return opts
}

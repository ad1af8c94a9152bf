package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/threadpool"
)

var (
	// ErrUnknownProgram is returned when building a program nobody registered.
	ErrUnknownProgram = errors.New("unknown program")
	// ErrUnboundArg is returned when launching a kernel with a missing argument.
	ErrUnboundArg = errors.New("kernel argument not bound")
)

// ensure interface compliance
var _ Executor = (*HostExecutor)(nil)
var _ Kernel = (*hostKernel)(nil)

// WorkItemFunc computes one work-item of a launch.
type WorkItemFunc func(gid [3]int)

// HostProgram prepares a launch on the host. It decodes the bound arguments
// once and returns the per-work-item body.
type HostProgram func(l *Launch) (WorkItemFunc, error)

// Launch is what a HostProgram sees of one enqueue.
type Launch struct {
	Kernel  string
	Defines map[string]string
	Args    []any
	GWS     [3]int
	LWS     [3]int
}

// Defined reports whether the kernel was built with -Dname.
func (l *Launch) Defined(name string) bool {
	_, ok := l.Defines[name]
	return ok
}

// Tensor returns argument i as a tensor.
func (l *Launch) Tensor(i int) (*tensor.Tensor, error) {
	if i >= len(l.Args) {
		return nil, status.Check(false, "%s: argument %d missing", l.Kernel, i)
	}
	t, ok := l.Args[i].(*tensor.Tensor)
	if !ok {
		return nil, status.Check(false, "%s: argument %d is %T, want tensor", l.Kernel, i, l.Args[i])
	}
	return t, nil
}

// Int returns argument i as an int. Both int32 and uint32 are accepted.
func (l *Launch) Int(i int) (int, error) {
	if i >= len(l.Args) {
		return 0, status.Check(false, "%s: argument %d missing", l.Kernel, i)
	}
	switch v := l.Args[i].(type) {
	case int32:
		return int(v), nil
	case uint32:
		return int(v), nil
	}
	return 0, status.Check(false, "%s: argument %d is %T, want int32", l.Kernel, i, l.Args[i])
}

// Float returns argument i as a float32.
func (l *Launch) Float(i int) (float32, error) {
	if i >= len(l.Args) {
		return 0, status.Check(false, "%s: argument %d missing", l.Kernel, i)
	}
	v, ok := l.Args[i].(float32)
	if !ok {
		return 0, status.Check(false, "%s: argument %d is %T, want float32", l.Kernel, i, l.Args[i])
	}
	return v, nil
}

// Bounds returns the logical global size of the launch and the index of the
// first kernel-specific argument. Without non-uniform work-group support the
// logical size is passed in the first three arguments.
func (l *Launch) Bounds() ([3]int, int, error) {
	if l.Defined("NON_UNIFORM_WORK_GROUP") {
		return l.GWS, 0, nil
	}
	var b [3]int
	for i := range b {
		v, err := l.Int(i)
		if err != nil {
			return b, 0, err
		}
		b[i] = v
	}
	return b, 3, nil
}

// HostConfig describes the device a HostExecutor pretends to be.
type HostConfig struct {
	MaxWorkGroupSize     uint64
	GlobalMemCacheSize   uint64
	ComputeUnits         uint32
	NonUniformWorkGroups bool
	Profiling            bool
	// Threads runs work-items in parallel; <= 0 uses GOMAXPROCS.
	Threads int
}

// DefaultHostConfig resembles a mid-range mobile GPU.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		MaxWorkGroupSize:     256,
		GlobalMemCacheSize:   128 * 1024,
		ComputeUnits:         4,
		NonUniformWorkGroups: true,
		Profiling:            true,
	}
}

// HostExecutor runs registered programs on the host. Launches complete
// synchronously, so events are already finished when Enqueue returns.
type HostExecutor struct {
	cfg  HostConfig
	pool threadpool.ThreadPool
	// queue serialises launches like a single in-order command queue.
	queue *semaphore.Weighted

	mu       sync.RWMutex
	programs map[string]HostProgram
}

// NewHostExecutor returns an executor with no programs registered.
func NewHostExecutor(cfg HostConfig) *HostExecutor {
	return &HostExecutor{
		cfg:      cfg,
		pool:     threadpool.New(cfg.Threads),
		queue:    semaphore.NewWeighted(1),
		programs: make(map[string]HostProgram),
	}
}

// Register adds program. Registering the same name twice is an error.
func (e *HostExecutor) Register(program string, fn HostProgram) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.programs[program]; ok {
		return status.Configurationf("program %q already registered", program)
	}
	e.programs[program] = fn
	return nil
}

func (e *HostExecutor) Name() string { return "host" }

func (e *HostExecutor) BuildKernel(program, kernelName string, options []string) (Kernel, error) {
	e.mu.RLock()
	fn, ok := e.programs[program]
	e.mu.RUnlock()
	if !ok {
		kernelBuildErrors.WithLabelValues(program).Inc()
		return nil, status.Device("build "+program, ErrUnknownProgram)
	}
	defines := ParseDefines(options)
	if got := defines[program]; got != kernelName {
		kernelBuildErrors.WithLabelValues(program).Inc()
		return nil, status.Device("build "+program,
			fmt.Errorf("entry point %q is not defined by the build options", kernelName))
	}

	kernelBuilds.WithLabelValues(program).Inc()
	log.Debug().Str("program", program).Str("kernel", kernelName).Strs("options", options).Msg("built kernel")
	return &hostKernel{name: kernelName, program: program, fn: fn, defines: defines}, nil
}

func (e *HostExecutor) KernelMaxWorkGroupSize(Kernel) uint64 { return e.cfg.MaxWorkGroupSize }
func (e *HostExecutor) GlobalMemCacheSize() uint64 { return e.cfg.GlobalMemCacheSize }
func (e *HostExecutor) ComputeUnits() uint32 { return e.cfg.ComputeUnits }
func (e *HostExecutor) NonUniformWorkGroupsSupported() bool { return e.cfg.NonUniformWorkGroups }
func (e *HostExecutor) ProfilingEnabled() bool { return e.cfg.Profiling }

// Enqueue validates the launch geometry and runs every work-item of gws.
func (e *HostExecutor) Enqueue(ctx context.Context, k Kernel, gws, lws []uint32) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.Device("enqueue", err)
	}
	hk, ok := k.(*hostKernel)
	if !ok {
		return nil, status.Device("enqueue", fmt.Errorf("kernel %T was not built by the host executor", k))
	}
	if len(gws) != 3 || len(lws) != 3 {
		return nil, status.Device("enqueue "+hk.name, fmt.Errorf("want 3-D sizes, got gws %v lws %v", gws, lws))
	}

	l := &Launch{Kernel: hk.name, Defines: hk.defines}
	groupSize := uint64(1)
	for i := 0; i < 3; i++ {
		if gws[i] == 0 || lws[i] == 0 {
			return nil, status.Device("enqueue "+hk.name, fmt.Errorf("empty size in gws %v lws %v", gws, lws))
		}
		if !e.cfg.NonUniformWorkGroups && gws[i]%lws[i] != 0 {
			return nil, status.Device("enqueue "+hk.name,
				fmt.Errorf("global size %v is not a multiple of local size %v", gws, lws))
		}
		groupSize *= uint64(lws[i])
		l.GWS[i], l.LWS[i] = int(gws[i]), int(lws[i])
	}
	if e.cfg.MaxWorkGroupSize > 0 && groupSize > e.cfg.MaxWorkGroupSize {
		return nil, status.Device("enqueue "+hk.name,
			fmt.Errorf("work-group %v exceeds max size %d", lws, e.cfg.MaxWorkGroupSize))
	}

	hk.mu.Lock()
	l.Args = append([]any(nil), hk.args...)
	hk.mu.Unlock()
	for i, a := range l.Args {
		if a == nil {
			return nil, status.Device("enqueue "+hk.name, fmt.Errorf("%w: index %d", ErrUnboundArg, i))
		}
	}

	if err := e.queue.Acquire(ctx, 1); err != nil {
		return nil, status.Device("enqueue "+hk.name, err)
	}
	defer e.queue.Release(1)

	item, err := hk.fn(l)
	if err != nil {
		kernelLaunchErrors.WithLabelValues(hk.program).Inc()
		return nil, status.Device("enqueue "+hk.name, err)
	}

	start := time.Now()
	g0, g1, g2 := l.GWS[0], l.GWS[1], l.GWS[2]
	e.pool.Compute2D(func(s0, e0, st0, s1, e1, st1 int) {
		for z := s0; z < e0; z += st0 {
			for y := s1; y < e1; y += st1 {
				for x := 0; x < g0; x++ {
					item([3]int{x, y, z})
				}
			}
		}
	}, 0, g2, 1, 0, g1, 1)
	end := time.Now()

	kernelLaunches.WithLabelValues(hk.program).Inc()
	return &hostEvent{stats: CallStats{StartMicros: start.UnixMicro(), EndMicros: end.UnixMicro()}}, nil
}

type hostKernel struct {
	name    string
	program string
	fn      HostProgram
	defines map[string]string

	mu   sync.Mutex
	args []any
}

func (k *hostKernel) Name() string { return k.name }

func (k *hostKernel) SetArg(index uint32, value any) error {
	switch value.(type) {
	case *tensor.Tensor, int32, uint32, float32:
	default:
		return status.Device("set arg", fmt.Errorf("%s: unsupported argument type %T at index %d", k.name, value, index))
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for uint32(len(k.args)) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
	kernelArgBinds.WithLabelValues(k.program).Inc()
	return nil
}

type hostEvent struct {
	stats CallStats
}

func (e *hostEvent) Wait() error { return nil }
func (e *hostEvent) Stats() CallStats { return e.stats }

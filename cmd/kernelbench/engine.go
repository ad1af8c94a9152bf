package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kernels/internal/cache"
	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/envconfig"
	"github.com/23skdu/longbow-kernels/internal/opencl"
	"github.com/23skdu/longbow-kernels/internal/ops"
	"github.com/23skdu/longbow-kernels/internal/threadpool"
)

// engine holds the registry, CPU pool, emulated device and tuner that the
// subcommands construct and run operations with.
type engine struct {
	registry *ops.Registry
	pool     threadpool.ThreadPool
	exec     *device.HostExecutor
	tuner    *opencl.Tuner

	obfuscate   bool
	tuning      bool
	tunedParams string
}

func newEngine(o *rootOptions) (*engine, error) {
	registry := ops.NewRegistry()
	if err := ops.RegisterDefaults(registry); err != nil {
		return nil, err
	}

	cfg := envconfig.HostConfig()
	cfg.Threads = o.threads
	exec := device.NewHostExecutor(cfg)
	if err := opencl.RegisterHostPrograms(exec); err != nil {
		return nil, err
	}

	tuner := opencl.NewTuner(cache.NewMapCache(), o.tuning)
	if o.tunedParams != "" {
		if err := tuner.LoadFile(o.tunedParams); err != nil {
			return nil, fmt.Errorf("load tuned params: %w", err)
		}
		log.Debug().Str("path", o.tunedParams).Int("entries", tuner.Store().Size()).Msg("Loaded tuned parameters")
	}

	return &engine{
		registry:    registry,
		pool:        threadpool.New(o.threads),
		exec:        exec,
		tuner:       tuner,
		obfuscate:   o.obfuscate,
		tuning:      o.tuning,
		tunedParams: o.tunedParams,
	}, nil
}

func (e *engine) context(ctx context.Context) *ops.Context {
	return &ops.Context{
		Ctx:        ctx,
		ThreadPool: e.pool,
		Executor:   e.exec,
		Dispatcher: e.tuner,
	}
}

// construct places cc, preferring rt, and creates its operation.
func (e *engine) construct(cc *ops.ConstructContext, rt ops.RuntimeType) (ops.Operation, error) {
	cc.Runtime = e.registry.Place(cc, rt)
	cc.Obfuscate = e.obfuscate
	if cc.Runtime != rt {
		log.Info().Str("op", cc.OpType).Str("wanted", rt.String()).Str("runtime", cc.Runtime.String()).
			Msg("Operation placed on another runtime")
	}
	return e.registry.Create(cc)
}

// close saves tuned parameters when a search may have added some.
func (e *engine) close() error {
	if e.tunedParams == "" || !e.tuning {
		return nil
	}
	if err := e.tuner.SaveFile(e.tunedParams); err != nil {
		return fmt.Errorf("save tuned params: %w", err)
	}
	log.Info().Str("path", e.tunedParams).Int("entries", e.tuner.Store().Size()).Msg("Saved tuned parameters")
	return nil
}

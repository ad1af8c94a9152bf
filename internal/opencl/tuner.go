package opencl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kernels/internal/cache"
	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/status"
)

// RunContext is what a GPU kernel needs from its operator invocation.
type RunContext struct {
	Ctx        context.Context
	Executor   device.Executor
	Dispatcher Dispatcher
	// Future receives profiling stats when non-nil and the executor profiles.
	Future *device.Future
	// FakeWarmup builds kernels and binds arguments without launching.
	FakeWarmup bool
}

func (rc *RunContext) context() context.Context {
	if rc.Ctx == nil {
		return context.Background()
	}
	return rc.Ctx
}

// Dispatcher launches a 3-D kernel, choosing its local work size either by
// search (first time a tuning key is seen) or by replaying a stored choice.
type Dispatcher interface {
	TuningOrRun(rc *RunContext, k device.Kernel, key string, gws, lws []uint32) error
}

// TuningKey concatenates a kernel identity with its output dimensions.
func TuningKey(name string, dims ...int) string {
	var sb strings.Builder
	sb.WriteString(name)
	for _, d := range dims {
		fmt.Fprintf(&sb, "%d", d)
	}
	return sb.String()
}

// Candidates returns the local work sizes tried for gws, filtered to those
// the kernel can run: 0 < l0*l1*l2 <= kwg.
func Candidates(gws []uint32, kwg uint32) [][]uint32 {
	g0, g1, g2 := gws[0], gws[1], gws[2]
	firsts := []uint32{g0, g0 / 4, g0 / 8, 4, 1}
	thirds := []uint32{g2, g2 / 8, g2 / 4, 8, 4, 1}
	var out [][]uint32
	for _, l0 := range firsts {
		for _, l2 := range thirds {
			n := uint64(l0) * uint64(g1) * uint64(l2)
			if n > 0 && n <= uint64(kwg) {
				out = append(out, []uint32{l0, g1, l2})
			}
		}
	}
	return out
}

var _ Dispatcher = (*Tuner)(nil)

// Tuner is the default Dispatcher. Chosen local work sizes are kept in a
// ParamsCache and can be persisted with Save and Load.
type Tuner struct {
	store  cache.ParamsCache
	search bool
	rounds int
}

// NewTuner returns a tuner over store. When search is false keys missing
// from the store run with the heuristic hint.
func NewTuner(store cache.ParamsCache, search bool) *Tuner {
	if store == nil {
		store = cache.NewMapCache()
	}
	return &Tuner{store: store, search: search, rounds: 3}
}

// SetRounds sets how many timed launches each candidate gets.
func (t *Tuner) SetRounds(n int) {
	t.rounds = max(n, 1)
}

// Store returns the backing parameter store.
func (t *Tuner) Store() cache.ParamsCache { return t.store }

func (t *Tuner) TuningOrRun(rc *RunContext, k device.Kernel, key string, gws, lws []uint32) error {
	if len(gws) != 3 || len(lws) != 3 {
		return status.Check(false, "tuning %s: want 3-D sizes, got gws %v lws %v", key, gws, lws)
	}
	if rc.FakeWarmup {
		return nil
	}

	params, ok := t.store.Get(key)
	switch {
	case ok && len(params) == 3:
		tuningHits.Inc()
		log.Debug().Str("key", key).Uints32("lws", params).Msg("replaying tuned local work size")
		lws = params
	case t.search:
		tuningMisses.Inc()
		best, err := t.tune(rc, k, key, gws, lws)
		if err != nil {
			return err
		}
		lws = best
	default:
		tuningMisses.Inc()
	}

	ev, err := launch(rc, k, gws, lws)
	if err != nil {
		return err
	}
	return report(rc, ev)
}

// tune times every candidate and stores the fastest.
func (t *Tuner) tune(rc *RunContext, k device.Kernel, key string, gws, hint []uint32) ([]uint32, error) {
	exec := rc.Executor
	candidates := Candidates(gws, uint32(min(exec.KernelMaxWorkGroupSize(k), uint64(^uint32(0)))))
	if len(candidates) == 0 {
		candidates = [][]uint32{hint}
	}

	var best []uint32
	bestMicros := int64(-1)
	for _, cand := range candidates {
		var total int64
		for r := 0; r < t.rounds; r++ {
			started := time.Now()
			ev, err := launch(rc, k, gws, cand)
			if err != nil {
				return nil, err
			}
			if err := ev.Wait(); err != nil {
				return nil, status.Device("wait "+k.Name(), err)
			}
			if exec.ProfilingEnabled() {
				total += ev.Stats().Duration()
			} else {
				total += time.Since(started).Microseconds()
			}
		}
		if bestMicros < 0 || total < bestMicros {
			best, bestMicros = cand, total
		}
	}

	tuningSearches.Inc()
	t.store.Put(key, best)
	log.Debug().Str("key", key).Int("candidates", len(candidates)).Uints32("lws", best).
		Int64("micros", bestMicros/int64(t.rounds)).Msg("tuned local work size")
	return best, nil
}

// launch enqueues k, rounding gws up to multiples of lws when the device
// requires uniform work-groups.
func launch(rc *RunContext, k device.Kernel, gws, lws []uint32) (device.Event, error) {
	global := gws
	if !rc.Executor.NonUniformWorkGroupsSupported() {
		global = make([]uint32, len(gws))
		for i := range gws {
			global[i] = RoundUp(gws[i], lws[i])
		}
	}
	ev, err := rc.Executor.Enqueue(rc.context(), k, global, lws)
	if err != nil {
		return nil, err
	}
	gpuLaunches.WithLabelValues(k.Name()).Inc()
	return ev, nil
}

// report installs a wait function on the run's future that reports the
// launch's device timestamps.
func report(rc *RunContext, ev device.Event) error {
	if rc.Future == nil || !rc.Executor.ProfilingEnabled() {
		return nil
	}
	if err := ev.Wait(); err != nil {
		return status.Device("wait", err)
	}
	stats := ev.Stats()
	rc.Future.WaitFn = func(s *device.CallStats) {
		if s != nil {
			*s = stats
		}
	}
	return nil
}

// tunedParams is the on-disk form of a tuner store.
type tunedParams struct {
	Version int                 `cbor:"1,keyasint"`
	Params  map[string][]uint32 `cbor:"2,keyasint"`
}

const tunedParamsVersion = 1

// Save writes the store as CBOR.
func (t *Tuner) Save(w io.Writer) error {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(tunedParams{Version: tunedParamsVersion, Params: t.store.Snapshot()}); err != nil {
		return fmt.Errorf("encode tuned params: %w", err)
	}
	return nil
}

// Load merges CBOR-encoded parameters into the store.
func (t *Tuner) Load(r io.Reader) error {
	var tp tunedParams
	if err := cbor.NewDecoder(r).Decode(&tp); err != nil {
		return fmt.Errorf("decode tuned params: %w", err)
	}
	if tp.Version != tunedParamsVersion {
		return status.Configurationf("tuned params version %d, want %d", tp.Version, tunedParamsVersion)
	}
	for key, params := range tp.Params {
		if len(params) != 3 {
			log.Warn().Str("key", key).Uints32("params", params).Msg("skipping malformed tuned params")
			continue
		}
		t.store.Put(key, params)
	}
	return nil
}

// SaveFile writes the store to path.
func (t *Tuner) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile loads path. A missing file is not an error.
func (t *Tuner) LoadFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return t.Load(f)
}

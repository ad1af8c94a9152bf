// Package envconfig reads KERNELS_* environment variables. Each setting is a
// function so the environment is consulted at call time.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kernels/internal/device"
)

// Var returns the trimmed value of key with surrounding quotes removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a reader for key. A value that does not parse
// counts as true, so KERNELS_DEBUG=yes still enables debugging.
func BoolWithDefault(key string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

func Bool(key string) func() bool {
	withDefault := BoolWithDefault(key)
	return func() bool {
		return withDefault(false)
	}
}

func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				log.Warn().Str("key", key).Str("value", s).Uint("default", defaultValue).
					Msg("invalid environment variable, using default")
				return defaultValue
			}
			return uint(n)
		}
		return defaultValue
	}
}

func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				log.Warn().Str("key", key).Str("value", s).Uint64("default", defaultValue).
					Msg("invalid environment variable, using default")
				return defaultValue
			}
			return n
		}
		return defaultValue
	}
}

var (
	// Threads sizes the CPU thread pool; 0 uses GOMAXPROCS.
	Threads = Uint("KERNELS_THREADS", 0)

	// Tuning enables the local work size search.
	Tuning = Bool("KERNELS_TUNING")

	// TunedParams is the file tuned local work sizes are loaded from and saved to.
	TunedParams = String("KERNELS_TUNED_PARAMS")

	// Debug enables debug logging.
	Debug = Bool("KERNELS_DEBUG")

	// Obfuscate hides kernel entry point names.
	Obfuscate = Bool("KERNELS_OBFUSCATE")

	HostMaxWorkGroupSize = Uint64("KERNELS_HOST_MAX_WORK_GROUP_SIZE", 256)
	HostCacheBytes       = Uint64("KERNELS_HOST_CACHE_BYTES", 128*1024)
	HostComputeUnits     = Uint("KERNELS_HOST_COMPUTE_UNITS", 4)
	HostNonUniform       = BoolWithDefault("KERNELS_HOST_NON_UNIFORM")
	HostProfiling        = BoolWithDefault("KERNELS_HOST_PROFILING")
)

// LogLevel is debug when KERNELS_DEBUG is set, info otherwise.
func LogLevel() zerolog.Level {
	if Debug() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// HostConfig describes the emulated device from the KERNELS_HOST_* variables.
func HostConfig() device.HostConfig {
	return device.HostConfig{
		MaxWorkGroupSize:     HostMaxWorkGroupSize(),
		GlobalMemCacheSize:   HostCacheBytes(),
		ComputeUnits:         uint32(HostComputeUnits()),
		NonUniformWorkGroups: HostNonUniform(true),
		Profiling:            HostProfiling(true),
		Threads:              int(Threads()),
	}
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"KERNELS_THREADS":                  {"KERNELS_THREADS", Threads(), "Worker threads for CPU kernels (default: GOMAXPROCS)"},
		"KERNELS_TUNING":                   {"KERNELS_TUNING", Tuning(), "Search local work sizes on first launch"},
		"KERNELS_TUNED_PARAMS":             {"KERNELS_TUNED_PARAMS", TunedParams(), "File holding tuned local work sizes"},
		"KERNELS_DEBUG":                    {"KERNELS_DEBUG", Debug(), "Show debug logging"},
		"KERNELS_OBFUSCATE":                {"KERNELS_OBFUSCATE", Obfuscate(), "Hash kernel entry point names"},
		"KERNELS_HOST_MAX_WORK_GROUP_SIZE": {"KERNELS_HOST_MAX_WORK_GROUP_SIZE", HostMaxWorkGroupSize(), "Host device max work-group size"},
		"KERNELS_HOST_CACHE_BYTES":         {"KERNELS_HOST_CACHE_BYTES", HostCacheBytes(), "Host device global memory cache size"},
		"KERNELS_HOST_COMPUTE_UNITS":       {"KERNELS_HOST_COMPUTE_UNITS", HostComputeUnits(), "Host device compute units"},
		"KERNELS_HOST_NON_UNIFORM":         {"KERNELS_HOST_NON_UNIFORM", HostNonUniform(true), "Host device accepts non-uniform work-groups"},
		"KERNELS_HOST_PROFILING":           {"KERNELS_HOST_PROFILING", HostProfiling(true), "Host device reports launch timings"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

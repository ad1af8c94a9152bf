package envconfig

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"false": false,
		"0":     false,
		"1":     true,
		"true":  true,
		"yes":   true,
		"'1'":   true,
	}
	for v, want := range cases {
		t.Setenv("KERNELS_TUNING", v)
		assert.Equal(t, want, Tuning(), "value %q", v)
	}
}

func TestBoolWithDefault(t *testing.T) {
	t.Setenv("KERNELS_HOST_NON_UNIFORM", "")
	assert.True(t, HostNonUniform(true))
	t.Setenv("KERNELS_HOST_NON_UNIFORM", "false")
	assert.False(t, HostNonUniform(true))
}

func TestUint(t *testing.T) {
	t.Setenv("KERNELS_THREADS", "6")
	assert.Equal(t, uint(6), Threads())
	t.Setenv("KERNELS_THREADS", "many")
	assert.Equal(t, uint(0), Threads())
	t.Setenv("KERNELS_HOST_CACHE_BYTES", "-1")
	assert.Equal(t, uint64(128*1024), HostCacheBytes())
}

func TestHostConfig(t *testing.T) {
	t.Setenv("KERNELS_HOST_MAX_WORK_GROUP_SIZE", "64")
	t.Setenv("KERNELS_HOST_COMPUTE_UNITS", "2")
	t.Setenv("KERNELS_HOST_PROFILING", "0")
	t.Setenv("KERNELS_THREADS", "3")

	cfg := HostConfig()
	assert.Equal(t, uint64(64), cfg.MaxWorkGroupSize)
	assert.Equal(t, uint32(2), cfg.ComputeUnits)
	assert.False(t, cfg.Profiling)
	assert.True(t, cfg.NonUniformWorkGroups)
	assert.Equal(t, 3, cfg.Threads)
}

func TestLogLevel(t *testing.T) {
	t.Setenv("KERNELS_DEBUG", "1")
	assert.Equal(t, zerolog.DebugLevel, LogLevel())
	t.Setenv("KERNELS_DEBUG", "")
	assert.Equal(t, zerolog.InfoLevel, LogLevel())
}

func TestValues(t *testing.T) {
	t.Setenv("KERNELS_TUNED_PARAMS", "/tmp/tuned.cbor")
	vals := Values()
	assert.Equal(t, "/tmp/tuned.cbor", vals["KERNELS_TUNED_PARAMS"])
	assert.Len(t, vals, len(AsMap()))
}

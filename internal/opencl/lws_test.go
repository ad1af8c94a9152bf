package opencl

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/23skdu/longbow-kernels/internal/device"
)

type fakeDevice struct {
	cache uint64
	units uint32
}

func (d fakeDevice) GlobalMemCacheSize() uint64 { return d.cache }
func (d fakeDevice) ComputeUnits() uint32 { return d.units }

var lwsHeuristics = map[string]func(DeviceInfo, []uint32, uint32) []uint32{
	"conv1x1":   Conv1x1LocalWS,
	"conv3x3":   Conv3x3LocalWS,
	"default3d": Default3DLocalWS,
}

func TestLocalWS_ZeroMaxWorkGroupIsConservative(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	dev := fakeDevice{cache: 128 * 1024, units: 4}
	for name, fn := range lwsHeuristics {
		for range 50 {
			gws := []uint32{r.Uint32N(512) + 1, r.Uint32N(512) + 1, r.Uint32N(512) + 1}
			assert.Equal(t, []uint32{1, 1, 1}, fn(dev, gws, 0), "%s gws %v", name, gws)
		}
	}
}

func TestLocalWS_FitsWorkGroup(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for name, fn := range lwsHeuristics {
		for range 500 {
			dev := fakeDevice{cache: uint64(r.IntN(4<<20) + 1), units: r.Uint32N(16)}
			gws := []uint32{r.Uint32N(300) + 1, r.Uint32N(300) + 1, r.Uint32N(300) + 1}
			kwg := r.Uint32N(1024) + 1
			lws := fn(dev, gws, kwg)
			if !assert.Len(t, lws, 3) {
				continue
			}
			for i, l := range lws {
				assert.GreaterOrEqual(t, l, uint32(1), "%s dim %d gws %v kwg %d", name, i, gws, kwg)
			}
			assert.LessOrEqual(t, uint64(lws[0])*uint64(lws[1])*uint64(lws[2]), uint64(kwg),
				"%s lws %v gws %v kwg %d", name, lws, gws, kwg)
			assert.LessOrEqual(t, lws[1], min(gws[1], kwg), name)
		}
	}
}

func TestLocalWS_Values(t *testing.T) {
	dev := fakeDevice{cache: 128 * 1024, units: 4}

	assert.Equal(t, []uint32{2, 16, 8}, Default3DLocalWS(dev, []uint32{8, 16, 32}, 256))
	assert.Equal(t, []uint32{8, 8, 4}, Conv1x1LocalWS(dev, []uint32{16, 8, 32}, 256))
	assert.Equal(t, []uint32{4, 8, 8}, Conv3x3LocalWS(dev, []uint32{16, 8, 32}, 256))
}

func TestLocalWS_ExecutorIsDeviceInfo(t *testing.T) {
	exec := device.NewHostExecutor(device.DefaultHostConfig())
	lws := Default3DLocalWS(exec, []uint32{8, 16, 32}, 256)
	assert.Equal(t, []uint32{2, 16, 8}, lws)
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, uint32(12), RoundUp(uint32(10), 4))
	assert.Equal(t, uint32(8), RoundUp(uint32(8), 4))
	assert.Equal(t, 7, RoundUp(7, 0))
	assert.Equal(t, 3, RoundUpDiv4(9))
	assert.Equal(t, 2, RoundUpDiv4(8))
	assert.Equal(t, 0, RoundUpDiv4(0))
}

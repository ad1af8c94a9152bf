// Package opencl holds the GPU operator kernels: local work size
// heuristics, the per-operator kernel cache and argument binder, the tuning
// dispatcher, and the reduce, conv and split kernels with their host
// emulations.
package opencl

import "github.com/23skdu/longbow-kernels/internal/device"

// BaseGPUMemCacheSize is the reference cache size the heuristics scale
// against.
const BaseGPUMemCacheSize = 16384

// Per-kernel working-set footprints:
// (inputs + weights + outputs) * array size * sizeof(float).
const (
	conv1x1KernelCacheSize = (4 + 4 + 4) * 4 * 4
	conv3x3KernelCacheSize = (5 + 4 + 5) * 4 * 4
	conv1x1LWSLimit        = 128
)

// DeviceInfo is the part of an executor the heuristics look at.
type DeviceInfo interface {
	GlobalMemCacheSize() uint64
	ComputeUnits() uint32
}

var _ DeviceInfo = (device.Executor)(nil)

func conservativeLWS() []uint32 {
	return []uint32{1, 1, 1}
}

// Conv1x1LocalWS sizes work-groups for the 1x1 convolution.
func Conv1x1LocalWS(dev DeviceInfo, gws []uint32, kwg uint32) []uint32 {
	if kwg == 0 {
		return conservativeLWS()
	}
	cacheSize := dev.GlobalMemCacheSize()
	computeUnits := uint64(max(dev.ComputeUnits(), 1))
	base := uint32(max(cacheSize/BaseGPUMemCacheSize, 1))

	lws := make([]uint32, 3)
	lws[1] = min(gws[1], kwg)
	switch {
	case lws[1] >= base:
		lws[0] = min(gws[0], base)
	case 1 < lws[1] && lws[1] < base && gws[0] >= conv1x1LWSLimit:
		lws[0] = min(gws[0], base)
	default:
		lws[0] = gws[0] / 8
		if lws[0] < base {
			lws[0] = max(gws[0]/4, base)
		}
	}
	lws[0] = min(lws[0], kwg/max(lws[1], 1))
	lwsSize := uint64(lws[0]) * uint64(lws[1])
	lws[2] = uint32(min(cacheSize/conv1x1KernelCacheSize/max(lwsSize, 1)/computeUnits*8, uint64(gws[2])))
	if lws[2] == 0 {
		lws[2] = min(gws[2], base)
	}
	lws[2] = max(min(lws[2], uint32(uint64(kwg)/max(lwsSize, 1))), 1)
	return lws
}

// Conv3x3LocalWS sizes work-groups for the 3x3 convolution. The larger
// per-item footprint halves the effective compute units and caps base at 4.
func Conv3x3LocalWS(dev DeviceInfo, gws []uint32, kwg uint32) []uint32 {
	if kwg == 0 {
		return conservativeLWS()
	}
	cacheSize := dev.GlobalMemCacheSize()
	computeUnits := uint64(max(dev.ComputeUnits()/2, 1))
	base := uint32(max(min(cacheSize/BaseGPUMemCacheSize, 4), 1))

	lws := make([]uint32, 3)
	lws[1] = min(gws[1], kwg)
	lws[0] = min(gws[0], base, kwg/max(lws[1], 1))
	lwsSize := uint64(lws[0]) * uint64(lws[1])
	lws[2] = uint32(min(RoundUp(cacheSize/conv3x3KernelCacheSize/max(lwsSize, 1)/computeUnits, uint64(base)), uint64(gws[2])))
	if lws[2] == 0 {
		lws[2] = min(gws[2], base)
	}
	lws[2] = max(min(lws[2], uint32(uint64(kwg)/max(lwsSize, 1))), 1)
	return lws
}

// Default3DLocalWS is the generic heuristic used by elementwise-style
// kernels such as split and reduce.
func Default3DLocalWS(dev DeviceInfo, gws []uint32, kwg uint32) []uint32 {
	if kwg == 0 {
		return conservativeLWS()
	}
	base := uint32(max(dev.GlobalMemCacheSize()/BaseGPUMemCacheSize, 1))

	lws := make([]uint32, 3)
	lws[1] = min(gws[1], kwg)
	lws[2] = min(gws[2], base, kwg/max(lws[1], 1))
	lwsSize := lws[1] * lws[2]
	lws[0] = max(min(base, kwg/max(lwsSize, 1)), 1)
	return lws
}

// RoundUp rounds v up to a multiple of factor.
func RoundUp[T ~uint32 | ~uint64 | ~int](v, factor T) T {
	if factor == 0 {
		return v
	}
	return (v + factor - 1) / factor * factor
}

// RoundUpDiv4 returns ceil(v / 4), the number of 4-channel blocks.
func RoundUpDiv4(v int) int {
	return (v + 3) / 4
}

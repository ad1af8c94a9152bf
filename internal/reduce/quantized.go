package reduce

import "github.com/23skdu/longbow-kernels/internal/quantize"

// quantizedCell folds raw uint8 codes. Min and Max compare codes directly,
// Mean averages codes with round-half-up, and Sum rescales the raw code sum
// from the input's affine domain into the output's.
func quantizedCell(in []uint8, typ Type, inQ, outQ quantize.Params) cellFunc[uint8] {
	switch typ {
	case Mean:
		return func(base int, w window, _ bool) uint8 {
			var sum uint32
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					sum += uint32(in[off+t*w.innerStride])
				}
			}
			return quantize.MeanCode(sum, w.count())
		}
	case Min:
		return func(base int, w window, _ bool) uint8 {
			acc := in[base]
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					acc = min(acc, in[off+t*w.innerStride])
				}
			}
			return acc
		}
	case Max:
		return func(base int, w window, _ bool) uint8 {
			acc := in[base]
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					acc = max(acc, in[off+t*w.innerStride])
				}
			}
			return acc
		}
	default:
		return func(base int, w window, _ bool) uint8 {
			var sum int64
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					sum += int64(in[off+t*w.innerStride])
				}
			}
			return quantize.Rescale(sum, w.count(), inQ, outQ)
		}
	}
}

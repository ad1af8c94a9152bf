// Package quantize implements the affine arithmetic used by the uint8
// reduction kernels.
package quantize

import "math"

// Params are the affine parameters of a quantized tensor:
// real = Scale * (code - ZeroPoint).
type Params struct {
	Scale     float32
	ZeroPoint int32
}

// Valid reports whether the parameters can take part in a rescale.
func (p Params) Valid() bool {
	return p.Scale > 0 && !math.IsInf(float64(p.Scale), 0) && !math.IsNaN(float64(p.Scale))
}

// Round rounds half away from zero.
func Round(f float32) float32 {
	return float32(math.Round(float64(f)))
}

// SaturateUint8 clamps f into [0, 255]. NaN maps to 0.
func SaturateUint8(f float32) uint8 {
	switch {
	case math.IsNaN(float64(f)):
		return 0
	case f <= 0:
		return 0
	case f >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(f)
}

// Rescale converts a raw-code sum over count elements from the input's
// quantization domain to the output's:
//
//	round((sum - zpIn*count) * scaleIn/scaleOut) + zpOut
//
// saturated to the uint8 range.
func Rescale(sum int64, count int, in, out Params) uint8 {
	scale := in.Scale / out.Scale
	f := float32(sum-int64(in.ZeroPoint)*int64(count)) * scale
	return SaturateUint8(Round(f) + float32(out.ZeroPoint))
}

// MeanCode averages raw codes with round-half-up integer division. Affine
// maps are monotonic and mean-preserving, so no rescale is needed when the
// output shares the input's parameters.
func MeanCode(sum uint32, count int) uint8 {
	c := uint32(count)
	return uint8((sum + c/2) / c)
}

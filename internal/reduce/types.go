// Package reduce implements arbitrary-axis reductions on the CPU.
//
// A reduction is first collapsed by Simplify into at most four alternating
// reduced/kept groups, then executed by one of four rank-specialised
// kernels. Each kernel partitions the surviving (outer) index space across a
// thread pool; the reduced range of one output element is always folded by a
// single worker.
package reduce

import (
	"fmt"
	"strings"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// Type selects the fold applied over the reduced axes.
type Type int

const (
	Mean Type = iota
	Min
	Max
	Prod
	Sum
)

func (t Type) String() string {
	switch t {
	case Mean:
		return "mean"
	case Min:
		return "min"
	case Max:
		return "max"
	case Prod:
		return "prod"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Valid reports whether t names a known fold.
func (t Type) Valid() bool {
	return t >= Mean && t <= Sum
}

// ParseType maps "sum", "MEAN", ... to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "mean", "avg":
		return Mean, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "prod", "product":
		return Prod, nil
	case "sum":
		return Sum, nil
	}
	return 0, status.Configurationf("unknown reduce type %q", s)
}

// Config is the user-level description of a reduction. It is fixed when an
// operator is constructed; plans are derived from it on every invocation.
type Config struct {
	Type     Type
	Axes     []int // empty reduces every axis
	KeepDims bool
	// HasDataFormat remaps channel-last axis indices (1->2, 2->3, 3->1) for
	// 4-D non-quantized inputs stored channel-first.
	HasDataFormat bool
}

// CheckSupported reports whether dtype has a kernel for t.
func CheckSupported(t Type, dtype tensor.DataType) error {
	if !t.Valid() {
		return status.Configurationf("unknown reduce type %d", int(t))
	}
	switch dtype {
	case tensor.Float32, tensor.Float16, tensor.Int32:
		return nil
	case tensor.Uint8:
		if t == Prod {
			return status.NotImplementedf("reduce %s on quantized uint8", t)
		}
		return nil
	}
	return status.NotImplementedf("reduce on %s", dtype)
}

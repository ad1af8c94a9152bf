package opencl

import (
	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// Program names understood by RegisterHostPrograms.
const (
	ProgramReduce  = "reduce"
	ProgramConv1x1 = "conv_2d_1x1"
	ProgramConv3x3 = "conv_2d_3x3"
	ProgramSplit   = "split"
)

// RegisterHostPrograms installs the host emulations of every program the
// operator kernels in this package build.
func RegisterHostPrograms(exec *device.HostExecutor) error {
	programs := map[string]device.HostProgram{
		ProgramReduce:  reduceProgram,
		ProgramConv1x1: convProgram(false),
		ProgramConv3x3: convProgram(true),
		ProgramSplit:   splitProgram,
	}
	for name, fn := range programs {
		if err := exec.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// argReader walks launch arguments in order. After the first failure every
// read returns the zero value and err keeps that failure.
type argReader struct {
	l   *device.Launch
	i   int
	err error
}

func (r *argReader) tensor() *tensor.Tensor {
	if r.err != nil {
		return nil
	}
	t, err := r.l.Tensor(r.i)
	r.i, r.err = r.i+1, err
	return t
}

func (r *argReader) int() int {
	if r.err != nil {
		return 0
	}
	v, err := r.l.Int(r.i)
	r.i, r.err = r.i+1, err
	return v
}

func (r *argReader) float() float32 {
	if r.err != nil {
		return 0
	}
	v, err := r.l.Float(r.i)
	r.i, r.err = r.i+1, err
	return v
}

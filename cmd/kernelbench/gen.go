package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/x448/float16"

	"github.com/23skdu/longbow-kernels/internal/tensor"
	"github.com/23skdu/longbow-kernels/internal/tensorio"
)

// inputOptions pick a tensor file or describe a random tensor.
type inputOptions struct {
	path      string
	shape     []int
	dtype     string
	seed      uint64
	scale     float32
	zeroPoint int32
}

func (o *inputOptions) register(cmd *cobra.Command, shape []int) {
	cmd.Flags().StringVar(&o.path, "input", "", "Arrow IPC tensor file (overrides --shape and --dtype)")
	cmd.Flags().IntSliceVar(&o.shape, "shape", shape, "Shape of the random input")
	cmd.Flags().StringVar(&o.dtype, "dtype", "float32", "Element type of the random input (float32, float16, int32, uint8)")
	cmd.Flags().Uint64Var(&o.seed, "seed", 1, "Random seed")
	cmd.Flags().Float32Var(&o.scale, "scale", 0.05, "Quantization scale of a random uint8 input")
	cmd.Flags().Int32Var(&o.zeroPoint, "zero-point", 128, "Quantization zero point of a random uint8 input")
}

func (o *inputOptions) load(name string) (*tensor.Tensor, error) {
	if o.path != "" {
		return readTensorFile(o.path)
	}
	dtype, err := tensor.ParseDataType(o.dtype)
	if err != nil {
		return nil, err
	}
	for _, d := range o.shape {
		if d <= 0 {
			return nil, fmt.Errorf("shape %v has a non-positive dimension", o.shape)
		}
	}
	t := randomTensor(rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15)), name, dtype, o.shape...)
	if dtype == tensor.Uint8 {
		t.SetScale(o.scale)
		t.SetZeroPoint(o.zeroPoint)
	}
	return t, nil
}

// randomTensor fills a tensor with small values: floats in [-1, 1), int32
// in [-8, 8] and uint8 codes over the whole range.
func randomTensor(r *rand.Rand, name string, dtype tensor.DataType, shape ...int) *tensor.Tensor {
	n := tensor.NumElements(shape)
	switch dtype {
	case tensor.Float16:
		data := make([]float16.Float16, n)
		for i := range data {
			data[i] = float16.Fromfloat32(r.Float32()*2 - 1)
		}
		return tensor.FromSlice(name, data, shape...)
	case tensor.Int32:
		data := make([]int32, n)
		for i := range data {
			data[i] = r.Int32N(17) - 8
		}
		return tensor.FromSlice(name, data, shape...)
	case tensor.Uint8:
		data := make([]uint8, n)
		for i := range data {
			data[i] = uint8(r.UintN(256))
		}
		return tensor.FromSlice(name, data, shape...)
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = r.Float32()*2 - 1
	}
	return tensor.FromSlice(name, data, shape...)
}

func readTensorFile(path string) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := tensorio.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

func writeTensorFile(path string, t *tensor.Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tensorio.Write(f, t, tensorio.DefaultChunkSize); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func newGenCmd() *cobra.Command {
	var (
		in  inputOptions
		out string
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write a random tensor as an Arrow IPC stream",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := in.load("input")
			if err != nil {
				return err
			}
			if err := writeTensorFile(out, t); err != nil {
				return err
			}
			log.Info().Str("path", out).Str("dtype", t.DataType().String()).Ints("shape", t.Shape()).Msg("Wrote tensor")
			return nil
		},
	}
	in.register(cmd, []int{1, 32, 32, 64})
	cmd.Flags().StringVarP(&out, "output", "o", "input.arrow", "Destination file")
	return cmd
}

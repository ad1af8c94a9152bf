package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-kernels/internal/ops"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

func newConvCmd(root *rootOptions) *cobra.Command {
	var (
		in          inputOptions
		outChannels int
		kernel      int
		strides     []int
		padding     []int
		dilations   []int
		activation  string
		maxLimit    float32
		coefficient float32
		bias        bool
		iterations  int
	)
	cmd := &cobra.Command{
		Use:   "conv",
		Short: "Time an NHWC convolution on the emulated device",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := in.load("input")
			if err != nil {
				return err
			}
			if input.Rank() != 4 {
				return fmt.Errorf("conv needs an NHWC input, got shape %v", input.Shape())
			}
			r := rand.New(rand.NewPCG(in.seed+1, in.seed+2))
			inputs := []*tensor.Tensor{
				input,
				randomTensor(r, "filter", tensor.Float32, outChannels, input.Dim(input.Rank()-1), kernel, kernel),
			}
			if bias {
				inputs = append(inputs, randomTensor(r, "bias", tensor.Float32, outChannels))
			}
			output := tensor.New("output", tensor.Float32)

			eng, err := newEngine(root)
			if err != nil {
				return err
			}
			op, err := eng.construct(&ops.ConstructContext{
				OpType:   ops.OpConv2D,
				DataType: input.DataType(),
				Inputs:   inputs,
				Outputs:  []*tensor.Tensor{output},
				Args: map[string]any{
					"strides":                strides,
					"padding_values":         padding,
					"dilations":              dilations,
					"activation":             activation,
					"max_limit":              maxLimit,
					"activation_coefficient": coefficient,
				},
			}, ops.OpenCL)
			if err != nil {
				return err
			}

			log.Info().Ints("shape", input.Shape()).Int("kernel", kernel).Int("out_channels", outChannels).
				Int("iterations", iterations).Msg("Running convolution")
			res, err := benchmark(cmd.Context(), eng, op, input, []*tensor.Tensor{output}, iterations)
			if err != nil {
				return err
			}
			renderReport(cmd.OutOrStdout(), []*benchResult{res})
			return eng.close()
		},
	}
	in.register(cmd, []int{1, 32, 32, 16})
	flags := cmd.Flags()
	flags.IntVar(&outChannels, "out-channels", 16, "Output channels")
	flags.IntVar(&kernel, "kernel", 3, "Filter height and width (1 or 3)")
	flags.IntSliceVar(&strides, "strides", []int{1, 1}, "Strides")
	flags.IntSliceVar(&padding, "padding", []int{2, 2}, "Total padding per spatial dimension")
	flags.IntSliceVar(&dilations, "dilations", []int{1, 1}, "Dilations")
	flags.StringVar(&activation, "activation", "NOOP", "Fused activation (NOOP, RELU, RELUX, TANH, SIGMOID, LEAKYRELU, ELU)")
	flags.Float32Var(&maxLimit, "max-limit", 6, "RELUX upper bound")
	flags.Float32Var(&coefficient, "coefficient", 0.1, "LEAKYRELU and ELU coefficient")
	flags.BoolVar(&bias, "bias", true, "Add a random bias")
	flags.IntVarP(&iterations, "iterations", "n", 10, "Timed runs")
	return cmd
}

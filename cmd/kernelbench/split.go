package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-kernels/internal/ops"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

func newSplitCmd(root *rootOptions) *cobra.Command {
	var (
		in         inputOptions
		parts      int
		iterations int
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Time a channel split on the emulated device",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parts < 1 {
				return fmt.Errorf("--parts must be positive, got %d", parts)
			}
			input, err := in.load("input")
			if err != nil {
				return err
			}
			outputs := make([]*tensor.Tensor, parts)
			for i := range outputs {
				outputs[i] = tensor.New(fmt.Sprintf("output_%d", i), input.DataType())
			}

			eng, err := newEngine(root)
			if err != nil {
				return err
			}
			op, err := eng.construct(&ops.ConstructContext{
				OpType:   ops.OpSplit,
				DataType: input.DataType(),
				Inputs:   []*tensor.Tensor{input},
				Outputs:  outputs,
				Args:     map[string]any{"axis": 3},
			}, ops.OpenCL)
			if err != nil {
				return err
			}

			log.Info().Ints("shape", input.Shape()).Int("parts", parts).Int("iterations", iterations).Msg("Running split")
			res, err := benchmark(cmd.Context(), eng, op, input, outputs, iterations)
			if err != nil {
				return err
			}
			renderReport(cmd.OutOrStdout(), []*benchResult{res})
			return eng.close()
		},
	}
	in.register(cmd, []int{1, 32, 32, 64})
	cmd.Flags().IntVar(&parts, "parts", 4, "Number of equal channel slices")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10, "Timed runs")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-kernels/internal/envconfig"
	"github.com/23skdu/longbow-kernels/internal/opencl"
)

// deviceInfo is a device description taken from flags.
type deviceInfo struct {
	cacheBytes   uint64
	computeUnits uint32
}

func (d deviceInfo) GlobalMemCacheSize() uint64 { return d.cacheBytes }

func (d deviceInfo) ComputeUnits() uint32 { return d.computeUnits }

func formatSizes(s []uint32) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// lwsRows computes every heuristic for gws.
func lwsRows(dev opencl.DeviceInfo, gws []uint32, kwg uint32) [][]string {
	heuristics := []struct {
		name string
		fn   func(opencl.DeviceInfo, []uint32, uint32) []uint32
	}{
		{"default3d", opencl.Default3DLocalWS},
		{"conv2d_1x1", opencl.Conv1x1LocalWS},
		{"conv2d_3x3", opencl.Conv3x3LocalWS},
	}
	candidates := strconv.Itoa(len(opencl.Candidates(gws, kwg)))
	var rows [][]string
	for _, h := range heuristics {
		lws := h.fn(dev, gws, kwg)
		rows = append(rows, []string{h.name, formatSizes(gws), formatSizes(lws), candidates})
	}
	return rows
}

func newLWSCmd() *cobra.Command {
	var (
		gws          []int
		kwg          uint64
		cacheBytes   uint64
		computeUnits uint
	)
	cmd := &cobra.Command{
		Use:   "lws",
		Short: "Print the local work sizes each heuristic picks for a global size",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(gws) != 3 {
				return fmt.Errorf("--gws needs 3 values, got %v", gws)
			}
			global := make([]uint32, 3)
			for i, g := range gws {
				if g <= 0 {
					return fmt.Errorf("--gws values must be positive, got %v", gws)
				}
				global[i] = uint32(g)
			}
			dev := deviceInfo{cacheBytes: cacheBytes, computeUnits: uint32(computeUnits)}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"HEURISTIC", "GWS", "LWS", "CANDIDATES"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(lwsRows(dev, global, uint32(min(kwg, uint64(^uint32(0))))))
			table.Render()
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntSliceVar(&gws, "gws", []int{8, 16, 32}, "Global work size")
	flags.Uint64Var(&kwg, "kwg", envconfig.HostMaxWorkGroupSize(), "Kernel max work-group size")
	flags.Uint64Var(&cacheBytes, "cache-bytes", envconfig.HostCacheBytes(), "Device global memory cache size")
	flags.UintVar(&computeUnits, "compute-units", envconfig.HostComputeUnits(), "Device compute units")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/ops"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// benchResult summarises repeated runs of one operation.
type benchResult struct {
	op      ops.Operation
	input   []int
	outputs [][]int
	// wall and device hold per-run microseconds; device is empty when the
	// executor does not profile or the op ran on the CPU.
	wall   []float64
	device []float64

	verified  bool
	maxRelErr float64
}

// benchmark runs op iterations times. GPU operations get one fake warmup
// first so the timed runs exclude kernel builds.
func benchmark(ctx context.Context, e *engine, op ops.Operation, input *tensor.Tensor, outputs []*tensor.Tensor, iterations int) (*benchResult, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	gpu := op.Runtime() == ops.OpenCL
	if gpu {
		warm := e.context(ctx)
		warm.FakeWarmup = true
		if err := op.Run(warm); err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
	}

	res := &benchResult{op: op, input: input.Shape()}
	for range iterations {
		rc := e.context(ctx)
		if gpu && e.exec.ProfilingEnabled() {
			rc.Future = &device.Future{}
		}
		start := time.Now()
		if err := op.Run(rc); err != nil {
			return nil, err
		}
		res.wall = append(res.wall, float64(time.Since(start).Nanoseconds())/1e3)
		if rc.Future != nil {
			var stats device.CallStats
			rc.Future.Wait(&stats)
			res.device = append(res.device, float64(stats.Duration()))
		}
	}
	for _, out := range outputs {
		res.outputs = append(res.outputs, out.Shape())
	}
	return res, nil
}

// summarize returns the mean, standard deviation and median of samples.
func summarize(samples []float64) (mean, std, median float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted) == 1 {
		return sorted[0], 0, median
	}
	mean, std = stat.MeanStdDev(sorted, nil)
	return mean, std, median
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatMicros(us float64) string {
	switch {
	case us >= 1e6:
		return fmt.Sprintf("%.2fs", us/1e6)
	case us >= 1e3:
		return fmt.Sprintf("%.2fms", us/1e3)
	}
	return fmt.Sprintf("%.1fµs", us)
}

// renderReport writes one table row per result.
func renderReport(w io.Writer, results []*benchResult) {
	p := message.NewPrinter(language.English)

	var data [][]string
	for _, r := range results {
		wallMean, wallStd, wallMedian := summarize(r.wall)
		devCol := "-"
		if len(r.device) > 0 {
			_, _, devMedian := summarize(r.device)
			devCol = formatMicros(devMedian)
		}
		outs := make([]string, len(r.outputs))
		for i, s := range r.outputs {
			outs[i] = formatShape(s)
		}
		throughput := "-"
		if wallMedian > 0 {
			throughput = p.Sprintf("%d", int64(float64(tensor.NumElements(r.input))/(wallMedian/1e6)))
		}
		errCol := "-"
		if r.verified {
			errCol = fmt.Sprintf("%.3g", r.maxRelErr)
		}
		data = append(data, []string{
			r.op.Type(),
			r.op.Runtime().String(),
			r.op.DataType().String(),
			formatShape(r.input),
			strings.Join(outs, " "),
			p.Sprintf("%d", len(r.wall)),
			formatMicros(wallMedian),
			fmt.Sprintf("%s ± %s", formatMicros(wallMean), formatMicros(wallStd)),
			devCol,
			throughput,
			errCol,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"OP", "RUNTIME", "DTYPE", "INPUT", "OUTPUT", "RUNS", "WALL P50", "WALL MEAN", "DEVICE P50", "ELEMENTS/S", "MAX REL ERR"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

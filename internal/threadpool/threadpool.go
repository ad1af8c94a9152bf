// Package threadpool partitions 1-D and 2-D index spaces across a fixed
// number of workers.
//
// Partitions are static contiguous ranges, never stolen or rebalanced: the
// kernels that use this package do the same amount of work per index. Every
// call blocks until all partitions have returned.
package threadpool

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ThreadPool is the capability consumed by the CPU kernels.
//
// fn is called with non-overlapping ranges that together cover the requested
// index space exactly once. Ranges are half open; step is forwarded unchanged.
type ThreadPool interface {
	Compute1D(fn func(start, end, step int), start, end, step int)
	Compute2D(fn func(start0, end0, step0, start1, end1, step1 int),
		start0, end0, step0, start1, end1, step1 int)
	NumThreads() int
}

// ensure interface compliance
var _ ThreadPool = (*Pool)(nil)

// Pool fans at most NumThreads partitions out over an errgroup and waits.
type Pool struct {
	threads int
}

// New returns a pool with the given parallelism; threads <= 0 uses
// GOMAXPROCS.
func New(threads int) *Pool {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return &Pool{threads: threads}
}

// NumThreads returns the configured parallelism.
func (p *Pool) NumThreads() int {
	return p.threads
}

// Compute1D runs fn over [start, end) split into at most NumThreads ranges.
func (p *Pool) Compute1D(fn func(start, end, step int), start, end, step int) {
	if step <= 0 {
		step = 1
	}
	items := count(start, end, step)
	if items <= 0 {
		return
	}
	workers := min(p.threads, items)
	if workers == 1 {
		fn(start, end, step)
		return
	}

	chunk := (items + workers - 1) / workers
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		s, e := span(start, end, step, w*chunk, chunk)
		if s >= end {
			break
		}
		g.Go(func() error {
			fn(s, e, step)
			return nil
		})
	}
	_ = g.Wait()
}

// Compute2D runs fn over the rectangle [start0, end0) x [start1, end1).
// Tiles are cut along dimension 0 first; dimension 1 is split only when
// dimension 0 alone cannot occupy every thread.
func (p *Pool) Compute2D(fn func(start0, end0, step0, start1, end1, step1 int),
	start0, end0, step0, start1, end1, step1 int) {
	if step0 <= 0 {
		step0 = 1
	}
	if step1 <= 0 {
		step1 = 1
	}
	items0 := count(start0, end0, step0)
	items1 := count(start1, end1, step1)
	if items0 <= 0 || items1 <= 0 {
		return
	}

	tiles0 := min(p.threads, items0)
	tiles1 := 1
	if tiles0 < p.threads {
		tiles1 = min((p.threads+tiles0-1)/tiles0, items1)
	}
	if tiles0*tiles1 == 1 {
		fn(start0, end0, step0, start1, end1, step1)
		return
	}

	chunk0 := (items0 + tiles0 - 1) / tiles0
	chunk1 := (items1 + tiles1 - 1) / tiles1
	var g errgroup.Group
	for i := 0; i < tiles0; i++ {
		s0, e0 := span(start0, end0, step0, i*chunk0, chunk0)
		if s0 >= end0 {
			break
		}
		for j := 0; j < tiles1; j++ {
			s1, e1 := span(start1, end1, step1, j*chunk1, chunk1)
			if s1 >= end1 {
				break
			}
			g.Go(func() error {
				fn(s0, e0, step0, s1, e1, step1)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// count returns the number of indices start, start+step, ... below end.
func count(start, end, step int) int {
	if end <= start {
		return 0
	}
	return (end - start + step - 1) / step
}

// span maps the item range [first, first+n) back to index space.
func span(start, end, step, first, n int) (int, int) {
	s := start + first*step
	e := min(start+(first+n)*step, end)
	return s, e
}

// Serial is a ThreadPool that runs every range on the calling goroutine.
type Serial struct{}

func (Serial) NumThreads() int { return 1 }

func (Serial) Compute1D(fn func(start, end, step int), start, end, step int) {
	if step <= 0 {
		step = 1
	}
	if end > start {
		fn(start, end, step)
	}
}

func (Serial) Compute2D(fn func(start0, end0, step0, start1, end1, step1 int),
	start0, end0, step0, start1, end1, step1 int) {
	if step0 <= 0 {
		step0 = 1
	}
	if step1 <= 0 {
		step1 = 1
	}
	if end0 > start0 && end1 > start1 {
		fn(start0, end0, step0, start1, end1, step1)
	}
}

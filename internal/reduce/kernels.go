package reduce

import "github.com/23skdu/longbow-kernels/internal/threadpool"

// window describes the reduced range of one output element relative to its
// base input offset: outer groups of inner elements, visited outer-major.
type window struct {
	outer, outerStride int
	inner, innerStride int
}

func (w window) count() int {
	return w.outer * w.inner
}

// cellFunc folds the window starting at base into one output value.
// seedOne selects a multiplicative identity seed for Prod instead of the
// first visited element.
type cellFunc[T any] func(base int, w window, seedOne bool) T

// execute walks the collapsed plan and assigns one cellFunc result per output
// element. Kept extents are partitioned over pool; reduced extents never are.
func execute[T any](pool threadpool.ThreadPool, in, out []T, p *Plan, cell cellFunc[T]) {
	r := p.DataReshape
	switch len(r) {
	case 1:
		if !p.ReduceFirstAxis {
			copy(out, in[:r[0]])
			return
		}
		out[0] = cell(0, window{outer: r[0], outerStride: 1, inner: 1}, false)

	case 2:
		if p.ReduceFirstAxis {
			w := window{outer: r[0], outerStride: r[1], inner: 1}
			pool.Compute1D(func(start, end, step int) {
				for i := start; i < end; i += step {
					out[i] = cell(i, w, false)
				}
			}, 0, r[1], 1)
			return
		}
		w := window{outer: r[1], outerStride: 1, inner: 1}
		pool.Compute1D(func(start, end, step int) {
			for i := start; i < end; i += step {
				out[i] = cell(i*r[1], w, false)
			}
		}, 0, r[0], 1)

	case 3:
		if p.ReduceFirstAxis {
			w := window{outer: r[2], outerStride: 1, inner: r[0], innerStride: r[1] * r[2]}
			pool.Compute1D(func(start, end, step int) {
				for i := start; i < end; i += step {
					out[i] = cell(i*r[2], w, true)
				}
			}, 0, r[1], 1)
			return
		}
		w := window{outer: r[1], outerStride: r[2], inner: 1}
		pool.Compute2D(func(s0, e0, st0, s1, e1, st1 int) {
			for i := s0; i < e0; i += st0 {
				for j := s1; j < e1; j += st1 {
					out[i*r[2]+j] = cell(i*r[1]*r[2]+j, w, false)
				}
			}
		}, 0, r[0], 1, 0, r[2], 1)

	case 4:
		if p.ReduceFirstAxis {
			w := window{outer: r[2], outerStride: r[3], inner: r[0], innerStride: r[1] * r[2] * r[3]}
			pool.Compute2D(func(s0, e0, st0, s1, e1, st1 int) {
				for i := s0; i < e0; i += st0 {
					for j := s1; j < e1; j += st1 {
						out[i*r[3]+j] = cell(i*r[2]*r[3]+j, w, true)
					}
				}
			}, 0, r[1], 1, 0, r[3], 1)
			return
		}
		w := window{outer: r[1], outerStride: r[2] * r[3], inner: r[3], innerStride: 1}
		pool.Compute2D(func(s0, e0, st0, s1, e1, st1 int) {
			for i := s0; i < e0; i += st0 {
				for j := s1; j < e1; j += st1 {
					out[i*r[2]+j] = cell((i*r[1]*r[2]+j)*r[3], w, true)
				}
			}
		}, 0, r[0], 1, 0, r[2], 1)
	}
}

// foldCell returns the cellFunc for typ over in using arithmetic A.
func foldCell[T any, A arith[T]](in []T, typ Type) cellFunc[T] {
	var a A
	switch typ {
	case Sum, Mean:
		return func(base int, w window, _ bool) T {
			acc := a.zero()
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					acc = a.add(acc, in[off+t*w.innerStride])
				}
			}
			if typ == Mean {
				acc = a.div(acc, w.count())
			}
			return acc
		}
	case Min:
		return func(base int, w window, _ bool) T {
			acc := in[base]
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					if v := in[off+t*w.innerStride]; a.less(v, acc) {
						acc = v
					}
				}
			}
			return acc
		}
	case Max:
		return func(base int, w window, _ bool) T {
			acc := in[base]
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					if v := in[off+t*w.innerStride]; a.less(acc, v) {
						acc = v
					}
				}
			}
			return acc
		}
	default:
		return func(base int, w window, seedOne bool) T {
			acc, skip := in[base], true
			if seedOne {
				acc, skip = a.one(), false
			}
			for k := 0; k < w.outer; k++ {
				off := base + k*w.outerStride
				for t := 0; t < w.inner; t++ {
					if skip {
						skip = false
						continue
					}
					acc = a.mul(acc, in[off+t*w.innerStride])
				}
			}
			return acc
		}
	}
}

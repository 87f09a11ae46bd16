package grid

import "fmt"

// Span lists lo, lo+step, ... up to and including hi.
func Span(lo, hi, step int) []int {
	if step < 1 {
		step = 1
	}
	out := make([]int, 0, (hi-lo)/step+1)
	for i := lo; i <= hi; i += step {
		out = append(out, i)
	}
	return out
}

// Select gathers the listed indices of each dimension from a row-major
// block. A nil entry keeps the whole dimension.
func Select(src Array, sel [][]int) (Array, error) {
	if len(sel) != len(src.Shape) {
		return Array{}, fmt.Errorf("select: %d selections for %d dimensions", len(sel), len(src.Shape))
	}
	idx := make([][]int, len(sel))
	outShape := make([]int, len(sel))
	total := 1
	for d, s := range sel {
		if s == nil {
			s = Span(0, src.Shape[d]-1, 1)
		}
		for _, i := range s {
			if i < 0 || i >= src.Shape[d] {
				return Array{}, fmt.Errorf("select: index %d out of range [0,%d) on dimension %d", i, src.Shape[d], d)
			}
		}
		idx[d] = s
		outShape[d] = len(s)
		total *= len(s)
	}

	strides := make([]int, len(src.Shape))
	acc := 1
	for d := len(src.Shape) - 1; d >= 0; d-- {
		strides[d] = acc
		acc *= src.Shape[d]
	}

	out := make([]float64, 0, total)
	if total == 0 {
		return Array{Shape: outShape, Data: out}, nil
	}
	pos := make([]int, len(sel))
	for {
		off := 0
		for d, p := range pos {
			off += idx[d][p] * strides[d]
		}
		out = append(out, src.Data[off])

		d := len(pos) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(idx[d]) {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			break
		}
	}
	return Array{Shape: outShape, Data: out}, nil
}

// Squeeze drops the listed dimensions, each of which must have length one.
func Squeeze(a Array, dims ...int) (Array, error) {
	drop := make(map[int]bool, len(dims))
	for _, d := range dims {
		if d < 0 || d >= len(a.Shape) || a.Shape[d] != 1 {
			return Array{}, fmt.Errorf("squeeze: dimension %d is not of length 1 in %v", d, a.Shape)
		}
		drop[d] = true
	}
	shape := make([]int, 0, len(a.Shape)-len(drop))
	for d, n := range a.Shape {
		if !drop[d] {
			shape = append(shape, n)
		}
	}
	return Array{Shape: shape, Data: a.Data}, nil
}

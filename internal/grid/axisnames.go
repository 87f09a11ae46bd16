package grid

// AxisNames maps the role of each dimension to its name in a file.
type AxisNames struct {
	Time     string
	Vertical string
	Y        string
	X        string
}

func DefaultAxisNames() AxisNames {
	return AxisNames{Time: "time", Vertical: "zc", Y: "yc", X: "xc"}
}

// SliceSelection builds the per-dimension selection for a windowed read and
// the dimensions to squeeze afterwards.
func (n AxisNames) SliceSelection(dims []string, c Crop, t, z Index) (sel [][]int, squeeze []int) {
	sel = make([][]int, len(dims))
	for d, name := range dims {
		switch name {
		case n.Time:
			if i, ok := t.Get(); ok {
				sel[d] = []int{i}
				squeeze = append(squeeze, d)
			}
		case n.Vertical:
			if i, ok := z.Get(); ok {
				sel[d] = []int{i}
				squeeze = append(squeeze, d)
			}
		case n.Y:
			sel[d] = Span(c.Y0, c.Y1, c.StrideY)
		case n.X:
			sel[d] = Span(c.X0, c.X1, c.StrideX)
		}
	}
	return sel, squeeze
}

// ProfileSelection selects one horizontal cell and every vertical level.
func (n AxisNames) ProfileSelection(dims []string, t Index, x, y int) (sel [][]int, squeeze []int) {
	sel = make([][]int, len(dims))
	for d, name := range dims {
		switch name {
		case n.Time:
			if i, ok := t.Get(); ok {
				sel[d] = []int{i}
				squeeze = append(squeeze, d)
			}
		case n.Y:
			sel[d] = []int{y}
			squeeze = append(squeeze, d)
		case n.X:
			sel[d] = []int{x}
			squeeze = append(squeeze, d)
		}
	}
	return sel, squeeze
}

// StridedSelection picks count samples per dimension from begin with the given steps.
func StridedSelection(begin, count, stride []int) [][]int {
	sel := make([][]int, len(begin))
	for d := range begin {
		s := max(stride[d], 1)
		idx := make([]int, 0, count[d])
		for i := range count[d] {
			idx = append(idx, begin[d]+i*s)
		}
		sel[d] = idx
	}
	return sel
}

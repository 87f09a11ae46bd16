package extract

// StridePolicy picks the sampling step for a crop of rows x cols cells.
type StridePolicy func(rows, cols int) (strideY, strideX int)

// ConstantStride samples every n-th cell on both axes.
func ConstantStride(n int) StridePolicy {
	n = max(n, 1)
	return func(int, int) (int, int) { return n, n }
}

// BoundedStride keeps each output axis at or below maxPx samples.
func BoundedStride(maxPx int) StridePolicy {
	if maxPx <= 0 {
		return ConstantStride(1)
	}
	return func(rows, cols int) (int, int) {
		return ceilDiv(rows, maxPx), ceilDiv(cols, maxPx)
	}
}

func ceilDiv(n, d int) int {
	if n <= d {
		return 1
	}
	return (n + d - 1) / d
}

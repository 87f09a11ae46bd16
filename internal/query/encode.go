package query

import (
	"math"
	"strconv"
)

// Grid, VectorGrid and Series encode non-finite samples as -1 so every
// response is valid JSON. Fill values are finite and pass through unchanged.
type (
	Grid       [][]float64
	VectorGrid [][][2]float64
	Series     []float64
)

const nonFinite = "-1"

func appendFloat(b []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(b, nonFinite...)
	}
	return strconv.AppendFloat(b, v, 'g', -1, 64)
}

func appendRow(b []byte, row []float64) []byte {
	b = append(b, '[')
	for i, v := range row {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendFloat(b, v)
	}
	return append(b, ']')
}

func (s Series) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return appendRow(make([]byte, 0, 8*len(s)+2), s), nil
}

func (g Grid) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	b := []byte{'['}
	for i, row := range g {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendRow(b, row)
	}
	return append(b, ']'), nil
}

func (g VectorGrid) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	b := []byte{'['}
	for i, row := range g {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, c := range row {
			if j > 0 {
				b = append(b, ',')
			}
			b = appendRow(b, c[:])
		}
		b = append(b, ']')
	}
	return append(b, ']'), nil
}

package feature

import (
	"fmt"
	"math"
)

// Derive computes the value of a derived feature from one vector sample.
func (f Feature) Derive(x, y float64) (float64, error) {
	switch f {
	case CurrentMagnitude:
		return Magnitude(x, y), nil
	case CurrentDirection:
		return Direction(x, y), nil
	}
	return 0, fmt.Errorf("feature %s is not derived", f)
}

func Magnitude(x, y float64) float64 {
	return math.Sqrt(x*x + y*y)
}

// Direction is the compass bearing in degrees [0,360) that the vector points
// to, with x east and y north.
func Direction(x, y float64) float64 {
	if x == 0 && y == 0 {
		return 0
	}
	d := math.Atan2(x, y) * 180 / math.Pi
	if d < 0 {
		d += 360
	}
	return d
}

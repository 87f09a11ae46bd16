package grid

import (
	"math"
	"sort"
	"time"
)

type timeAxis struct {
	times []time.Time
}

// NewTimeAxis builds an axis over monotonically increasing instants.
func NewTimeAxis(times []time.Time) TimeAxis {
	return &timeAxis{times: times}
}

func (a *timeAxis) Len() int           { return len(a.times) }
func (a *timeAxis) Times() []time.Time { return a.times }

func (a *timeAxis) IndexForDate(t time.Time) Index {
	n := len(a.times)
	if n == 0 {
		return All()
	}
	i := sort.Search(n, func(i int) bool { return !a.times[i].Before(t) })
	switch {
	case i == 0:
		return At(0)
	case i == n:
		return At(n - 1)
	}
	if t.Sub(a.times[i-1]) <= a.times[i].Sub(t) {
		return At(i - 1)
	}
	return At(i)
}

type verticalAxis struct {
	levels []float64
}

func NewVerticalAxis(levels []float64) VerticalAxis {
	return &verticalAxis{levels: levels}
}

func (a *verticalAxis) Len() int          { return len(a.levels) }
func (a *verticalAxis) Levels() []float64 { return a.levels }

func (a *verticalAxis) IndexForDepth(depth float64, bounded bool) Index {
	if len(a.levels) == 0 || math.IsNaN(depth) {
		return All()
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	best, bestDist := -1, math.Inf(1)
	for i, l := range a.levels {
		lo, hi = math.Min(lo, l), math.Max(hi, l)
		if d := math.Abs(l - depth); d < bestDist {
			best, bestDist = i, d
		}
	}
	if !bounded && (depth < lo || depth > hi) {
		return All()
	}
	if best < 0 {
		return All()
	}
	return At(best)
}

// Package grid is the boundary between the query core and gridded dataset
// files. Implementations expose coordinate systems, axis lookups and slice
// reads; callers never see file-format details.
package grid

import (
	"context"
	"fmt"
	"time"

	"github.com/kproj6/featureserver/internal/core/model"
)

// Index is an optional array index. The zero value means "no index", which
// selects the whole axis when used in a read.
type Index struct {
	Value int
	Valid bool
}

func At(i int) Index { return Index{Value: i, Valid: true} }

func All() Index { return Index{} }

func (i Index) Get() (int, bool) { return i.Value, i.Valid }

func (i Index) String() string {
	if !i.Valid {
		return "all"
	}
	return fmt.Sprintf("%d", i.Value)
}

// Crop is an inclusive index window over the (y, x) axes of a grid with the
// sampling step to apply on each axis.
type Crop struct {
	Y0, Y1  int
	X0, X1  int
	StrideY int
	StrideX int
}

// Shape is the number of rows and columns a read of this crop yields.
func (c Crop) Shape() (rows, cols int) {
	sy, sx := max(c.StrideY, 1), max(c.StrideX, 1)
	return (c.Y1-c.Y0)/sy + 1, (c.X1-c.X0)/sx + 1
}

// Array is a dense row-major block of values.
type Array struct {
	Shape []int
	Data  []float64
}

func (a Array) Len() int { return len(a.Data) }

// At returns the value at the given multi-dimensional index.
func (a Array) At(idx ...int) float64 {
	off := 0
	for d, i := range idx {
		off = off*a.Shape[d] + i
	}
	return a.Data[off]
}

// Rows2D views a two dimensional array as nested rows.
func (a Array) Rows2D() ([][]float64, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("array has %d dimensions, want 2", len(a.Shape))
	}
	rows, cols := a.Shape[0], a.Shape[1]
	out := make([][]float64, rows)
	for r := range rows {
		out[r] = a.Data[r*cols : (r+1)*cols]
	}
	return out, nil
}

type TimeAxis interface {
	Len() int
	Times() []time.Time
	// IndexForDate returns the sample closest to t.
	IndexForDate(t time.Time) Index
}

type VerticalAxis interface {
	Len() int
	Levels() []float64
	// IndexForDepth returns the nearest level. When bounded is true a depth
	// outside the axis range snaps to the closest end, otherwise it yields no index.
	IndexForDepth(depth float64, bounded bool) Index
}

// CoordSystem describes how the indices of one variable map onto geography.
type CoordSystem interface {
	HasTimeAxis() bool
	TimeAxis() TimeAxis
	HasVerticalAxis() bool
	VerticalAxis() VerticalAxis
	// Shape is the horizontal grid size.
	Shape() (ny, nx int)
	// Subset returns the smallest window holding every cell inside r.
	Subset(r model.Rect, strideY, strideX int) (Crop, error)
	// FindXY returns the cell nearest to p, or ok=false when p lies outside the grid.
	FindXY(p model.LatLon) (x, y int, ok bool)
}

type Dataset interface {
	Path() string
	CoordSystem(variable string) (CoordSystem, error)
	// ReadSlice reads one horizontal window. Axes selected with a valid index
	// are dropped from the result shape.
	ReadSlice(ctx context.Context, variable string, c Crop, t, z Index) (Array, error)
	// ReadProfile reads every vertical level at one cell.
	ReadProfile(ctx context.Context, variable string, t Index, x, y int) ([]float64, error)
	// ReadStrided reads count samples per dimension starting at begin with the given steps.
	ReadStrided(ctx context.Context, variable string, begin, count, stride []int) (Array, error)
	VarShape(variable string) ([]int, error)
	// Attribute looks up a variable attribute, or a global one when variable is empty.
	Attribute(variable, name string) (any, bool)
	Dims() map[string]int
	Close() error
}

type Opener interface {
	Open(ctx context.Context, path string) (Dataset, error)
}

type OpenerFunc func(ctx context.Context, path string) (Dataset, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Dataset, error) { return f(ctx, path) }

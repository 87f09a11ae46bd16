// Package extract resolves area and point queries against one dataset file
// and materializes scalar, vector, derived and depth-profile results.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/core/observability"
	"github.com/kproj6/featureserver/internal/feature"
	"github.com/kproj6/featureserver/internal/grid"
)

// VectorArray holds [x, y] component pairs per cell, row-major.
type VectorArray [][][2]float64

func (v VectorArray) Shape() (rows, cols int) {
	if len(v) == 0 {
		return 0, 0
	}
	return len(v), len(v[0])
}

type Options struct {
	// Stride defaults to sampling every cell.
	Stride StridePolicy
	Logger *slog.Logger
}

type Extractor struct {
	open   grid.Opener
	stride StridePolicy
	log    *slog.Logger
}

func New(open grid.Opener, opts Options) *Extractor {
	if opts.Stride == nil {
		opts.Stride = ConstantStride(1)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{open: open, stride: opts.Stride, log: opts.Logger}
}

// Scalar reads a one-variable feature over the area. The result is a 2-D
// array whose shape equals the crop of the rectangle.
func (e *Extractor) Scalar(ctx context.Context, path string, b model.AreaBounds, f feature.Feature) (a grid.Array, err error) {
	if f.Arity() != feature.Scalar {
		return grid.Array{}, fault.Arityf("scalar extraction requested for %s feature %s", f.Arity(), f)
	}
	defer observe("scalar", time.Now(), &err)

	ds, err := e.openDataset(ctx, path)
	if err != nil {
		return grid.Array{}, err
	}
	defer ds.Close()

	return e.readArea(ctx, ds, f.Var(), b)
}

// Vector reads both components of a two-variable feature.
func (e *Extractor) Vector(ctx context.Context, path string, b model.AreaBounds, f feature.Feature) (v VectorArray, err error) {
	if f.Arity() != feature.Vector {
		return nil, fault.Arityf("vector extraction requested for %s feature %s", f.Arity(), f)
	}
	defer observe("vector", time.Now(), &err)

	ds, err := e.openDataset(ctx, path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	return e.readVector(ctx, ds, f, b)
}

// Derived computes an arity-0 feature from its source vector feature.
func (e *Extractor) Derived(ctx context.Context, path string, b model.AreaBounds, f feature.Feature) (a grid.Array, err error) {
	if f.Arity() != feature.Derived {
		return grid.Array{}, fault.Arityf("derived extraction requested for %s feature %s", f.Arity(), f)
	}
	defer observe("derived", time.Now(), &err)

	ds, err := e.openDataset(ctx, path)
	if err != nil {
		return grid.Array{}, err
	}
	defer ds.Close()

	vec, err := e.readVector(ctx, ds, f.Source(), b)
	if err != nil {
		return grid.Array{}, err
	}
	rows, cols := vec.Shape()
	out := grid.Array{Shape: []int{rows, cols}, Data: make([]float64, 0, rows*cols)}
	for _, row := range vec {
		for _, c := range row {
			d, err := f.Derive(c[0], c[1])
			if err != nil {
				return grid.Array{}, fault.DataSourceErr("derive "+f.String(), err)
			}
			out.Data = append(out.Data, d)
		}
	}
	return out, nil
}

// Profile reads every vertical level of a scalar feature at the grid cell
// nearest to the point. No-data values are returned unchanged.
func (e *Extractor) Profile(ctx context.Context, path string, q model.PointQuery, f feature.Feature) (p []float64, err error) {
	if f.Arity() != feature.Scalar {
		return nil, fault.Arityf("depth profile requested for %s feature %s", f.Arity(), f)
	}
	defer observe("profile", time.Now(), &err)

	ds, err := e.openDataset(ctx, path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	cs, err := ds.CoordSystem(f.Var())
	if err != nil {
		return nil, sourceErr("coordinate system of "+f.Var(), err)
	}
	x, y, ok := cs.FindXY(q.Point)
	if !ok {
		return nil, fault.Rangef("point %s is outside the coverage of %s", q.Point, path)
	}
	t := grid.All()
	if cs.HasTimeAxis() {
		t = cs.TimeAxis().IndexForDate(q.Time)
	}
	if err := ctx.Err(); err != nil {
		return nil, sourceErr("profile canceled", err)
	}
	e.log.DebugContext(ctx, "profile resolved", "file", path, "var", f.Var(), "x", x, "y", y, "time_idx", t.String())

	vals, err := ds.ReadProfile(ctx, f.Var(), t, x, y)
	if err != nil {
		return nil, sourceErr("read profile "+f.Var(), err)
	}
	return vals, nil
}

func (e *Extractor) openDataset(ctx context.Context, path string) (grid.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, sourceErr("open canceled", err)
	}
	ds, err := e.open.Open(ctx, path)
	if err != nil {
		return nil, sourceErr("open dataset", err)
	}
	return ds, nil
}

func (e *Extractor) readVector(ctx context.Context, ds grid.Dataset, f feature.Feature, b model.AreaBounds) (VectorArray, error) {
	ax, err := e.readArea(ctx, ds, f.X(), b)
	if err != nil {
		return nil, err
	}
	ay, err := e.readArea(ctx, ds, f.Y(), b)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(ax.Shape, ay.Shape) {
		return nil, fault.DataSourceErr(
			fmt.Sprintf("components of %s have different shapes %v and %v", f, ax.Shape, ay.Shape), nil)
	}
	rows, cols := ax.Shape[0], ax.Shape[1]
	out := make(VectorArray, rows)
	for r := range rows {
		out[r] = make([][2]float64, cols)
		for c := range cols {
			i := r*cols + c
			out[r][c] = [2]float64{ax.Data[i], ay.Data[i]}
		}
	}
	return out, nil
}

func (e *Extractor) readArea(ctx context.Context, ds grid.Dataset, variable string, b model.AreaBounds) (grid.Array, error) {
	cs, err := ds.CoordSystem(variable)
	if err != nil {
		return grid.Array{}, sourceErr("coordinate system of "+variable, err)
	}
	crop, err := cs.Subset(b.Rect, 1, 1)
	if err != nil {
		return grid.Array{}, sourceErr("subset "+variable, err)
	}
	rows, cols := crop.Shape()
	crop.StrideY, crop.StrideX = e.stride(rows, cols)

	t := grid.All()
	if cs.HasTimeAxis() {
		t = grid.At(0)
		if b.Time != nil {
			t = cs.TimeAxis().IndexForDate(*b.Time)
		}
	}
	z := grid.All()
	if cs.HasVerticalAxis() {
		depth := 0.0
		if b.Depth != nil {
			depth = *b.Depth
		}
		z = cs.VerticalAxis().IndexForDepth(depth, true)
	}
	if err := ctx.Err(); err != nil {
		return grid.Array{}, sourceErr("read canceled", err)
	}
	e.log.DebugContext(ctx, "slice resolved",
		"file", ds.Path(), "var", variable,
		"crop", fmt.Sprintf("y[%d:%d] x[%d:%d]", crop.Y0, crop.Y1, crop.X0, crop.X1),
		"stride", crop.StrideY, "time_idx", t.String(), "depth_idx", z.String())

	a, err := ds.ReadSlice(ctx, variable, crop, t, z)
	if err != nil {
		return grid.Array{}, sourceErr("read "+variable, err)
	}
	rows, cols = crop.Shape()
	if !slices.Equal(a.Shape, []int{rows, cols}) {
		return grid.Array{}, fault.DataSourceErr(
			fmt.Sprintf("read %s returned shape %v, want [%d %d]", variable, a.Shape, rows, cols), nil)
	}
	return a, nil
}

// sourceErr keeps classified errors and marks everything else as a data source fault.
func sourceErr(msg string, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.DataSourceErr(msg, err)
}

func observe(kind string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = fault.KindOf(*err).String()
	}
	observability.ObserveExtraction(kind, outcome, time.Since(start).Seconds())
}

package extract

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/feature"
	"github.com/kproj6/featureserver/internal/grid"
	"github.com/kproj6/featureserver/internal/grid/gridtest"
)

const (
	ny, nx = 6, 5
	nt, nz = 2, 3
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// cell encodes (var, t, z, y, x) so tests can check exactly which sample was read.
func cell(v, t, z, y, x int) float64 {
	return float64(v*10000 + t*1000 + z*100 + y*10 + x)
}

func field(v int) gridtest.Var {
	data := make([]float64, 0, nt*nz*ny*nx)
	for t := range nt {
		for z := range nz {
			for y := range ny {
				for x := range nx {
					data = append(data, cell(v, t, z, y, x))
				}
			}
		}
	}
	return gridtest.Var{Dims: []string{"time", "zc", "yc", "xc"}, Shape: []int{nt, nz, ny, nx}, Data: data}
}

func dataset(t *testing.T) *gridtest.Dataset {
	t.Helper()
	lats, lons := gridtest.Regular(64, 8, 0.5, ny, nx)
	cs, err := grid.NewCurvilinear(lats, lons, ny, nx,
		grid.NewTimeAxis([]time.Time{t0, t0.Add(time.Hour)}),
		grid.NewVerticalAxis([]float64{0, 10, 25}))
	require.NoError(t, err)
	return &gridtest.Dataset{
		Name:   "a.nc",
		Coords: cs,
		Axes:   grid.DefaultAxisNames(),
		Vars: map[string]gridtest.Var{
			"temperature": field(1),
			"u_east":      field(2),
			"v_north":     field(3),
		},
	}
}

func rect(ulLat, ulLon, lrLat, lrLon float64) model.Rect {
	return model.Rect{UpperLeft: model.LatLon{Lat: ulLat, Lon: ulLon}, LowerRight: model.LatLon{Lat: lrLat, Lon: lrLon}}
}

func ptr[T any](v T) *T { return &v }

func TestScalar_ShapeMatchesCrop(t *testing.T) {
	ds := dataset(t)
	ex := New(gridtest.NewOpener(ds), Options{})
	rects := []model.Rect{
		rect(64, 8, 61.5, 10),
		rect(63.5, 8.5, 62.5, 9),
		rect(62, 9.5, 62, 9.5),
		rect(70, 0, 63.2, 8.9),
	}
	for _, r := range rects {
		cs, err := ds.CoordSystem("temperature")
		require.NoError(t, err)
		crop, err := cs.Subset(r, 1, 1)
		require.NoError(t, err)
		rows, cols := crop.Shape()

		a, err := ex.Scalar(context.Background(), "a.nc", model.AreaBounds{Rect: r}, feature.Temperature)
		require.NoError(t, err, r)
		assert.Equal(t, []int{rows, cols}, a.Shape, r)
		assert.Len(t, a.Data, rows*cols)
	}
	assert.Equal(t, len(rects), ds.Closes())
}

func TestScalar_ResolvesTimeAndDepth(t *testing.T) {
	ex := New(gridtest.NewOpener(dataset(t)), Options{})
	b := model.AreaBounds{
		Rect:  rect(63.5, 8.5, 62.5, 9),
		Depth: ptr(12.0),
		Time:  ptr(t0.Add(50 * time.Minute)),
	}
	a, err := ex.Scalar(context.Background(), "a.nc", b, feature.Temperature)
	require.NoError(t, err)
	rows, err := a.Rows2D()
	require.NoError(t, err)
	assert.Equal(t, []float64{cell(1, 1, 1, 1, 1), cell(1, 1, 1, 1, 2)}, rows[0])
	assert.Equal(t, []float64{cell(1, 1, 1, 3, 1), cell(1, 1, 1, 3, 2)}, rows[2])

	// no time or depth: first sample at the surface
	a, err = ex.Scalar(context.Background(), "a.nc", model.AreaBounds{Rect: b.Rect}, feature.Temperature)
	require.NoError(t, err)
	assert.Equal(t, cell(1, 0, 0, 1, 1), a.At(0, 0))
}

func TestScalar_OutsideCoverageIsRangeError(t *testing.T) {
	ex := New(gridtest.NewOpener(dataset(t)), Options{})
	_, err := ex.Scalar(context.Background(), "a.nc", model.AreaBounds{Rect: rect(10, 10, 0, 20)}, feature.Temperature)
	require.Error(t, err)
	assert.Equal(t, fault.Range, fault.KindOf(err))
}

func TestVector_PairsComponents(t *testing.T) {
	ex := New(gridtest.NewOpener(dataset(t)), Options{})
	b := model.AreaBounds{Rect: rect(64, 8, 61.5, 10), Time: ptr(t0), Depth: ptr(0.0)}
	v, err := ex.Vector(context.Background(), "a.nc", b, feature.WaterVelocity)
	require.NoError(t, err)
	rows, cols := v.Shape()
	assert.Equal(t, ny, rows)
	assert.Equal(t, nx, cols)
	for y, row := range v {
		for x, c := range row {
			assert.Len(t, c, 2)
			assert.Equal(t, [2]float64{cell(2, 0, 0, y, x), cell(3, 0, 0, y, x)}, c)
		}
	}
}

// shorter serves v_north on a grid with one row fewer.
type shorter struct {
	*gridtest.Dataset
}

func (s shorter) CoordSystem(variable string) (grid.CoordSystem, error) {
	cs, err := s.Dataset.CoordSystem(variable)
	if err != nil || variable != "v_north" {
		return cs, err
	}
	full := s.Coords
	return grid.NewCurvilinear(full.Lats[:(ny-1)*nx], full.Lons[:(ny-1)*nx], ny-1, nx, full.Time, full.Vertical)
}

func TestVector_ShapeMismatchIsDataSourceFault(t *testing.T) {
	ds := shorter{dataset(t)}
	open := grid.OpenerFunc(func(context.Context, string) (grid.Dataset, error) { return ds, nil })
	ex := New(open, Options{})

	_, err := ex.Vector(context.Background(), "a.nc", model.AreaBounds{Rect: rect(64, 8, 61.5, 10)}, feature.WaterVelocity)
	require.Error(t, err)
	assert.Equal(t, fault.DataSource, fault.KindOf(err))
	assert.False(t, fault.KindOf(err).ClientFault())
	assert.Equal(t, 1, ds.Closes())
}

func TestArityGuard_NeverOpens(t *testing.T) {
	ex := New(gridtest.Forbid(t), Options{})
	ctx := context.Background()
	b := model.AreaBounds{Rect: rect(64, 8, 61.5, 10)}

	_, err := ex.Vector(ctx, "a.nc", b, feature.Temperature)
	assert.Equal(t, fault.ArityMismatch, fault.KindOf(err))
	_, err = ex.Scalar(ctx, "a.nc", b, feature.WindVelocity)
	assert.Equal(t, fault.ArityMismatch, fault.KindOf(err))
	_, err = ex.Scalar(ctx, "a.nc", b, feature.CurrentMagnitude)
	assert.Equal(t, fault.ArityMismatch, fault.KindOf(err))
	_, err = ex.Derived(ctx, "a.nc", b, feature.Salinity)
	assert.Equal(t, fault.ArityMismatch, fault.KindOf(err))
	_, err = ex.Profile(ctx, "a.nc", model.PointQuery{}, feature.WaterVelocity)
	assert.Equal(t, fault.ArityMismatch, fault.KindOf(err))
}

func TestDerived_Magnitude(t *testing.T) {
	ex := New(gridtest.NewOpener(dataset(t)), Options{})
	b := model.AreaBounds{Rect: rect(63.5, 8.5, 63.5, 8.5), Time: ptr(t0), Depth: ptr(0.0)}
	a, err := ex.Derived(context.Background(), "a.nc", b, feature.CurrentMagnitude)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1}, a.Shape)
	x, y := cell(2, 0, 0, 1, 1), cell(3, 0, 0, 1, 1)
	assert.InDelta(t, math.Hypot(x, y), a.Data[0], 1e-9)
}

func TestProfile(t *testing.T) {
	ds := dataset(t)
	ds.Vars["salinity"] = field(4)
	v := ds.Vars["salinity"]
	// mark one level as no-data
	v.Data[(1*nz+2)*ny*nx+2*nx+3] = -32768
	ex := New(gridtest.NewOpener(ds), Options{})

	q := model.PointQuery{Point: model.LatLon{Lat: 63.1, Lon: 9.4}, Time: t0.Add(time.Hour)}
	p, err := ex.Profile(context.Background(), "a.nc", q, feature.Salinity)
	require.NoError(t, err)
	assert.Equal(t, []float64{cell(4, 1, 0, 2, 3), cell(4, 1, 1, 2, 3), -32768}, p)
}

func TestProfile_OutsideCoverage(t *testing.T) {
	ds := dataset(t)
	ex := New(gridtest.NewOpener(ds), Options{})
	p, err := ex.Profile(context.Background(), "a.nc", model.PointQuery{Point: model.LatLon{Lat: 10, Lon: 10}, Time: t0}, feature.Temperature)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Equal(t, fault.Range, fault.KindOf(err))
	assert.Equal(t, 1, ds.Closes())
}

func TestBoundedStride(t *testing.T) {
	ex := New(gridtest.NewOpener(dataset(t)), Options{Stride: BoundedStride(3)})
	a, err := ex.Scalar(context.Background(), "a.nc", model.AreaBounds{Rect: rect(64, 8, 61.5, 10)}, feature.Temperature)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, a.Shape)
	assert.Equal(t, cell(1, 0, 0, 2, 2), a.At(1, 1))

	sy, sx := BoundedStride(256)(1000, 100)
	assert.Equal(t, 4, sy)
	assert.Equal(t, 1, sx)
	sy, sx = ConstantStride(0)(10, 10)
	assert.Equal(t, 1, sy)
	assert.Equal(t, 1, sx)
}

func TestOpenFailureAndCancel(t *testing.T) {
	op := gridtest.NewOpener(dataset(t))
	op.Err = errors.New("disk on fire")
	ex := New(op, Options{})
	_, err := ex.Scalar(context.Background(), "a.nc", model.AreaBounds{Rect: rect(64, 8, 61.5, 10)}, feature.Temperature)
	assert.Equal(t, fault.DataSource, fault.KindOf(err))

	ex = New(gridtest.NewOpener(dataset(t)), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ex.Scalar(ctx, "a.nc", model.AreaBounds{Rect: rect(64, 8, 61.5, 10)}, feature.Temperature)
	assert.ErrorIs(t, err, context.Canceled)
}

// Package gridtest provides in-memory datasets for tests of grid consumers.
package gridtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kproj6/featureserver/internal/grid"
)

type Var struct {
	Dims  []string
	Shape []int
	Data  []float64
	Attrs map[string]any
}

// Dataset serves every variable on one shared coordinate system.
type Dataset struct {
	Name   string
	Coords *grid.Curvilinear
	Axes   grid.AxisNames
	Vars   map[string]Var
	Global map[string]any

	closes atomic.Int32
}

func (d *Dataset) Path() string { return d.Name }

// Closes reports how many times Close was called.
func (d *Dataset) Closes() int { return int(d.closes.Load()) }

func (d *Dataset) variable(name string) (Var, error) {
	v, ok := d.Vars[name]
	if !ok {
		return Var{}, fmt.Errorf("variable %q not found", name)
	}
	return v, nil
}

func (d *Dataset) CoordSystem(variable string) (grid.CoordSystem, error) {
	if _, err := d.variable(variable); err != nil {
		return nil, err
	}
	return d.Coords, nil
}

func (d *Dataset) ReadSlice(ctx context.Context, variable string, c grid.Crop, t, z grid.Index) (grid.Array, error) {
	if err := ctx.Err(); err != nil {
		return grid.Array{}, err
	}
	v, err := d.variable(variable)
	if err != nil {
		return grid.Array{}, err
	}
	sel, sq := d.Axes.SliceSelection(v.Dims, c, t, z)
	a, err := grid.Select(grid.Array{Shape: v.Shape, Data: v.Data}, sel)
	if err != nil {
		return grid.Array{}, err
	}
	return grid.Squeeze(a, sq...)
}

func (d *Dataset) ReadProfile(ctx context.Context, variable string, t grid.Index, x, y int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := d.variable(variable)
	if err != nil {
		return nil, err
	}
	sel, _ := d.Axes.ProfileSelection(v.Dims, t, x, y)
	a, err := grid.Select(grid.Array{Shape: v.Shape, Data: v.Data}, sel)
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}

func (d *Dataset) ReadStrided(ctx context.Context, variable string, begin, count, stride []int) (grid.Array, error) {
	if err := ctx.Err(); err != nil {
		return grid.Array{}, err
	}
	v, err := d.variable(variable)
	if err != nil {
		return grid.Array{}, err
	}
	return grid.Select(grid.Array{Shape: v.Shape, Data: v.Data}, grid.StridedSelection(begin, count, stride))
}

func (d *Dataset) VarShape(variable string) ([]int, error) {
	v, err := d.variable(variable)
	if err != nil {
		return nil, err
	}
	return v.Shape, nil
}

func (d *Dataset) Attribute(variable, name string) (any, bool) {
	if variable == "" {
		a, ok := d.Global[name]
		return a, ok
	}
	v, ok := d.Vars[variable]
	if !ok {
		return nil, false
	}
	a, ok := v.Attrs[name]
	return a, ok
}

func (d *Dataset) Dims() map[string]int {
	out := map[string]int{}
	for _, v := range d.Vars {
		for i, name := range v.Dims {
			out[name] = v.Shape[i]
		}
	}
	return out
}

func (d *Dataset) Close() error {
	d.closes.Add(1)
	return nil
}

// Opener hands out registered datasets by path.
type Opener struct {
	mu       sync.Mutex
	datasets map[string]*Dataset
	opens    map[string]int
	// Err, when set, is returned by every Open.
	Err error
}

func NewOpener(ds ...*Dataset) *Opener {
	o := &Opener{datasets: map[string]*Dataset{}, opens: map[string]int{}}
	for _, d := range ds {
		o.datasets[d.Name] = d
	}
	return o
}

func (o *Opener) Open(ctx context.Context, path string) (grid.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	d, ok := o.datasets[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such dataset", path)
	}
	o.opens[path]++
	return d, nil
}

func (o *Opener) Opens(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[path]
}

// Forbid returns an opener that fails the test if it is ever used.
func Forbid(t testing.TB) grid.Opener {
	return grid.OpenerFunc(func(_ context.Context, path string) (grid.Dataset, error) {
		t.Errorf("unexpected open of %q", path)
		return nil, fmt.Errorf("open %s: forbidden", path)
	})
}

// Regular builds an ny x nx grid whose rows run north to south from
// (lat0, lon0) in steps of step degrees.
func Regular(lat0, lon0, step float64, ny, nx int) (lats, lons []float64) {
	lats = make([]float64, ny*nx)
	lons = make([]float64, ny*nx)
	for y := range ny {
		for x := range nx {
			lats[y*nx+x] = lat0 - float64(y)*step
			lons[y*nx+x] = lon0 + float64(x)*step
		}
	}
	return lats, lons
}

// Package ncfixture writes small NetCDF files shaped like ocean model output
// for tests.
package ncfixture

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Fill is the no-data value written into masked cells.
const Fill float32 = -32768

type Options struct {
	// Upper-left corner and grid spacing in degrees; rows run north to south.
	Lat0, Lon0, Step float64
	NY, NX           int
	// Hourly samples starting at Start, formatted "2006-01-02 15:04:05".
	Start  string
	NTimes int
	Depths []float64
	// Resolution is written as grid_mapping:horizontal_resolution in metres.
	Resolution float64
	// Masked cells (y, x) hold the fill value in every data variable.
	Masked [][2]int
}

// Value is the deterministic content of variable v at (t, z, y, x).
func Value(v, t, z, y, x int) float32 {
	return float32(v*10000 + t*1000 + z*100 + y*10 + x)
}

var dataVars = []string{"temperature", "salinity", "u_east", "v_north", "w_east", "w_north", "w_velocity"}

// VarIndex is the v argument of Value for a data variable name.
func VarIndex(name string) int {
	for i, n := range dataVars {
		if n == name {
			return i
		}
	}
	return -1
}

func attrs(t testing.TB, kv map[string]any) *util.OrderedMap {
	t.Helper()
	keys := make([]string, 0, len(kv))
	for _, k := range []string{"units", "_FillValue", "horizontal_resolution", "long_name"} {
		if _, ok := kv[k]; ok {
			keys = append(keys, k)
		}
	}
	om, err := util.NewOrderedMap(keys, kv)
	if err != nil {
		t.Fatalf("ordered map: %v", err)
	}
	return om
}

// Write creates name inside t.TempDir() (or dir when non-empty) and returns its path.
func Write(t testing.TB, dir, name string, s Options) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	path := filepath.Join(dir, name)
	cw, err := cdf.NewCDFWriter(path)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}

	lats := make([][]float32, s.NY)
	lons := make([][]float32, s.NY)
	depth := make([][]float32, s.NY)
	for y := range s.NY {
		lats[y] = make([]float32, s.NX)
		lons[y] = make([]float32, s.NX)
		depth[y] = make([]float32, s.NX)
		for x := range s.NX {
			lats[y][x] = float32(s.Lat0 - float64(y)*s.Step)
			lons[y][x] = float32(s.Lon0 + float64(x)*s.Step)
			depth[y][x] = float32(100 + y + x)
		}
	}
	masked := map[[2]int]bool{}
	for _, m := range s.Masked {
		masked[m] = true
	}

	must := func(name string, v api.Variable) {
		t.Helper()
		if err := cw.AddVar(name, v); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	empty := attrs(t, map[string]any{})

	times := make([]float64, s.NTimes)
	for i := range times {
		times[i] = float64(i) / 24
	}
	must("time", api.Variable{
		Values:     times,
		Dimensions: []string{"time"},
		Attributes: attrs(t, map[string]any{"units": "days since " + s.Start}),
	})
	zc := make([]float32, len(s.Depths))
	for i, d := range s.Depths {
		zc[i] = float32(d)
	}
	must("zc", api.Variable{Values: zc, Dimensions: []string{"zc"}, Attributes: empty})
	must("gridLats", api.Variable{Values: lats, Dimensions: []string{"yc", "xc"}, Attributes: empty})
	must("gridLons", api.Variable{Values: lons, Dimensions: []string{"yc", "xc"}, Attributes: empty})
	must("depth", api.Variable{
		Values:     depth,
		Dimensions: []string{"yc", "xc"},
		Attributes: attrs(t, map[string]any{"units": "m"}),
	})
	must("grid_mapping", api.Variable{
		Values:     []int32{0},
		Dimensions: []string{"one"},
		Attributes: attrs(t, map[string]any{"horizontal_resolution": s.Resolution}),
	})

	for v, name := range dataVars {
		data := make([][][][]float32, s.NTimes)
		for ti := range s.NTimes {
			data[ti] = make([][][]float32, len(s.Depths))
			for z := range s.Depths {
				data[ti][z] = make([][]float32, s.NY)
				for y := range s.NY {
					data[ti][z][y] = make([]float32, s.NX)
					for x := range s.NX {
						val := Value(v, ti, z, y, x)
						if masked[[2]int{y, x}] {
							val = Fill
						}
						data[ti][z][y][x] = val
					}
				}
			}
		}
		must(name, api.Variable{
			Values:     data,
			Dimensions: []string{"time", "zc", "yc", "xc"},
			Attributes: attrs(t, map[string]any{"_FillValue": Fill, "long_name": fmt.Sprintf("fixture %s", name)}),
		})
	}

	if err := cw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return path
}

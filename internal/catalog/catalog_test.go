package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/grid/gridtest"
)

var jan1 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func rect(ulLat, ulLon, lrLat, lrLon float64) model.Rect {
	return model.Rect{UpperLeft: model.LatLon{Lat: ulLat, Lon: ulLon}, LowerRight: model.LatLon{Lat: lrLat, Lon: lrLon}}
}

// square is a descriptor covering [lat0, lat0+size] x [lon0, lon0+size].
func square(path string, lat0, lon0, size float64, start time.Time, hours int, res float64) model.DatasetDescriptor {
	return model.DatasetDescriptor{
		Path: path,
		Coverage: [4]model.LatLon{
			{Lat: lat0 + size, Lon: lon0},
			{Lat: lat0 + size, Lon: lon0 + size},
			{Lat: lat0, Lon: lon0 + size},
			{Lat: lat0, Lon: lon0},
		},
		Interval:   model.Interval{Start: start, End: start.Add(time.Duration(hours) * time.Hour)},
		Resolution: res,
		Dims:       map[string]int{"time": hours, "yc": 10, "xc": 10},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"sqlite": sq, "memory": NewMemoryStore()}
}

func paths(ds []model.DatasetDescriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Path)
	}
	return out
}

func TestQuery_CoverageAndClosedInterval(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(st, gridtest.Forbid(t))
			a := square("A.nc", 0, 0, 10, jan1, 24, 800)
			ok, err := st.Insert(ctx, a)
			require.NoError(t, err)
			require.True(t, ok)

			got, err := c.Query(ctx, jan1.Add(12*time.Hour), rect(15, 5, 5, 15))
			require.NoError(t, err)
			assert.Equal(t, []string{"A.nc"}, paths(got))
			assert.Equal(t, a.Interval.Start.UTC(), got[0].Interval.Start.UTC())
			assert.Equal(t, a.Coverage, got[0].Coverage)
			assert.Equal(t, a.Dims, got[0].Dims)

			got, err = c.Query(ctx, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), rect(15, 5, 5, 15))
			require.NoError(t, err)
			assert.Empty(t, got)

			// both interval ends are inside
			for _, at := range []time.Time{jan1, jan1.Add(24 * time.Hour)} {
				got, err = c.Query(ctx, at, rect(15, 5, 5, 15))
				require.NoError(t, err)
				assert.Len(t, got, 1, "at %v", at)
			}

			// a rectangle touching the east edge matches, one beyond it does not
			got, err = c.Query(ctx, jan1, rect(5, 10, 4, 12))
			require.NoError(t, err)
			assert.Len(t, got, 1)
			got, err = c.Query(ctx, jan1, rect(5, 10.5, 4, 12))
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestQuery_RefinesSkewedCoverage(t *testing.T) {
	ctx := context.Background()
	// a diamond whose envelope is [0,10]x[0,10] but which misses the corners
	diamond := model.DatasetDescriptor{
		Path: "diamond.nc",
		Coverage: [4]model.LatLon{
			{Lat: 10, Lon: 5}, {Lat: 5, Lon: 10}, {Lat: 0, Lon: 5}, {Lat: 5, Lon: 0},
		},
		Interval:   model.Interval{Start: jan1, End: jan1.Add(time.Hour)},
		Resolution: 100,
	}
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(st, gridtest.Forbid(t))
			_, err := st.Insert(ctx, diamond)
			require.NoError(t, err)

			got, err := c.Query(ctx, jan1, rect(10, 9, 9, 10))
			require.NoError(t, err)
			assert.Empty(t, got, "envelope corner is outside the polygon")

			got, err = c.Query(ctx, jan1, rect(6, 4, 4, 6))
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestInsert_DuplicatePathIsIgnored(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a := square("A.nc", 0, 0, 10, jan1, 24, 800)
			ok, err := st.Insert(ctx, a)
			require.NoError(t, err)
			require.True(t, ok)

			moved := square("A.nc", 50, 50, 1, jan1, 1, 100)
			ok, err = st.Insert(ctx, moved)
			require.NoError(t, err)
			assert.False(t, ok)

			all, err := st.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 800.0, all[0].Resolution)

			has, err := st.Has(ctx, "A.nc")
			require.NoError(t, err)
			assert.True(t, has)
			has, err = st.Has(ctx, "B.nc")
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestLatest_NewestStartThenFinerResolution(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(st, gridtest.Forbid(t))
			for _, d := range []model.DatasetDescriptor{
				square("old.nc", 0, 0, 10, jan1, 48, 160),
				square("coarse.nc", 0, 0, 10, jan1.Add(12*time.Hour), 48, 800),
				square("fine.nc", 0, 0, 10, jan1.Add(12*time.Hour), 48, 160),
			} {
				_, err := st.Insert(ctx, d)
				require.NoError(t, err)
			}

			got, err := c.Latest(ctx, jan1.Add(13*time.Hour), rect(5, 5, 4, 6))
			require.NoError(t, err)
			assert.Equal(t, "fine.nc", got.Path)

			got, err = c.Latest(ctx, jan1.Add(time.Hour), rect(5, 5, 4, 6))
			require.NoError(t, err)
			assert.Equal(t, "old.nc", got.Path)

			_, err = c.Latest(ctx, jan1.Add(time.Hour), rect(40, 40, 30, 50))
			require.Error(t, err)
			assert.Equal(t, fault.Range, fault.KindOf(err))
		})
	}
}

func TestBounds_UnionAndFinestResolution(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), gridtest.Forbid(t))

	_, _, err := c.Bounds(ctx)
	require.Error(t, err)
	assert.Equal(t, fault.Range, fault.KindOf(err))

	_, err = c.store.Insert(ctx, square("a.nc", 0, 0, 10, jan1, 24, 800))
	require.NoError(t, err)
	_, err = c.store.Insert(ctx, square("b.nc", 20, -5, 5, jan1, 24, 160))
	require.NoError(t, err)

	env, res, err := c.Bounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, rect(25, -5, 0, 10), env)
	assert.Equal(t, 160.0, res)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, Config{Driver: DriverMemory}, gridtest.Forbid(t))
	require.NoError(t, err)
	assert.Equal(t, "memory", c.StoreName())
	require.NoError(t, c.Ping(ctx))

	c, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "c.db")}, gridtest.Forbid(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, "sqlite", c.StoreName())
	require.NoError(t, c.Ping(ctx))

	_, err = Open(ctx, Config{Driver: "postgis"}, gridtest.Forbid(t))
	require.Error(t, err)
	assert.Equal(t, fault.CatalogUnavailable, fault.KindOf(err))

	_, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "missing", "dir", "c.db")}, gridtest.Forbid(t))
	require.Error(t, err)
	assert.Equal(t, fault.CatalogUnavailable, fault.KindOf(err))
}

func TestCovering_IgnoresTimeAndApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(st, gridtest.Forbid(t))
			old := square("old.nc", 0, 0, 10, jan1, 24, 800)
			newer := square("new.nc", 0, 0, 10, jan1.AddDate(0, 1, 0), 24, 800)

			ok, err := c.Apply(ctx, old)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = c.Apply(ctx, newer)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = c.Apply(ctx, old)
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := c.Covering(ctx, rect(5, 5, 1, 9))
			require.NoError(t, err)
			assert.Equal(t, "new.nc", got.Path)

			_, err = c.Covering(ctx, rect(50, 50, 40, 60))
			assert.Equal(t, fault.Range, fault.KindOf(err))
		})
	}
}

func TestStores_ConcurrentInsertAndQuery(t *testing.T) {
	const rows, readers = 200, 8
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := New(st, gridtest.Forbid(t))
			area := rect(10, 0, 0, 10)
			at := jan1.Add(time.Hour)

			done := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(done)
				for i := range rows {
					d := square(fmt.Sprintf("d%03d.nc", i), 0, 0, 10, jan1, 24, 800)
					inserted, err := c.Apply(ctx, d)
					if !assert.NoError(t, err) {
						return
					}
					assert.True(t, inserted)
				}
			}()

			for range readers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					seen := 0
					for {
						select {
						case <-done:
							return
						default:
						}
						got, err := c.Query(ctx, at, area)
						if !assert.NoError(t, err) {
							return
						}
						assert.GreaterOrEqual(t, len(got), seen, "rows disappeared")
						seen = len(got)
						for _, d := range got {
							assert.NotEmpty(t, d.Path)
							assert.Equal(t, 800.0, d.Resolution, d.Path)
							assert.True(t, d.Interval.Start.Equal(jan1), d.Path)
							assert.Equal(t, 24, d.Dims["time"], d.Path)
							assert.Equal(t, model.LatLon{Lat: 10, Lon: 0}, d.Coverage[0], d.Path)
						}
					}
				}()
			}
			wg.Wait()

			all, err := c.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, rows)
			got, err := c.Query(ctx, at, area)
			require.NoError(t, err)
			assert.Len(t, got, rows)
		})
	}
}

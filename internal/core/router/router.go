package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kproj6/featureserver/internal/bounds"
	"github.com/kproj6/featureserver/internal/catalog"
	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/core/observability"
	"github.com/kproj6/featureserver/internal/feature"
	mylog "github.com/kproj6/featureserver/internal/logger"
	"github.com/kproj6/featureserver/internal/pyramid"
	"github.com/kproj6/featureserver/internal/query"
)

// Service answers feature, catalog and tiling requests.
type Service interface {
	Area(ctx context.Context, f feature.Feature, b model.AreaBounds) (query.AreaResult, error)
	Profile(ctx context.Context, f feature.Feature, q model.PointQuery) (query.ProfileResult, error)
	Datasets(ctx context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error)
	TileMatrixSet(ctx context.Context) (pyramid.TileMatrixSet, error)
	Tile(ctx context.Context, level, row, col int) (model.Rect, error)
}

type Scanner interface {
	Scan(ctx context.Context, root string, opts catalog.ScanOptions) (catalog.ScanReport, error)
}

type Handlers struct {
	Svc     Service
	Log     *slog.Logger
	Timeout time.Duration

	// Scanner and ScanRoot back POST /catalog/scan. A nil Scanner or an empty
	// root disables the route.
	Scanner  Scanner
	ScanRoot string
	ScanOpts catalog.ScanOptions
}

// Mount registers the API routes on r.
func (h *Handlers) Mount(r chi.Router) {
	if h.Log == nil {
		h.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r.Get("/features", instrument("/features", h.Features))
	r.Get("/feature/{name}/area", instrument("/feature/{name}/area", h.Area))
	r.Get("/feature/{name}/profile", instrument("/feature/{name}/profile", h.Profile))
	r.Get("/catalog", instrument("/catalog", h.Catalog))
	r.Post("/catalog/scan", instrument("/catalog/scan", h.Scan))
	r.Get("/wmts/{name}/tilematrixset", instrument("/wmts/{name}/tilematrixset", h.TileMatrixSet))
	r.Get("/wmts/{name}/tile/{z}/{row}/{col}", instrument("/wmts/{name}/tile", h.Tile))
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func (h *Handlers) deadline(r *http.Request) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.Timeout)
}

func lookup(r *http.Request) (feature.Feature, error) {
	name := chi.URLParam(r, "name")
	f, ok := feature.Lookup(name)
	if !ok {
		return feature.Invalid, fault.Validationf(nil, map[string]string{"feature": "unknown feature " + strconv.Quote(name)})
	}
	return f, nil
}

func (h *Handlers) Features(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, feature.All())
}

func (h *Handlers) Area(w http.ResponseWriter, r *http.Request) {
	f, err := lookup(r)
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	b, err := bounds.ResolveFor(f, r.URL.Query())
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.deadline(r)
	defer cancel()
	ctx = mylog.WithFeature(ctx, f.String())

	res, err := h.Svc.Area(ctx, f, b)
	if err != nil {
		WriteError(w, r.WithContext(ctx), h.Log, timeoutAware(ctx, err))
		return
	}
	h.Log.DebugContext(mylog.WithDataset(ctx, res.File), "area served", "bounds", b.String(), "shape", res.Shape)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	f, err := lookup(r)
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	q, err := bounds.ResolvePoint(r.URL.Query())
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.deadline(r)
	defer cancel()
	ctx = mylog.WithFeature(ctx, f.String())

	res, err := h.Svc.Profile(ctx, f, q)
	if err != nil {
		WriteError(w, r.WithContext(ctx), h.Log, timeoutAware(ctx, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) Catalog(w http.ResponseWriter, r *http.Request) {
	rect, at, err := bounds.ResolveRectAt(r.URL.Query())
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	ds, err := h.Svc.Datasets(r.Context(), at, rect)
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	if h.Scanner == nil || h.ScanRoot == "" {
		WriteError(w, r, h.Log, fault.Rangef("no scan root configured"))
		return
	}
	rep, err := h.Scanner.Scan(r.Context(), h.ScanRoot, h.ScanOpts)
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) TileMatrixSet(w http.ResponseWriter, r *http.Request) {
	if _, err := lookup(r); err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	set, err := h.Svc.TileMatrixSet(r.Context())
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type tileResponse struct {
	Level int        `json:"level"`
	Row   int        `json:"row"`
	Col   int        `json:"col"`
	BBox  model.Rect `json:"bbox"`
}

func (h *Handlers) Tile(w http.ResponseWriter, r *http.Request) {
	if _, err := lookup(r); err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	invalid := map[string]string{}
	addr := map[string]int{}
	for _, p := range []string{"z", "row", "col"} {
		n, err := strconv.Atoi(chi.URLParam(r, p))
		if err != nil {
			invalid[p] = "invalid number format"
			continue
		}
		addr[p] = n
	}
	if len(invalid) > 0 {
		WriteError(w, r, h.Log, fault.Validationf(nil, invalid))
		return
	}
	bbox, err := h.Svc.Tile(r.Context(), addr["z"], addr["row"], addr["col"])
	if err != nil {
		WriteError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, tileResponse{Level: addr["z"], Row: addr["row"], Col: addr["col"], BBox: bbox})
}

// timeoutAware turns an expired request deadline into a server fault with a
// readable message.
func timeoutAware(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fault.DataSourceErr("extraction deadline exceeded", err)
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

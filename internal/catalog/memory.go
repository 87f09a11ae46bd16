package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"

	"github.com/kproj6/featureserver/internal/core/model"
)

// memEntry is one descriptor in the in-memory tree, keyed on
// (lon, lat, time).
type memEntry struct {
	d    model.DatasetDescriptor
	rect rtreego.Rect
}

func (e *memEntry) Bounds() rtreego.Rect { return e.rect }

func rectOf(b box) (rtreego.Rect, error) {
	b = b.pad(1e-9, 1)
	point := rtreego.Point{b.minLon, b.minLat, b.tStart}
	lengths := []float64{b.maxLon - b.minLon, b.maxLat - b.minLat, b.tEnd - b.tStart}
	return rtreego.NewRect(point, lengths)
}

// MemoryStore keeps the catalog in an R-tree for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	tree   *rtreego.Rtree
	byPath map[string]*memEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tree:   rtreego.NewTree(3, 25, 50),
		byPath: map[string]*memEntry{},
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Has(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byPath[path]
	return ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, d model.DatasetDescriptor) (bool, error) {
	b := boxOf(d)
	if !b.finite() {
		return false, errors.New("descriptor bounds are not finite")
	}
	rect, err := rectOf(b)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPath[d.Path]; ok {
		return false, nil
	}
	e := &memEntry{d: d, rect: rect}
	m.byPath[d.Path] = e
	m.tree.Insert(e)
	return true, nil
}

func (m *MemoryStore) Candidates(_ context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error) {
	q, err := rectOf(queryBox(t, r))
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := m.tree.SearchIntersect(q)
	out := make([]model.DatasetDescriptor, 0, len(hits))
	for _, s := range hits {
		if e, ok := s.(*memEntry); ok {
			out = append(out, e.d)
		}
	}
	return out, nil
}

func (m *MemoryStore) All(_ context.Context) ([]model.DatasetDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DatasetDescriptor, 0, len(m.byPath))
	for _, e := range m.byPath {
		out = append(out, e.d)
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/geo"
)

const schema = `
CREATE TABLE IF NOT EXISTS dataset (
	id         INTEGER PRIMARY KEY,
	filepath   TEXT NOT NULL UNIQUE,
	coverage   TEXT NOT NULL,
	corners    TEXT NOT NULL,
	t_start    INTEGER NOT NULL,
	t_end      INTEGER NOT NULL,
	resolution REAL NOT NULL,
	dims       TEXT NOT NULL
);
`

// The R*Tree module stores 32-bit floats rounded outward, so it only
// prefilters; t_start/t_end in dataset hold exact nanoseconds.
const rtreeSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS dataset_rtree USING rtree(
	id, min_lon, max_lon, min_lat, max_lat, t_start, t_end
);
`

// SQLiteStore is the on-disk catalog. Writes are one transaction per
// descriptor; WAL lets queries proceed while a scan inserts.
type SQLiteStore struct {
	db    *sql.DB
	retry retryPolicy
}

// OpenSQLite opens or creates the catalog database at path and checks that
// the R*Tree module is available.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fault.Unavailable("open catalog database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fault.Unavailable("open catalog database", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fault.Unavailable("create catalog schema", err)
	}
	if _, err := db.ExecContext(ctx, rtreeSchema); err != nil {
		_ = db.Close()
		return nil, fault.Unavailable("catalog spatial index unavailable", err)
	}
	return &SQLiteStore{db: db, retry: defaultRetry}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Has(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.retry.do(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM dataset WHERE filepath = ?`, path).Scan(&n)
	})
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", path, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, d model.DatasetDescriptor) (bool, error) {
	b := boxOf(d)
	if !b.finite() {
		return false, errors.New("descriptor bounds are not finite")
	}
	wkt, err := geo.WKT(d.Coverage)
	if err != nil {
		return false, err
	}
	corners, err := json.Marshal(d.Coverage)
	if err != nil {
		return false, fmt.Errorf("encode corners: %w", err)
	}
	dims, err := json.Marshal(d.Dims)
	if err != nil {
		return false, fmt.Errorf("encode dims: %w", err)
	}

	var inserted bool
	err = s.retry.do(ctx, func() error {
		inserted = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO dataset (filepath, coverage, corners, t_start, t_end, resolution, dims)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(filepath) DO NOTHING`,
			d.Path, wkt, string(corners), d.Interval.Start.UnixNano(), d.Interval.End.UnixNano(), d.Resolution, string(dims))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return tx.Commit()
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_rtree (id, min_lon, max_lon, min_lat, max_lat, t_start, t_end)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, b.minLon, b.maxLon, b.minLat, b.maxLat, b.tStart, b.tEnd); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", d.Path, err)
	}
	return inserted, nil
}

const selectColumns = `d.filepath, d.corners, d.t_start, d.t_end, d.resolution, d.dims`

func (s *SQLiteStore) Candidates(ctx context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error) {
	q := queryBox(t, r)
	ns := t.UnixNano()
	var out []model.DatasetDescriptor
	err := s.retry.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+selectColumns+`
			 FROM dataset d JOIN dataset_rtree r ON r.id = d.id
			 WHERE r.min_lon <= ? AND r.max_lon >= ?
			   AND r.min_lat <= ? AND r.max_lat >= ?
			   AND r.t_start <= ? AND r.t_end >= ?
			   AND d.t_start <= ? AND d.t_end >= ?`,
			q.maxLon, q.minLon, q.maxLat, q.minLat, q.tEnd, q.tStart, ns, ns)
		if err != nil {
			return err
		}
		out, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.DatasetDescriptor, error) {
	var out []model.DatasetDescriptor
	err := s.retry.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM dataset d ORDER BY d.id`)
		if err != nil {
			return err
		}
		out, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]model.DatasetDescriptor, error) {
	defer func() { _ = rows.Close() }()
	var out []model.DatasetDescriptor
	for rows.Next() {
		var (
			d             model.DatasetDescriptor
			corners, dims string
			tStart, tEnd  int64
		)
		if err := rows.Scan(&d.Path, &corners, &tStart, &tEnd, &d.Resolution, &dims); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(corners), &d.Coverage); err != nil {
			return nil, fmt.Errorf("decode corners of %s: %w", d.Path, err)
		}
		if err := json.Unmarshal([]byte(dims), &d.Dims); err != nil {
			return nil, fmt.Errorf("decode dims of %s: %w", d.Path, err)
		}
		d.Interval = model.Interval{
			Start: time.Unix(0, tStart).UTC(),
			End:   time.Unix(0, tEnd).UTC(),
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// retryPolicy retries transient lock contention with exponential backoff.
type retryPolicy struct {
	attempts int
	base     time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, base: 20 * time.Millisecond}

func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	delay := p.base
	var err error
	for i := range max(p.attempts, 1) {
		if err = fn(); err == nil || !transient(err) {
			return err
		}
		if i == p.attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}

func transient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

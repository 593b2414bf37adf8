package watcher

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"bidwatch/internal/adapters/storage"
	domain "bidwatch/internal/domain/watcher"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const watcherColumns = `id, post_url, my_name, interval_ms, state, post_number, running, last_tick_at, created_at`

// Save inserts or updates a watcher.
// PRE: watcher has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, w domain.Watcher) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watcher (`+watcherColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   post_url=excluded.post_url, my_name=excluded.my_name, interval_ms=excluded.interval_ms,
		   state=excluded.state, post_number=excluded.post_number, running=excluded.running,
		   last_tick_at=excluded.last_tick_at`,
		w.ID, w.PostURL, w.MyName, w.Interval.Milliseconds(), w.State, w.PostNumber,
		boolToInt(w.Running), nullableTime(w.LastTickAt), w.CreatedAt.UTC().Format(timeLayout))
	return err
}

// GetByID retrieves a watcher by ID.
// PRE: id is non-empty
// POST: Returns the watcher or domain.ErrWatcherNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Watcher, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+watcherColumns+` FROM watcher WHERE id = ?`, id)
	if err != nil {
		return domain.Watcher{}, err
	}
	defer rows.Close()
	list, err := scanWatchers(rows)
	if err != nil {
		return domain.Watcher{}, err
	}
	if len(list) == 0 {
		return domain.Watcher{}, domain.ErrWatcherNotFound
	}
	return list[0], nil
}

// List returns all watchers, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Watcher, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+watcherColumns+` FROM watcher ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatchers(rows)
}

// ListRunning returns watchers that should be resumed after a restart.
// POST: stopped watchers are never returned
func (s *SQLiteStore) ListRunning(ctx context.Context) ([]domain.Watcher, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watcherColumns+` FROM watcher WHERE running = 1 AND state != ? ORDER BY created_at, rowid`,
		domain.StateStopped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatchers(rows)
}

// SetRunning records whether a watcher's loop is live.
// PRE: id is non-empty
// POST: returns domain.ErrWatcherNotFound when no row matched
func (s *SQLiteStore) SetRunning(ctx context.Context, id string, running bool) error {
	return s.exec(ctx, `UPDATE watcher SET running = ? WHERE id = ?`, boolToInt(running), id)
}

// UpdateTimestamp records the completion time of the last tick.
func (s *SQLiteStore) UpdateTimestamp(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `UPDATE watcher SET last_tick_at = ? WHERE id = ?`, at.UTC().Format(timeLayout), id)
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrWatcherNotFound
	}
	return nil
}

func scanWatchers(rows *sql.Rows) ([]domain.Watcher, error) {
	var out []domain.Watcher
	for rows.Next() {
		var (
			w          domain.Watcher
			intervalMs int64
			running    int
			lastTick   sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&w.ID, &w.PostURL, &w.MyName, &intervalMs, &w.State, &w.PostNumber,
			&running, &lastTick, &createdAt); err != nil {
			return nil, err
		}
		w.Interval = time.Duration(intervalMs) * time.Millisecond
		w.Running = running != 0
		w.CreatedAt = parseTime(createdAt, "created_at", w.ID)
		if lastTick.Valid {
			w.LastTickAt = parseTime(lastTick.String, "last_tick_at", w.ID)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// parseTime parses a time string, logging a warning on failure.
func parseTime(raw, field, watcherID string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		slog.Warn("watcher: failed to parse time", "field", field, "watcher_id", watcherID, "raw", raw, "error", err)
	}
	return t
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)

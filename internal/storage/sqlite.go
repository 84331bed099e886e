package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// sqliteStores implements HistoryStore and KVStore on one database handle.
type sqliteStores struct {
	db *sql.DB
}

// Open opens (or creates) the on-device database at path and prepares the
// schema. Use ":memory:" for ephemeral state.
func Open(path string) (StoreSet, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, &StorageError{Op: "open", Cause: err}
	}
	// A single connection keeps :memory: databases coherent and matches
	// the single-writer model; readers still multiplex over it safely.
	db.SetMaxOpenConns(1)

	s := &sqliteStores{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return StoreSet{}, err
	}

	return StoreSet{
		History: s,
		KV:      s,
		closer:  db.Close,
	}, nil
}

func (s *sqliteStores) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS experiment_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			experiment_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_event_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_experiment_history_id ON experiment_history(experiment_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_event_history_name ON user_event_history(name, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return &StorageError{Op: "init", Cause: fmt.Errorf("%s: %w", stmt[:30], err)}
		}
	}
	return nil
}

func (s *sqliteStores) AppendExperimentHistory(ctx context.Context, experimentID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_history (experiment_id, created_at) VALUES (?, ?)`,
		experimentID, time.Now().Unix(),
	)
	if err != nil {
		return &StorageError{Op: "append experiment history", Cause: err}
	}
	return nil
}

func (s *sqliteStores) AppendUserEvent(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_event_history (name, created_at) VALUES (?, ?)`,
		name, time.Now().Unix(),
	)
	if err != nil {
		return &StorageError{Op: "append user event", Cause: err}
	}
	return nil
}

func (s *sqliteStores) LastExperimentSeen(ctx context.Context, experimentID string) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM experiment_history WHERE experiment_id = ? ORDER BY created_at DESC LIMIT 1`,
		experimentID,
	).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "last experiment seen", Cause: err}
	}
	return time.Unix(unix, 0), true, nil
}

func (s *sqliteStores) CountUserEvents(ctx context.Context, name string, since time.Time) (int, error) {
	var count int
	var err error
	if since.IsZero() {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM user_event_history WHERE name = ?`,
			name,
		).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM user_event_history WHERE name = ? AND created_at >= ?`,
			name, since.Unix(),
		).Scan(&count)
	}
	if err != nil {
		return 0, &StorageError{Op: "count user events", Cause: err}
	}
	return count, nil
}

func (s *sqliteStores) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &StorageError{Op: "kv get", Cause: err}
	}
	return value, nil
}

func (s *sqliteStores) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return &StorageError{Op: "kv set", Cause: err}
	}
	return nil
}

func (s *sqliteStores) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return &StorageError{Op: "kv delete", Cause: err}
	}
	return nil
}

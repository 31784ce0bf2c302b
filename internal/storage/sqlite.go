package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLog persists the upload log in a single SQLite table. Rows are keyed by an
// autoincrement id so head order survives restarts.
type SQLiteLog struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteLog opens or creates the log at path. ":memory:" works for tests.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS upload_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

func (l *SQLiteLog) Append(ctx context.Context, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO upload_log (created_at, data) VALUES (?, ?)
	`, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Peek(ctx context.Context, n int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrLogClosed
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, data FROM upload_log
		ORDER BY id
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("peek entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, n)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Data); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func (l *SQLiteLog) Remove(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := l.db.ExecContext(ctx, `DELETE FROM upload_log WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove entries: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, ErrLogClosed
	}

	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (l *SQLiteLog) Trim(ctx context.Context, max int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}

	res, err := l.db.ExecContext(ctx, `
		DELETE FROM upload_log
		WHERE id NOT IN (SELECT id FROM upload_log ORDER BY id DESC LIMIT ?)
	`, max)
	if err != nil {
		return 0, fmt.Errorf("trim entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim entries: %w", err)
	}
	return int(n), nil
}

// Ping reports whether the database is reachable.
func (l *SQLiteLog) Ping(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrLogClosed
	}
	return l.db.PingContext(ctx)
}

func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

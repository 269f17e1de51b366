package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/arloliu/go-beddit/supervisor"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS angelzzz (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	time     REAL    NOT NULL,
	beddit   TEXT    NOT NULL,
	channel1 REAL    NOT NULL,
	channel2 REAL    NOT NULL
)`
	insertReadingSQL = `INSERT INTO angelzzz (time, beddit, channel1, channel2) VALUES (?, ?, ?, ?)`
)

// SQLite records readings into the angelzzz table. Time is stored as
// fractional Unix seconds and the source label goes to the beddit column.
type SQLite struct {
	db     *sql.DB
	insert *sql.Stmt
}

var _ supervisor.Sink = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and ensures the table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open sqlite %s: %w", path, err)
	}

	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("sink: create table: %w", err), db.Close())
	}

	insert, err := db.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("sink: prepare insert: %w", err), db.Close())
	}

	return &SQLite{db: db, insert: insert}, nil
}

// Record inserts one row.
func (s *SQLite) Record(ctx context.Context, r supervisor.Reading) error {
	if _, err := s.insert.ExecContext(ctx, unixSeconds(r.Time), r.Source, r.Channel1, r.Channel2); err != nil {
		return fmt.Errorf("sink: insert reading: %w", err)
	}

	return nil
}

// unixSeconds returns t as fractional seconds since the Unix epoch.
func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// DB returns the underlying database handle.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the prepared statement and the database.
func (s *SQLite) Close() error {
	return errors.Join(s.insert.Close(), s.db.Close())
}

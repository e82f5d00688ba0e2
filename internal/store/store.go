package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database from the previous user_version.
type migration struct {
	name  string
	apply func(*sql.Tx) error
}

// migrations[i] moves a database to user_version i+1. Fresh databases get
// the full schema from schema.sql and still run every step, so each step
// must be idempotent.
var migrations = []migration{
	{name: "index load orders by sort id", apply: func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_load_orders_sort_id ON load_orders(sort_id)`)
		return err
	}},
}

var currentSchemaVersion = len(migrations)

// pragmas are applied on every open, in order.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is the sort history database. The history is append-only: rows
// are never updated except to attach a sort id to a load order.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the sqlite database at path and brings its schema
// up to date. Opening the same file repeatedly is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database %s: %w", path, err)
	}

	// One connection: sqlite has a single writer and pragmas are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func prepare(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

// migrate runs the steps above the stored user_version, each in its own
// transaction together with the version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		m := migrations[i]
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): set version: %w", i+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
	}
	return nil
}

// Close closes the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the connection for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timestamp is the recorded_at value for new rows.
func (s *Store) timestamp() int64 {
	return s.now().UnixMilli()
}

// pragma returns the current value of name.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

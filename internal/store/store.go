// Package store provides the cassette database for icad.
//
// SQLite (modernc.org/sqlite) is the default backend. The shared fab
// database is reached through the pgx stdlib driver. Every mutation of a
// cassette goes through UpdateCassette, which is one commit-or-rollback unit
// serialized per cassette ID.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store provides access to the cassette database.
type Store struct {
	db     *sql.DB
	driver string
	locks  *keyedMutex
}

// New opens a SQLite store at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open opens a store with the given driver and runs migrations.
// For sqlite, dsn is a file path. For pgx, it is a postgres connection string.
func Open(driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error

	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		db, err = sql.Open(DriverSQLite, dsn+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(4)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	s := &Store{db: db, driver: driver, locks: newKeyedMutex()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cassettes (
			cst_id TEXT PRIMARY KEY,
			cycle_id TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			port_name TEXT NOT NULL DEFAULT '',
			reg_status TEXT NOT NULL DEFAULT 'UNREG',
			ica_result TEXT NOT NULL DEFAULT '',
			ica_req TEXT NOT NULL DEFAULT 'N',
			clean_req TEXT NOT NULL DEFAULT 'N',
			return_type TEXT NOT NULL DEFAULT '',
			qty_type TEXT NOT NULL DEFAULT '',
			damage TEXT NOT NULL DEFAULT '',
			qa_hold TEXT NOT NULL DEFAULT '',
			unload_rqst TEXT NOT NULL DEFAULT 'AUTO',
			dimension TEXT NOT NULL DEFAULT '',
			capacity TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ship_recv (
			id TEXT PRIMARY KEY,
			cst_id TEXT NOT NULL,
			cycle_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			return_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS system_codes (
			category TEXT NOT NULL,
			code TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (category, code)
		)`,
		`CREATE TABLE IF NOT EXISTS system_status (
			status_type TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (status_type, name)
		)`,
		`CREATE TABLE IF NOT EXISTS cst_transactions (
			id TEXT PRIMARY KEY,
			cst_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			message_name TEXT NOT NULL,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS communications (
			id TEXT PRIMARY KEY,
			system TEXT NOT NULL,
			message_name TEXT NOT NULL,
			tid TEXT NOT NULL,
			cst_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			user_id TEXT NOT NULL,
			payload_hash TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			cst_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			raised_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ship_recv_cst ON ship_recv(cst_id, cycle_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_cst_transactions_cst ON cst_transactions(cst_id)`,
		`CREATE INDEX IF NOT EXISTS idx_communications_tid ON communications(tid)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_raised_at ON alarms(raised_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// yn and isY map flags onto the Y/N columns used by the fab schema.
func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func isY(s string) bool {
	return strings.EqualFold(s, "Y")
}

// keyedMutex serializes work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// lock acquires the lock for key and returns its release func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

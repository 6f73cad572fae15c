// Package graphstore implements the recipe index as a persistent
// node/relationship store. The first query (or an explicit warm-up)
// bulk-loads the graph from the dataset's columnar files; later process
// starts reuse the persisted graph. Bounded-depth reachability is emulated
// with iterative frontier expansion because the store itself cannot express
// variable-length path queries.
package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"craftplan/internal/dataset"
	"craftplan/internal/index"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Driver identifies the storage engine behind the graph.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and locates the storage engine.
type Config struct {
	Driver Driver // default sqlite
	Path   string // sqlite database path; default <dataset parent>/craftplan-graph.db
	DSN    string // postgres DSN when Driver == DriverPostgres
}

// loadState is the explicit initialization state machine. All readers share
// one blocking ensureReady; a failed load may be retried by a later caller.
type loadState int

const (
	stateEmpty loadState = iota
	stateLoading
	stateReady
	stateFailed
)

// Store is the persistent graph backend over one dataset version.
type Store struct {
	ds     *dataset.Dataset
	db     *sql.DB
	driver Driver
	path   string

	mu      sync.Mutex
	cond    *sync.Cond
	state   loadState
	loadErr error
	loads   int // bulk-load phase invocations, observable by tests
}

var _ index.Backend = (*Store)(nil)
var _ index.Warmer = (*Store)(nil)

// Open opens (or creates) the persistent store and verifies its schema. An
// existing store without a completion marker is treated as corrupt and wiped
// before reopening; loading itself is deferred to the first query.
func Open(cfg Config, ds *dataset.Dataset) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	s := &Store{ds: ds, driver: driver}
	s.cond = sync.NewCond(&s.mu)
	switch driver {
	case DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(filepath.Dir(ds.Dir), "craftplan-graph.db")
		}
		s.path = path
		if err := s.openSQLite(); err != nil {
			return nil, err
		}
	case DriverPostgres:
		if err := s.openPostgres(cfg.DSN); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown graph driver %s", driver)
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) openSQLite() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		if !s.sqliteHasMarker() {
			// Incomplete store from an interrupted load; wiping is safer
			// than attempting partial repair.
			s.wipeSQLiteFiles()
		}
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	s.db = db
	return nil
}

// sqliteHasMarker checks for the phase-1 completion sentinel in an existing
// database file, treating any read failure as corruption.
func (s *Store) sqliteHasMarker() bool {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return false
	}
	defer func() { _ = db.Close() }()
	var value string
	err = db.QueryRow(`SELECT value FROM graph_meta WHERE key = ?`, markOutputsLoaded).Scan(&value)
	return err == nil
}

func (s *Store) wipeSQLiteFiles() {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}
}

func (s *Store) openPostgres(dsn string) error {
	if dsn == "" {
		dsn = "postgres://localhost/craftplan?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	s.db = db
	if s.pgTablesExist() && !s.hasMark(context.Background(), markOutputsLoaded) {
		if err := s.dropTables(context.Background()); err != nil {
			_ = db.Close()
			return err
		}
	}
	return nil
}

func (s *Store) pgTablesExist() bool {
	var name string
	err := s.db.QueryRow(`SELECT table_name FROM information_schema.tables WHERE table_name = 'graph_meta'`).Scan(&name)
	return err == nil
}

var graphTables = []string{
	"graph_meta", "items", "fluids", "recipes",
	"output_items", "output_fluids", "input_items", "input_fluids",
}

func (s *Store) dropTables(ctx context.Context) error {
	for _, table := range graphTables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS items (
		item_key TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		meta INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fluids (
		fluid_id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS recipes (
		rid TEXT PRIMARY KEY,
		machine_id TEXT NOT NULL,
		duration_ticks INTEGER NOT NULL,
		eut INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS graph_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS output_items (
		rid TEXT NOT NULL,
		item_key TEXT NOT NULL,
		count INTEGER NOT NULL,
		chance REAL,
		PRIMARY KEY (rid, item_key)
	)`,
	`CREATE TABLE IF NOT EXISTS output_fluids (
		rid TEXT NOT NULL,
		fluid_id TEXT NOT NULL,
		mb INTEGER NOT NULL,
		chance REAL,
		PRIMARY KEY (rid, fluid_id)
	)`,
	`CREATE TABLE IF NOT EXISTS input_items (
		rid TEXT NOT NULL,
		item_key TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (rid, item_key)
	)`,
	`CREATE TABLE IF NOT EXISTS input_fluids (
		rid TEXT NOT NULL,
		fluid_id TEXT NOT NULL,
		mb INTEGER NOT NULL,
		PRIMARY KEY (rid, fluid_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_output_items_key ON output_items(item_key)`,
	`CREATE INDEX IF NOT EXISTS idx_output_fluids_key ON output_fluids(fluid_id)`,
	`CREATE INDEX IF NOT EXISTS idx_input_items_key ON input_items(item_key)`,
	`CREATE INDEX IF NOT EXISTS idx_input_fluids_key ON input_fluids(fluid_id)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create graph schema: %w", err)
		}
	}
	return nil
}

// ensureReady blocks until the store is loaded. The first caller performs
// the load; concurrent callers wait on the same load instead of starting a
// second one. Failed is terminal for this handle.
func (s *Store) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	for {
		switch s.state {
		case stateReady:
			s.mu.Unlock()
			return nil
		case stateFailed:
			err := s.loadErr
			s.mu.Unlock()
			return err
		case stateLoading:
			s.cond.Wait()
		case stateEmpty:
			s.state = stateLoading
			s.mu.Unlock()
			err := s.load(ctx)
			s.mu.Lock()
			if err != nil {
				s.state = stateFailed
				s.loadErr = err
			} else {
				s.state = stateReady
			}
			s.cond.Broadcast()
			s.mu.Unlock()
			return err
		}
	}
}

// WarmUp kicks off the load in the background without blocking startup.
func (s *Store) WarmUp() {
	go func() { _ = s.ensureReady(context.Background()) }()
}

// WaitUntilReady blocks until the store has loaded, returning the load error
// if it failed.
func (s *Store) WaitUntilReady(ctx context.Context) error {
	return s.ensureReady(ctx)
}

// Ready reports whether the graph is loaded without triggering a load.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// LoadCount reports how many bulk-load phases have run on this handle.
func (s *Store) LoadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

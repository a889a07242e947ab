// Package manifest provides SQLite-based persistence for export runs.
// Each run records its inputs and one row per database object visited.
package manifest

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run describes one export invocation.
type Run struct {
	ID         string
	Input      string
	Output     string
	Dialect    string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Entities   int
}

// Entry is the outcome for one database object.
type Entry struct {
	RunID   string
	Object  string
	Role    string
	Status  string
	Product int // STEP id of the PRODUCT, 0 when none
	Shape   int // STEP id of the shape representation, 0 when none
	Faces   int
	SizeX   float64 // primitive extent, 0 when unknown
	SizeY   float64
	SizeZ   float64
	Message string
}

// Store represents the SQLite manifest store
type Store struct {
	db *sql.DB
}

// Open creates a store connection and ensures the schema exists
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	s := &Store{db: db}
	if err := s.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the database schema
func (s *Store) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		output TEXT NOT NULL,
		dialect TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running',
		entity_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS objects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		object TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		product_id INTEGER DEFAULT 0,
		shape_id INTEGER DEFAULT 0,
		faces INTEGER DEFAULT 0,
		size_x REAL DEFAULT 0,
		size_y REAL DEFAULT 0,
		size_z REAL DEFAULT 0,
		message TEXT DEFAULT '',
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_objects_run ON objects(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize manifest schema: %w", err)
	}
	return nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(r Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, input, output, dialect, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Input, r.Output, r.Dialect, r.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (s *Store) FinishRun(id, status string, entities int, finished time.Time) error {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, entity_count = ?, finished_at = ?
		WHERE id = ?
	`, status, entities, finished.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecordEntries inserts object rows in a single transaction.
func (s *Store) RecordEntries(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO objects (run_id, object, role, status, product_id, shape_id, faces, size_x, size_y, size_z, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.RunID, e.Object, e.Role, e.Status, e.Product, e.Shape, e.Faces, e.SizeX, e.SizeY, e.SizeZ, e.Message); err != nil {
			return fmt.Errorf("failed to record %s: %w", e.Object, err)
		}
	}
	return tx.Commit()
}

// GetRun returns a run by id, or nil when absent.
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	var started, finished int64
	err := s.db.QueryRow(`
		SELECT id, input, output, dialect, started_at, finished_at, status, entity_count
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Input, &r.Output, &r.Dialect, &started, &finished, &r.Status, &r.Entities)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	if finished != 0 {
		r.FinishedAt = time.Unix(0, finished)
	}
	return &r, nil
}

// Runs returns every recorded run, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, input, output, dialect, started_at, finished_at, status, entity_count
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Input, &r.Output, &r.Dialect, &started, &finished, &r.Status, &r.Entities); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		if finished != 0 {
			r.FinishedAt = time.Unix(0, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Entries returns the object rows of a run in insertion order.
func (s *Store) Entries(runID string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT run_id, object, role, status, product_id, shape_id, faces, size_x, size_y, size_z, message
		FROM objects WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Object, &e.Role, &e.Status, &e.Product, &e.Shape, &e.Faces, &e.SizeX, &e.SizeY, &e.SizeZ, &e.Message); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns the number of object rows per status for a run.
func (s *Store) CountByStatus(runID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM objects WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

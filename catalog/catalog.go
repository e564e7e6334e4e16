// Package catalog keeps a sqlite3 record of recorder runs.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	machineid "github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run outcomes.
const (
	OutcomeRunning     = "running"
	OutcomeRefused     = "refused"
	OutcomeInterrupted = "interrupted"
	OutcomeEOF         = "eof"
	OutcomeError       = "error"
)

const idTimestampFmt = "20060102T150405Z"

var ErrNotFound = errors.New("catalog: run not found")

// Run is one row of the run table.
type Run struct {
	ID       string
	Machine  string
	Addr     string
	Output   string
	Started  time.Time
	Finished time.Time // zero while running
	Chunks   int64
	Bytes    int64
	Outcome  string
	Detail   string
}

// Schema returns the statements that create the catalog tables.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS run (
			id TEXT PRIMARY KEY,
			machine TEXT NOT NULL,
			addr TEXT NOT NULL,
			output TEXT NOT NULL,
			started TEXT NOT NULL,
			finished TEXT,
			chunks INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS run_started ON run(started);`,
	}
}

// NewRunID makes a sortable unique id, e.g.
// 20221020T203252Z_0b1fa5b4-7d3a-4a66-8a59-2f1a0cd3f0c1.
func NewRunID(t time.Time) string {
	return fmt.Sprintf("%s_%s", t.UTC().Format(idTimestampFmt), uuid.NewString())
}

// MachineID returns an app-specific hashed machine id, or "unknown" when
// the host has none (containers often lack /etc/machine-id).
func MachineID(app string) string {
	id, err := machineid.ProtectedID(app)
	if err != nil {
		return "unknown"
	}
	return id
}

type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	DSN := fmt.Sprintf("file:%s?_foreign_keys=yes&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", DSN)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	for _, v := range Schema() {
		if _, err := db.Exec(v); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: schema: %w", err)
		}
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// Begin inserts a run in the running state.
func (c *Catalog) Begin(r Run) error {
	_, err := c.db.Exec(
		`INSERT INTO run(id, machine, addr, output, started, outcome) VALUES (?, ?, ?, ?, ?, ?);`,
		r.ID, r.Machine, r.Addr, r.Output, formatTime(r.Started), OutcomeRunning)
	if err != nil {
		return fmt.Errorf("catalog: begin %s: %w", r.ID, err)
	}
	return nil
}

// Finish records the end of a run.
func (c *Catalog) Finish(id string, finished time.Time, chunks, bytes int64, outcome, detail string) error {
	res, err := c.db.Exec(
		`UPDATE run SET finished = ?, chunks = ?, bytes = ?, outcome = ?, detail = ? WHERE id = ?;`,
		formatTime(finished), chunks, bytes, outcome, detail, id)
	if err != nil {
		return fmt.Errorf("catalog: finish %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: finish %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectRun = `SELECT id, machine, addr, output, started, finished, chunks, bytes, outcome, detail FROM run`

// Get returns the run with the given id.
func (c *Catalog) Get(id string) (Run, error) {
	row := c.db.QueryRow(selectRun+` WHERE id = ?;`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Runs lists all runs, oldest first.
func (c *Catalog) Runs() ([]Run, error) {
	rows, err := c.db.Query(selectRun + ` ORDER BY started, id;`)
	if err != nil {
		return nil, fmt.Errorf("catalog: runs: %w", err)
	}
	defer rows.Close()
	var ret []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started string
	var finished sql.NullString
	err := s.Scan(&r.ID, &r.Machine, &r.Addr, &r.Output, &started, &finished,
		&r.Chunks, &r.Bytes, &r.Outcome, &r.Detail)
	if err != nil {
		return Run{}, err
	}
	if r.Started, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		if r.Finished, err = parseTime(finished.String); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("catalog: bad timestamp %q: %w", s, err)
	}
	return t, nil
}

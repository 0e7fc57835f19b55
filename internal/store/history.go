// Package store persists the run-history ledger in SQLite: one row per
// extraction run with its inputs, search ID, Apify identifiers, and
// outcome.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"prospectpipe/internal/logging"
)

// RunStatus is the terminal state of a recorded run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// RunRecord is one row of the run-history ledger.
type RunRecord struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	DomainCount  int       `json:"domain_count"`
	Titles       string    `json:"titles"`
	SearchID     string    `json:"search_id,omitempty"`
	SearchURL    string    `json:"search_url,omitempty"`
	ApifyRunID   string    `json:"apify_run_id,omitempty"`
	DatasetID    string    `json:"dataset_id,omitempty"`
	ContactCount int       `json:"contact_count"`
	Status       RunStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
}

// History is the SQLite-backed ledger.
type History struct {
	db *sql.DB
	mu sync.Mutex
}

// Open initializes the history database at the given path.
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	h := &History{db: db}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("history db ready: %s", path)
	return h, nil
}

func (h *History) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		domain_count INTEGER NOT NULL DEFAULT 0,
		titles TEXT NOT NULL DEFAULT '',
		search_id TEXT,
		search_url TEXT,
		apify_run_id TEXT,
		dataset_id TEXT,
		contact_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Begin records a new in-progress run and returns its ID.
func (h *History) Begin(domainCount int, titles []string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	_, err := h.db.Exec(
		`INSERT INTO runs (id, started_at, domain_count, titles, status) VALUES (?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), domainCount, strings.Join(titles, ", "), string(StatusRunning),
	)
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// Update fills in fields discovered mid-run (search ID, Apify IDs).
func (h *History) Update(id string, rec RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(
		`UPDATE runs SET search_id = ?, search_url = ?, apify_run_id = ?, dataset_id = ? WHERE id = ?`,
		rec.SearchID, rec.SearchURL, rec.ApifyRunID, rec.DatasetID, id,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return nil
}

// Complete marks a run finished with its contact count.
func (h *History) Complete(id string, contactCount int) error {
	return h.finish(id, StatusCompleted, contactCount, "")
}

// Fail marks a run failed with its error.
func (h *History) Fail(id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return h.finish(id, StatusFailed, 0, msg)
}

func (h *History) finish(id string, status RunStatus, contactCount int, errMsg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, contact_count = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), string(status), contactCount, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// Get returns one run by ID.
func (h *History) Get(id string) (*RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	row := h.db.QueryRow(
		`SELECT id, started_at, finished_at, domain_count, titles, search_id, search_url,
		        apify_run_id, dataset_id, contact_count, status, error
		 FROM runs WHERE id = ?`, id,
	)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return rec, err
}

// List returns the most recent runs, newest first.
func (h *History) List(limit int) ([]RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(
		`SELECT id, started_at, finished_at, domain_count, titles, search_id, search_url,
		        apify_run_id, dataset_id, contact_count, status, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var rec RunRecord
	var finished sql.NullTime
	var searchID, searchURL, apifyRunID, datasetID, errMsg sql.NullString

	err := s.Scan(
		&rec.ID, &rec.StartedAt, &finished, &rec.DomainCount, &rec.Titles,
		&searchID, &searchURL, &apifyRunID, &datasetID,
		&rec.ContactCount, &rec.Status, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	rec.SearchID = searchID.String
	rec.SearchURL = searchURL.String
	rec.ApifyRunID = apifyRunID.String
	rec.DatasetID = datasetID.String
	rec.Error = errMsg.String
	return &rec, nil
}

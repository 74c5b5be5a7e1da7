// Package ledger keeps a local SQLite history of launched scan jobs and the
// outcome each monitor observed. The remote platform remains the source of
// truth for job state; the ledger only remembers what this host started.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned when no run matches a job ID.
var ErrNotFound = errors.New("ledger: job not found")

// StatusRunning is the status of a run with no recorded outcome.
const StatusRunning = "running"

const defaultListLimit = 50

const (
	sqlInsertRun = `INSERT INTO job_runs
		(id, job_id, source_id, source_name, capabilities, tracking_uri, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, '` + StatusRunning + `', ?)`

	// Only the most recent run per job is updated; a job ID is reused when
	// a wait is reattached with `job wait`.
	sqlUpdateOutcome = `UPDATE job_runs
		SET status = ?, remote_state = ?, reason = ?, finished_at = ?
		WHERE id = (SELECT id FROM job_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT 1)`

	sqlSelectRuns = `SELECT id, job_id, source_id, source_name, capabilities, tracking_uri,
		status, remote_state, reason, started_at, finished_at FROM job_runs`
)

// Launch describes a job that was just started.
type Launch struct {
	JobID        string
	SourceID     string
	SourceName   string
	TrackingURI  string
	Capabilities []string
}

// Outcome is what a monitor concluded about a job.
type Outcome struct {
	Status      string
	RemoteState string
	Reason      string
}

// Run is one row of the ledger.
type Run struct {
	ID           string     `json:"id"`
	JobID        string     `json:"jobId"`
	SourceID     string     `json:"sourceId"`
	SourceName   string     `json:"sourceName,omitempty"`
	Capabilities []string   `json:"capabilities"`
	TrackingURI  string     `json:"trackingUri,omitempty"`
	Status       string     `json:"status"`
	RemoteState  string     `json:"remoteState,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Store is the ledger database. It is the only writer to its file.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger at dbPath and migrates it.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("ledger opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordLaunch inserts a running row and returns its ID.
func (s *Store) RecordLaunch(ctx context.Context, l Launch) (string, error) {
	caps := l.Capabilities
	if caps == nil {
		caps = []string{}
	}

	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return "", fmt.Errorf("ledger: encoding capabilities: %w", err)
	}

	id := uuid.NewString()

	_, err = s.db.ExecContext(ctx, sqlInsertRun,
		id, l.JobID, l.SourceID, l.SourceName, string(capsJSON), l.TrackingURI,
		s.nowFunc().UnixNano())
	if err != nil {
		return "", fmt.Errorf("ledger: recording launch of job %s: %w", l.JobID, err)
	}

	s.logger.Debug("recorded launch", slog.String("job_id", l.JobID), slog.String("run_id", id))

	return id, nil
}

// RecordOutcome stores the outcome on the latest run for jobID.
func (s *Store) RecordOutcome(ctx context.Context, jobID string, o Outcome) error {
	result, err := s.db.ExecContext(ctx, sqlUpdateOutcome,
		o.Status, o.RemoteState, o.Reason, s.nowFunc().UnixNano(), jobID)
	if err != nil {
		return fmt.Errorf("ledger: recording outcome of job %s: %w", jobID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: recording outcome of job %s rows affected: %w", jobID, err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return nil
}

// Get returns the latest run for jobID.
func (s *Store) Get(ctx context.Context, jobID string) (*Run, error) {
	runs, err := s.query(ctx, ` WHERE job_id = ? ORDER BY started_at DESC LIMIT 1`, jobID)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return &runs[0], nil
}

// List returns up to limit runs, newest first. limit <= 0 uses a default.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.query(ctx, ` ORDER BY started_at DESC LIMIT ?`, limit)
}

func (s *Store) query(ctx context.Context, tail string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, sqlSelectRuns+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		r        Run
		capsJSON string
		started  int64
		finished sql.NullInt64
	)

	if err := rows.Scan(&r.ID, &r.JobID, &r.SourceID, &r.SourceName, &capsJSON, &r.TrackingURI,
		&r.Status, &r.RemoteState, &r.Reason, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("ledger: scanning run: %w", err)
	}

	if err := json.Unmarshal([]byte(capsJSON), &r.Capabilities); err != nil {
		return Run{}, fmt.Errorf("ledger: decoding capabilities of run %s: %w", r.ID, err)
	}

	r.StartedAt = time.Unix(0, started).UTC()

	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}

	return r, nil
}

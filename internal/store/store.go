// Package store persists job lifecycle records in SQLite so the API layer
// can answer status queries while and after the pipeline runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// JobRecord is one persisted job with its terminal result once available.
type JobRecord struct {
	ID          string                   `json:"job_id"`
	Status      core.JobStatus           `json:"status"`
	Carrier     string                   `json:"carrier"`
	ClaimNumber string                   `json:"claim_number"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	Result      *core.OrchestratorResult `json:"result,omitempty"`
}

// Store is a SQLite-backed job record store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the job database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening job store: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			carrier      TEXT NOT NULL DEFAULT '',
			claim_number TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			result_json  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`)
	if err != nil {
		return fmt.Errorf("migrating job store: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new job in queued state.
func (s *Store) Create(ctx context.Context, job *core.Job) (*JobRecord, error) {
	now := time.Now().UTC()
	rec := &JobRecord{
		ID:          job.ID,
		Status:      core.StatusQueued,
		Carrier:     job.Metadata.Carrier,
		ClaimNumber: job.Metadata.ClaimNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, carrier, claim_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Status), rec.Carrier, rec.ClaimNumber,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("creating job %s: %w", job.ID, err)
	}
	return rec, nil
}

// SetStatus transitions a job's lifecycle state.
func (s *Store) SetStatus(ctx context.Context, jobID string, status core.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", jobID, err)
	}
	return s.checkFound(res, jobID)
}

// SaveResult stores the terminal orchestration result and aligns the job
// status with it.
func (s *Store) SaveResult(ctx context.Context, jobID string, result *core.OrchestratorResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result for job %s: %w", jobID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result_json = ?, updated_at = ? WHERE id = ?`,
		string(result.Status), string(raw), time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("saving result for job %s: %w", jobID, err)
	}
	return s.checkFound(res, jobID)
}

// Get fetches one job record. Returns a JOB_NOT_FOUND domain error when the
// id is unknown.
func (s *Store) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, carrier, claim_number, created_at, updated_at, result_json
		FROM jobs WHERE id = ?`, jobID)

	var rec JobRecord
	var status, created, updated string
	var resultJSON sql.NullString
	err := row.Scan(&rec.ID, &status, &rec.Carrier, &rec.ClaimNumber, &created, &updated, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", jobID, err)
	}

	rec.Status = core.JobStatus(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if resultJSON.Valid && resultJSON.String != "" {
		var result core.OrchestratorResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decoding result for job %s: %w", jobID, err)
		}
		rec.Result = &result
	}
	return &rec, nil
}

// List returns recent job records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, carrier, claim_number, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		var status, created, updated string
		if err := rows.Scan(&rec.ID, &status, &rec.Carrier, &rec.ClaimNumber, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		rec.Status = core.JobStatus(status)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) checkFound(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(jobID)
	}
	return nil
}

func notFound(jobID string) error {
	return &core.DomainError{
		Category: core.ErrCatNotFound,
		Code:     core.CodeJobNotFound,
		Message:  "job not found: " + jobID,
	}
}

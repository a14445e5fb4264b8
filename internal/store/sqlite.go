package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/driftaudio/driftd/pkg/models"
)

// SQLiteStore is a SQLite-backed implementation of JobStore. Job records
// survive process restarts; queued jobs found at startup are not resumed, the
// caller decides what to do with them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL + busy timeout for concurrent readers; _txlock=immediate acquires
	// the write lock at transaction start so Update serializes cleanly.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY under concurrent updates
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		result_path TEXT,
		error TEXT,
		used_cache BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create registers a new job record
func (s *SQLiteStore) Create(job *models.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs
		(id, request, status, progress, result_path, error, used_cache, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(request), string(job.Status), job.Progress, job.ResultPath,
		job.Error, job.UsedCache, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get returns a snapshot of the job
func (s *SQLiteStore) Get(id string) (models.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, request, status, progress, result_path, error, used_cache, created_at, started_at, completed_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// List returns snapshots of all jobs
func (s *SQLiteStore) List() []models.Job {
	rows, err := s.db.Query(`
		SELECT id, request, status, progress, result_path, error, used_cache, created_at, started_at, completed_at
		FROM jobs ORDER BY created_at
	`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// Update applies mutate to the job inside a transaction. The transaction's
// write lock serializes updates to the same row; the mutator runs on a copy
// so a mutator error leaves the stored record unchanged.
func (s *SQLiteStore) Update(id string, mutate func(*models.Job) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT id, request, status, progress, result_path, error, used_cache, created_at, started_at, completed_at
		FROM jobs WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if err != nil {
		return err
	}

	if err := mutate(&job); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE jobs SET status = ?, progress = ?, result_path = ?, error = ?,
			used_cache = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, string(job.Status), job.Progress, job.ResultPath, job.Error,
		job.UsedCache, job.StartedAt, job.CompletedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return tx.Commit()
}

// Delete removes a job record
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		job        models.Job
		request    string
		status     string
		resultPath sql.NullString
		errMsg     sql.NullString
		startedAt  sql.NullTime
		completed  sql.NullTime
	)
	err := row.Scan(&job.ID, &request, &status, &job.Progress, &resultPath,
		&errMsg, &job.UsedCache, &job.CreatedAt, &startedAt, &completed)
	if err == sql.ErrNoRows {
		return models.Job{}, ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal([]byte(request), &job.Request); err != nil {
		return models.Job{}, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	job.Status = models.JobStatus(status)
	job.ResultPath = resultPath.String
	job.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return job, nil
}

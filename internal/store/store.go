// Package store is the sqlite registry of runs and batch jobs. It lets a
// later process list jobs that were still queued when their run ended and
// resume monitoring them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/agentlab/internal/errors"
)

// Job states recorded in the registry mirror the batch state machine.
const (
	StateQueued       = "QUEUED"
	StatePolling      = "POLLING"
	StateCompleted    = "COMPLETED"
	StateTimedOut     = "TIMED_OUT"
	StateSubmitFailed = "SUBMIT_FAILED"
)

// KindPending marks a job whose outcome is not yet known.
const KindPending = "pending"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	mode        TEXT NOT NULL,
	output_dir  TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL DEFAULT '',
	iterations  INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL DEFAULT '',
	scheduler    TEXT NOT NULL,
	iteration    INTEGER NOT NULL,
	work_dir     TEXT NOT NULL,
	job_script   TEXT NOT NULL,
	script       TEXT NOT NULL,
	stdout_path  TEXT NOT NULL,
	stderr_path  TEXT NOT NULL,
	state        TEXT NOT NULL,
	kind         TEXT NOT NULL DEFAULT '',
	success      INTEGER NOT NULL DEFAULT 0,
	reasoning    TEXT NOT NULL DEFAULT '',
	submitted_at INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS jobs_kind ON jobs(kind);
`

// Run is one pipeline run.
type Run struct {
	ID         string
	Topic      string
	Mode       string
	OutputDir  string
	Outcome    string
	Iterations int
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
}

// Job is one submitted batch job.
type Job struct {
	ID          string
	RunID       string
	Scheduler   string
	Iteration   int
	WorkDir     string
	JobScript   string
	Script      string
	StdoutPath  string
	StderrPath  string
	State       string
	Kind        string
	Success     bool
	Reasoning   string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Pending reports whether the job's outcome is still unknown.
func (j Job) Pending() bool {
	switch j.State {
	case StateQueued, StatePolling:
		return true
	}
	return j.Kind == KindPending
}

// Store is a sqlite-backed registry. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the registry at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, topic, mode, output_dir, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Topic, r.Mode, r.OutputDir, r.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("create run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id, outcome string, iterations int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, iterations = ?, finished_at = ? WHERE id = ?`,
		outcome, iterations, s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("run", id)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		r                 Run
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, topic, mode, output_dir, outcome, iterations, started_at, finished_at FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Topic, &r.Mode, &r.OutputDir, &r.Outcome, &r.Iterations, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.NewNotFoundError("run", id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	r.StartedAt = fromNanos(started)
	r.FinishedAt = fromNanos(finished)
	return r, nil
}

// RecordJob inserts a job, replacing any earlier record with the same id.
func (s *Store) RecordJob(ctx context.Context, j Job) error {
	now := s.now()
	if j.SubmittedAt.IsZero() {
		j.SubmittedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, run_id, scheduler, iteration, work_dir, job_script, script, stdout_path, stderr_path,
                  state, kind, success, reasoning, submitted_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	run_id = excluded.run_id, scheduler = excluded.scheduler, iteration = excluded.iteration,
	work_dir = excluded.work_dir, job_script = excluded.job_script, script = excluded.script,
	stdout_path = excluded.stdout_path, stderr_path = excluded.stderr_path, state = excluded.state,
	kind = excluded.kind, success = excluded.success, reasoning = excluded.reasoning,
	submitted_at = excluded.submitted_at, updated_at = excluded.updated_at`,
		j.ID, j.RunID, j.Scheduler, j.Iteration, j.WorkDir, j.JobScript, j.Script, j.StdoutPath, j.StderrPath,
		j.State, j.Kind, j.Success, j.Reasoning, j.SubmittedAt.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("record job %s: %w", j.ID, err)
	}
	return nil
}

// UpdateJob stores the state and outcome of a tracked job. It returns
// errors.ErrJobNotFound if the job was never recorded.
func (s *Store) UpdateJob(ctx context.Context, j Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, kind = ?, success = ?, reasoning = ?, updated_at = ? WHERE id = ?`,
		j.State, j.Kind, j.Success, j.Reasoning, s.now().UnixNano(), j.ID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job", j.ID).WithCause(errors.ErrJobNotFound)
	}
	return nil
}

const jobColumns = `id, run_id, scheduler, iteration, work_dir, job_script, script, stdout_path, stderr_path,
	state, kind, success, reasoning, submitted_at, updated_at`

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, errors.NewNotFoundError("job", id).WithCause(errors.ErrJobNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// PendingJobs returns jobs whose outcome is unknown, oldest first.
func (s *Store) PendingJobs(ctx context.Context) ([]Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = ? OR state IN (?, ?) ORDER BY submitted_at, id`,
		KindPending, StateQueued, StatePolling)
}

// ListJobs returns the most recently submitted jobs, newest first. A
// non-positive limit returns all jobs.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY submitted_at DESC, id LIMIT ?`, limit)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (Job, error) {
	var (
		j                  Job
		submitted, updated int64
	)
	err := sc.Scan(&j.ID, &j.RunID, &j.Scheduler, &j.Iteration, &j.WorkDir, &j.JobScript, &j.Script,
		&j.StdoutPath, &j.StderrPath, &j.State, &j.Kind, &j.Success, &j.Reasoning, &submitted, &updated)
	if err != nil {
		return Job{}, err
	}
	j.SubmittedAt = fromNanos(submitted)
	j.UpdatedAt = fromNanos(updated)
	return j, nil
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

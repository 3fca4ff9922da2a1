package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"viralclip-backend/internal/models"
)

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(j *models.Job) error {
	options, err := json.Marshal(j.Options)
	if err != nil {
		return fmt.Errorf("store: marshal options: %w", err)
	}
	_, err = r.db.SQL().Exec(`
		INSERT INTO jobs (id, principal_id, type, input_blob_id, options_json, priority_class, status, phase, percent, description, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`, j.ID, j.PrincipalID, j.JobType, j.InputBlobID, options, j.PriorityClass, j.Status, j.Progress.Phase, j.Progress.Percent, j.Progress.Description, j.Attempts, j.NextAttemptAt)
	if err != nil {
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

func (r *JobRepo) Get(id uuid.UUID) (*models.Job, error) {
	row := r.db.SQL().QueryRow(jobSelect+` WHERE id = $1`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return j, err
}

// GetForPrincipal is the ownership-gated read every handler and the
// Artifact Registry use so a principal can never read another's job (§4.5).
func (r *JobRepo) GetForPrincipal(id uuid.UUID, principalID string) (*models.Job, error) {
	row := r.db.SQL().QueryRow(jobSelect+` WHERE id = $1 AND principal_id = $2`, id, principalID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return j, err
}

// List returns a page of jobs for a principal, newest first, per the
// teacher's ListOrders convention generalized with limit/offset and an
// optional status filter.
func (r *JobRepo) List(principalID string, status models.JobStatus, limit, offset int) ([]*models.Job, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = r.db.SQL().Query(jobSelect+` WHERE principal_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			principalID, status, limit, offset)
	} else {
		rows, err = r.db.SQL().Query(jobSelect+` WHERE principal_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			principalID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ListRunningWithoutLiveLease supports crash recovery (§4.2): jobs stuck in
// RUNNING whose lease has already expired need to be requeued or failed.
func (r *JobRepo) ListRunningWithoutLiveLease(now time.Time) ([]*models.Job, error) {
	rows, err := r.db.SQL().Query(jobSelect+` WHERE status = $1 AND (lease_expires_at IS NULL OR lease_expires_at < $2)`,
		models.JobRunning, now)
	if err != nil {
		return nil, fmt.Errorf("store: list stale leases: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ListReady returns PENDING jobs for a priority class in submission order,
// the FIFO queue discipline of §4.2.
func (r *JobRepo) ListReady(class models.PriorityClass, limit int) ([]*models.Job, error) {
	rows, err := r.db.SQL().Query(jobSelect+` WHERE status = $1 AND priority_class = $2 AND (next_attempt_at IS NULL OR next_attempt_at <= NOW()) ORDER BY created_at ASC LIMIT $3`,
		models.JobPending, class, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list ready jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountRunningForPrincipal backs the per-principal concurrency limit (§4.2).
func (r *JobRepo) CountRunningForPrincipal(principalID string) (int, error) {
	var count int
	err := r.db.SQL().QueryRow(`SELECT COUNT(*) FROM jobs WHERE principal_id = $1 AND status = $2`,
		principalID, models.JobRunning).Scan(&count)
	return count, err
}

// CountRunning counts RUNNING jobs across all principals. The scheduler
// enforces the per-process concurrency limit (§4.2) with its own worker
// slots, not with this query.
func (r *JobRepo) CountRunning() (int, error) {
	var count int
	err := r.db.SQL().QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = $1`, models.JobRunning).Scan(&count)
	return count, err
}

// Update persists the full mutable state of a job in one statement; callers
// serialize updates per job id at a higher layer (§5's "serialized writers
// per job id").
func (r *JobRepo) Update(j *models.Job) error {
	var errJSON, resultsJSON []byte
	var err error
	if j.Error != nil {
		errJSON, err = json.Marshal(j.Error)
		if err != nil {
			return fmt.Errorf("store: marshal job error: %w", err)
		}
	}
	if j.Results != nil {
		resultsJSON, err = json.Marshal(j.Results)
		if err != nil {
			return fmt.Errorf("store: marshal job results: %w", err)
		}
	}

	_, err = r.db.SQL().Exec(`
		UPDATE jobs SET
			status = $1, phase = $2, percent = $3, description = $4,
			error_json = $5, results_json = $6, attempts = $7,
			worker_lease = $8, lease_expires_at = $9, next_attempt_at = $10,
			started_at = $11, finished_at = $12, updated_at = NOW()
		WHERE id = $13
	`, j.Status, j.Progress.Phase, j.Progress.Percent, j.Progress.Description,
		nullableJSON(errJSON), nullableJSON(resultsJSON), j.Attempts,
		j.WorkerLease, j.LeaseExpiresAt, j.NextAttemptAt, j.StartedAt, j.FinishedAt, j.ID)
	if err != nil {
		return fmt.Errorf("store: update job: %w", err)
	}
	return nil
}

func (r *JobRepo) Delete(id uuid.UUID) error {
	_, err := r.db.SQL().Exec(`DELETE FROM jobs WHERE id = $1`, id)
	return err
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

const jobSelect = `
	SELECT id, principal_id, type, input_blob_id, options_json, priority_class, status, phase, percent, description,
	       error_json, results_json, attempts, worker_lease, lease_expires_at, next_attempt_at, created_at, updated_at, started_at, finished_at
	FROM jobs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*models.Job, error) {
	return scanJobRows(row)
}

func scanJobRows(row scanner) (*models.Job, error) {
	var j models.Job
	var options []byte
	var errJSON, resultsJSON []byte
	var leaseExpiresAt, nextAttemptAt, startedAt, finishedAt sql.NullTime

	err := row.Scan(&j.ID, &j.PrincipalID, &j.JobType, &j.InputBlobID, &options, &j.PriorityClass, &j.Status,
		&j.Progress.Phase, &j.Progress.Percent, &j.Progress.Description,
		&errJSON, &resultsJSON, &j.Attempts, &j.WorkerLease, &leaseExpiresAt, &nextAttemptAt,
		&j.CreatedAt, &j.UpdatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(options, &j.Options); err != nil {
		return nil, fmt.Errorf("store: decode job options: %w", err)
	}
	if len(errJSON) > 0 {
		j.Error = &models.JobError{}
		if err := json.Unmarshal(errJSON, j.Error); err != nil {
			return nil, fmt.Errorf("store: decode job error: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		j.Results = &models.JobResults{}
		if err := json.Unmarshal(resultsJSON, j.Results); err != nil {
			return nil, fmt.Errorf("store: decode job results: %w", err)
		}
	}
	if leaseExpiresAt.Valid {
		j.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	if nextAttemptAt.Valid {
		j.NextAttemptAt = &nextAttemptAt.Time
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}

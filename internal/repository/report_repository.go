package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const reportJobColumns = `id, type, params, status, progress, result_key, result_url, created_by, created_at, finished_at, error_message`

const (
	defaultQueuedBatch  = 20
	defaultExpiredBatch = 50
)

// ReportRepository stores report jobs. Params are kept as a JSON column.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (` + reportJobColumns + `)
VALUES (:id, :type, :params, :status, :progress, :result_key, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create %s report job: %w", job.Type, err)
	}
	return nil
}

// GetByID returns sql.ErrNoRows unwrapped so callers can map it to 404.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	switch err := r.db.GetContext(ctx, &job, `SELECT `+reportJobColumns+` FROM report_jobs WHERE id = $1`, id); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("get report job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the mutable columns; nil fields are left alone.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultKey    *string
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (p UpdateReportJobParams) assignments() *setBuilder {
	set := &setBuilder{}
	if p.Status != nil {
		set.set("status", *p.Status)
	}
	if p.Progress != nil {
		set.set("progress", *p.Progress)
	}
	if p.ResultKey != nil {
		set.set("result_key", *p.ResultKey)
	}
	if p.ResultURL != nil {
		set.set("result_url", *p.ResultURL)
	}
	if p.ErrorMessage != nil {
		set.set("error_message", *p.ErrorMessage)
	}
	if p.FinishedAt != nil {
		set.set("finished_at", *p.FinishedAt)
	}
	return set
}

// Update writes the non-nil fields of params. An empty update is a no-op.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	set := params.assignments()
	if set.empty() {
		return nil
	}
	query, args := set.update("report_jobs", id)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job %s: %w", id, err)
	}
	return nil
}

func (r *ReportRepository) selectJobs(ctx context.Context, condition string, args ...interface{}) ([]models.ReportJob, error) {
	jobs := []models.ReportJob{}
	err := r.db.SelectContext(ctx, &jobs, `SELECT `+reportJobColumns+` FROM report_jobs
WHERE `+condition, args...)
	return jobs, err
}

// ListQueued returns jobs that never finished: still queued, or interrupted
// while processing by a restart. Oldest first.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = defaultQueuedBatch
	}
	jobs, err := r.selectJobs(ctx, "status IN ($1, $2) ORDER BY created_at ASC LIMIT $3",
		models.ReportStatusQueued, models.ReportStatusProcessing, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs whose files are due for removal.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = defaultExpiredBatch
	}
	jobs, err := r.selectJobs(ctx, "status = $1 AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3",
		models.ReportStatusFinished, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired report jobs: %w", err)
	}
	return jobs, nil
}

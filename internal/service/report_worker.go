package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/internal/repository"
	"github.com/noah-isme/school-lms-api/pkg/jobs"
)

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportWorker is the queue handler that renders report jobs. A failing
// attempt puts the job back to queued until the queue gives up on it, at
// which point it is marked failed.
type ReportWorker struct {
	repo     reportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics *MetricsService, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{repo: repo, exporter: exporter, metrics: metrics, logger: logger, now: time.Now}
}

// Handle is registered with the job queue for every report type.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return nil
	}
	if err := w.repo.Update(ctx, job.ID, progressUpdate(models.ReportStatusProcessing, 10)); err != nil {
		return err
	}

	result, genErr := w.exporter.Generate(ctx, record)
	if genErr != nil {
		w.failed(ctx, record, job, genErr)
		return genErr
	}

	done := progressUpdate(models.ReportStatusFinished, 100)
	blank := ""
	finishedAt := w.now().UTC()
	done.ResultKey, done.ResultURL = &result.Key, &result.URL
	done.ErrorMessage, done.FinishedAt = &blank, &finishedAt
	if err := w.repo.Update(ctx, job.ID, done); err != nil {
		w.logger.Warn("report job result not stored", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.ObserveReportJob(record.Type, models.ReportStatusFinished)
	w.logger.Info("report job finished", zap.String("job_id", job.ID), zap.String("type", string(record.Type)), zap.Int("rows", result.Rows))
	return nil
}

func (w *ReportWorker) failed(ctx context.Context, record *models.ReportJob, job jobs.Job, cause error) {
	msg := cause.Error()
	update := progressUpdate(models.ReportStatusQueued, 0)
	if job.Final() {
		update = progressUpdate(models.ReportStatusFailed, 100)
		finishedAt := w.now().UTC()
		update.FinishedAt = &finishedAt
		w.metrics.ObserveReportJob(record.Type, models.ReportStatusFailed)
	}
	update.ErrorMessage = &msg
	if err := w.repo.Update(ctx, job.ID, update); err != nil {
		w.logger.Warn("report job status not stored", zap.String("job_id", job.ID), zap.String("status", string(*update.Status)), zap.Error(err))
	}
}

func progressUpdate(status models.ReportStatus, progress int) repository.UpdateReportJobParams {
	return repository.UpdateReportJobParams{Status: &status, Progress: &progress}
}

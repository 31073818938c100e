package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/jobs"
)

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedReportRepo() *reportRepoStub {
	return &reportRepoStub{
		jobs: map[string]*models.ReportJob{
			"job-1": {
				ID:        "job-1",
				Type:      models.ReportTypeGradebook,
				Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
				Status:    models.ReportStatusQueued,
				CreatedBy: "admin-1",
			},
		},
	}
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := queuedReportRepo()
	exporter := exportStub{result: &ExportResult{Key: "gradebook/job-1/file.csv", URL: "/api/v1/export/token"}}
	worker := NewReportWorker(repo, exporter, NewMetricsService(), zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
	require.Equal(t, 100, repo.jobs["job-1"].Progress)
	require.Equal(t, "gradebook/job-1/file.csv", *repo.jobs["job-1"].ResultKey)
}

func TestReportWorkerHandleFailureRetries(t *testing.T) {
	repo := queuedReportRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0, MaxAttempts: 2})
	require.Error(t, err)
	require.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	require.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1, MaxAttempts: 2})
	require.Error(t, err)
	require.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].FinishedAt)
}

func TestReportWorkerSkipsTerminalJobs(t *testing.T) {
	repo := queuedReportRepo()
	repo.jobs["job-1"].Status = models.ReportStatusExpired
	worker := NewReportWorker(repo, exportStub{err: errors.New("must not run")}, nil, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportStatusExpired, repo.jobs["job-1"].Status)
	assert.Nil(t, repo.jobs["job-1"].ErrorMessage)
}

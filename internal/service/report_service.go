package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/internal/repository"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/jobs"
	"github.com/noah-isme/school-lms-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

const (
	cleanupBatch     = 100
	recoverBatch     = 50
	defaultResultTTL = 24 * time.Hour
)

var contentTypes = map[models.ReportFormat]string{
	models.ReportFormatCSV:  "text/csv; charset=utf-8",
	models.ReportFormatPDF:  "application/pdf",
	models.ReportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ReportService accepts report requests, tracks their jobs and serves the
// finished files. Rendering happens in ReportWorker.
type ReportService struct {
	repo      reportJobStore
	courses   courseFinder
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
	now       func() time.Time
}

type ReportServiceConfig struct {
	// ResultTTL is how long a finished file stays downloadable.
	ResultTTL time.Duration
	// CleanupInterval of zero disables the background sweep.
	CleanupInterval time.Duration
}

// ReportDownload is an opened export file. Callers close Body.
type ReportDownload struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

func NewReportService(repo reportJobStore, courses courseFinder, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	return &ReportService{repo: repo, courses: courses, queue: queue, exporter: exporter, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// CreateJob stores a queued job and hands it to the queue. Jobs requested by
// teachers only ever cover the teacher's own courses.
func (s *ReportService) CreateJob(ctx context.Context, req models.ReportRequest, claims *models.JWTClaims) (*models.ReportStatusResponse, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	if err := s.validateRequest(ctx, req, claims); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			Format:    req.Format,
			CourseID:  req.CourseID,
			GroupID:   req.GroupID,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: claims.UserID,
		CreatedAt: s.now().UTC(),
	}
	if !claims.Role.IsAdmin() {
		job.Params.TeacherID = claims.UserID
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		failed := progressUpdate(models.ReportStatusFailed, 100)
		msg, at := "failed to enqueue job", s.now().UTC()
		failed.ErrorMessage, failed.FinishedAt = &msg, &at
		if updateErr := s.repo.Update(ctx, job.ID, failed); updateErr != nil {
			s.logger.Warn("report job left queued after enqueue failure", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}

	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(job.Params.Format)),
		zap.String("requested_by", claims.UserID),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return &models.ReportStatusResponse{ID: job.ID, Type: job.Type, Status: job.Status, CreatedAt: job.CreatedAt}, nil
}

// GetStatus reports job progress. Teachers see only jobs they created;
// anything else is reported as missing.
func (s *ReportService) GetStatus(ctx context.Context, id string, claims *models.JWTClaims) (*models.ReportStatusResponse, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.Role.IsAdmin() && job.CreatedBy != claims.UserID {
		return nil, errReportNotFound()
	}
	return s.statusOf(job), nil
}

func (s *ReportService) statusOf(job *models.ReportJob) *models.ReportStatusResponse {
	out := &models.ReportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Status:     job.Status,
		Progress:   job.Progress,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Status == models.ReportStatusFinished && job.ResultURL != nil {
		out.DownloadURL = job.ResultURL
		if job.FinishedAt != nil {
			expires := job.FinishedAt.Add(s.cfg.ResultTTL)
			out.ExpiresAt = &expires
		}
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		out.Error = job.ErrorMessage
	}
	return out
}

// ResolveDownload opens the file behind a signed download token. The token
// must name the job's current result key.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, key, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case job.ResultKey == nil || *job.ResultKey != key:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	case job.Status != models.ReportStatusFinished:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}

	body, err := s.exporter.Open(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file is no longer available")
	}
	contentType, ok := contentTypes[job.Params.Format]
	if !ok {
		contentType = contentTypes[models.ReportFormatCSV]
	}
	return &ReportDownload{Body: body, Filename: path.Base(key), ContentType: contentType, ExpiresAt: expiresAt}, nil
}

// RecoverPendingJobs puts jobs still queued from an earlier process back on
// the in-memory queue.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, recoverBatch)
	if err != nil {
		s.logger.Warn("queued report jobs not recovered", zap.Error(err))
		return
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("report job not requeued", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("requeued report jobs", zap.Int("count", requeued))
	}
}

// StartCleanup runs CleanupExpired every CleanupInterval until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired expires jobs finished more than ResultTTL ago, deleting
// their files, and then sweeps storage for orphans of the same age.
func (s *ReportService) CleanupExpired(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	expired := models.ReportStatusExpired
	for {
		batch, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			s.logger.Warn("expired report jobs not listed", zap.Error(err))
			return
		}
		for _, job := range batch {
			if job.ResultKey != nil {
				if err := s.exporter.Delete(ctx, *job.ResultKey); err != nil {
					s.logger.Warn("export file not deleted", zap.String("job_id", job.ID), zap.Error(err))
				}
			}
			if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &expired}); err != nil {
				s.logger.Warn("report job not marked expired", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
		}
		if len(batch) < cleanupBatch {
			break
		}
	}

	removed, err := s.exporter.Cleanup(ctx, s.cfg.ResultTTL)
	switch {
	case err != nil:
		s.logger.Warn("export storage sweep failed", zap.Error(err))
	case len(removed) > 0:
		s.logger.Info("removed expired exports", zap.Int("count", len(removed)))
	}
}

func (s *ReportService) loadJob(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errReportNotFound()
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

func (s *ReportService) validateRequest(ctx context.Context, req models.ReportRequest, claims *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	if req.CourseID == "" {
		return nil
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	case err != nil:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	case !claims.Role.IsAdmin() && course.TeacherID != claims.UserID:
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	return nil
}

func errReportNotFound() error {
	return appErrors.Clone(appErrors.ErrNotFound, "report not found")
}

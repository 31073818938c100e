package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

const studentGroupLimit = 200

type materialRepository interface {
	List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error)
	GetByID(ctx context.Context, id string) (*models.Material, error)
	Create(ctx context.Context, m *models.Material) error
	Update(ctx context.Context, m *models.Material) error
	Delete(ctx context.Context, id string) error
	RecordDownload(ctx context.Context, id string, at time.Time) (int, error)
	RecordView(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, filter models.MaterialFilter) (*models.MaterialStats, error)
}

type materialGroupReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	ListAll(ctx context.Context, filter models.GroupFilter, limit int) ([]models.Group, error)
}

// MaterialService shares course files and links with students. Files are
// stored elsewhere; the service tracks metadata, visibility and usage.
type MaterialService struct {
	repo      materialRepository
	courses   courseFinder
	groups    materialGroupReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewMaterialService(repo materialRepository, courses courseFinder, groups materialGroupReader, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{repo: repo, courses: courses, groups: groups, validator: validate, logger: logger, now: time.Now}
}

// List scopes the listing by role: students see published materials of
// their courses, teachers the materials of courses they run or uploaded.
func (s *MaterialService) List(ctx context.Context, filter models.MaterialFilter, claims *models.JWTClaims) ([]models.Material, *models.Pagination, error) {
	if err := s.scope(ctx, &filter, claims); err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	if items == nil {
		items = []models.Material{}
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one material and counts a view when a student opens it.
func (s *MaterialService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Material, error) {
	m, err := s.readable(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent {
		now := s.now().UTC()
		if err := s.repo.RecordView(ctx, m.ID, now); err != nil {
			s.logger.Warn("material view not counted", zap.String("material_id", m.ID), zap.Error(err))
		} else {
			m.ViewCount++
			m.LastAccessedAt = &now
		}
	}
	return m, nil
}

func (s *MaterialService) Create(ctx context.Context, req models.MaterialRequest, claims *models.JWTClaims) (*models.Material, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, req, claims); err != nil {
		return nil, err
	}
	m := &models.Material{UploadedBy: claims.UserID, CreatedAt: s.now().UTC()}
	applyMaterialRequest(m, req)
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	s.logger.Info("material created", zap.String("material_id", m.ID), zap.String("course_id", m.CourseID), zap.String("uploaded_by", m.UploadedBy))
	return m, nil
}

// Update edits a material. The course cannot change.
func (s *MaterialService) Update(ctx context.Context, id string, req models.MaterialRequest, claims *models.JWTClaims) (*models.Material, error) {
	m, err := s.editable(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if req.CourseID != m.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a material cannot move to another course")
	}
	if err := s.validate(ctx, req, claims); err != nil {
		return nil, err
	}
	applyMaterialRequest(m, req)
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update material")
	}
	return m, nil
}

func (s *MaterialService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	m, err := s.editable(ctx, id, claims)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, m.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}
	s.logger.Info("material deleted", zap.String("material_id", m.ID), zap.String("deleted_by", claims.UserID))
	return nil
}

// Download hands out the file location. Downloads by the uploader are not
// counted.
func (s *MaterialService) Download(ctx context.Context, id string, claims *models.JWTClaims) (*models.MaterialDownload, error) {
	m, err := s.readable(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if m.FileURL == nil && m.ExternalURL == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "material has no file")
	}
	out := &models.MaterialDownload{
		MaterialID:    m.ID,
		FileURL:       m.FileURL,
		ExternalURL:   m.ExternalURL,
		FileName:      m.FileName,
		FileSize:      m.FileSize,
		DownloadCount: m.DownloadCount,
	}
	if m.UploadedBy != claims.UserID {
		n, err := s.repo.RecordDownload(ctx, m.ID, s.now().UTC())
		if err != nil {
			s.logger.Warn("material download not counted", zap.String("material_id", m.ID), zap.Error(err))
		} else {
			out.DownloadCount = n
		}
	}
	return out, nil
}

// Stats summarises materials; teachers only see their own courses.
func (s *MaterialService) Stats(ctx context.Context, courseID string, claims *models.JWTClaims) (*models.MaterialStats, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	filter := models.MaterialFilter{CourseID: courseID}
	if !claims.Role.IsAdmin() {
		filter.TeacherID = claims.UserID
	}
	stats, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material stats")
	}
	return stats, nil
}

func (s *MaterialService) scope(ctx context.Context, filter *models.MaterialFilter, claims *models.JWTClaims) error {
	switch {
	case claims.Role.IsAdmin():
	case claims.Role == models.RoleTeacher:
		filter.TeacherID = claims.UserID
	default:
		groups, err := s.studentGroups(ctx, claims.UserID)
		if err != nil {
			return err
		}
		filter.ForStudent = true
		filter.StudentGroups = make([]string, 0, len(groups))
		for _, g := range groups {
			filter.StudentGroups = append(filter.StudentGroups, g.ID)
		}
	}
	return nil
}

func (s *MaterialService) studentGroups(ctx context.Context, studentID string) ([]models.Group, error) {
	groups, err := s.groups.ListAll(ctx, models.GroupFilter{StudentID: studentID}, studentGroupLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student groups")
	}
	return groups, nil
}

func (s *MaterialService) load(ctx context.Context, id string) (*models.Material, error) {
	m, err := s.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errMaterialNotFound()
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return m, nil
}

// readable loads a material the caller may see. Hidden materials are
// reported as missing.
func (s *MaterialService) readable(ctx context.Context, id string, claims *models.JWTClaims) (*models.Material, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case claims.Role.IsAdmin():
		return m, nil
	case claims.Role == models.RoleTeacher:
		if err := s.canManage(ctx, m, claims); err != nil {
			return nil, errMaterialNotFound()
		}
		return m, nil
	}
	groups, err := s.studentGroups(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !m.VisibleTo(groups) {
		return nil, errMaterialNotFound()
	}
	return m, nil
}

func (s *MaterialService) editable(ctx context.Context, id string, claims *models.JWTClaims) (*models.Material, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canManage(ctx, m, claims); err != nil {
		return nil, err
	}
	return m, nil
}

// canManage allows admins, the uploader and the teacher of the course.
func (s *MaterialService) canManage(ctx context.Context, m *models.Material, claims *models.JWTClaims) error {
	if claims.Role.IsAdmin() || m.UploadedBy == claims.UserID {
		return nil
	}
	course, err := s.courses.FindByID(ctx, m.CourseID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errMaterialNotFound()
	case err != nil:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	case course.TeacherID != claims.UserID:
		return appErrors.Clone(appErrors.ErrForbidden, "material belongs to another teacher")
	}
	return nil
}

func (s *MaterialService) validate(ctx context.Context, req models.MaterialRequest, claims *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	switch {
	case req.FileSize > models.MaxMaterialFileSize:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file_size exceeds %d MB", models.MaxMaterialFileSize>>20))
	case req.Type == models.MaterialLink && derefString(req.ExternalURL) == "":
		return appErrors.Clone(appErrors.ErrValidation, "external_url is required for links")
	case req.Type != models.MaterialLink && derefString(req.FileURL) == "" && derefString(req.ExternalURL) == "":
		return appErrors.Clone(appErrors.ErrValidation, "file_url or external_url is required")
	case req.Visibility == models.VisibleSpecificGroups && len(req.GroupIDs) == 0:
		return appErrors.Clone(appErrors.ErrValidation, "group_ids are required for specific_groups visibility")
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
	for _, id := range req.GroupIDs {
		group, err := s.groups.FindByID(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		case err != nil:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
		case group.CourseID != course.ID:
			return appErrors.Clone(appErrors.ErrValidation, "group "+group.ID+" is not part of the course")
		}
	}
	return nil
}

func applyMaterialRequest(m *models.Material, req models.MaterialRequest) {
	m.Title = strings.TrimSpace(req.Title)
	m.Description = req.Description
	m.Type = req.Type
	m.Category = req.Category
	if m.Category == "" {
		m.Category = "other"
	}
	m.FileURL = req.FileURL
	m.FileName = req.FileName
	m.FileSize = req.FileSize
	m.MimeType = req.MimeType
	m.ExternalURL = req.ExternalURL
	m.CourseID = req.CourseID
	m.GroupIDs = append([]string{}, req.GroupIDs...)
	m.Visibility = req.Visibility
	if m.Visibility == "" {
		m.Visibility = models.VisibleAllStudents
	}
	m.IsPublished = req.IsPublished
	m.Folder = strings.TrimSpace(req.Folder)
	m.Tags = append([]string{}, req.Tags...)
}

func errMaterialNotFound() error {
	return appErrors.Clone(appErrors.ErrNotFound, "material not found")
}

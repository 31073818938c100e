package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

type groupRepository interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	ListStudents(ctx context.Context, groupID string, status models.EnrollmentStatus) ([]models.GroupStudent, error)
	Enroll(ctx context.Context, groupID, studentID string) error
	SetStudentStatus(ctx context.Context, groupID, studentID string, status models.EnrollmentStatus) error
	IsStudentInGroups(ctx context.Context, studentID string, groupIDs []string) (bool, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseService manages courses, groups and group rosters.
type CourseService struct {
	courses         courseRepository
	groups          groupRepository
	users           userLookup
	validator       *validator.Validate
	logger          *zap.Logger
	defaultCurrency string
}

// NewCourseService constructs the service.
func NewCourseService(courses courseRepository, groups groupRepository, users userLookup, validate *validator.Validate, logger *zap.Logger, defaultCurrency string) *CourseService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultCurrency == "" {
		defaultCurrency = models.DefaultCurrency
	}
	return &CourseService{courses: courses, groups: groups, users: users, validator: validate, logger: logger, defaultCurrency: defaultCurrency}
}

// ListCourses scopes the listing to the caller: teachers get their own
// courses and students the courses of their groups.
func (s *CourseService) ListCourses(ctx context.Context, filter models.CourseFilter, claims *models.JWTClaims) ([]models.Course, *models.Pagination, error) {
	switch claims.Role {
	case models.RoleTeacher:
		filter.TeacherID = claims.UserID
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	}
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetCourse returns a course visible to the caller.
func (s *CourseService) GetCourse(ctx context.Context, id string, claims *models.JWTClaims) (*models.Course, error) {
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	switch claims.Role {
	case models.RoleTeacher:
		if course.TeacherID != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
		}
	case models.RoleStudent:
		groups, _, err := s.groups.List(ctx, models.GroupFilter{CourseID: id, StudentID: claims.UserID, PageSize: 1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrolment")
		}
		if len(groups) == 0 {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
		}
	}
	return course, nil
}

// CreateCourse adds a course. Teachers always own the courses they create.
func (s *CourseService) CreateCourse(ctx context.Context, req models.CourseRequest, claims *models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	teacherID, err := s.resolveTeacher(ctx, req.TeacherID, claims)
	if err != nil {
		return nil, err
	}
	course := &models.Course{
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		TeacherID:   teacherID,
		Active:      true,
	}
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.courses.Create(ctx, course); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// UpdateCourse edits a course owned by the caller.
func (s *CourseService) UpdateCourse(ctx context.Context, id string, req models.CourseRequest, claims *models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.GetCourse(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if claims.Role.IsAdmin() && req.TeacherID != nil {
		teacherID, err := s.resolveTeacher(ctx, req.TeacherID, claims)
		if err != nil {
			return nil, err
		}
		course.TeacherID = teacherID
	}
	course.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	course.Name = strings.TrimSpace(req.Name)
	course.Description = req.Description
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.courses.Update(ctx, course); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// ListGroups scopes groups the same way as courses.
func (s *CourseService) ListGroups(ctx context.Context, filter models.GroupFilter, claims *models.JWTClaims) ([]models.Group, *models.Pagination, error) {
	switch claims.Role {
	case models.RoleTeacher:
		filter.TeacherID = claims.UserID
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	}
	groups, total, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetGroup returns a group visible to the caller.
func (s *CourseService) GetGroup(ctx context.Context, id string, claims *models.JWTClaims) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	switch claims.Role {
	case models.RoleTeacher:
		if group.TeacherID != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "group belongs to another teacher")
		}
	case models.RoleStudent:
		ok, err := s.groups.IsStudentInGroups(ctx, claims.UserID, []string{group.ID})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrolment")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this group")
		}
	}
	return group, nil
}

// CreateGroup adds a group to a course. The group inherits the course teacher.
func (s *CourseService) CreateGroup(ctx context.Context, req models.GroupRequest, claims *models.JWTClaims) (*models.Group, error) {
	if err := s.validateGroup(req); err != nil {
		return nil, err
	}
	course, err := s.GetCourse(ctx, req.CourseID, claims)
	if err != nil {
		return nil, err
	}
	group := &models.Group{
		CourseID:   course.ID,
		CourseName: course.Name,
		TeacherID:  course.TeacherID,
		Active:     true,
	}
	s.applyGroup(group, req)
	if err := s.groups.Create(ctx, group); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "group code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	return group, nil
}

// UpdateGroup edits a group.
func (s *CourseService) UpdateGroup(ctx context.Context, id string, req models.GroupRequest, claims *models.JWTClaims) (*models.Group, error) {
	if err := s.validateGroup(req); err != nil {
		return nil, err
	}
	group, err := s.GetGroup(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if req.CourseID != group.CourseID {
		course, err := s.GetCourse(ctx, req.CourseID, claims)
		if err != nil {
			return nil, err
		}
		group.CourseID = course.ID
		group.CourseName = course.Name
		group.TeacherID = course.TeacherID
	}
	if req.Capacity > 0 && req.Capacity < group.StudentCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity is below the current number of students")
	}
	s.applyGroup(group, req)
	if err := s.groups.Update(ctx, group); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "group code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group")
	}
	return group, nil
}

// ListStudents returns the roster of a group.
func (s *CourseService) ListStudents(ctx context.Context, groupID string, status models.EnrollmentStatus, claims *models.JWTClaims) ([]models.GroupStudent, error) {
	if claims.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot view rosters")
	}
	if _, err := s.GetGroup(ctx, groupID, claims); err != nil {
		return nil, err
	}
	students, err := s.groups.ListStudents(ctx, groupID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Enroll adds a student to the group roster while capacity allows.
func (s *CourseService) Enroll(ctx context.Context, groupID string, req models.EnrollStudentRequest, claims *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrolment payload")
	}
	group, err := s.GetGroup(ctx, groupID, claims)
	if err != nil {
		return err
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent || !student.Active {
		return appErrors.Clone(appErrors.ErrValidation, "user is not an active student")
	}
	already, err := s.groups.IsStudentInGroups(ctx, student.ID, []string{group.ID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrolment")
	}
	if already {
		return appErrors.Clone(appErrors.ErrConflict, "student already enrolled")
	}
	if group.Capacity > 0 && group.StudentCount >= group.Capacity {
		return appErrors.Clone(appErrors.ErrConflict, "group is full")
	}
	if err := s.groups.Enroll(ctx, group.ID, student.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	s.logger.Info("student enrolled", zap.String("group_id", group.ID), zap.String("student_id", student.ID))
	return nil
}

// Withdraw marks the student's enrolment inactive.
func (s *CourseService) Withdraw(ctx context.Context, groupID, studentID string, claims *models.JWTClaims) error {
	if _, err := s.GetGroup(ctx, groupID, claims); err != nil {
		return err
	}
	if err := s.groups.SetStudentStatus(ctx, groupID, studentID, models.EnrollmentInactive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not in this group")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw student")
	}
	return nil
}

func (s *CourseService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) resolveTeacher(ctx context.Context, requested *string, claims *models.JWTClaims) (string, error) {
	if claims.Role == models.RoleTeacher {
		return claims.UserID, nil
	}
	if !claims.Role.IsAdmin() {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins manage courses")
	}
	if requested == nil || *requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
	}
	teacher, err := s.users.FindByID(ctx, *requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacher_id must reference a teacher")
	}
	return teacher.ID, nil
}

func (s *CourseService) validateGroup(req models.GroupRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	for _, session := range req.Schedule {
		if session.EndTime <= session.StartTime {
			return appErrors.Clone(appErrors.ErrValidation, "session end_time must be after start_time")
		}
	}
	return nil
}

func (s *CourseService) applyGroup(group *models.Group, req models.GroupRequest) {
	group.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	group.Name = strings.TrimSpace(req.Name)
	group.Capacity = req.Capacity
	group.PricePerSession = req.PricePerSession
	group.Currency = req.Currency
	if group.Currency == "" {
		group.Currency = s.defaultCurrency
	}
	group.Schedule = models.GroupSchedule(req.Schedule)
	if req.Active != nil {
		group.Active = *req.Active
	}
}

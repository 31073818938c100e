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

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	ListAll(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	Create(ctx context.Context, item *models.Attendance) error
	CreateBatch(ctx context.Context, items []models.Attendance) ([]models.Attendance, []string, error)
	Update(ctx context.Context, item *models.Attendance) error
}

type attendanceGroupReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	ListStudents(ctx context.Context, groupID string, status models.EnrollmentStatus) ([]models.GroupStudent, error)
}

type sessionLedger interface {
	Create(ctx context.Context, item *models.FinancialTransaction) error
}

// AttendanceService records class attendance and computes attendance rates.
type AttendanceService struct {
	repo      attendanceRepository
	courses   courseFinder
	groups    attendanceGroupReader
	ledger    sessionLedger
	currency  string
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, courses courseFinder, groups attendanceGroupReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, courses: courses, groups: groups, validator: validate, logger: logger, now: time.Now}
}

// WithSessionIncome makes RecordBulk post the income of every billed group
// session to ledger. Groups without a currency use defaultCurrency.
func (s *AttendanceService) WithSessionIncome(ledger sessionLedger, defaultCurrency string) *AttendanceService {
	s.ledger, s.currency = ledger, defaultCurrency
	return s
}

// List returns paginated records scoped to the caller: students see their
// own, teachers the classes they teach.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter, claims *models.JWTClaims) ([]models.Attendance, *models.Pagination, error) {
	scoped, err := scopeAttendance(filter, claims)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.List(ctx, scoped)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if items == nil {
		items = []models.Attendance{}
	}
	return items, models.NewPagination(scoped.Page, scoped.PageSize, total), nil
}

// Get returns one record visible to the caller.
func (s *AttendanceService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Attendance, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case claims.Role.IsAdmin():
	case claims.Role == models.RoleTeacher && item.TeacherID == claims.UserID:
	case claims.Role == models.RoleStudent && item.StudentID == claims.UserID:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	return item, nil
}

// Record stores one student's attendance for a class session.
func (s *AttendanceService) Record(ctx context.Context, req models.AttendanceRequest, claims *models.JWTClaims) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if err := checkSessionWindow(req.ClassStartTime, req.ClassEndTime); err != nil {
		return nil, err
	}
	if req.Status.RequiresReason() && strings.TrimSpace(req.AbsenceReason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "absence_reason is required for absent or excused students")
	}
	course, err := s.teachableCourse(ctx, req.CourseID, claims)
	if err != nil {
		return nil, err
	}
	if req.GroupID != "" {
		if _, err := s.ownedGroup(ctx, req.GroupID, course.ID, claims); err != nil {
			return nil, err
		}
	}

	item := &models.Attendance{
		CourseID:           course.ID,
		StudentID:          req.StudentID,
		TeacherID:          course.TeacherID,
		ClassDate:          startOfDay(req.ClassDate.UTC()),
		ClassStartTime:     req.ClassStartTime,
		ClassEndTime:       req.ClassEndTime,
		ClassType:          req.ClassType,
		Topic:              req.Topic,
		Room:               req.Room,
		Status:             req.Status,
		MinutesEarlyLeave:  req.MinutesEarlyLeave,
		AbsenceReason:      optionalString(req.AbsenceReason),
		AbsenceNote:        optionalString(req.AbsenceNote),
		IsExcused:          req.Status == models.AttendanceExcused,
		ParticipationScore: req.ParticipationScore,
		TeacherNotes:       optionalString(req.TeacherNotes),
		RecordedBy:         claims.UserID,
		History:            models.AttendanceHistory{},
	}
	if req.GroupID != "" {
		groupID := req.GroupID
		item.GroupID = &groupID
	}
	if item.ClassType == "" {
		item.ClassType = models.ClassLecture
	}
	applyArrival(item, req.ArrivalTime)

	if err := s.repo.Create(ctx, item); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this student and class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return item, nil
}

// RecordBulk stores a whole group session. Students outside the active
// roster and students already recorded for the session are reported as
// failures; the rest are stored together.
func (s *AttendanceService) RecordBulk(ctx context.Context, req models.BulkAttendanceRequest, claims *models.JWTClaims) (*models.BulkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if err := checkSessionWindow(req.ClassStartTime, req.ClassEndTime); err != nil {
		return nil, err
	}
	group, err := s.ownedGroup(ctx, req.GroupID, "", claims)
	if err != nil {
		return nil, err
	}
	roster, err := s.groups.ListStudents(ctx, group.ID, models.EnrollmentActive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group roster")
	}
	active := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		active[st.StudentID] = struct{}{}
	}

	result := &models.BulkAttendanceResult{Created: []models.Attendance{}, Failed: []models.BulkFailure{}}
	seen := make(map[string]struct{}, len(req.Records))
	items := make([]models.Attendance, 0, len(req.Records))
	classType := req.ClassType
	if classType == "" {
		classType = models.ClassLecture
	}
	groupID := group.ID
	for _, entry := range req.Records {
		if _, dup := seen[entry.StudentID]; dup {
			result.Failed = append(result.Failed, models.BulkFailure{ID: entry.StudentID, Reason: "duplicate student in payload"})
			continue
		}
		seen[entry.StudentID] = struct{}{}
		if _, ok := active[entry.StudentID]; !ok {
			result.Failed = append(result.Failed, models.BulkFailure{ID: entry.StudentID, Reason: "student is not active in group"})
			continue
		}
		if entry.Status.RequiresReason() && strings.TrimSpace(entry.AbsenceReason) == "" {
			result.Failed = append(result.Failed, models.BulkFailure{ID: entry.StudentID, Reason: "absence_reason is required"})
			continue
		}
		item := models.Attendance{
			CourseID:           group.CourseID,
			GroupID:            &groupID,
			StudentID:          entry.StudentID,
			TeacherID:          group.TeacherID,
			ClassDate:          startOfDay(req.ClassDate.UTC()),
			ClassStartTime:     req.ClassStartTime,
			ClassEndTime:       req.ClassEndTime,
			ClassType:          classType,
			Topic:              req.Topic,
			Room:               req.Room,
			Status:             entry.Status,
			AbsenceReason:      optionalString(entry.AbsenceReason),
			IsExcused:          entry.Status == models.AttendanceExcused,
			ParticipationScore: entry.ParticipationScore,
			TeacherNotes:       optionalString(entry.TeacherNotes),
			RecordedBy:         claims.UserID,
			History:            models.AttendanceHistory{},
		}
		applyArrival(&item, entry.ArrivalTime)
		items = append(items, item)
	}

	if len(items) > 0 {
		created, skipped, err := s.repo.CreateBatch(ctx, items)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
		}
		result.Created = append(result.Created, created...)
		for _, studentID := range skipped {
			result.Failed = append(result.Failed, models.BulkFailure{ID: studentID, Reason: "attendance already recorded"})
		}
		result.SessionIncome = s.postSessionIncome(ctx, group, result.Created, claims.UserID)
	}
	s.logger.Info("bulk attendance recorded",
		zap.String("group_id", group.ID),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// postSessionIncome books present students times the group's price as one
// income row linked to the session's first present record. Such rows are
// read-only in the accounting API.
func (s *AttendanceService) postSessionIncome(ctx context.Context, group *models.Group, created []models.Attendance, actorID string) *models.FinancialTransaction {
	if s.ledger == nil || group.PricePerSession <= 0 {
		return nil
	}
	var anchor *models.Attendance
	present := 0
	for i := range created {
		if created[i].Status != models.AttendancePresent {
			continue
		}
		if anchor == nil {
			anchor = &created[i]
		}
		present++
	}
	if anchor == nil {
		return nil
	}

	related, relatedID := models.RelatedAttendance, anchor.ID
	currency := group.Currency
	if currency == "" {
		currency = s.currency
	}
	day := anchor.ClassDate.Format(time.DateOnly)
	item := &models.FinancialTransaction{
		Type:            models.TransactionIncome,
		Category:        models.CategoryStudentPayment,
		TeacherID:       group.TeacherID,
		RelatedModel:    &related,
		RelatedID:       &relatedID,
		Amount:          round2(float64(present) * group.PricePerSession),
		Currency:        currency,
		Title:           fmt.Sprintf("Session income %s %s", group.Code, day),
		Description:     fmt.Sprintf("%d present, %s-%s", present, anchor.ClassStartTime, anchor.ClassEndTime),
		TransactionDate: anchor.ClassDate,
		PaymentMethod:   "cash",
		Status:          models.TransactionCompleted,
		Tags:            []string{"attendance", "session_income"},
		CreatedBy:       actorID,
	}
	if err := s.ledger.Create(ctx, item); err != nil {
		s.logger.Warn("session income not recorded", zap.String("group_id", group.ID), zap.String("class_date", day), zap.Error(err))
		return nil
	}
	return item
}

// Update changes a record's status and appends a history entry when the
// status actually changes.
func (s *AttendanceService) Update(ctx context.Context, id string, req models.UpdateAttendanceRequest, claims *models.JWTClaims) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	item, err := s.editable(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.AbsenceReason)
	if reason == "" {
		reason = derefString(item.AbsenceReason)
	}
	if req.Status.RequiresReason() && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "absence_reason is required for absent or excused students")
	}

	previous := item.Status
	item.Status = req.Status
	item.AbsenceReason = optionalString(reason)
	item.IsExcused = req.Status == models.AttendanceExcused
	if req.ParticipationScore != nil {
		item.ParticipationScore = req.ParticipationScore
	}
	if req.TeacherNotes != "" {
		item.TeacherNotes = optionalString(req.TeacherNotes)
	}
	if req.Status != models.AttendanceLate {
		item.ArrivalTime = nil
		item.MinutesLate = 0
	}
	applyArrival(item, req.ArrivalTime)
	if previous != req.Status {
		item.History = append(item.History, models.AttendanceChange{
			ModifiedBy:     claims.UserID,
			ModifiedAt:     s.now().UTC(),
			PreviousStatus: previous,
			NewStatus:      req.Status,
			Reason:         req.Reason,
		})
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	return item, nil
}

// Excuse turns an absence into an excused absence.
func (s *AttendanceService) Excuse(ctx context.Context, id string, req models.ExcuseAbsenceRequest, claims *models.JWTClaims) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid excuse payload")
	}
	item, err := s.editable(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if item.Status != models.AttendanceAbsent {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only absent students can be excused")
	}
	item.Status = models.AttendanceExcused
	item.IsExcused = true
	item.AbsenceReason = optionalString(req.Reason)
	item.AbsenceNote = optionalString(req.Note)
	item.History = append(item.History, models.AttendanceChange{
		ModifiedBy:     claims.UserID,
		ModifiedAt:     s.now().UTC(),
		PreviousStatus: models.AttendanceAbsent,
		NewStatus:      models.AttendanceExcused,
		Reason:         "Absence excused: " + req.Reason,
	})
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to excuse absence")
	}
	return item, nil
}

// Summary aggregates attendance for the filter. Students are always pinned
// to their own records.
func (s *AttendanceService) Summary(ctx context.Context, filter models.AttendanceFilter, claims *models.JWTClaims) (*models.AttendanceSummary, error) {
	scoped, err := scopeAttendance(filter, claims)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListAll(ctx, scoped)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	summary := SummarizeAttendance(items)
	summary.StudentID = scoped.StudentID
	summary.CourseID = scoped.CourseID
	return &summary, nil
}

// SummarizeAttendance counts records per status and weighs them into an
// attendance percentage.
func SummarizeAttendance(items []models.Attendance) models.AttendanceSummary {
	var summary models.AttendanceSummary
	var credit float64
	for i := range items {
		summary.TotalClasses++
		switch items[i].Status {
		case models.AttendancePresent:
			summary.Present++
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceExcused:
			summary.Excused++
		case models.AttendancePartial:
			summary.Partial++
		}
		credit += items[i].Credit()
	}
	if summary.TotalClasses > 0 {
		summary.AttendancePercentage = round2(credit / float64(summary.TotalClasses) * 100)
	}
	return summary
}

func (s *AttendanceService) load(ctx context.Context, id string) (*models.Attendance, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return item, nil
}

func (s *AttendanceService) editable(ctx context.Context, id string, claims *models.JWTClaims) (*models.Attendance, error) {
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can change attendance")
	}
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims.Role == models.RoleTeacher && item.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attendance belongs to another teacher")
	}
	return item, nil
}

func (s *AttendanceService) teachableCourse(ctx context.Context, courseID string, claims *models.JWTClaims) (*models.Course, error) {
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can record attendance")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if claims.Role == models.RoleTeacher && course.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	return course, nil
}

// ownedGroup loads a group the caller teaches. A non-empty courseID must
// match the group's course.
func (s *AttendanceService) ownedGroup(ctx context.Context, groupID, courseID string, claims *models.JWTClaims) (*models.Group, error) {
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can record attendance")
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if claims.Role == models.RoleTeacher && group.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "group belongs to another teacher")
	}
	if courseID != "" && group.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group does not belong to course")
	}
	return group, nil
}

func scopeAttendance(filter models.AttendanceFilter, claims *models.JWTClaims) (models.AttendanceFilter, error) {
	switch {
	case claims.Role.IsAdmin():
	case claims.Role == models.RoleTeacher:
		filter.TeacherID = claims.UserID
	case claims.Role == models.RoleStudent:
		filter.StudentID = claims.UserID
		filter.TeacherID = ""
	default:
		return filter, appErrors.Clone(appErrors.ErrForbidden, "role cannot view attendance")
	}
	return filter, nil
}

func checkSessionWindow(start, end string) error {
	if models.MinutesBetween(start, end) <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "class_end_time must be after class_start_time")
	}
	return nil
}

// applyArrival records the arrival time and, for late students, derives the
// minutes late from the class start.
func applyArrival(item *models.Attendance, arrival string) {
	if arrival == "" {
		return
	}
	item.ArrivalTime = &arrival
	if item.Status == models.AttendanceLate {
		item.MinutesLate = models.MinutesBetween(item.ClassStartTime, arrival)
	}
}

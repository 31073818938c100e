package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/events"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

const (
	defaultWeightage   = 10.0
	defaultLatePenalty = 10.0
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, a *models.Assignment) error
	Update(ctx context.Context, a *models.Assignment) error
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, publishedAt *time.Time) error
	Delete(ctx context.Context, id string) error
}

type assignmentGroupReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Group, error)
	IsStudentInGroups(ctx context.Context, studentID string, groupIDs []string) (bool, error)
	CountActiveStudents(ctx context.Context, groupIDs []string) (int, error)
}

type assignmentSubmissionReader interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	Stats(ctx context.Context, assignmentID string) (models.SubmissionStats, error)
	GradedPercentages(ctx context.Context, assignmentID string) ([]float64, error)
	CountByAssignments(ctx context.Context, ids []string) (map[string]int, error)
}

// AssignmentService owns the assignment lifecycle.
type AssignmentService struct {
	repo        assignmentRepository
	courses     courseRepository
	groups      assignmentGroupReader
	submissions assignmentSubmissionReader
	publisher   events.Publisher
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAssignmentService wires the service.
func NewAssignmentService(repo assignmentRepository, courses courseRepository, groups assignmentGroupReader, submissions assignmentSubmissionReader, publisher events.Publisher, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AssignmentService{
		repo:        repo,
		courses:     courses,
		groups:      groups,
		submissions: submissions,
		publisher:   publisher,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns assignments visible to the caller.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter, claims *models.JWTClaims) ([]models.Assignment, *models.Pagination, error) {
	switch claims.Role {
	case models.RoleStudent:
		filter.StudentID = claims.UserID
		filter.TeacherID = ""
	case models.RoleTeacher:
		filter.TeacherID = claims.UserID
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	if claims.Role == models.RoleStudent {
		for i := range items {
			items[i] = *items[i].WithoutAnswers()
		}
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one assignment. Students never receive correct answers.
func (s *AssignmentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, a, claims); err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent {
		return a.WithoutAnswers(), nil
	}
	return a, nil
}

// Create stores a draft assignment.
func (s *AssignmentService) Create(ctx context.Context, req models.AssignmentRequest, claims *models.JWTClaims) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	course, err := s.ownedCourse(ctx, req.CourseID, claims)
	if err != nil {
		return nil, err
	}
	if err := s.checkGroups(ctx, course.ID, req.GroupIDs); err != nil {
		return nil, err
	}

	a := &models.Assignment{
		CourseID:  course.ID,
		TeacherID: course.TeacherID,
		Status:    models.AssignmentDraft,
	}
	s.apply(a, req, nil)
	if err := validateAssignment(a); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.logger.Info("assignment created", zap.String("assignment_id", a.ID), zap.String("code", a.Code))
	return a, nil
}

// Update edits an assignment. Once students have submitted, max points,
// submission type and questions can no longer change.
func (s *AssignmentService) Update(ctx context.Context, id string, req models.AssignmentRequest, claims *models.JWTClaims) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if req.CourseID != a.CourseID {
		if _, err := s.ownedCourse(ctx, req.CourseID, claims); err != nil {
			return nil, err
		}
	}
	if err := s.checkGroups(ctx, req.CourseID, req.GroupIDs); err != nil {
		return nil, err
	}
	count, err := s.submissionCount(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	before := *a
	s.apply(a, req, before.Questions)
	a.CourseID = req.CourseID
	if count > 0 {
		if a.MaxPoints != before.MaxPoints || a.SubmissionType != before.SubmissionType || !reflect.DeepEqual(a.Questions, before.Questions) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "max_points, submission_type and questions cannot change once submissions exist")
		}
	}
	if err := validateAssignment(a); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return a, nil
}

// Delete removes an assignment without submissions.
func (s *AssignmentService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return err
	}
	return s.delete(ctx, a)
}

func (s *AssignmentService) delete(ctx context.Context, a *models.Assignment) error {
	count, err := s.submissionCount(ctx, a.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("assignment has %d submission(s)", count))
	}
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}

// Publish opens a draft assignment to students.
func (s *AssignmentService) Publish(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssignmentService) publish(ctx context.Context, a *models.Assignment) error {
	if a.Status != models.AssignmentDraft {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("assignment is already %s", a.Status))
	}
	if a.IsQuiz() && len(a.Questions) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "a quiz needs at least one question before publishing")
	}
	now := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, a.ID, models.AssignmentPublished, &now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish assignment")
	}
	a.Status = models.AssignmentPublished
	a.PublishedAt = &now

	payload := map[string]interface{}{
		"assignment_id": a.ID,
		"code":          a.Code,
		"title":         a.Title,
		"course_id":     a.CourseID,
		"group_ids":     []string(a.GroupIDs),
		"due_date":      a.DueDate,
	}
	if err := s.publisher.Publish(ctx, events.AssignmentPublished, payload); err != nil {
		s.logger.Warn("failed to publish assignment event", zap.String("assignment_id", a.ID), zap.Error(err))
	}
	return nil
}

// Close stops accepting submissions.
func (s *AssignmentService) Close(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if err := s.close(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssignmentService) close(ctx context.Context, a *models.Assignment) error {
	if a.Status != models.AssignmentPublished {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot close a %s assignment", a.Status))
	}
	if err := s.repo.UpdateStatus(ctx, a.ID, models.AssignmentClosed, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close assignment")
	}
	a.Status = models.AssignmentClosed
	return nil
}

// MarkGraded finalises a closed assignment.
func (s *AssignmentService) MarkGraded(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AssignmentClosed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only closed assignments can be marked graded")
	}
	if err := s.repo.UpdateStatus(ctx, a.ID, models.AssignmentGraded, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark assignment graded")
	}
	a.Status = models.AssignmentGraded
	return a, nil
}

// Clone copies an assignment into a new draft with a fresh code.
func (s *AssignmentService) Clone(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	src, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	clone := *src
	clone.ID = ""
	clone.Code = ""
	clone.Title = truncate(src.Title+" (Copy)", 200)
	clone.Status = models.AssignmentDraft
	clone.PublishedAt = nil
	clone.AssignedDate = s.now().UTC()
	if !clone.DueDate.After(clone.AssignedDate) {
		shift := clone.AssignedDate.Sub(src.AssignedDate)
		clone.DueDate = src.DueDate.Add(shift)
		if src.LateSubmissionDeadline != nil {
			late := src.LateSubmissionDeadline.Add(shift)
			clone.LateSubmissionDeadline = &late
		}
	}
	clone.Questions = make(models.Questions, len(src.Questions))
	for i, q := range src.Questions {
		q.ID = uuid.NewString()
		clone.Questions[i] = q
	}
	clone.GroupIDs = append([]string(nil), src.GroupIDs...)
	if err := s.repo.Create(ctx, &clone); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clone assignment")
	}
	return &clone, nil
}

// BulkDelete deletes every listed assignment that has no submissions.
func (s *AssignmentService) BulkDelete(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error) {
	return s.bulk(ctx, models.BulkDeleted, req, claims, s.delete)
}

// BulkPublish publishes every listed draft.
func (s *AssignmentService) BulkPublish(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error) {
	return s.bulk(ctx, models.BulkPublished, req, claims, s.publish)
}

// BulkClose closes every listed published assignment.
func (s *AssignmentService) BulkClose(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error) {
	return s.bulk(ctx, models.BulkClosed, req, claims, s.close)
}

func (s *AssignmentService) bulk(ctx context.Context, action string, req models.BulkAssignmentRequest, claims *models.JWTClaims, op func(context.Context, *models.Assignment) error) (*models.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	result := &models.BulkResult{Action: action, Failed: []models.BulkFailure{}, TotalRequested: len(req.AssignmentIDs)}
	for _, id := range req.AssignmentIDs {
		a, err := s.loadOwned(ctx, id, claims)
		if err != nil {
			result.Failed = append(result.Failed, models.BulkFailure{ID: id, Reason: appErrors.FromError(err).Message})
			continue
		}
		if err := op(ctx, a); err != nil {
			result.Failed = append(result.Failed, models.BulkFailure{ID: id, Code: a.Code, Title: a.Title, Reason: appErrors.FromError(err).Message})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// Submissions lists the submissions of an assignment with their stats.
func (s *AssignmentService) Submissions(ctx context.Context, id string, filter models.SubmissionFilter, claims *models.JWTClaims) (*models.SubmissionList, *models.Pagination, error) {
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, nil, err
	}
	filter.AssignmentID = a.ID
	items, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	stats, err := s.submissions.Stats(ctx, a.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute submission stats")
	}
	if items == nil {
		items = []models.Submission{}
	}
	return &models.SubmissionList{Submissions: items, Stats: stats}, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Statistics summarises performance on an assignment.
func (s *AssignmentService) Statistics(ctx context.Context, id string, claims *models.JWTClaims) (*models.AssignmentStatistics, error) {
	a, err := s.loadOwned(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	eligible, err := s.groups.CountActiveStudents(ctx, a.GroupIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	stats, err := s.submissions.Stats(ctx, a.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute submission stats")
	}
	pcts, err := s.submissions.GradedPercentages(ctx, a.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}

	out := &models.AssignmentStatistics{
		AssignmentID:      a.ID,
		EligibleStudents:  eligible,
		TotalSubmissions:  stats.Total,
		GradedSubmissions: stats.Graded,
		LateSubmissions:   stats.Late,
		Distribution:      models.GradeDistribution(pcts),
	}
	if eligible > 0 {
		out.SubmissionRate = round2(float64(stats.Total) / float64(eligible) * 100)
	}
	if len(pcts) > 0 {
		sum, hi, lo := 0.0, math.Inf(-1), math.Inf(1)
		for _, p := range pcts {
			sum += p
			hi = math.Max(hi, p)
			lo = math.Min(lo, p)
		}
		out.AverageScore = round2(sum / float64(len(pcts)))
		out.HighestScore = hi
		out.LowestScore = lo
	}
	return out, nil
}

func (s *AssignmentService) load(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return a, nil
}

func (s *AssignmentService) loadOwned(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageAssignment(a, claims) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
	}
	return a, nil
}

func canManageAssignment(a *models.Assignment, claims *models.JWTClaims) bool {
	return claims.Role.IsAdmin() || (claims.Role == models.RoleTeacher && a.TeacherID == claims.UserID)
}

func (s *AssignmentService) authorizeRead(ctx context.Context, a *models.Assignment, claims *models.JWTClaims) error {
	if claims.Role != models.RoleStudent {
		if !canManageAssignment(a, claims) {
			return appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
		}
		return nil
	}
	if a.Status == models.AssignmentDraft {
		return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	ok, err := s.groups.IsStudentInGroups(ctx, claims.UserID, a.GroupIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrolment")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "assignment is not assigned to your groups")
	}
	return nil
}

func (s *AssignmentService) ownedCourse(ctx context.Context, courseID string, claims *models.JWTClaims) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if claims.Role.IsAdmin() {
		return course, nil
	}
	if claims.Role != models.RoleTeacher || course.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	return course, nil
}

func (s *AssignmentService) checkGroups(ctx context.Context, courseID string, groupIDs []string) error {
	groups, err := s.groups.FindByIDs(ctx, groupIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load groups")
	}
	found := make(map[string]bool, len(groups))
	for _, g := range groups {
		if g.CourseID != courseID {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("group %s does not belong to the course", g.Code))
		}
		found[g.ID] = true
	}
	for _, id := range groupIDs {
		if !found[id] {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("group %s not found", id))
		}
	}
	return nil
}

func (s *AssignmentService) submissionCount(ctx context.Context, id string) (int, error) {
	counts, err := s.submissions.CountByAssignments(ctx, []string{id})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
	}
	return counts[id], nil
}

// apply copies the request onto a, filling defaults. existing supplies the
// ids of questions the client sent back without one.
func (s *AssignmentService) apply(a *models.Assignment, req models.AssignmentRequest, existing models.Questions) {
	a.Title = strings.TrimSpace(req.Title)
	a.Description = req.Description
	a.Instructions = req.Instructions
	a.GroupIDs = append([]string(nil), req.GroupIDs...)
	a.Type = req.Type
	a.Category = req.Category
	if a.Category == "" {
		a.Category = "individual"
	}
	a.MaxPoints = req.MaxPoints
	a.Weightage = defaultWeightage
	if req.Weightage != nil {
		a.Weightage = *req.Weightage
	}
	if req.AssignedDate != nil {
		a.AssignedDate = req.AssignedDate.UTC()
	} else if a.AssignedDate.IsZero() {
		a.AssignedDate = s.now().UTC()
	}
	a.DueDate = req.DueDate.UTC()
	a.LateSubmissionDeadline = nil
	if req.LateSubmissionDeadline != nil {
		late := req.LateSubmissionDeadline.UTC()
		a.LateSubmissionDeadline = &late
	}
	a.SubmissionType = req.SubmissionType
	if a.SubmissionType == "" {
		a.SubmissionType = models.SubmissionTypeText
		if req.Type == models.AssignmentQuiz {
			a.SubmissionType = models.SubmissionTypeQuiz
		}
	}
	a.AllowLateSubmission = true
	if req.AllowLateSubmission != nil {
		a.AllowLateSubmission = *req.AllowLateSubmission
	}
	a.LatePenalty = defaultLatePenalty
	if req.LatePenalty != nil {
		a.LatePenalty = *req.LatePenalty
	}
	if req.QuizSettings != nil {
		a.QuizSettings = *req.QuizSettings
	}
	if a.QuizSettings.MaxAttempts <= 0 {
		a.QuizSettings.MaxAttempts = 1
	}

	a.Questions = make(models.Questions, len(req.Questions))
	for i, q := range req.Questions {
		if q.ID == "" {
			if i < len(existing) {
				q.ID = existing[i].ID
			} else {
				q.ID = uuid.NewString()
			}
		}
		if q.Points == 0 {
			q.Points = 1
		}
		if q.Type == models.QuestionTrueFalse && len(q.Options) == 0 {
			q.Options = []string{"True", "False"}
		}
		a.Questions[i] = q
	}
	a.Rubric = models.Rubric(req.Rubric)
	a.Resources = models.Resources(req.Resources)
}

func validateAssignment(a *models.Assignment) error {
	if !a.DueDate.After(a.AssignedDate) {
		return appErrors.Clone(appErrors.ErrValidation, "due_date must be after assigned_date")
	}
	if a.LateSubmissionDeadline != nil && !a.LateSubmissionDeadline.After(a.DueDate) {
		return appErrors.Clone(appErrors.ErrValidation, "late_submission_deadline must be after due_date")
	}
	if a.IsQuiz() && len(a.Questions) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "a quiz needs at least one question")
	}
	for i, q := range a.Questions {
		if !q.IsChoice() {
			continue
		}
		if len(q.Options) < 2 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d needs at least two options", i+1))
		}
		if q.CorrectAnswerIndex != nil && (*q.CorrectAnswerIndex < 0 || *q.CorrectAnswerIndex >= len(q.Options)) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d correct_answer_index is out of range", i+1))
		}
	}
	if len(a.Rubric) > 0 && math.Abs(a.Rubric.Total()-a.MaxPoints) > 0.001 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric points (%.2f) must equal max_points (%.2f)", a.Rubric.Total(), a.MaxPoints))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

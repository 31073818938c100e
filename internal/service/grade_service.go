package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/events"
	"github.com/noah-isme/school-lms-api/pkg/mail"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

type gradingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Update(ctx context.Context, s *models.Submission) error
	ListGradedWork(ctx context.Context, studentID, courseID string) ([]models.GradedWork, error)
}

type teacherCourseLister interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Course, error)
}

// GradeService grades submissions and aggregates course grades.
type GradeService struct {
	submissions gradingRepository
	assignments assignmentReader
	courses     teacherCourseLister
	users       userLookup
	publisher   events.Publisher
	mailer      mail.Mailer
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewGradeService constructs a GradeService.
func NewGradeService(submissions gradingRepository, assignments assignmentReader, courses teacherCourseLister, users userLookup, publisher events.Publisher, mailer mail.Mailer, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if mailer == nil {
		mailer = mail.NewLogMailer(logger)
	}
	return &GradeService{
		submissions: submissions,
		assignments: assignments,
		courses:     courses,
		users:       users,
		publisher:   publisher,
		mailer:      mailer,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Grade scores a submission. The previous grade, if any, moves to the history.
func (s *GradeService) Grade(ctx context.Context, submissionID string, req models.GradeRequest, claims *models.JWTClaims) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	sub, a, err := s.loadForGrading(ctx, submissionID, claims)
	if err != nil {
		return nil, err
	}
	points := *req.PointsEarned
	if points > a.MaxPoints {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("points_earned must be between 0 and %g", a.MaxPoints))
	}
	if len(req.RubricGrades) > 0 {
		if err := checkRubricGrades(a.Rubric, req.RubricGrades); err != nil {
			return nil, err
		}
	}

	if sub.PointsEarned != nil && sub.GradedAt != nil {
		sub.GradeHistory = append(sub.GradeHistory, historyEntry(sub))
	}
	now := s.now().UTC()
	sub.ApplyScore(points, a.MaxPoints)
	sub.Feedback = optionalString(req.Feedback)
	sub.PrivateNotes = optionalString(req.PrivateNotes)
	sub.RubricGrades = models.RubricGrades(req.RubricGrades)
	grader := claims.UserID
	sub.GradedBy = &grader
	sub.GradedAt = &now
	sub.Status = models.SubmissionGraded

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	s.announce(ctx, sub, a)
	return sub, nil
}

// Return hands a graded submission back, optionally asking for another attempt.
func (s *GradeService) Return(ctx context.Context, submissionID string, req models.ReturnSubmissionRequest, claims *models.JWTClaims) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	sub, _, err := s.loadForGrading(ctx, submissionID, claims)
	if err != nil {
		return nil, err
	}
	if req.RequireResubmission {
		sub.Status = models.SubmissionResubmissionRequired
	} else {
		if !sub.IsGraded() {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only graded submissions can be returned")
		}
		sub.Status = models.SubmissionReturned
	}
	if strings.TrimSpace(req.Feedback) != "" {
		sub.Feedback = optionalString(req.Feedback)
	}
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// WaivePenalty removes the late penalty and recomputes any existing grade.
func (s *GradeService) WaivePenalty(ctx context.Context, submissionID string, claims *models.JWTClaims) (*models.Submission, error) {
	sub, a, err := s.loadForGrading(ctx, submissionID, claims)
	if err != nil {
		return nil, err
	}
	if !sub.IsLate {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission was not late")
	}
	if sub.PenaltyWaived {
		return sub, nil
	}
	sub.PenaltyWaived = true
	if sub.PointsEarned != nil {
		sub.ApplyScore(*sub.PointsEarned, a.MaxPoints)
	}
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// BulkGrade grades each item independently and reports per-item outcomes.
func (s *GradeService) BulkGrade(ctx context.Context, req models.BulkGradeRequest, claims *models.JWTClaims) ([]models.BulkGradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grade payload")
	}
	results := make([]models.BulkGradeResult, 0, len(req.Grades))
	for _, item := range req.Grades {
		sub, err := s.Grade(ctx, item.SubmissionID, item.GradeRequest, claims)
		if err != nil {
			results = append(results, models.BulkGradeResult{SubmissionID: item.SubmissionID, Error: appErrors.FromError(err).Message})
			continue
		}
		results = append(results, models.BulkGradeResult{SubmissionID: item.SubmissionID, Success: true, Submission: sub})
	}
	return results, nil
}

// MyGrades returns the caller's weighted grade per course.
func (s *GradeService) MyGrades(ctx context.Context, courseID string, claims *models.JWTClaims) ([]models.CourseGrade, error) {
	if claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have grades")
	}
	return s.courseGrades(ctx, claims.UserID, courseID, nil)
}

// StudentGrades returns a student's course grades. Teachers only see the
// courses they teach.
func (s *GradeService) StudentGrades(ctx context.Context, studentID, courseID string, claims *models.JWTClaims) ([]models.CourseGrade, error) {
	switch {
	case claims.Role.IsAdmin():
		return s.courseGrades(ctx, studentID, courseID, nil)
	case claims.Role == models.RoleTeacher:
		owned, err := s.courses.ListByTeacher(ctx, claims.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
		}
		allowed := make(map[string]bool, len(owned))
		for _, c := range owned {
			allowed[c.ID] = true
		}
		if courseID != "" && !allowed[courseID] {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
		}
		return s.courseGrades(ctx, studentID, courseID, allowed)
	case claims.Role == models.RoleStudent && claims.UserID == studentID:
		return s.courseGrades(ctx, studentID, courseID, nil)
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view these grades")
}

func (s *GradeService) courseGrades(ctx context.Context, studentID, courseID string, allowed map[string]bool) ([]models.CourseGrade, error) {
	work, err := s.submissions.ListGradedWork(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graded work")
	}
	if allowed != nil {
		filtered := work[:0]
		for _, w := range work {
			if allowed[w.CourseID] {
				filtered = append(filtered, w)
			}
		}
		work = filtered
	}
	return CourseGrades(work), nil
}

// CourseGrades folds graded work into one weighted grade per course. Work
// without final points does not count.
func CourseGrades(work []models.GradedWork) []models.CourseGrade {
	type acc struct {
		grade    models.CourseGrade
		weighted float64
	}
	byCourse := make(map[string]*acc)
	var order []string
	for _, w := range work {
		entry, ok := byCourse[w.CourseID]
		if !ok {
			entry = &acc{grade: models.CourseGrade{CourseID: w.CourseID, CourseName: w.CourseName, StudentID: w.StudentID, Items: []models.GradedWork{}}}
			byCourse[w.CourseID] = entry
			order = append(order, w.CourseID)
		}
		entry.grade.Items = append(entry.grade.Items, w)
		if w.FinalPoints == nil || w.MaxPoints <= 0 {
			continue
		}
		pct := *w.FinalPoints / w.MaxPoints * 100
		entry.weighted += pct * w.Weightage / 100
		entry.grade.TotalWeight += w.Weightage
		entry.grade.GradedCount++
	}

	out := make([]models.CourseGrade, 0, len(order))
	for _, id := range order {
		entry := byCourse[id]
		if entry.grade.TotalWeight > 0 {
			entry.grade.Grade = round2(entry.weighted / entry.grade.TotalWeight * 100)
		}
		entry.grade.Label = models.GradeLabel(entry.grade.Grade)
		entry.grade.LetterGrade = models.LetterGrade(entry.grade.Grade)
		out = append(out, entry.grade)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CourseName < out[j].CourseName })
	return out
}

func (s *GradeService) loadForGrading(ctx context.Context, submissionID string, claims *models.JWTClaims) (*models.Submission, *models.Assignment, error) {
	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	a, err := s.assignments.FindByID(ctx, sub.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if !claims.Role.IsAdmin() && !(claims.Role == models.RoleTeacher && a.TeacherID == claims.UserID) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the assignment's teacher can grade it")
	}
	return sub, a, nil
}

func (s *GradeService) save(ctx context.Context, sub *models.Submission) error {
	if err := s.submissions.Update(ctx, sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "submission was modified concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}
	return nil
}

// announce publishes the graded event and mails the student. Failures are
// logged; the grade is already stored.
func (s *GradeService) announce(ctx context.Context, sub *models.Submission, a *models.Assignment) {
	payload := map[string]interface{}{
		"submission_id":    sub.ID,
		"assignment_id":    a.ID,
		"student_id":       sub.StudentID,
		"final_percentage": sub.FinalPercentage,
		"letter_grade":     sub.LetterGrade,
	}
	if err := s.publisher.Publish(ctx, events.SubmissionGraded, payload); err != nil {
		s.logger.Warn("failed to publish grade event", zap.String("submission_id", sub.ID), zap.Error(err))
	}

	if s.users == nil {
		return
	}
	student, err := s.users.FindByID(ctx, sub.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for grade mail", zap.String("student_id", sub.StudentID), zap.Error(err))
		return
	}
	msg := mail.Message{
		ToName:  student.FullName,
		ToEmail: student.Email,
		Subject: fmt.Sprintf("Graded: %s", a.Title),
		Text: fmt.Sprintf("Your submission for %q was graded: %g/%g (%s).",
			a.Title, derefFloat(sub.FinalPoints), a.MaxPoints, derefString(sub.LetterGrade)),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send grade mail", zap.String("submission_id", sub.ID), zap.Error(err))
	}
}

func checkRubricGrades(rubric models.Rubric, grades []models.RubricGrade) error {
	limits := make(map[string]float64, len(rubric))
	for _, c := range rubric {
		limits[c.Criteria] = c.Points
	}
	for _, g := range grades {
		limit, ok := limits[g.Criteria]
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown rubric criteria %q", g.Criteria))
		}
		if g.PointsEarned > limit {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric criteria %q allows at most %g points", g.Criteria, limit))
		}
	}
	return nil
}

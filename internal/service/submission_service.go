package service

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/events"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

// timeLimitGrace is tolerated on top of a quiz time limit before flagging.
const timeLimitGrace = time.Minute

type submissionRepository interface {
	Create(ctx context.Context, s *models.Submission) error
	Update(ctx context.Context, s *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type membershipChecker interface {
	IsStudentInGroups(ctx context.Context, studentID string, groupIDs []string) (bool, error)
}

// SubmissionService handles hand-ins and quiz attempts.
type SubmissionService struct {
	repo        submissionRepository
	assignments assignmentReader
	groups      membershipChecker
	publisher   events.Publisher
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService wires the service.
func NewSubmissionService(repo submissionRepository, assignments assignmentReader, groups membershipChecker, publisher events.Publisher, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SubmissionService{repo: repo, assignments: assignments, groups: groups, publisher: publisher, validator: validate, logger: logger, now: time.Now}
}

// Submit records a text, link or attachment submission.
func (s *SubmissionService) Submit(ctx context.Context, assignmentID string, req models.SubmitRequest, claims *models.JWTClaims) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	if strings.TrimSpace(req.TextContent) == "" && len(req.Links) == 0 && len(req.Attachments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission is empty")
	}
	a, err := s.openAssignment(ctx, assignmentID, claims)
	if err != nil {
		return nil, err
	}
	if a.IsQuiz() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quizzes are submitted through submit-quiz")
	}
	existing, err := s.previousAttempt(ctx, a, claims.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := s.prepare(a, claims.UserID, existing, now)
	sub.SubmissionType = req.SubmissionType
	if sub.SubmissionType == "" {
		sub.SubmissionType = a.SubmissionType
	}
	sub.TextContent = req.TextContent
	sub.Links = append([]string(nil), req.Links...)
	sub.Attachments = models.Attachments(req.Attachments)

	if err := s.save(ctx, sub, existing != nil); err != nil {
		return nil, err
	}
	return sub.ForStudent(a.QuizAnswersReleased()), nil
}

// Quiz returns the questions of a quiz without answers. When randomisation
// is on, every student gets a stable order of their own.
func (s *SubmissionService) Quiz(ctx context.Context, assignmentID string, claims *models.JWTClaims) (*models.QuizView, error) {
	a, err := s.openAssignment(ctx, assignmentID, claims)
	if err != nil {
		return nil, err
	}
	if !a.IsQuiz() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment is not a quiz")
	}
	view := &models.QuizView{
		AssignmentID:     a.ID,
		Title:            a.Title,
		Instructions:     a.Instructions,
		DueDate:          a.DueDate,
		MaxPoints:        a.MaxPoints,
		TimeLimit:        a.QuizSettings.TimeLimit,
		QuestionsPerPage: a.QuizSettings.QuestionsPerPage,
		AllowBacktrack:   a.QuizSettings.AllowBacktrack,
		MaxAttempts:      a.QuizSettings.MaxAttempts,
	}
	if prev, err := s.repo.FindByAssignmentAndStudent(ctx, a.ID, claims.UserID); err == nil {
		view.AttemptsUsed = prev.AttemptNumber
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous attempt")
	}

	order := questionOrder(len(a.Questions), a.QuizSettings.RandomizeQuestions, a.ID+":"+claims.UserID)
	view.Questions = make([]models.QuizQuestionView, 0, len(order))
	for _, idx := range order {
		q := a.Questions[idx]
		view.Questions = append(view.Questions, models.QuizQuestionView{
			Index:    idx,
			ID:       q.ID,
			Type:     q.Type,
			Question: q.Question,
			Options:  q.Options,
			Points:   q.Points,
		})
	}
	return view, nil
}

// SubmitQuiz grades a quiz attempt automatically where possible.
func (s *SubmissionService) SubmitQuiz(ctx context.Context, assignmentID string, req models.QuizSubmitRequest, claims *models.JWTClaims) (*models.QuizResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	a, err := s.openAssignment(ctx, assignmentID, claims)
	if err != nil {
		return nil, err
	}
	if !a.IsQuiz() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment is not a quiz")
	}
	existing, err := s.previousAttempt(ctx, a, claims.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := s.prepare(a, claims.UserID, existing, now)
	sub.SubmissionType = models.SubmissionTypeQuiz
	if req.StartTime != nil {
		started := req.StartTime.UTC()
		sub.StartedAt = &started
		end := now
		if req.EndTime != nil && req.EndTime.After(started) && !req.EndTime.After(now) {
			end = req.EndTime.UTC()
		}
		sub.TimeSpent = int(end.Sub(started).Seconds())
	}
	if limit := a.QuizSettings.TimeLimit; limit > 0 && sub.TimeSpent > 0 {
		sub.TimeLimitExceeded = time.Duration(sub.TimeSpent)*time.Second > time.Duration(limit)*time.Minute+timeLimitGrace
	}

	answers, total, manual := GradeQuiz(a.Questions, req.Answers)
	sub.QuizAnswers = answers
	sub.ApplyScore(total, a.MaxPoints)
	if manual {
		sub.Status = models.SubmissionGrading
	} else {
		sub.Status = models.SubmissionGraded
		sub.GradedAt = &now
	}

	if err := s.save(ctx, sub, existing != nil); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"submission_id":    sub.ID,
		"assignment_id":    a.ID,
		"student_id":       sub.StudentID,
		"final_percentage": sub.FinalPercentage,
		"status":           sub.Status,
	}
	if err := s.publisher.Publish(ctx, events.QuizSubmitted, payload); err != nil {
		s.logger.Warn("failed to publish quiz event", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return buildQuizResult(a, sub, revealAnswers(a, claims)), nil
}

// QuizResult returns a graded attempt. Correct answers are only revealed
// once the quiz allows it.
func (s *SubmissionService) QuizResult(ctx context.Context, assignmentID, submissionID string, claims *models.JWTClaims) (*models.QuizResult, error) {
	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.AssignmentID != assignmentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	a, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubmission(sub, a, claims); err != nil {
		return nil, err
	}
	if !a.IsQuiz() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment is not a quiz")
	}
	return buildQuizResult(a, sub, revealAnswers(a, claims)), nil
}

// Mine lists the caller's submissions.
func (s *SubmissionService) Mine(ctx context.Context, filter models.SubmissionFilter, claims *models.JWTClaims) ([]models.Submission, *models.Pagination, error) {
	filter.StudentID = claims.UserID
	filter.TeacherID = ""
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	released := map[string]bool{}
	for i := range items {
		id := items[i].AssignmentID
		ok, seen := released[id]
		if !seen {
			a, err := s.loadAssignment(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			ok = a.QuizAnswersReleased()
			released[id] = ok
		}
		items[i] = *items[i].ForStudent(ok)
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a submission to its student, the assignment's teacher or an admin.
func (s *SubmissionService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Submission, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	a, err := s.loadAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubmission(sub, a, claims); err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent {
		return sub.ForStudent(a.QuizAnswersReleased()), nil
	}
	return sub, nil
}

// openAssignment loads an assignment the student may submit to right now.
func (s *SubmissionService) openAssignment(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	if claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit work")
	}
	a, err := s.loadAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == models.AssignmentDraft {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	ok, err := s.groups.IsStudentInGroups(ctx, claims.UserID, a.GroupIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrolment")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment is not assigned to your groups")
	}
	if !a.AcceptingSubmissions(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrAssignmentClosed, "assignment is no longer accepting submissions")
	}
	return a, nil
}

// previousAttempt returns the student's current submission, if any, after
// checking a new attempt is allowed.
func (s *SubmissionService) previousAttempt(ctx context.Context, a *models.Assignment, studentID string) (*models.Submission, error) {
	existing, err := s.repo.FindByAssignmentAndStudent(ctx, a.ID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous submission")
	}
	if existing.Status != models.SubmissionResubmissionRequired {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already submitted")
	}
	if a.IsQuiz() && existing.AttemptNumber >= a.QuizSettings.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrConflict, "no quiz attempts left")
	}
	return existing, nil
}

// prepare builds the submission for a new attempt, reusing the previous row.
func (s *SubmissionService) prepare(a *models.Assignment, studentID string, existing *models.Submission, now time.Time) *models.Submission {
	sub := &models.Submission{
		AssignmentID:  a.ID,
		StudentID:     studentID,
		CourseID:      a.CourseID,
		AttemptNumber: 1,
	}
	if existing != nil {
		sub.ID = existing.ID
		sub.Version = existing.Version
		sub.CreatedAt = existing.CreatedAt
		sub.AttemptNumber = existing.AttemptNumber + 1
		sub.GradeHistory = existing.GradeHistory
		if existing.PointsEarned != nil && existing.GradedAt != nil {
			sub.GradeHistory = append(sub.GradeHistory, historyEntry(existing))
		}
	}
	sub.SubmittedAt = now
	sub.IsLate = now.After(a.DueDate)
	sub.LatePenalty = a.LatePenaltyFor(now)
	sub.Status = models.SubmissionSubmitted
	return sub
}

func (s *SubmissionService) save(ctx context.Context, sub *models.Submission, update bool) error {
	if update {
		if err := s.repo.Update(ctx, sub); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "submission was modified concurrently")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
		}
		return nil
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "assignment already submitted")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save submission")
	}
	return nil
}

func (s *SubmissionService) load(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *SubmissionService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return a, nil
}

func authorizeSubmission(sub *models.Submission, a *models.Assignment, claims *models.JWTClaims) error {
	switch {
	case claims.Role.IsAdmin():
		return nil
	case claims.Role == models.RoleStudent && sub.StudentID == claims.UserID:
		return nil
	case claims.Role == models.RoleTeacher && a.TeacherID == claims.UserID:
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this submission")
}

func revealAnswers(a *models.Assignment, claims *models.JWTClaims) bool {
	if claims.Role != models.RoleStudent {
		return true
	}
	return a.QuizAnswersReleased()
}

// GradeQuiz scores answers against questions. Choice questions match on the
// option index, text questions case-insensitively on the expected answer.
// Anything else is left for a teacher and reported through manual.
func GradeQuiz(questions models.Questions, inputs []models.QuizAnswerInput) (answers models.QuizAnswers, total float64, manual bool) {
	byIndex := make(map[int]models.QuizAnswerInput, len(inputs))
	for _, in := range inputs {
		byIndex[in.QuestionIndex] = in
	}
	answers = make(models.QuizAnswers, 0, len(questions))
	for i, q := range questions {
		in, answered := byIndex[i]
		ans := models.QuizAnswer{QuestionID: q.ID, QuestionIndex: i}
		if answered {
			ans.SelectedOptionIndex = in.SelectedOptionIndex
			ans.Answer = in.Answer
		}
		if !q.AutoGradable() {
			manual = true
			answers = append(answers, ans)
			continue
		}
		correct, earned := false, 0.0
		if answered {
			if q.IsChoice() {
				correct = in.SelectedOptionIndex != nil && *in.SelectedOptionIndex == *q.CorrectAnswerIndex
			} else {
				correct = strings.EqualFold(strings.TrimSpace(in.Answer), strings.TrimSpace(q.CorrectAnswer))
			}
		}
		if correct {
			earned = q.Points
			total += earned
		}
		ans.IsCorrect, ans.PointsEarned = &correct, &earned
		answers = append(answers, ans)
	}
	return answers, total, manual
}

// questionOrder returns question indexes, shuffled deterministically by seed
// when randomize is set.
func questionOrder(n int, randomize bool, seed string) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if !randomize || n < 2 {
		return order
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

func buildQuizResult(a *models.Assignment, sub *models.Submission, reveal bool) *models.QuizResult {
	res := &models.QuizResult{
		SubmissionID:      sub.ID,
		AssignmentID:      a.ID,
		Status:            sub.Status,
		MaxPoints:         a.MaxPoints,
		IsLate:            sub.IsLate,
		LatePenalty:       sub.LatePenalty,
		TimeSpent:         sub.TimeSpent,
		TimeLimitExceeded: sub.TimeLimitExceeded,
		NeedsManualGrade:  sub.Status == models.SubmissionGrading,
		AnswersRevealed:   reveal,
	}
	if sub.PointsEarned != nil {
		res.TotalPoints = *sub.PointsEarned
	}
	if sub.Percentage != nil {
		res.Percentage = *sub.Percentage
	}
	if sub.FinalPoints != nil {
		res.FinalPoints = *sub.FinalPoints
	}
	if sub.FinalPercentage != nil {
		res.FinalPercentage = *sub.FinalPercentage
	}
	for _, ans := range sub.QuizAnswers {
		if ans.QuestionIndex < 0 || ans.QuestionIndex >= len(a.Questions) {
			continue
		}
		q := a.Questions[ans.QuestionIndex]
		item := models.QuizQuestionResult{
			QuestionIndex:       ans.QuestionIndex,
			QuestionID:          q.ID,
			Question:            q.Question,
			Type:                q.Type,
			Options:             q.Options,
			Points:              q.Points,
			SelectedOptionIndex: ans.SelectedOptionIndex,
			Answer:              ans.Answer,
		}
		if reveal {
			item.IsCorrect = ans.IsCorrect
			item.PointsEarned = ans.PointsEarned
			item.CorrectAnswerIndex = q.CorrectAnswerIndex
			item.CorrectAnswer = q.CorrectAnswer
			item.Explanation = q.Explanation
		}
		res.Questions = append(res.Questions, item)
	}
	return res
}

func historyEntry(sub *models.Submission) models.GradeHistoryEntry {
	entry := models.GradeHistoryEntry{Version: sub.Version}
	if sub.PointsEarned != nil {
		entry.PointsEarned = *sub.PointsEarned
	}
	if sub.FinalPercentage != nil {
		entry.Percentage = *sub.FinalPercentage
	}
	if sub.LetterGrade != nil {
		entry.LetterGrade = *sub.LetterGrade
	}
	if sub.Feedback != nil {
		entry.Feedback = *sub.Feedback
	}
	if sub.GradedBy != nil {
		entry.GradedBy = *sub.GradedBy
	}
	if sub.GradedAt != nil {
		entry.GradedAt = *sub.GradedAt
	}
	return entry
}

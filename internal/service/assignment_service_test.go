package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

type fakeAssignmentRepo struct {
	items   map[string]*models.Assignment
	seq     int
	deleted []string
}

func (f *fakeAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	var out []models.Assignment
	for _, a := range f.items {
		if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (f *fakeAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, a *models.Assignment) error {
	if f.items == nil {
		f.items = map[string]*models.Assignment{}
	}
	f.seq++
	a.ID = fmt.Sprintf("assignment-%d", f.seq+100)
	a.Code = fmt.Sprintf("AS-%06d", f.seq+100)
	copy := *a
	f.items[a.ID] = &copy
	return nil
}

func (f *fakeAssignmentRepo) Update(ctx context.Context, a *models.Assignment) error {
	copy := *a
	f.items[a.ID] = &copy
	return nil
}

func (f *fakeAssignmentRepo) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, publishedAt *time.Time) error {
	f.items[id].Status = status
	if publishedAt != nil {
		f.items[id].PublishedAt = publishedAt
	}
	return nil
}

func (f *fakeAssignmentRepo) Delete(ctx context.Context, id string) error {
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSubmissionReader struct {
	counts map[string]int
	stats  models.SubmissionStats
	pcts   []float64
}

func (f *fakeSubmissionReader) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	return nil, 0, nil
}

func (f *fakeSubmissionReader) Stats(ctx context.Context, assignmentID string) (models.SubmissionStats, error) {
	return f.stats, nil
}

func (f *fakeSubmissionReader) GradedPercentages(ctx context.Context, assignmentID string) ([]float64, error) {
	return f.pcts, nil
}

func (f *fakeSubmissionReader) CountByAssignments(ctx context.Context, ids []string) (map[string]int, error) {
	out := map[string]int{}
	for _, id := range ids {
		out[id] = f.counts[id]
	}
	return out, nil
}

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() {}

type assignmentFixture struct {
	svc         *AssignmentService
	repo        *fakeAssignmentRepo
	groups      *fakeGroupRepo
	submissions *fakeSubmissionReader
	publisher   *recordingPublisher
}

func newAssignmentFixture() *assignmentFixture {
	_, courses, groups := newCourseFixture()
	repo := &fakeAssignmentRepo{items: map[string]*models.Assignment{}}
	subs := &fakeSubmissionReader{counts: map[string]int{}}
	pub := &recordingPublisher{}
	svc := NewAssignmentService(repo, courses, groups, subs, pub, nil, zap.NewNop())
	return &assignmentFixture{svc: svc, repo: repo, groups: groups, submissions: subs, publisher: pub}
}

func homeworkRequest() models.AssignmentRequest {
	return models.AssignmentRequest{
		Title:     "Essay",
		CourseID:  "course-1",
		GroupIDs:  []string{"group-1"},
		Type:      models.AssignmentHomework,
		MaxPoints: 100,
		DueDate:   time.Now().Add(72 * time.Hour),
	}
}

func quizRequest() models.AssignmentRequest {
	idx := 1
	req := homeworkRequest()
	req.Title = "Quiz 1"
	req.Type = models.AssignmentQuiz
	req.MaxPoints = 2
	req.Questions = []models.Question{
		{Type: models.QuestionMultipleChoice, Question: "2+2?", Options: []string{"3", "4"}, CorrectAnswerIndex: &idx},
		{Type: models.QuestionTrueFalse, Question: "Sky is blue", CorrectAnswerIndex: &idx},
	}
	return req
}

func TestAssignmentServiceCreateAppliesDefaults(t *testing.T) {
	f := newAssignmentFixture()
	a, err := f.svc.Create(context.Background(), homeworkRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDraft, a.Status)
	assert.Equal(t, 10.0, a.Weightage)
	assert.Equal(t, 10.0, a.LatePenalty)
	assert.True(t, a.AllowLateSubmission)
	assert.Equal(t, models.SubmissionTypeText, a.SubmissionType)
	assert.Equal(t, "teacher-1", a.TeacherID)
	assert.Regexp(t, `^AS-\d{6}$`, a.Code)
}

func TestAssignmentServiceCreateQuizDefaults(t *testing.T) {
	f := newAssignmentFixture()
	a, err := f.svc.Create(context.Background(), quizRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionTypeQuiz, a.SubmissionType)
	assert.Equal(t, 1, a.QuizSettings.MaxAttempts)
	assert.Equal(t, []string{"True", "False"}, a.Questions[1].Options)
	assert.NotEmpty(t, a.Questions[0].ID)
	assert.Equal(t, 1.0, a.Questions[0].Points)
}

func TestAssignmentServiceCreateValidation(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()

	req := homeworkRequest()
	past := time.Now().Add(-time.Hour)
	req.DueDate = past
	_, err := f.svc.Create(ctx, req, teacherClaims("teacher-1"))
	require.Error(t, err)

	req = homeworkRequest()
	late := req.DueDate.Add(-time.Minute)
	req.LateSubmissionDeadline = &late
	_, err = f.svc.Create(ctx, req, teacherClaims("teacher-1"))
	require.Error(t, err)

	req = quizRequest()
	req.Questions = nil
	_, err = f.svc.Create(ctx, req, teacherClaims("teacher-1"))
	require.Error(t, err)

	req = homeworkRequest()
	req.Rubric = []models.RubricCriterion{{Criteria: "Structure", Points: 40}, {Criteria: "Content", Points: 50}}
	_, err = f.svc.Create(ctx, req, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "rubric")
}

func TestAssignmentServiceCreateRejectsForeignCourse(t *testing.T) {
	f := newAssignmentFixture()
	_, err := f.svc.Create(context.Background(), homeworkRequest(), teacherClaims("teacher-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceLifecycle(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	claims := teacherClaims("teacher-1")
	a, err := f.svc.Create(ctx, homeworkRequest(), claims)
	require.NoError(t, err)

	_, err = f.svc.MarkGraded(ctx, a.ID, claims)
	require.Error(t, err)

	published, err := f.svc.Publish(ctx, a.ID, claims)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)
	assert.Equal(t, []string{"assignment.published"}, f.publisher.events)

	_, err = f.svc.Publish(ctx, a.ID, claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Close(ctx, a.ID, claims)
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, a.ID, claims)
	require.Error(t, err)

	graded, err := f.svc.MarkGraded(ctx, a.ID, claims)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentGraded, graded.Status)
}

func TestAssignmentServiceUpdateFreezesFieldsWithSubmissions(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	claims := teacherClaims("teacher-1")
	a, err := f.svc.Create(ctx, quizRequest(), claims)
	require.NoError(t, err)
	f.submissions.counts[a.ID] = 3

	req := quizRequest()
	req.Title = "Renamed"
	updated, err := f.svc.Update(ctx, a.ID, req, claims)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, a.Questions[0].ID, updated.Questions[0].ID)

	req.MaxPoints = 5
	_, err = f.svc.Update(ctx, a.ID, req, claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceDeleteGuard(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	claims := teacherClaims("teacher-1")
	a, err := f.svc.Create(ctx, homeworkRequest(), claims)
	require.NoError(t, err)

	f.submissions.counts[a.ID] = 1
	require.Error(t, f.svc.Delete(ctx, a.ID, claims))

	f.submissions.counts[a.ID] = 0
	require.NoError(t, f.svc.Delete(ctx, a.ID, claims))
	assert.Equal(t, []string{a.ID}, f.repo.deleted)
}

func TestAssignmentServiceClone(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	claims := teacherClaims("teacher-1")
	a, err := f.svc.Create(ctx, quizRequest(), claims)
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, a.ID, claims)
	require.NoError(t, err)

	clone, err := f.svc.Clone(ctx, a.ID, claims)
	require.NoError(t, err)
	assert.Equal(t, "Quiz 1 (Copy)", clone.Title)
	assert.Equal(t, models.AssignmentDraft, clone.Status)
	assert.NotEqual(t, a.Code, clone.Code)
	assert.NotEqual(t, a.Questions[0].ID, clone.Questions[0].ID)
	assert.Nil(t, clone.PublishedAt)
}

func TestAssignmentServiceBulkPublish(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	claims := teacherClaims("teacher-1")
	first, err := f.svc.Create(ctx, homeworkRequest(), claims)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, homeworkRequest(), claims)
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, second.ID, claims)
	require.NoError(t, err)

	res, err := f.svc.BulkPublish(ctx, models.BulkAssignmentRequest{AssignmentIDs: []string{first.ID, second.ID, "missing"}}, claims)
	require.NoError(t, err)
	assert.Equal(t, models.BulkPublished, res.Action)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 3, res.TotalRequested)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, second.Code, res.Failed[0].Code)
	assert.Equal(t, "missing", res.Failed[1].ID)
}

func TestAssignmentServiceStudentViewHidesAnswers(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	a, err := f.svc.Create(ctx, quizRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, a.ID, studentClaims("student-1"))
	require.Error(t, err)

	_, err = f.svc.Publish(ctx, a.ID, teacherClaims("teacher-1"))
	require.NoError(t, err)
	view, err := f.svc.Get(ctx, a.ID, studentClaims("student-1"))
	require.NoError(t, err)
	assert.Nil(t, view.Questions[0].CorrectAnswerIndex)

	_, err = f.svc.Get(ctx, a.ID, studentClaims("student-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceStatistics(t *testing.T) {
	f := newAssignmentFixture()
	ctx := context.Background()
	a, err := f.svc.Create(ctx, homeworkRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)
	f.groups.rosters["group-1"]["student-2"] = models.EnrollmentActive
	f.submissions.stats = models.SubmissionStats{Total: 1, Graded: 1}
	f.submissions.pcts = []float64{85}

	stats, err := f.svc.Statistics(ctx, a.ID, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EligibleStudents)
	assert.Equal(t, 50.0, stats.SubmissionRate)
	assert.Equal(t, 85.0, stats.HighestScore)
	assert.Equal(t, 1, stats.Distribution[3].Count)
}

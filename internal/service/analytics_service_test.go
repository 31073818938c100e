package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	overview      models.TeacherOverview
	activity      models.RecentActivity
	assignments   []models.AssignmentPerformance
	students      []models.StudentPerformance
	percentages   []float64
	trends        []models.GradeTrendPoint
	overviewCalls int
	trendFilter   models.AnalyticsFilter
	activitySince time.Time
	err           error
}

func (m *mockAnalyticsRepo) TeacherOverview(ctx context.Context, teacherID string) (models.TeacherOverview, error) {
	m.overviewCalls++
	return m.overview, m.err
}

func (m *mockAnalyticsRepo) RecentActivity(ctx context.Context, teacherID string, since time.Time) (models.RecentActivity, error) {
	m.activitySince = since
	return m.activity, nil
}

func (m *mockAnalyticsRepo) CourseAssignmentStats(ctx context.Context, courseID string) ([]models.AssignmentPerformance, error) {
	return append([]models.AssignmentPerformance(nil), m.assignments...), m.err
}

func (m *mockAnalyticsRepo) CourseStudentStats(ctx context.Context, courseID string) ([]models.StudentPerformance, error) {
	return append([]models.StudentPerformance(nil), m.students...), m.err
}

func (m *mockAnalyticsRepo) GroupStudentStats(ctx context.Context, groupID string) ([]models.StudentPerformance, error) {
	return append([]models.StudentPerformance(nil), m.students...), m.err
}

func (m *mockAnalyticsRepo) CourseGradePercentages(ctx context.Context, courseID string) ([]float64, error) {
	return m.percentages, nil
}

func (m *mockAnalyticsRepo) GradeTrends(ctx context.Context, filter models.AnalyticsFilter) ([]models.GradeTrendPoint, error) {
	m.trendFilter = filter
	return m.trends, m.err
}

func newAnalyticsFixture() (*AnalyticsService, *mockAnalyticsRepo, *memoryCacheRepo) {
	repo := &mockAnalyticsRepo{
		overview: models.TeacherOverview{TotalStudents: 12, TotalCourses: 1, PendingGrading: 3},
		activity: models.RecentActivity{SubmissionsLast7Days: 4},
		assignments: []models.AssignmentPerformance{
			{ID: "a-1", Title: "Essay", TotalSubmissions: 3, GradedSubmissions: 2, AverageScore: 75},
			{ID: "a-2", Title: "Quiz", TotalSubmissions: 1},
		},
		students: []models.StudentPerformance{
			{StudentID: "s-1", AverageScore: 92, AttendanceRate: 100},
			{StudentID: "s-2", AverageScore: 55, AttendanceRate: 90},
			{StudentID: "s-3", AverageScore: 81, AttendanceRate: 60},
			{StudentID: "s-4", AverageScore: 70, AttendanceRate: 80},
		},
		percentages: []float64{95, 85, 55},
	}
	_, courses, groups := newCourseFixture()
	groups.groups["group-2"] = &models.Group{ID: "group-2", Code: "G2", Name: "Evening", CourseID: "course-1", TeacherID: "teacher-2"}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewAnalyticsService(repo, courses, courses, groups, cache, nil, zap.NewNop(), 0)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc, repo, cacheRepo
}

func TestAnalyticsTeacherOverviewCaching(t *testing.T) {
	svc, repo, cacheRepo := newAnalyticsFixture()
	ctx := context.Background()

	report, hit, err := svc.TeacherOverview(ctx, "teacher-9", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "teacher-1", report.TeacherID)
	assert.Equal(t, 12, report.Overview.TotalStudents)
	require.Len(t, report.Courses, 1)
	assert.Equal(t, "MATH", report.Courses[0].Code)
	assert.Equal(t, time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC), repo.activitySince)

	again, hit, err := svc.TeacherOverview(ctx, "", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.overviewCalls)
	assert.Equal(t, report.Overview, again.Overview)

	require.NoError(t, svc.Invalidate(ctx))
	assert.Contains(t, cacheRepo.invalidated, "analytics:*")
}

func TestAnalyticsTeacherOverviewAdminSchoolWide(t *testing.T) {
	svc, _, _ := newAnalyticsFixture()
	report, _, err := svc.TeacherOverview(context.Background(), "", adminClaims())
	require.NoError(t, err)
	assert.Empty(t, report.TeacherID)
	assert.Empty(t, report.Courses)
}

func TestAnalyticsRejectsStudents(t *testing.T) {
	svc, _, _ := newAnalyticsFixture()
	_, _, err := svc.TeacherOverview(context.Background(), "", studentClaims("student-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.SystemMetrics(teacherClaims("teacher-1"))
	require.Error(t, err)
}

func TestAnalyticsCourse(t *testing.T) {
	svc, _, _ := newAnalyticsFixture()
	out, hit, err := svc.CourseAnalytics(context.Background(), "course-1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, "Math", out.Course.Name)
	assert.Equal(t, 4, out.Summary.TotalStudents)
	assert.Equal(t, 2, out.Summary.TotalAssignments)
	assert.Equal(t, 4, out.Summary.TotalSubmissions)
	assert.Equal(t, 82.5, out.Summary.AverageAttendanceRate)
	assert.Equal(t, 75.0, out.AssignmentStats[0].SubmissionRate)
	assert.Equal(t, 25.0, out.AssignmentStats[1].SubmissionRate)

	require.Len(t, out.AtRiskStudents, 2)
	assert.Equal(t, "s-2", out.AtRiskStudents[0].StudentID)
	assert.Equal(t, "s-3", out.AtRiskStudents[1].StudentID)
	assert.Equal(t, "s-1", out.TopPerformers[0].StudentID)
	assert.Equal(t, "s-3", out.TopPerformers[1].StudentID)

	assert.Equal(t, 1, out.GradeDistribution[0].Count)
	assert.Equal(t, 1, out.GradeDistribution[3].Count)
	assert.Equal(t, 1, out.GradeDistribution[4].Count)
}

func TestAnalyticsCourseAccess(t *testing.T) {
	svc, _, _ := newAnalyticsFixture()
	_, _, err := svc.CourseAnalytics(context.Background(), "course-1", teacherClaims("teacher-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = svc.CourseAnalytics(context.Background(), "missing", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAnalyticsGroupPerformance(t *testing.T) {
	svc, _, _ := newAnalyticsFixture()

	// the course teacher can read a group taught by someone else
	out, _, err := svc.GroupPerformance(context.Background(), "group-2", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "Evening", out.GroupName)
	assert.Equal(t, "Math", out.CourseName)
	assert.Len(t, out.StudentPerformance, 4)
	assert.True(t, out.StudentPerformance[1].IsAtRisk)
	assert.False(t, out.StudentPerformance[0].IsAtRisk)

	_, _, err = svc.GroupPerformance(context.Background(), "group-1", teacherClaims("teacher-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAnalyticsGradeTrendsScopesTeacher(t *testing.T) {
	svc, repo, _ := newAnalyticsFixture()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	points, _, err := svc.GradeTrends(context.Background(), models.AnalyticsFilter{TeacherID: "teacher-2", DateFrom: &from, DateTo: &to}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Equal(t, "teacher-1", repo.trendFilter.TeacherID)

	_, _, err = svc.GradeTrends(context.Background(), models.AnalyticsFilter{DateFrom: &to, DateTo: &from}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAnalyticsErrorPassthrough(t *testing.T) {
	svc, repo, _ := newAnalyticsFixture()
	repo.err = assert.AnError
	_, _, err := svc.TeacherOverview(context.Background(), "", adminClaims())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

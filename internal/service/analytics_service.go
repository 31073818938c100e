package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

const (
	analyticsCachePrefix = "analytics"
	topPerformerCount    = 5
	atRiskScore          = 60
	atRiskAttendance     = 70
	activityWindow       = 7 * 24 * time.Hour
)

// AnalyticsRepository describes the read models behind AnalyticsService.
type AnalyticsRepository interface {
	TeacherOverview(ctx context.Context, teacherID string) (models.TeacherOverview, error)
	RecentActivity(ctx context.Context, teacherID string, since time.Time) (models.RecentActivity, error)
	CourseAssignmentStats(ctx context.Context, courseID string) ([]models.AssignmentPerformance, error)
	CourseStudentStats(ctx context.Context, courseID string) ([]models.StudentPerformance, error)
	GroupStudentStats(ctx context.Context, groupID string) ([]models.StudentPerformance, error)
	CourseGradePercentages(ctx context.Context, courseID string) ([]float64, error)
	GradeTrends(ctx context.Context, filter models.AnalyticsFilter) ([]models.GradeTrendPoint, error)
}

// AnalyticsService provides read-optimised access to analytics datasets with cache integration.
type AnalyticsService struct {
	repo     AnalyticsRepository
	courses  courseFinder
	teaching teacherCourseLister
	groups   groupFinder
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewAnalyticsService constructs an analytics service. A zero ttl uses the cache default.
func NewAnalyticsService(repo AnalyticsRepository, courses courseFinder, teaching teacherCourseLister, groups groupFinder, cache *CacheService, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		repo:     repo,
		courses:  courses,
		teaching: teaching,
		groups:   groups,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TeacherOverview returns the dashboard headline of a teacher. Admins may
// request any teacher; an empty teacherID then covers the whole school.
// The boolean indicates whether data originated from cache.
func (s *AnalyticsService) TeacherOverview(ctx context.Context, teacherID string, claims *models.JWTClaims) (*models.TeacherOverviewReport, bool, error) {
	if err := requireStaff(claims); err != nil {
		return nil, false, err
	}
	if !claims.Role.IsAdmin() {
		teacherID = claims.UserID
	}
	key := cacheKey(analyticsCachePrefix, "overview", teacherID)
	return cached(ctx, s.cache, key, s.ttl, func() (*models.TeacherOverviewReport, error) {
		report := &models.TeacherOverviewReport{TeacherID: teacherID, Courses: []models.CourseRef{}}
		var err error
		if report.Overview, err = timed(s, "analytics_overview", func() (models.TeacherOverview, error) {
			return s.repo.TeacherOverview(ctx, teacherID)
		}); err != nil {
			return nil, s.internal(err, "failed to load overview")
		}
		since := s.now().UTC().Add(-activityWindow)
		if report.RecentActivity, err = timed(s, "analytics_activity", func() (models.RecentActivity, error) {
			return s.repo.RecentActivity(ctx, teacherID, since)
		}); err != nil {
			return nil, s.internal(err, "failed to load recent activity")
		}
		if teacherID != "" {
			courses, err := s.teaching.ListByTeacher(ctx, teacherID)
			if err != nil {
				return nil, s.internal(err, "failed to load courses")
			}
			for _, c := range courses {
				report.Courses = append(report.Courses, models.CourseRef{ID: c.ID, Code: c.Code, Name: c.Name})
			}
		}
		return report, nil
	})
}

// CourseAnalytics returns per-assignment and per-student performance of a course.
func (s *AnalyticsService) CourseAnalytics(ctx context.Context, courseID string, claims *models.JWTClaims) (*models.CourseAnalytics, bool, error) {
	if err := requireStaff(claims); err != nil {
		return nil, false, err
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, s.internal(err, "failed to load course")
	}
	if !claims.Role.IsAdmin() && course.TeacherID != claims.UserID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this course analytics")
	}

	key := cacheKey(analyticsCachePrefix, "course", course.ID)
	return cached(ctx, s.cache, key, s.ttl, func() (*models.CourseAnalytics, error) {
		assignments, err := timed(s, "analytics_course_assignments", func() ([]models.AssignmentPerformance, error) {
			return s.repo.CourseAssignmentStats(ctx, course.ID)
		})
		if err != nil {
			return nil, s.internal(err, "failed to load assignment statistics")
		}
		students, err := timed(s, "analytics_course_students", func() ([]models.StudentPerformance, error) {
			return s.repo.CourseStudentStats(ctx, course.ID)
		})
		if err != nil {
			return nil, s.internal(err, "failed to load student statistics")
		}
		pcts, err := timed(s, "analytics_course_grades", func() ([]float64, error) {
			return s.repo.CourseGradePercentages(ctx, course.ID)
		})
		if err != nil {
			return nil, s.internal(err, "failed to load grades")
		}
		return buildCourseAnalytics(course, assignments, students, pcts), nil
	})
}

// GroupPerformance returns per-student performance within a group.
func (s *AnalyticsService) GroupPerformance(ctx context.Context, groupID string, claims *models.JWTClaims) (*models.GroupPerformance, bool, error) {
	if err := requireStaff(claims); err != nil {
		return nil, false, err
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, false, s.internal(err, "failed to load group")
	}
	courseName := group.CourseName
	owner := claims.Role.IsAdmin() || group.TeacherID == claims.UserID
	if !owner || courseName == "" {
		// the course teacher may read analytics of groups taught by others
		course, err := s.courses.FindByID(ctx, group.CourseID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, false, s.internal(err, "failed to load course")
		}
		if course != nil {
			courseName = course.Name
			owner = owner || course.TeacherID == claims.UserID
		}
		if !owner {
			return nil, false, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this group analytics")
		}
	}

	key := cacheKey(analyticsCachePrefix, "group", group.ID)
	return cached(ctx, s.cache, key, s.ttl, func() (*models.GroupPerformance, error) {
		students, err := timed(s, "analytics_group_students", func() ([]models.StudentPerformance, error) {
			return s.repo.GroupStudentStats(ctx, group.ID)
		})
		if err != nil {
			return nil, s.internal(err, "failed to load student statistics")
		}
		markAtRisk(students)
		return &models.GroupPerformance{
			GroupID:            group.ID,
			GroupName:          group.Name,
			GroupCode:          group.Code,
			CourseName:         courseName,
			StudentPerformance: nonNilStudents(students),
		}, nil
	})
}

// GradeTrends averages graded work per month. Teachers only see their own courses.
func (s *AnalyticsService) GradeTrends(ctx context.Context, filter models.AnalyticsFilter, claims *models.JWTClaims) ([]models.GradeTrendPoint, bool, error) {
	if err := requireStaff(claims); err != nil {
		return nil, false, err
	}
	if !claims.Role.IsAdmin() {
		filter.TeacherID = claims.UserID
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	key := cacheKey(analyticsCachePrefix, "trends", filter.TeacherID, filter.CourseID, filter.StudentID, unixOrEmpty(filter.DateFrom), unixOrEmpty(filter.DateTo))
	return cached(ctx, s.cache, key, s.ttl, func() ([]models.GradeTrendPoint, error) {
		points, err := timed(s, "analytics_grade_trends", func() ([]models.GradeTrendPoint, error) {
			return s.repo.GradeTrends(ctx, filter)
		})
		if err != nil {
			return nil, s.internal(err, "failed to load grade trends")
		}
		if points == nil {
			points = []models.GradeTrendPoint{}
		}
		return points, nil
	})
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics(claims *models.JWTClaims) (models.SystemMetrics, error) {
	if claims == nil || !claims.Role.IsAdmin() {
		return models.SystemMetrics{}, appErrors.Clone(appErrors.ErrForbidden, "system metrics are limited to administrators")
	}
	return s.metrics.Snapshot(), nil
}

// Invalidate drops every cached analytics payload.
func (s *AnalyticsService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, analyticsCachePrefix+":*")
}

func buildCourseAnalytics(course *models.Course, assignments []models.AssignmentPerformance, students []models.StudentPerformance, pcts []float64) *models.CourseAnalytics {
	markAtRisk(students)
	students = nonNilStudents(students)
	if assignments == nil {
		assignments = []models.AssignmentPerformance{}
	}

	out := &models.CourseAnalytics{
		Course:            models.CourseRef{ID: course.ID, Code: course.Code, Name: course.Name},
		AssignmentStats:   assignments,
		StudentStats:      students,
		AtRiskStudents:    []models.StudentPerformance{},
		GradeDistribution: models.GradeDistribution(pcts),
	}
	out.Summary.TotalStudents = len(students)
	out.Summary.TotalAssignments = len(assignments)

	for i := range assignments {
		out.Summary.TotalSubmissions += assignments[i].TotalSubmissions
		if len(students) > 0 {
			assignments[i].SubmissionRate = round2(float64(assignments[i].TotalSubmissions) / float64(len(students)) * 100)
		}
	}

	var attendance float64
	for _, st := range students {
		attendance += st.AttendanceRate
		if st.IsAtRisk {
			out.AtRiskStudents = append(out.AtRiskStudents, st)
		}
	}
	if len(students) > 0 {
		out.Summary.AverageAttendanceRate = round2(attendance / float64(len(students)))
	}

	ranked := append([]models.StudentPerformance(nil), students...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].AverageScore > ranked[j].AverageScore })
	if len(ranked) > topPerformerCount {
		ranked = ranked[:topPerformerCount]
	}
	out.TopPerformers = ranked
	return out
}

func markAtRisk(students []models.StudentPerformance) {
	for i := range students {
		students[i].IsAtRisk = students[i].AverageScore < atRiskScore || students[i].AttendanceRate < atRiskAttendance
	}
}

func nonNilStudents(students []models.StudentPerformance) []models.StudentPerformance {
	if students == nil {
		return []models.StudentPerformance{}
	}
	return students
}

func requireStaff(claims *models.JWTClaims) error {
	if claims == nil || (claims.Role != models.RoleTeacher && !claims.Role.IsAdmin()) {
		return appErrors.Clone(appErrors.ErrForbidden, "analytics are limited to teachers and administrators")
	}
	return nil
}

// timed runs a repository call and records its latency under label.
func timed[T any](s *AnalyticsService, label string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	s.metrics.ObserveDBQuery(label, time.Since(start))
	return out, err
}

func (s *AnalyticsService) internal(err error, msg string) error {
	s.logger.Error(msg, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

func unixOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("20060102")
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-lms-api/internal/models"
)

// attendanceCredit mirrors models.AttendanceValue so rates can be averaged in SQL.
const attendanceCredit = `CASE %[1]s.status WHEN 'present' THEN 1 WHEN 'excused' THEN 1 WHEN 'partial' THEN 0.5
WHEN 'late' THEN CASE WHEN %[1]s.minutes_late <= 15 THEN 0.8 ELSE 0.5 END ELSE 0 END`

func creditExpr(alias string) string {
	return fmt.Sprintf(attendanceCredit, alias)
}

// AnalyticsRepository exposes read-optimised queries for analytics endpoints.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// TeacherOverview aggregates headline numbers. An empty teacherID covers the whole school.
func (r *AnalyticsRepository) TeacherOverview(ctx context.Context, teacherID string) (models.TeacherOverview, error) {
	query := `SELECT
(SELECT COUNT(DISTINCT gs.student_id) FROM group_students gs JOIN groups g ON g.id = gs.group_id
  WHERE gs.status = 'active' AND ($1 = '' OR g.teacher_id = $1)) AS total_students,
(SELECT COUNT(*) FROM courses c WHERE c.active AND ($1 = '' OR c.teacher_id = $1)) AS total_courses,
(SELECT COUNT(*) FROM groups g WHERE g.active AND ($1 = '' OR g.teacher_id = $1)) AS total_groups,
(SELECT COUNT(*) FROM assignments a WHERE ($1 = '' OR a.teacher_id = $1)) AS total_assignments,
(SELECT COUNT(*) FROM submissions s JOIN assignments a ON a.id = s.assignment_id
  WHERE s.status IN ('submitted', 'grading') AND ($1 = '' OR a.teacher_id = $1)) AS pending_grading,
(SELECT COALESCE(ROUND(AVG(s.final_percentage), 2), 0) FROM submissions s JOIN assignments a ON a.id = s.assignment_id
  WHERE s.status IN ('graded', 'returned') AND ($1 = '' OR a.teacher_id = $1)) AS average_grade,
(SELECT COALESCE(ROUND(AVG(` + creditExpr("at") + `) * 100, 2), 0) FROM attendance at
  WHERE ($1 = '' OR at.teacher_id = $1)) AS attendance_rate,
(SELECT COALESCE(ROUND(COUNT(*) FILTER (WHERE s.is_late)::numeric * 100 / NULLIF(COUNT(*), 0), 2), 0)
  FROM submissions s JOIN assignments a ON a.id = s.assignment_id WHERE ($1 = '' OR a.teacher_id = $1)) AS late_submission_rate`
	var overview models.TeacherOverview
	if err := r.db.GetContext(ctx, &overview, query, teacherID); err != nil {
		return overview, fmt.Errorf("teacher overview: %w", err)
	}
	return overview, nil
}

// RecentActivity counts submissions and attendance records since the given time.
func (r *AnalyticsRepository) RecentActivity(ctx context.Context, teacherID string, since time.Time) (models.RecentActivity, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM submissions s JOIN assignments a ON a.id = s.assignment_id
  WHERE s.submitted_at >= $2 AND ($1 = '' OR a.teacher_id = $1)) AS submissions_last_7_days,
(SELECT COUNT(*) FROM attendance at WHERE at.class_date >= $2 AND ($1 = '' OR at.teacher_id = $1)) AS attendance_last_7_days`
	var activity models.RecentActivity
	if err := r.db.GetContext(ctx, &activity, query, teacherID, since); err != nil {
		return activity, fmt.Errorf("recent activity: %w", err)
	}
	return activity, nil
}

// CourseAssignmentStats returns per-assignment submission numbers of a course.
func (r *AnalyticsRepository) CourseAssignmentStats(ctx context.Context, courseID string) ([]models.AssignmentPerformance, error) {
	const query = `SELECT a.id, a.title, a.type, a.max_points, a.due_date,
COUNT(s.id) AS total_submissions,
COUNT(s.id) FILTER (WHERE s.status IN ('graded', 'returned')) AS graded_submissions,
COALESCE(ROUND(AVG(s.final_percentage) FILTER (WHERE s.status IN ('graded', 'returned')), 2), 0) AS average_score
FROM assignments a LEFT JOIN submissions s ON s.assignment_id = a.id
WHERE a.course_id = $1 AND a.status <> 'draft'
GROUP BY a.id ORDER BY a.due_date ASC`
	var rows []models.AssignmentPerformance
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("course assignment stats: %w", err)
	}
	return rows, nil
}

// studentPerformanceQuery aggregates, per rostered student, the submissions
// and attendance within scope. %s is the roster condition on g.
const studentPerformanceQuery = `WITH roster AS (
  SELECT DISTINCT gs.student_id FROM group_students gs JOIN groups g ON g.id = gs.group_id
  WHERE gs.status = 'active' AND %[1]s
)
SELECT u.id AS student_id, u.full_name AS name, u.email,
COALESCE(sub.total_submissions, 0) AS total_submissions,
COALESCE(sub.average_score, 0) AS average_score,
COALESCE(att.attendance_rate, 0) AS attendance_rate,
COALESCE(sub.late_submissions, 0) AS late_submissions
FROM roster JOIN users u ON u.id = roster.student_id
LEFT JOIN (
  SELECT s.student_id, COUNT(*) AS total_submissions,
  ROUND(AVG(s.final_percentage) FILTER (WHERE s.status IN ('graded', 'returned')), 2) AS average_score,
  COUNT(*) FILTER (WHERE s.is_late) AS late_submissions
  FROM submissions s JOIN assignments a ON a.id = s.assignment_id WHERE %[2]s GROUP BY s.student_id
) sub ON sub.student_id = u.id
LEFT JOIN (
  SELECT at.student_id, ROUND(AVG(%[3]s) * 100, 2) AS attendance_rate
  FROM attendance at WHERE %[4]s GROUP BY at.student_id
) att ON att.student_id = u.id
ORDER BY average_score DESC, u.full_name ASC`

// CourseStudentStats returns per-student performance across a course.
func (r *AnalyticsRepository) CourseStudentStats(ctx context.Context, courseID string) ([]models.StudentPerformance, error) {
	query := fmt.Sprintf(studentPerformanceQuery, "g.course_id = $1", "a.course_id = $1", creditExpr("at"), "at.course_id = $1")
	var rows []models.StudentPerformance
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("course student stats: %w", err)
	}
	return rows, nil
}

// GroupStudentStats returns per-student performance within a group.
func (r *AnalyticsRepository) GroupStudentStats(ctx context.Context, groupID string) ([]models.StudentPerformance, error) {
	query := fmt.Sprintf(studentPerformanceQuery, "g.id = $1", "$1 = ANY(a.group_ids)", creditExpr("at"), "at.group_id = $1")
	var rows []models.StudentPerformance
	if err := r.db.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, fmt.Errorf("group student stats: %w", err)
	}
	return rows, nil
}

// CourseGradePercentages returns the final percentages of graded course submissions.
func (r *AnalyticsRepository) CourseGradePercentages(ctx context.Context, courseID string) ([]float64, error) {
	const query = `SELECT s.final_percentage FROM submissions s
WHERE s.course_id = $1 AND s.status IN ('graded', 'returned') AND s.final_percentage IS NOT NULL`
	var pcts []float64
	if err := r.db.SelectContext(ctx, &pcts, query, courseID); err != nil {
		return nil, fmt.Errorf("course grade percentages: %w", err)
	}
	return pcts, nil
}

// GradeTrends averages graded submissions per calendar month.
func (r *AnalyticsRepository) GradeTrends(ctx context.Context, filter models.AnalyticsFilter) ([]models.GradeTrendPoint, error) {
	var where whereBuilder
	where.addRaw("s.status IN ('graded', 'returned')")
	where.addRaw("s.graded_at IS NOT NULL")
	if filter.TeacherID != "" {
		where.add("a.teacher_id = ?", filter.TeacherID)
	}
	if filter.CourseID != "" {
		where.add("s.course_id = ?", filter.CourseID)
	}
	if filter.StudentID != "" {
		where.add("s.student_id = ?", filter.StudentID)
	}
	if filter.DateFrom != nil {
		where.add("s.graded_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("s.graded_at <= ?", *filter.DateTo)
	}
	query := `SELECT TO_CHAR(s.graded_at, 'YYYY-MM') AS month, ROUND(AVG(s.final_percentage), 2) AS average_score, COUNT(*) AS submission_count
FROM submissions s JOIN assignments a ON a.id = s.assignment_id` + where.clause() + " GROUP BY 1 ORDER BY 1"
	var rows []models.GradeTrendPoint
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("grade trends: %w", err)
	}
	return rows, nil
}

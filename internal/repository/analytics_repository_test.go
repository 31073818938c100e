package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
)

func TestAnalyticsRepositoryTeacherOverview(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AS late_submission_rate")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_students", "total_courses", "total_groups", "total_assignments", "pending_grading", "average_grade", "attendance_rate", "late_submission_rate"}).
			AddRow(30, 2, 3, 12, 4, 81.5, 92.25, 10))

	overview, err := repo.TeacherOverview(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 30, overview.TotalStudents)
	assert.Equal(t, 81.5, overview.AverageGrade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositoryGroupStudentStatsUsesGroupScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("$1 = ANY(a.group_ids)")).
		WithArgs("g-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "name", "email", "total_submissions", "average_score", "attendance_rate", "late_submissions"}).
			AddRow("s-1", "Omar", "omar@example.com", 4, 55.5, 65, 2))

	rows, err := repo.GroupStudentStats(context.Background(), "g-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].LateSubmissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositoryGradeTrends(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND s.status IN ('graded', 'returned') AND s.graded_at IS NOT NULL AND s.course_id = $1 AND s.graded_at >= $2 GROUP BY 1 ORDER BY 1")).
		WithArgs("c-1", from).
		WillReturnRows(sqlmock.NewRows([]string{"month", "average_score", "submission_count"}).
			AddRow("2024-01", 74.5, 8).
			AddRow("2024-02", 80, 10))

	points, err := repo.GradeTrends(context.Background(), models.AnalyticsFilter{CourseID: "c-1", DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-02", points[1].Month)
	assert.NoError(t, mock.ExpectationsWereMet())
}

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

func TestAssignmentRepositoryCreateAssignsCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('assignment_code_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := &models.Assignment{
		Title:        "Fractions",
		CourseID:     "course-1",
		TeacherID:    "teacher-1",
		GroupIDs:     []string{"group-1"},
		Type:         models.AssignmentHomework,
		MaxPoints:    100,
		AssignedDate: time.Now(),
		DueDate:      time.Now().Add(48 * time.Hour),
		Status:       models.AssignmentDraft,
	}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.Equal(t, "AS-000042", a.Code)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM assignments WHERE 1=1 AND group_ids && ARRAY(SELECT group_id FROM group_students WHERE student_id = $1 AND status = 'active') AND status IN ('published', 'closed') ORDER BY due_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "title"}).AddRow("a-1", "AS-000001", "Essay"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM assignments WHERE 1=1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.AssignmentFilter{StudentID: "student-1"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListDeadlinesSkipsWithoutGroups(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	items, err := repo.ListDeadlines(context.Background(), nil, time.Now(), time.Now(), nil, "", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListDeadlinesQuizOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	due := time.Now().Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("AND a.type = 'quiz' ORDER BY a.due_date ASC LIMIT 5")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "title", "type", "status", "due_date", "max_points", "course_name"}).
			AddRow("a-1", "AS-000001", "Quiz 1", "quiz", "published", due, 10, "Math"))

	items, err := repo.ListDeadlines(context.Background(), []string{"g-1"}, time.Now(), due.Add(time.Hour),
		[]models.AssignmentStatus{models.AssignmentPublished}, models.EntryQuiz, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Math", items[0].CourseName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

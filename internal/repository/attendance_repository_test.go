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

func TestAttendanceRepositoryCreateBatchSkipsDuplicates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	dup := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM attendance WHERE student_id = $1")

	mock.ExpectBegin()
	mock.ExpectQuery(dup).WithArgs("s-1", "c-1", date, "09:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(dup).WithArgs("s-2", "c-1", date, "09:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	items := []models.Attendance{
		{CourseID: "c-1", StudentID: "s-1", ClassDate: date, ClassStartTime: "09:00", ClassEndTime: "10:00", Status: models.AttendancePresent},
		{CourseID: "c-1", StudentID: "s-2", ClassDate: date, ClassStartTime: "09:00", ClassEndTime: "10:00", Status: models.AttendanceAbsent},
	}
	created, skipped, err := repo.CreateBatch(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, []string{"s-2"}, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountAttendedSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("a.status = 'present'")).
		WithArgs("g-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name", "sessions_attended"}).AddRow("s-1", "Sara", 6))

	rows, err := repo.CountAttendedSessions(context.Background(), "g-1", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 6, rows[0].SessionsAttended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

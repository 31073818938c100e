package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
)

func TestSubmissionRepositoryUpdateBumpsVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("version = version + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub := &models.Submission{ID: "sub-1", Version: 3, Status: models.SubmissionGraded}
	require.NoError(t, repo.Update(context.Background(), sub))
	assert.Equal(t, 4, sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateDetectsConcurrentWrite(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND version = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sub := &models.Submission{ID: "sub-1", Version: 3}
	err := repo.Update(context.Background(), sub)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, 3, sub.Version)
}

func TestSubmissionRepositoryStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE assignment_id = $1")).
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "graded", "pending", "late", "average_grade"}).AddRow(5, 3, 2, 1, 78))

	stats, err := repo.Stats(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Graded)
	assert.Equal(t, float64(78), stats.AverageGrade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryCountByAssignments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	counts, err := repo.CountByAssignments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, counts)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE assignment_id = ANY($1) GROUP BY assignment_id")).
		WillReturnRows(sqlmock.NewRows([]string{"assignment_id", "count"}).AddRow("a-1", 2))

	counts, err = repo.CountByAssignments(context.Background(), []string{"a-1", "a-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, counts["a-1"])
	assert.Equal(t, 0, counts["a-2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
)

func TestPaymentRepositoryCreateRecordsLedgerInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)
	year := time.Now().UTC().Year()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO receipt_counters")).
		WithArgs("REC", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO receipt_counters")).
		WithArgs("TRX", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(12))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_payments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payment := &models.StudentPayment{StudentID: "s-1", CourseID: "c-1", TeacherID: "t-1", TotalAmount: 500, PaidAmount: 200}
	ledger := &models.FinancialTransaction{Type: models.TransactionIncome, Category: models.CategoryStudentPayment, Amount: 200, TeacherID: "t-1"}
	require.NoError(t, repo.Create(context.Background(), payment, ledger))

	assert.Equal(t, fmt.Sprintf("REC-%d-000007", year), payment.ReceiptNumber)
	assert.Equal(t, fmt.Sprintf("TRX-%d-000012", year), ledger.ReceiptNumber)
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, ledger.ID, *payment.TransactionID)
	require.NotNil(t, ledger.RelatedID)
	assert.Equal(t, payment.ID, *ledger.RelatedID)
	assert.Equal(t, models.RelatedStudentPayment, *ledger.RelatedModel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateRollsBackOnLedgerFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO receipt_counters")).
		WithArgs("REC", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO receipt_counters")).
		WithArgs("TRX", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_transactions")).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.StudentPayment{StudentID: "s-1"}, &models.FinancialTransaction{Amount: 10})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindSessionPayment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.group_id = $1 AND p.student_id = $2 AND p.payment_type = 'session_based'")).
		WithArgs("g-1", "s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "payment_type", "total_amount"}).AddRow("p-1", "s-1", "session_based", 300))

	p, err := repo.FindSessionPayment(context.Background(), "g-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, float64(300), p.TotalAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryStatsScopesByTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM student_payments p WHERE 1=1 AND p.teacher_id = $1")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_revenue", "total_pending", "total_overdue", "total_students", "payment_count"}).
			AddRow(1200, 300, 100, 4, 6))

	stats, err := repo.Stats(context.Background(), models.PaymentFilter{TeacherID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, float64(1200), stats.TotalRevenue)
	assert.Equal(t, 4, stats.TotalStudents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

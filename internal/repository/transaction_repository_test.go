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

func TestTransactionRepositoryListSearchesReceipt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM financial_transactions WHERE 1=1 AND teacher_id = $1 AND type = $2 AND (LOWER(title) LIKE $3 OR LOWER(description) LIKE $3 OR LOWER(receipt_number) LIKE $3) ORDER BY transaction_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("t-1", models.TransactionExpense, "%trx-2024%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "category", "amount"}).AddRow("tx-1", "expense", "rent", 900))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM financial_transactions WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.TransactionFilter{TeacherID: "t-1", Type: models.TransactionExpense, Search: "TRX-2024"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, float64(900), items[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO receipt_counters")).
		WithArgs("TRX", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := &models.FinancialTransaction{Type: models.TransactionIncome, Category: models.CategoryExamFee, Amount: 50}
	require.NoError(t, repo.Create(context.Background(), item))
	assert.NotEmpty(t, item.ID)
	assert.Contains(t, item.ReceiptNumber, "TRX-")
	assert.False(t, item.TransactionDate.IsZero())
	assert.NotNil(t, item.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryCategoryTotalsCompletedOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM financial_transactions WHERE 1=1 AND status = 'completed' AND transaction_date >= $1 AND transaction_date <= $2 GROUP BY type, category ORDER BY total DESC")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"type", "category", "total", "count"}).
			AddRow("income", "student_payment", 4000, 10).
			AddRow("expense", "rent", 1500, 1))

	rows, err := repo.CategoryTotals(context.Background(), "", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.TransactionIncome, rows[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

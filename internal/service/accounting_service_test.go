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

type fakeTransactionRepo struct {
	items      map[string]*models.FinancialTransaction
	categories []models.CategoryTotal
	totalCalls int
	seq        int
}

func (f *fakeTransactionRepo) List(ctx context.Context, filter models.TransactionFilter) ([]models.FinancialTransaction, int, error) {
	var out []models.FinancialTransaction
	for _, item := range f.items {
		if filter.TeacherID != "" && item.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (f *fakeTransactionRepo) FindByID(ctx context.Context, id string) (*models.FinancialTransaction, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (f *fakeTransactionRepo) Create(ctx context.Context, item *models.FinancialTransaction) error {
	f.seq++
	item.ID = fmt.Sprintf("trx-%d", f.seq)
	item.ReceiptNumber = fmt.Sprintf("TRX-2024-%06d", f.seq)
	copy := *item
	f.items[item.ID] = &copy
	return nil
}

func (f *fakeTransactionRepo) Update(ctx context.Context, item *models.FinancialTransaction) error {
	copy := *item
	f.items[item.ID] = &copy
	return nil
}

func (f *fakeTransactionRepo) Delete(ctx context.Context, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeTransactionRepo) CategoryTotals(ctx context.Context, teacherID string, from, to time.Time) ([]models.CategoryTotal, error) {
	f.totalCalls++
	return f.categories, nil
}

func (f *fakeTransactionRepo) MonthlyTotals(ctx context.Context, teacherID string, from time.Time) ([]models.MonthlyTotal, error) {
	return []models.MonthlyTotal{{Year: 2024, Month: 3, Type: models.TransactionIncome, Total: 500}}, nil
}

type fakePaymentRepo struct {
	items   map[string]*models.StudentPayment
	ledgers []models.FinancialTransaction
	seq     int
}

func (f *fakePaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.StudentPayment, int, error) {
	var out []models.StudentPayment
	for _, p := range f.items {
		if filter.TeacherID != "" && p.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (f *fakePaymentRepo) FindByID(ctx context.Context, id string) (*models.StudentPayment, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (f *fakePaymentRepo) FindSessionPayment(ctx context.Context, groupID, studentID string) (*models.StudentPayment, error) {
	for _, p := range f.items {
		if p.GroupID != nil && *p.GroupID == groupID && p.StudentID == studentID && p.PaymentType == models.PaymentSessionBased {
			copy := *p
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentRepo) Create(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) error {
	f.seq++
	p.ID = fmt.Sprintf("payment-%d", f.seq)
	p.ReceiptNumber = fmt.Sprintf("REC-2024-%06d", f.seq)
	if ledger != nil {
		ledger.ID = fmt.Sprintf("ledger-%d", len(f.ledgers)+1)
		p.TransactionID = &ledger.ID
		f.ledgers = append(f.ledgers, *ledger)
	}
	copy := *p
	f.items[p.ID] = &copy
	return nil
}

func (f *fakePaymentRepo) Update(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) error {
	if ledger != nil {
		ledger.ID = fmt.Sprintf("ledger-%d", len(f.ledgers)+1)
		f.ledgers = append(f.ledgers, *ledger)
	}
	copy := *p
	f.items[p.ID] = &copy
	return nil
}

func (f *fakePaymentRepo) Stats(ctx context.Context, filter models.PaymentFilter) (models.PaymentStats, error) {
	var stats models.PaymentStats
	for _, p := range f.items {
		stats.TotalRevenue += p.PaidAmount
		stats.PaymentCount++
	}
	return stats, nil
}

func (f *fakePaymentRepo) GroupRevenue(ctx context.Context, groupID string) (models.GroupRevenue, error) {
	revenue := models.GroupRevenue{GroupID: groupID}
	for _, p := range f.items {
		if p.GroupID != nil && *p.GroupID == groupID {
			revenue.TotalBilled += p.TotalAmount
			revenue.TotalPaid += p.PaidAmount
			revenue.PaymentCount++
		}
	}
	return revenue, nil
}

type fakeSessionCounter []models.SessionCharge

func (f fakeSessionCounter) CountAttendedSessions(ctx context.Context, groupID string, from, to time.Time) ([]models.SessionCharge, error) {
	out := make([]models.SessionCharge, len(f))
	copy(out, f)
	return out, nil
}

type accountingFixture struct {
	svc          *AccountingService
	transactions *fakeTransactionRepo
	payments     *fakePaymentRepo
	cache        *memoryCacheRepo
	publisher    *recordingPublisher
	now          time.Time
}

func newAccountingFixture() *accountingFixture {
	_, courses, groups := newCourseFixture()
	groups.groups["group-1"].PricePerSession = 50
	transactions := &fakeTransactionRepo{items: map[string]*models.FinancialTransaction{}}
	payments := &fakePaymentRepo{items: map[string]*models.StudentPayment{}}
	counter := fakeSessionCounter{
		{StudentID: "student-1", StudentName: "Student One", SessionsAttended: 4},
		{StudentID: "student-2", StudentName: "Student Two", SessionsAttended: 0},
	}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	pub := &recordingPublisher{}
	svc := NewAccountingService(transactions, payments, counter, groups, courses, cache, pub, nil, zap.NewNop(), AccountingConfig{})
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return &accountingFixture{svc: svc, transactions: transactions, payments: payments, cache: cacheRepo, publisher: pub, now: now}
}

func TestSummaryPeriod(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.AddDate(0, 0, -7), SummaryPeriod("week", nil, nil, now).StartDate)
	assert.Equal(t, now.AddDate(0, -3, 0), SummaryPeriod("quarter", nil, nil, now).StartDate)
	assert.Equal(t, now.AddDate(-1, 0, 0), SummaryPeriod("year", nil, nil, now).StartDate)

	fallback := SummaryPeriod("decade", nil, nil, now)
	assert.Equal(t, "month", fallback.Name)
	assert.Equal(t, now.AddDate(0, -1, 0), fallback.StartDate)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	explicit := SummaryPeriod("week", &start, nil, now)
	assert.Equal(t, start, explicit.StartDate)
	assert.Equal(t, now, explicit.EndDate)
}

func TestTotalsMargin(t *testing.T) {
	totals := Totals([]models.CategoryTotal{
		{Type: models.TransactionIncome, Category: models.CategoryStudentPayment, Total: 1000},
		{Type: models.TransactionIncome, Category: models.CategoryExamFee, Total: 200},
		{Type: models.TransactionExpense, Category: models.CategoryRent, Total: 400},
	})
	assert.Equal(t, 1200.0, totals.TotalIncome)
	assert.Equal(t, 400.0, totals.TotalExpenses)
	assert.Equal(t, 800.0, totals.NetProfit)
	assert.Equal(t, 66.67, totals.ProfitMargin)

	none := Totals([]models.CategoryTotal{{Type: models.TransactionExpense, Category: models.CategoryRent, Total: 100}})
	assert.Equal(t, -100.0, none.NetProfit)
	assert.Equal(t, 0.0, none.ProfitMargin)
}

func TestAccountingSummaryCachesAndInvalidates(t *testing.T) {
	f := newAccountingFixture()
	f.transactions.categories = []models.CategoryTotal{
		{Type: models.TransactionIncome, Category: models.CategoryStudentPayment, Total: 500, Count: 2},
	}
	ctx := context.Background()
	claims := teacherClaims("teacher-1")

	summary, hit, err := f.svc.Summary(ctx, SummaryQuery{Period: "month"}, claims)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 500.0, summary.Summary.TotalIncome)
	assert.Equal(t, 100.0, summary.Summary.ProfitMargin)
	assert.Len(t, summary.MonthlyTrend, 1)

	_, hit, err = f.svc.Summary(ctx, SummaryQuery{Period: "month"}, claims)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, f.transactions.totalCalls)

	_, err = f.svc.CreateTransaction(ctx, models.TransactionRequest{
		Type: models.TransactionExpense, Category: models.CategoryRent, Amount: 100, Title: "March rent",
	}, claims)
	require.NoError(t, err)
	assert.Contains(t, f.cache.invalidated, "accounting:summary:*")

	_, hit, err = f.svc.Summary(ctx, SummaryQuery{Period: "month"}, claims)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestAccountingSummaryForbiddenForStudents(t *testing.T) {
	f := newAccountingFixture()
	_, _, err := f.svc.Summary(context.Background(), SummaryQuery{}, studentClaims("student-1"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAccountingCreateTransaction(t *testing.T) {
	f := newAccountingFixture()
	ctx := context.Background()

	item, err := f.svc.CreateTransaction(ctx, models.TransactionRequest{
		Type: models.TransactionIncome, Category: models.CategoryExamFee, Amount: 75, Title: "Mock exam",
		Tags: []string{"exam"},
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", item.TeacherID)
	assert.Equal(t, models.DefaultCurrency, item.Currency)
	assert.Equal(t, models.TransactionCompleted, item.Status)
	assert.Equal(t, "cash", item.PaymentMethod)

	_, err = f.svc.CreateTransaction(ctx, models.TransactionRequest{
		Type: models.TransactionIncome, Category: models.CategoryRent, Amount: 10, Title: "Wrong side",
	}, teacherClaims("teacher-1"))
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreateTransaction(ctx, models.TransactionRequest{
		Type: models.TransactionIncome, Category: models.CategoryExamFee, Amount: 0, Title: "Zero",
	}, teacherClaims("teacher-1"))
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreateTransaction(ctx, models.TransactionRequest{
		Type: models.TransactionIncome, Category: models.CategoryExamFee, Amount: 10, Title: "No owner",
	}, adminClaims())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAccountingAttendanceTransactionsAreReadOnly(t *testing.T) {
	f := newAccountingFixture()
	related := models.RelatedAttendance
	f.transactions.items["trx-att"] = &models.FinancialTransaction{
		ID: "trx-att", Type: models.TransactionIncome, Category: models.CategoryStudentPayment, TeacherID: "teacher-1",
		RelatedModel: &related, Amount: 50, Status: models.TransactionCompleted,
	}
	ctx := context.Background()
	req := models.TransactionRequest{Type: models.TransactionIncome, Category: models.CategoryStudentPayment, Amount: 60, Title: "Edit"}

	_, err := f.svc.UpdateTransaction(ctx, "trx-att", req, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReadOnlyTransaction.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 403, appErrors.FromError(err).Status)

	err = f.svc.DeleteTransaction(ctx, "trx-att", adminClaims())
	assert.Equal(t, appErrors.ErrReadOnlyTransaction.Code, appErrors.FromError(err).Code)

	_, err = f.svc.GetTransaction(ctx, "trx-att", teacherClaims("teacher-2"))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAccountingCreatePaymentRecordsLedger(t *testing.T) {
	f := newAccountingFixture()
	view, err := f.svc.CreatePayment(context.Background(), models.PaymentRequest{
		StudentID: "student-1", CourseID: "course-1", PaymentType: models.PaymentMonthly,
		TotalAmount: 1000, PaidAmount: 400, Discount: 100,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartial, view.Status)
	assert.Equal(t, 500.0, view.RemainingAmount)
	assert.Equal(t, 44.0, view.PaymentProgress)
	assert.Equal(t, "teacher-1", view.TeacherID)
	require.Len(t, f.payments.ledgers, 1)
	assert.Equal(t, 400.0, f.payments.ledgers[0].Amount)
	assert.Equal(t, models.CategoryStudentPayment, f.payments.ledgers[0].Category)
	assert.Equal(t, []string{"payment.recorded"}, f.publisher.events)
}

func TestAccountingCreatePaymentRules(t *testing.T) {
	f := newAccountingFixture()
	ctx := context.Background()

	view, err := f.svc.CreatePayment(ctx, models.PaymentRequest{StudentID: "student-1", CourseID: "course-1", TotalAmount: 300}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, view.Status)
	assert.Empty(t, f.payments.ledgers)

	_, err = f.svc.CreatePayment(ctx, models.PaymentRequest{StudentID: "student-1", CourseID: "course-1", TotalAmount: 100, Discount: 150}, teacherClaims("teacher-1"))
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreatePayment(ctx, models.PaymentRequest{StudentID: "student-1", CourseID: "course-1", TotalAmount: 100}, teacherClaims("teacher-2"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreatePayment(ctx, models.PaymentRequest{StudentID: "student-1", CourseID: "missing", TotalAmount: 100}, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAccountingUpdatePaymentAdditionalPayment(t *testing.T) {
	f := newAccountingFixture()
	ctx := context.Background()
	view, err := f.svc.CreatePayment(ctx, models.PaymentRequest{
		StudentID: "student-1", CourseID: "course-1", TotalAmount: 600, PaidAmount: 200,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)

	updated, err := f.svc.UpdatePayment(ctx, view.ID, models.PaymentRequest{
		StudentID: "student-1", CourseID: "course-1", TotalAmount: 600, PaidAmount: 600,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, updated.Status)
	assert.Equal(t, 0.0, updated.RemainingAmount)
	require.NotNil(t, updated.PaidDate)
	assert.Equal(t, 100.0, updated.PaymentProgress)
	require.Len(t, f.payments.ledgers, 2)
	assert.Equal(t, "Additional payment", f.payments.ledgers[1].Title)
	assert.Equal(t, 400.0, f.payments.ledgers[1].Amount)

	_, err = f.svc.UpdatePayment(ctx, view.ID, models.PaymentRequest{
		StudentID: "student-1", CourseID: "course-1", TotalAmount: 600, PaidAmount: 500,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Len(t, f.payments.ledgers, 2)
}

func TestAccountingSessionBilling(t *testing.T) {
	f := newAccountingFixture()
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	charges, err := f.svc.CalculateSessionCharges(ctx, "group-1", start, end, teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.Len(t, charges, 2)
	assert.Equal(t, 200.0, charges[0].TotalAmount)
	assert.Nil(t, charges[0].ExistingPayment)

	result, err := f.svc.GenerateSessionPayments(ctx, models.SessionBillingRequest{GroupID: "group-1", StartDate: start, EndDate: end}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.PaymentSessionBased, result.Items[0].PaymentType)
	assert.Equal(t, 4, result.Items[0].SessionsAttended)
	assert.Equal(t, 200.0, result.Items[0].RemainingAmount)

	again, err := f.svc.GenerateSessionPayments(ctx, models.SessionBillingRequest{GroupID: "group-1", StartDate: start, EndDate: end}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Skipped)

	updated, err := f.svc.GenerateSessionPayments(ctx, models.SessionBillingRequest{GroupID: "group-1", StartDate: start, EndDate: end, UpdateExisting: true}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Updated)

	revenue, err := f.svc.GroupRevenue(ctx, "group-1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 200.0, revenue.TotalBilled)
	assert.Equal(t, 1, revenue.PaymentCount)

	_, err = f.svc.CalculateSessionCharges(ctx, "group-1", start, end, teacherClaims("teacher-2"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAccountingProfitAndLoss(t *testing.T) {
	f := newAccountingFixture()
	f.transactions.categories = []models.CategoryTotal{
		{Type: models.TransactionIncome, Category: models.CategoryStudentPayment, Total: 900},
		{Type: models.TransactionExpense, Category: models.CategoryRent, Total: 300},
		{Type: models.TransactionExpense, Category: models.CategoryMarketing, Total: 150},
	}
	report, err := f.svc.ProfitAndLoss(context.Background(), nil, nil, "", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), report.Period.StartDate)
	assert.Len(t, report.Income, 1)
	assert.Len(t, report.Expenses, 2)
	assert.Equal(t, 450.0, report.NetProfit)
	assert.Equal(t, 50.0, report.ProfitMargin)
}

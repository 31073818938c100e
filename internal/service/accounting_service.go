package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/events"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

const accountingCachePrefix = "accounting:summary"

type transactionRepository interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.FinancialTransaction, int, error)
	FindByID(ctx context.Context, id string) (*models.FinancialTransaction, error)
	Create(ctx context.Context, item *models.FinancialTransaction) error
	Update(ctx context.Context, item *models.FinancialTransaction) error
	Delete(ctx context.Context, id string) error
	CategoryTotals(ctx context.Context, teacherID string, from, to time.Time) ([]models.CategoryTotal, error)
	MonthlyTotals(ctx context.Context, teacherID string, from time.Time) ([]models.MonthlyTotal, error)
}

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.StudentPayment, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentPayment, error)
	FindSessionPayment(ctx context.Context, groupID, studentID string) (*models.StudentPayment, error)
	Create(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) error
	Update(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) error
	Stats(ctx context.Context, filter models.PaymentFilter) (models.PaymentStats, error)
	GroupRevenue(ctx context.Context, groupID string) (models.GroupRevenue, error)
}

type sessionCounter interface {
	CountAttendedSessions(ctx context.Context, groupID string, from, to time.Time) ([]models.SessionCharge, error)
}

type groupFinder interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// AccountingConfig tunes ledger defaults.
type AccountingConfig struct {
	DefaultCurrency string
	SummaryCacheTTL time.Duration
}

// AccountingService manages the teacher ledger and student receivables.
type AccountingService struct {
	transactions transactionRepository
	payments     paymentRepository
	attendance   sessionCounter
	groups       groupFinder
	courses      courseFinder
	cache        *CacheService
	publisher    events.Publisher
	validator    *validator.Validate
	logger       *zap.Logger
	config       AccountingConfig
	now          func() time.Time
}

// NewAccountingService wires the accounting service. cache may be nil.
func NewAccountingService(transactions transactionRepository, payments paymentRepository, attendance sessionCounter, groups groupFinder, courses courseFinder, cache *CacheService, publisher events.Publisher, validate *validator.Validate, logger *zap.Logger, cfg AccountingConfig) *AccountingService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = models.DefaultCurrency
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = 2 * time.Minute
	}
	return &AccountingService{
		transactions: transactions,
		payments:     payments,
		attendance:   attendance,
		groups:       groups,
		courses:      courses,
		cache:        cache,
		publisher:    publisher,
		validator:    validate,
		logger:       logger,
		config:       cfg,
		now:          time.Now,
	}
}

// SummaryQuery selects the summary window.
type SummaryQuery struct {
	Period    string
	StartDate *time.Time
	EndDate   *time.Time
	TeacherID string
}

// Summary returns totals, breakdowns and trends for the caller's ledger.
func (s *AccountingService) Summary(ctx context.Context, q SummaryQuery, claims *models.JWTClaims) (*models.FinancialSummary, bool, error) {
	teacherID, err := ledgerOwner(claims, q.TeacherID)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()
	period := SummaryPeriod(q.Period, q.StartDate, q.EndDate, now)

	key := cacheKey(accountingCachePrefix, teacherID, period.Name, period.StartDate.Unix(), period.EndDate.Unix())
	return cached(ctx, s.cache, key, s.config.SummaryCacheTTL, func() (*models.FinancialSummary, error) {
		categories, err := s.transactions.CategoryTotals(ctx, teacherID, period.StartDate, period.EndDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category totals")
		}
		trendFrom := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -5, 0)
		trend, err := s.transactions.MonthlyTotals(ctx, teacherID, trendFrom)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load monthly trend")
		}
		stats, err := s.payments.Stats(ctx, models.PaymentFilter{TeacherID: teacherID})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment stats")
		}
		summary := &models.FinancialSummary{
			Summary:           Totals(categories),
			CategoryBreakdown: nonNilCategories(categories),
			MonthlyTrend:      trend,
			PaymentStats:      stats,
			Period:            period,
		}
		if summary.MonthlyTrend == nil {
			summary.MonthlyTrend = []models.MonthlyTotal{}
		}
		return summary, nil
	})
}

// SummaryPeriod resolves the reporting window. Explicit dates win; otherwise
// the window reaches back from now by the named period (month by default).
func SummaryPeriod(name string, start, end *time.Time, now time.Time) models.Period {
	p := models.Period{Name: name, EndDate: now}
	if p.Name == "" {
		p.Name = "month"
	}
	if end != nil {
		p.EndDate = *end
	}
	if start != nil {
		p.StartDate = *start
		return p
	}
	switch p.Name {
	case "week":
		p.StartDate = p.EndDate.AddDate(0, 0, -7)
	case "quarter":
		p.StartDate = p.EndDate.AddDate(0, -3, 0)
	case "year":
		p.StartDate = p.EndDate.AddDate(-1, 0, 0)
	default:
		p.Name = "month"
		p.StartDate = p.EndDate.AddDate(0, -1, 0)
	}
	return p
}

// Totals folds category totals into income, expenses, profit and margin.
func Totals(categories []models.CategoryTotal) models.FinancialTotals {
	var t models.FinancialTotals
	for _, c := range categories {
		switch c.Type {
		case models.TransactionIncome:
			t.TotalIncome += c.Total
		case models.TransactionExpense:
			t.TotalExpenses += c.Total
		}
	}
	t.NetProfit = t.TotalIncome - t.TotalExpenses
	if t.TotalIncome > 0 {
		t.ProfitMargin = round2(t.NetProfit / t.TotalIncome * 100)
	}
	return t
}

// ProfitAndLoss returns the income statement. The window defaults to the
// current calendar year up to now.
func (s *AccountingService) ProfitAndLoss(ctx context.Context, start, end *time.Time, teacherFilter string, claims *models.JWTClaims) (*models.ProfitAndLoss, error) {
	teacherID, err := ledgerOwner(claims, teacherFilter)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	period := models.Period{StartDate: time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), EndDate: now}
	if start != nil {
		period.StartDate = *start
	}
	if end != nil {
		period.EndDate = *end
	}
	if period.EndDate.Before(period.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	categories, err := s.transactions.CategoryTotals(ctx, teacherID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category totals")
	}
	report := &models.ProfitAndLoss{Period: period, Income: []models.CategoryTotal{}, Expenses: []models.CategoryTotal{}}
	for _, c := range categories {
		if c.Type == models.TransactionIncome {
			report.Income = append(report.Income, c)
		} else {
			report.Expenses = append(report.Expenses, c)
		}
	}
	totals := Totals(categories)
	report.TotalIncome = totals.TotalIncome
	report.TotalExpenses = totals.TotalExpenses
	report.NetProfit = totals.NetProfit
	report.ProfitMargin = totals.ProfitMargin
	return report, nil
}

// ListTransactions lists ledger rows visible to the caller.
func (s *AccountingService) ListTransactions(ctx context.Context, filter models.TransactionFilter, claims *models.JWTClaims) ([]models.FinancialTransaction, *models.Pagination, error) {
	teacherID, err := ledgerOwner(claims, filter.TeacherID)
	if err != nil {
		return nil, nil, err
	}
	filter.TeacherID = teacherID
	items, total, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transactions")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetTransaction returns one ledger row.
func (s *AccountingService) GetTransaction(ctx context.Context, id string, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	return s.loadTransaction(ctx, id, claims)
}

// CreateTransaction records a manual ledger row.
func (s *AccountingService) CreateTransaction(ctx context.Context, req models.TransactionRequest, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	if err := s.validateTransaction(req); err != nil {
		return nil, err
	}
	teacherID, err := ledgerOwner(claims, req.TeacherID)
	if err != nil {
		return nil, err
	}
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
	}
	item := &models.FinancialTransaction{TeacherID: teacherID, CreatedBy: claims.UserID}
	s.applyTransaction(item, req)
	if err := s.transactions.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create transaction")
	}
	s.invalidateSummary(ctx)
	return item, nil
}

// UpdateTransaction edits a manual ledger row. Rows owned by attendance
// billing are read-only.
func (s *AccountingService) UpdateTransaction(ctx context.Context, id string, req models.TransactionRequest, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	if err := s.validateTransaction(req); err != nil {
		return nil, err
	}
	item, err := s.loadTransaction(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if item.IsAttendanceManaged() {
		return nil, appErrors.Clone(appErrors.ErrReadOnlyTransaction, "attendance transactions cannot be edited")
	}
	s.applyTransaction(item, req)
	updater := claims.UserID
	item.UpdatedBy = &updater
	if err := s.transactions.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update transaction")
	}
	s.invalidateSummary(ctx)
	return item, nil
}

// DeleteTransaction removes a manual ledger row.
func (s *AccountingService) DeleteTransaction(ctx context.Context, id string, claims *models.JWTClaims) error {
	item, err := s.loadTransaction(ctx, id, claims)
	if err != nil {
		return err
	}
	if item.IsAttendanceManaged() {
		return appErrors.Clone(appErrors.ErrReadOnlyTransaction, "attendance transactions cannot be deleted")
	}
	if err := s.transactions.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete transaction")
	}
	s.invalidateSummary(ctx)
	return nil
}

// ListPayments lists student payments visible to the caller.
func (s *AccountingService) ListPayments(ctx context.Context, filter models.PaymentFilter, claims *models.JWTClaims) ([]models.PaymentView, *models.Pagination, error) {
	teacherID, err := ledgerOwner(claims, filter.TeacherID)
	if err != nil {
		return nil, nil, err
	}
	filter.TeacherID = teacherID
	items, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	views := make([]models.PaymentView, 0, len(items))
	for _, p := range items {
		views = append(views, models.NewPaymentView(p))
	}
	return views, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetPayment returns one payment.
func (s *AccountingService) GetPayment(ctx context.Context, id string, claims *models.JWTClaims) (*models.PaymentView, error) {
	p, err := s.loadPayment(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	view := models.NewPaymentView(*p)
	return &view, nil
}

// CreatePayment records a receivable. Any amount already paid is booked as
// student_payment income in the same transaction.
func (s *AccountingService) CreatePayment(ctx context.Context, req models.PaymentRequest, claims *models.JWTClaims) (*models.PaymentView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if claims.Role == models.RoleTeacher && course.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another teacher")
	}
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can record payments")
	}

	now := s.now().UTC()
	p := &models.StudentPayment{
		StudentID:   req.StudentID,
		CourseID:    course.ID,
		TeacherID:   course.TeacherID,
		PaymentType: req.PaymentType,
	}
	if req.GroupID != "" {
		groupID := req.GroupID
		p.GroupID = &groupID
	}
	if p.PaymentType == "" {
		p.PaymentType = models.PaymentOther
	}
	s.applyPayment(p, req)
	if p.Discount > p.TotalAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount cannot exceed total_amount")
	}
	p.ApplyStatus(now)

	var ledger *models.FinancialTransaction
	if p.PaidAmount > 0 {
		ledger = s.paymentLedger(p, p.PaidAmount, "Student payment", claims.UserID, now)
	}
	if err := s.payments.Create(ctx, p, ledger); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}
	s.afterPayment(ctx, p, ledger)
	view := models.NewPaymentView(*p)
	return &view, nil
}

// UpdatePayment edits a receivable. An increase of the paid amount books the
// difference as an additional payment.
func (s *AccountingService) UpdatePayment(ctx context.Context, id string, req models.PaymentRequest, claims *models.JWTClaims) (*models.PaymentView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	p, err := s.loadPayment(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	previousPaid := p.PaidAmount
	if req.PaymentType != "" {
		p.PaymentType = req.PaymentType
	}
	s.applyPayment(p, req)
	if p.Discount > p.TotalAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount cannot exceed total_amount")
	}
	now := s.now().UTC()
	p.ApplyStatus(now)

	var ledger *models.FinancialTransaction
	if diff := p.PaidAmount - previousPaid; diff > 0 {
		ledger = s.paymentLedger(p, diff, "Additional payment", claims.UserID, now)
	}
	if err := s.payments.Update(ctx, p, ledger); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	s.afterPayment(ctx, p, ledger)
	view := models.NewPaymentView(*p)
	return &view, nil
}

// PaymentStats summarises the caller's receivables.
func (s *AccountingService) PaymentStats(ctx context.Context, teacherFilter string, claims *models.JWTClaims) (models.PaymentStats, error) {
	teacherID, err := ledgerOwner(claims, teacherFilter)
	if err != nil {
		return models.PaymentStats{}, err
	}
	stats, err := s.payments.Stats(ctx, models.PaymentFilter{TeacherID: teacherID})
	if err != nil {
		return stats, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment stats")
	}
	return stats, nil
}

// CalculateSessionCharges prices attended sessions of a group per student.
func (s *AccountingService) CalculateSessionCharges(ctx context.Context, groupID string, start, end time.Time, claims *models.JWTClaims) ([]models.SessionCharge, error) {
	group, err := s.ownedGroup(ctx, groupID, claims)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	charges, err := s.attendance.CountAttendedSessions(ctx, group.ID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	for i := range charges {
		charges[i].PricePerSession = group.PricePerSession
		charges[i].TotalAmount = round2(float64(charges[i].SessionsAttended) * group.PricePerSession)
		existing, err := s.payments.FindSessionPayment(ctx, group.ID, charges[i].StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session payment")
		}
		charges[i].ExistingPayment = existing
	}
	if charges == nil {
		charges = []models.SessionCharge{}
	}
	return charges, nil
}

// GenerateSessionPayments creates session-based payments from attendance.
// Students with an existing session payment are updated when requested and
// skipped otherwise. Amounts already paid are never reduced.
func (s *AccountingService) GenerateSessionPayments(ctx context.Context, req models.SessionBillingRequest, claims *models.JWTClaims) (*models.SessionBillingResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid billing payload")
	}
	charges, err := s.CalculateSessionCharges(ctx, req.GroupID, req.StartDate, req.EndDate, claims)
	if err != nil {
		return nil, err
	}
	group, err := s.ownedGroup(ctx, req.GroupID, claims)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	result := &models.SessionBillingResult{
		GroupID: group.ID,
		Period:  models.Period{StartDate: req.StartDate, EndDate: req.EndDate},
		Items:   []models.StudentPayment{},
	}
	currency := group.Currency
	if currency == "" {
		currency = s.config.DefaultCurrency
	}
	for _, charge := range charges {
		if charge.SessionsAttended == 0 {
			result.Skipped++
			continue
		}
		if existing := charge.ExistingPayment; existing != nil {
			if !req.UpdateExisting || existing.Status == models.PaymentCancelled || existing.Status == models.PaymentRefunded {
				result.Skipped++
				continue
			}
			existing.SessionsAttended = charge.SessionsAttended
			existing.PricePerSession = charge.PricePerSession
			existing.TotalAmount = charge.TotalAmount
			if req.DueDate != nil {
				existing.DueDate = req.DueDate
			}
			existing.ApplyStatus(now)
			if err := s.payments.Update(ctx, existing, nil); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session payment")
			}
			result.Updated++
			result.Items = append(result.Items, *existing)
			continue
		}
		groupID := group.ID
		p := &models.StudentPayment{
			StudentID:        charge.StudentID,
			CourseID:         group.CourseID,
			GroupID:          &groupID,
			TeacherID:        group.TeacherID,
			PaymentType:      models.PaymentSessionBased,
			SessionsAttended: charge.SessionsAttended,
			PricePerSession:  charge.PricePerSession,
			TotalAmount:      charge.TotalAmount,
			Currency:         currency,
			DueDate:          req.DueDate,
			Notes:            fmt.Sprintf("Sessions %s to %s", req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02")),
		}
		p.ApplyStatus(now)
		if err := s.payments.Create(ctx, p, nil); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session payment")
		}
		result.Created++
		result.Items = append(result.Items, *p)
	}
	if result.Created+result.Updated > 0 {
		s.invalidateSummary(ctx)
	}
	s.logger.Info("session payments generated",
		zap.String("group_id", group.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// GroupRevenue totals the payments of a group.
func (s *AccountingService) GroupRevenue(ctx context.Context, groupID string, claims *models.JWTClaims) (models.GroupRevenue, error) {
	group, err := s.ownedGroup(ctx, groupID, claims)
	if err != nil {
		return models.GroupRevenue{}, err
	}
	revenue, err := s.payments.GroupRevenue(ctx, group.ID)
	if err != nil {
		return revenue, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group revenue")
	}
	return revenue, nil
}

func (s *AccountingService) validateTransaction(req models.TransactionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transaction payload")
	}
	if !models.CategoryMatchesType(req.Type, req.Category) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %q is not valid for %s transactions", req.Category, req.Type))
	}
	return nil
}

func (s *AccountingService) applyTransaction(item *models.FinancialTransaction, req models.TransactionRequest) {
	item.Type = req.Type
	item.Category = req.Category
	item.Amount = req.Amount
	item.Currency = strings.ToUpper(req.Currency)
	if item.Currency == "" {
		item.Currency = s.config.DefaultCurrency
	}
	item.Title = strings.TrimSpace(req.Title)
	item.Description = req.Description
	if req.TransactionDate != nil {
		item.TransactionDate = req.TransactionDate.UTC()
	}
	item.PaymentMethod = req.PaymentMethod
	if item.PaymentMethod == "" {
		item.PaymentMethod = "cash"
	}
	item.Status = req.Status
	if item.Status == "" {
		item.Status = models.TransactionCompleted
	}
	item.Notes = req.Notes
	item.Tags = append([]string{}, req.Tags...)
}

func (s *AccountingService) applyPayment(p *models.StudentPayment, req models.PaymentRequest) {
	p.AcademicYear = req.AcademicYear
	p.SessionsAttended = req.SessionsAttended
	p.PricePerSession = req.PricePerSession
	p.TotalAmount = req.TotalAmount
	if p.TotalAmount == 0 && req.SessionsAttended > 0 {
		p.TotalAmount = round2(float64(req.SessionsAttended) * req.PricePerSession)
	}
	p.PaidAmount = req.PaidAmount
	p.Discount = req.Discount
	p.Currency = strings.ToUpper(req.Currency)
	if p.Currency == "" {
		p.Currency = s.config.DefaultCurrency
	}
	if req.Status != "" {
		p.Status = req.Status
	}
	if req.DueDate != nil {
		p.DueDate = req.DueDate
	}
	p.PaymentMethod = req.PaymentMethod
	if p.PaymentMethod == "" {
		p.PaymentMethod = "cash"
	}
	p.Notes = req.Notes
}

func (s *AccountingService) paymentLedger(p *models.StudentPayment, amount float64, title, actor string, now time.Time) *models.FinancialTransaction {
	return &models.FinancialTransaction{
		Type:            models.TransactionIncome,
		Category:        models.CategoryStudentPayment,
		TeacherID:       p.TeacherID,
		Amount:          amount,
		Currency:        p.Currency,
		Title:           title,
		Description:     fmt.Sprintf("%s payment from student %s", p.PaymentType, p.StudentID),
		TransactionDate: now,
		PaymentMethod:   p.PaymentMethod,
		Status:          models.TransactionCompleted,
		Tags:            []string{"student_payment", string(p.PaymentType)},
		CreatedBy:       actor,
	}
}

func (s *AccountingService) afterPayment(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) {
	s.invalidateSummary(ctx)
	if ledger == nil {
		return
	}
	payload := map[string]interface{}{
		"payment_id":     p.ID,
		"transaction_id": ledger.ID,
		"student_id":     p.StudentID,
		"teacher_id":     p.TeacherID,
		"amount":         ledger.Amount,
		"currency":       ledger.Currency,
		"status":         p.Status,
	}
	if err := s.publisher.Publish(ctx, events.PaymentRecorded, payload); err != nil {
		s.logger.Warn("failed to publish payment event", zap.String("payment_id", p.ID), zap.Error(err))
	}
}

func (s *AccountingService) invalidateSummary(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, accountingCachePrefix+":*")
}

func (s *AccountingService) loadTransaction(ctx context.Context, id string, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "accounting is limited to teachers")
	}
	item, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transaction not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transaction")
	}
	if !claims.Role.IsAdmin() && item.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "transaction not found")
	}
	return item, nil
}

func (s *AccountingService) loadPayment(ctx context.Context, id string, claims *models.JWTClaims) (*models.StudentPayment, error) {
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "accounting is limited to teachers")
	}
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if !claims.Role.IsAdmin() && p.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	return p, nil
}

func (s *AccountingService) ownedGroup(ctx context.Context, groupID string, claims *models.JWTClaims) (*models.Group, error) {
	if !claims.Role.IsAdmin() && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "accounting is limited to teachers")
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if !claims.Role.IsAdmin() && group.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "group belongs to another teacher")
	}
	return group, nil
}

// ledgerOwner resolves whose ledger the caller may read: teachers their own,
// admins everyone or the teacher they name.
func ledgerOwner(claims *models.JWTClaims, requested string) (string, error) {
	switch {
	case claims.Role.IsAdmin():
		return requested, nil
	case claims.Role == models.RoleTeacher:
		return claims.UserID, nil
	}
	return "", appErrors.Clone(appErrors.ErrForbidden, "accounting is limited to teachers")
}

func nonNilCategories(items []models.CategoryTotal) []models.CategoryTotal {
	if items == nil {
		return []models.CategoryTotal{}
	}
	return items
}

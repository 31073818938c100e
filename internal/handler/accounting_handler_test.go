package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/internal/service"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

type accountingServiceMock struct {
	summaryQuery service.SummaryQuery
	txFilter     models.TransactionFilter
	created      models.TransactionRequest
	chargeRange  [2]time.Time
	billing      models.SessionBillingRequest
	deleted      string
	cacheHit     bool
	err          error
}

func (m *accountingServiceMock) Summary(ctx context.Context, q service.SummaryQuery, claims *models.JWTClaims) (*models.FinancialSummary, bool, error) {
	m.summaryQuery = q
	return &models.FinancialSummary{Summary: models.FinancialTotals{TotalIncome: 1000, TotalExpenses: 250, NetProfit: 750, ProfitMargin: 75}}, m.cacheHit, m.err
}

func (m *accountingServiceMock) ProfitAndLoss(ctx context.Context, start, end *time.Time, teacherFilter string, claims *models.JWTClaims) (*models.ProfitAndLoss, error) {
	return &models.ProfitAndLoss{}, m.err
}

func (m *accountingServiceMock) ListTransactions(ctx context.Context, filter models.TransactionFilter, claims *models.JWTClaims) ([]models.FinancialTransaction, *models.Pagination, error) {
	m.txFilter = filter
	return []models.FinancialTransaction{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, m.err
}

func (m *accountingServiceMock) GetTransaction(ctx context.Context, id string, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.FinancialTransaction{ID: id}, nil
}

func (m *accountingServiceMock) CreateTransaction(ctx context.Context, req models.TransactionRequest, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.FinancialTransaction{ID: "tx-1", Type: req.Type, Category: req.Category, TeacherID: claims.UserID}, nil
}

func (m *accountingServiceMock) UpdateTransaction(ctx context.Context, id string, req models.TransactionRequest, claims *models.JWTClaims) (*models.FinancialTransaction, error) {
	return &models.FinancialTransaction{ID: id}, m.err
}

func (m *accountingServiceMock) DeleteTransaction(ctx context.Context, id string, claims *models.JWTClaims) error {
	m.deleted = id
	return m.err
}

func (m *accountingServiceMock) ListPayments(ctx context.Context, filter models.PaymentFilter, claims *models.JWTClaims) ([]models.PaymentView, *models.Pagination, error) {
	return []models.PaymentView{}, &models.Pagination{}, m.err
}

func (m *accountingServiceMock) GetPayment(ctx context.Context, id string, claims *models.JWTClaims) (*models.PaymentView, error) {
	return &models.PaymentView{}, m.err
}

func (m *accountingServiceMock) CreatePayment(ctx context.Context, req models.PaymentRequest, claims *models.JWTClaims) (*models.PaymentView, error) {
	return &models.PaymentView{}, m.err
}

func (m *accountingServiceMock) UpdatePayment(ctx context.Context, id string, req models.PaymentRequest, claims *models.JWTClaims) (*models.PaymentView, error) {
	return &models.PaymentView{}, m.err
}

func (m *accountingServiceMock) PaymentStats(ctx context.Context, teacherFilter string, claims *models.JWTClaims) (models.PaymentStats, error) {
	return models.PaymentStats{TotalRevenue: 500, PaymentCount: 2}, m.err
}

func (m *accountingServiceMock) CalculateSessionCharges(ctx context.Context, groupID string, start, end time.Time, claims *models.JWTClaims) ([]models.SessionCharge, error) {
	m.chargeRange = [2]time.Time{start, end}
	return []models.SessionCharge{{StudentID: "student-1", SessionsAttended: 4, PricePerSession: 50, TotalAmount: 200}}, m.err
}

func (m *accountingServiceMock) GenerateSessionPayments(ctx context.Context, req models.SessionBillingRequest, claims *models.JWTClaims) (*models.SessionBillingResult, error) {
	m.billing = req
	return &models.SessionBillingResult{GroupID: req.GroupID, Created: 3, Skipped: 1}, m.err
}

func (m *accountingServiceMock) GroupRevenue(ctx context.Context, groupID string, claims *models.JWTClaims) (models.GroupRevenue, error) {
	return models.GroupRevenue{GroupID: groupID, TotalBilled: 900, TotalPaid: 600}, m.err
}

func TestAccountingHandlerSummaryMeta(t *testing.T) {
	svc := &accountingServiceMock{cacheHit: true}
	handler := NewAccountingHandler(svc)

	c, w := newGinContext(http.MethodGet, "/accounting/summary?period=quarter&teacher_id=teacher-2", nil)
	withClaims(c, "admin-1", models.RoleAdmin)
	handler.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "quarter", svc.summaryQuery.Period)
	assert.Equal(t, "teacher-2", svc.summaryQuery.TeacherID)
	body := decodeEnvelope(t, w)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	summary := body["data"].(map[string]interface{})["summary"].(map[string]interface{})
	assert.EqualValues(t, 750, summary["net_profit"])
}

func TestAccountingHandlerListTransactionsFilter(t *testing.T) {
	svc := &accountingServiceMock{}
	handler := NewAccountingHandler(svc)

	c, w := newGinContext(http.MethodGet, "/accounting/transactions?type=expense&category=rent&search=march&page=2&page_size=5", nil)
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.ListTransactions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TransactionExpense, svc.txFilter.Type)
	assert.Equal(t, "rent", svc.txFilter.Category)
	assert.Equal(t, "march", svc.txFilter.Search)
	assert.Equal(t, 2, svc.txFilter.Page)
	assert.Equal(t, 5, svc.txFilter.PageSize)
}

func TestAccountingHandlerCreateTransaction(t *testing.T) {
	svc := &accountingServiceMock{}
	handler := NewAccountingHandler(svc)

	c, w := newGinContext(http.MethodPost, "/accounting/transactions", []byte(`{"type":"income","category":"tuition","amount":300,"title":"March tuition","tags":["march"]}`))
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.CreateTransaction(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 300.0, svc.created.Amount)
	assert.Equal(t, []string{"march"}, svc.created.Tags)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "income", data["type"])
}

func TestAccountingHandlerGetTransactionHidden(t *testing.T) {
	handler := NewAccountingHandler(&accountingServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "transaction not found")})

	c, w := newGinContext(http.MethodGet, "/accounting/transactions/tx-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "tx-9"}}
	withClaims(c, "teacher-2", models.RoleTeacher)
	handler.GetTransaction(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccountingHandlerDeleteTransaction(t *testing.T) {
	svc := &accountingServiceMock{}
	handler := NewAccountingHandler(svc)

	c, _ := newGinContext(http.MethodDelete, "/accounting/transactions/tx-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.DeleteTransaction(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "tx-1", svc.deleted)
}

func TestAccountingHandlerSessionChargesRequiresWindow(t *testing.T) {
	handler := NewAccountingHandler(&accountingServiceMock{})

	c, w := newGinContext(http.MethodGet, "/groups/group-1/session-charges?start_date=2024-03-01", nil)
	c.Params = gin.Params{{Key: "id", Value: "group-1"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.SessionCharges(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountingHandlerSessionCharges(t *testing.T) {
	svc := &accountingServiceMock{}
	handler := NewAccountingHandler(svc)

	c, w := newGinContext(http.MethodGet, "/groups/group-1/session-charges?start_date=2024-03-01&end_date=2024-03-31", nil)
	c.Params = gin.Params{{Key: "id", Value: "group-1"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.SessionCharges(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), svc.chargeRange[0])
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), svc.chargeRange[1])
	charges := decodeEnvelope(t, w)["data"].([]interface{})
	require.Len(t, charges, 1)
	assert.EqualValues(t, 200, charges[0].(map[string]interface{})["total_amount"])
}

func TestAccountingHandlerGenerateSessionPayments(t *testing.T) {
	svc := &accountingServiceMock{}
	handler := NewAccountingHandler(svc)

	c, w := newGinContext(http.MethodPost, "/payments/session-billing", []byte(`{"group_id":"group-1","start_date":"2024-03-01T00:00:00Z","end_date":"2024-03-31T23:59:59Z","update_existing":true}`))
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.GenerateSessionPayments(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, svc.billing.UpdateExisting)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["created"])
	assert.EqualValues(t, 1, data["skipped"])
}

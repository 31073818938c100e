package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/internal/service"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type accountingService interface {
	Summary(ctx context.Context, q service.SummaryQuery, claims *models.JWTClaims) (*models.FinancialSummary, bool, error)
	ProfitAndLoss(ctx context.Context, start, end *time.Time, teacherFilter string, claims *models.JWTClaims) (*models.ProfitAndLoss, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter, claims *models.JWTClaims) ([]models.FinancialTransaction, *models.Pagination, error)
	GetTransaction(ctx context.Context, id string, claims *models.JWTClaims) (*models.FinancialTransaction, error)
	CreateTransaction(ctx context.Context, req models.TransactionRequest, claims *models.JWTClaims) (*models.FinancialTransaction, error)
	UpdateTransaction(ctx context.Context, id string, req models.TransactionRequest, claims *models.JWTClaims) (*models.FinancialTransaction, error)
	DeleteTransaction(ctx context.Context, id string, claims *models.JWTClaims) error
	ListPayments(ctx context.Context, filter models.PaymentFilter, claims *models.JWTClaims) ([]models.PaymentView, *models.Pagination, error)
	GetPayment(ctx context.Context, id string, claims *models.JWTClaims) (*models.PaymentView, error)
	CreatePayment(ctx context.Context, req models.PaymentRequest, claims *models.JWTClaims) (*models.PaymentView, error)
	UpdatePayment(ctx context.Context, id string, req models.PaymentRequest, claims *models.JWTClaims) (*models.PaymentView, error)
	PaymentStats(ctx context.Context, teacherFilter string, claims *models.JWTClaims) (models.PaymentStats, error)
	CalculateSessionCharges(ctx context.Context, groupID string, start, end time.Time, claims *models.JWTClaims) ([]models.SessionCharge, error)
	GenerateSessionPayments(ctx context.Context, req models.SessionBillingRequest, claims *models.JWTClaims) (*models.SessionBillingResult, error)
	GroupRevenue(ctx context.Context, groupID string, claims *models.JWTClaims) (models.GroupRevenue, error)
}

// AccountingHandler exposes the ledger and student payment endpoints.
type AccountingHandler struct {
	service accountingService
}

// NewAccountingHandler constructs the handler.
func NewAccountingHandler(svc accountingService) *AccountingHandler {
	return &AccountingHandler{service: svc}
}

// Summary godoc
// @Summary Financial summary
// @Description Totals, category breakdowns and monthly trend for the caller's ledger
// @Tags Accounting
// @Produce json
// @Param period query string false "week, month, quarter or year"
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Param teacher_id query string false "Teacher filter (admin only)"
// @Success 200 {object} response.Envelope
// @Router /accounting/summary [get]
func (h *AccountingHandler) Summary(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	start := time.Now()
	from, to, err := dateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), service.SummaryQuery{
		Period:    c.Query("period"),
		StartDate: from,
		EndDate:   to,
		TeacherID: c.Query("teacher_id"),
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, nil, cacheHit, start)
}

// ProfitAndLoss godoc
// @Summary Profit and loss statement
// @Tags Accounting
// @Produce json
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Param teacher_id query string false "Teacher filter (admin only)"
// @Success 200 {object} response.Envelope
// @Router /accounting/profit-loss [get]
func (h *AccountingHandler) ProfitAndLoss(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.ProfitAndLoss(c.Request.Context(), from, to, c.Query("teacher_id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ListTransactions godoc
// @Summary List ledger transactions
// @Tags Accounting
// @Produce json
// @Param type query string false "income or expense"
// @Param category query string false "Category"
// @Param status query string false "Status"
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Param search query string false "Search title, receipt or description"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accounting/transactions [get]
func (h *AccountingHandler) ListTransactions(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.TransactionFilter{
		TeacherID: c.Query("teacher_id"),
		Type:      models.TransactionType(c.Query("type")),
		Category:  c.Query("category"),
		Status:    models.TransactionStatus(c.Query("status")),
		StartDate: from,
		EndDate:   to,
		Search:    c.Query("search"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.ListTransactions(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetTransaction godoc
// @Summary Get transaction
// @Tags Accounting
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accounting/transactions/{id} [get]
func (h *AccountingHandler) GetTransaction(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	item, err := h.service.GetTransaction(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateTransaction godoc
// @Summary Record transaction
// @Description A receipt number is generated for every new ledger row
// @Tags Accounting
// @Accept json
// @Produce json
// @Param payload body models.TransactionRequest true "Transaction payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /accounting/transactions [post]
func (h *AccountingHandler) CreateTransaction(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.TransactionRequest
	if !bindJSON(c, &req, "invalid transaction payload") {
		return
	}
	item, err := h.service.CreateTransaction(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateTransaction godoc
// @Summary Update transaction
// @Tags Accounting
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param payload body models.TransactionRequest true "Transaction payload"
// @Success 200 {object} response.Envelope
// @Router /accounting/transactions/{id} [put]
func (h *AccountingHandler) UpdateTransaction(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.TransactionRequest
	if !bindJSON(c, &req, "invalid transaction payload") {
		return
	}
	item, err := h.service.UpdateTransaction(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteTransaction godoc
// @Summary Delete transaction
// @Tags Accounting
// @Param id path string true "Transaction ID"
// @Success 204 {object} response.Envelope
// @Router /accounting/transactions/{id} [delete]
func (h *AccountingHandler) DeleteTransaction(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.DeleteTransaction(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPayments godoc
// @Summary List student payments
// @Tags Payments
// @Produce json
// @Param student_id query string false "Student ID"
// @Param course_id query string false "Course ID"
// @Param group_id query string false "Group ID"
// @Param status query string false "Payment status"
// @Param payment_type query string false "Payment type"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *AccountingHandler) ListPayments(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.PaymentFilter{
		TeacherID:   c.Query("teacher_id"),
		StudentID:   c.Query("student_id"),
		CourseID:    c.Query("course_id"),
		GroupID:     c.Query("group_id"),
		Status:      models.PaymentStatus(c.Query("status")),
		PaymentType: models.PaymentType(c.Query("payment_type")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.ListPayments(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetPayment godoc
// @Summary Get payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *AccountingHandler) GetPayment(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	item, err := h.service.GetPayment(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreatePayment godoc
// @Summary Record student payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.PaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *AccountingHandler) CreatePayment(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.PaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	item, err := h.service.CreatePayment(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdatePayment godoc
// @Summary Update student payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body models.PaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [put]
func (h *AccountingHandler) UpdatePayment(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.PaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	item, err := h.service.UpdatePayment(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// PaymentStats godoc
// @Summary Payment statistics
// @Tags Payments
// @Produce json
// @Param teacher_id query string false "Teacher filter (admin only)"
// @Success 200 {object} response.Envelope
// @Router /payments/stats [get]
func (h *AccountingHandler) PaymentStats(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	stats, err := h.service.PaymentStats(c.Request.Context(), c.Query("teacher_id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// SessionCharges godoc
// @Summary Preview session charges
// @Description Counts attended sessions per student and prices them with the group rate
// @Tags Payments
// @Produce json
// @Param id path string true "Group ID"
// @Param start_date query string true "Start date"
// @Param end_date query string true "End date"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/session-charges [get]
func (h *AccountingHandler) SessionCharges(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if from == nil || to == nil {
		response.Error(c, validationError("start_date and end_date are required"))
		return
	}
	charges, err := h.service.CalculateSessionCharges(c.Request.Context(), c.Param("id"), *from, *to, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, charges, nil)
}

// GenerateSessionPayments godoc
// @Summary Generate session-based payments
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.SessionBillingRequest true "Billing window"
// @Success 201 {object} response.Envelope
// @Router /payments/session-billing [post]
func (h *AccountingHandler) GenerateSessionPayments(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.SessionBillingRequest
	if !bindJSON(c, &req, "invalid billing payload") {
		return
	}
	result, err := h.service.GenerateSessionPayments(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GroupRevenue godoc
// @Summary Group revenue
// @Tags Payments
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/revenue [get]
func (h *AccountingHandler) GroupRevenue(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	revenue, err := h.service.GroupRevenue(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, revenue, nil)
}

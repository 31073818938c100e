package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type attendanceService interface {
	List(ctx context.Context, filter models.AttendanceFilter, claims *models.JWTClaims) ([]models.Attendance, *models.Pagination, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Attendance, error)
	Record(ctx context.Context, req models.AttendanceRequest, claims *models.JWTClaims) (*models.Attendance, error)
	RecordBulk(ctx context.Context, req models.BulkAttendanceRequest, claims *models.JWTClaims) (*models.BulkAttendanceResult, error)
	Update(ctx context.Context, id string, req models.UpdateAttendanceRequest, claims *models.JWTClaims) (*models.Attendance, error)
	Excuse(ctx context.Context, id string, req models.ExcuseAbsenceRequest, claims *models.JWTClaims) (*models.Attendance, error)
	Summary(ctx context.Context, filter models.AttendanceFilter, claims *models.JWTClaims) (*models.AttendanceSummary, error)
}

// AttendanceHandler exposes session attendance endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param course_id query string false "Course ID"
// @Param group_id query string false "Group ID"
// @Param student_id query string false "Student ID"
// @Param status query string false "Attendance status"
// @Param date_from query string false "From date"
// @Param date_to query string false "To date"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter, ok := attendanceFilter(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Attendance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	record, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Record godoc
// @Summary Record attendance
// @Description Lateness is derived from the arrival time when not given
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.AttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.AttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.service.Record(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// RecordBulk godoc
// @Summary Record attendance for a whole group session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.BulkAttendanceRequest true "Session attendance"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) RecordBulk(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.BulkAttendanceRequest
	if !bindJSON(c, &req, "invalid bulk attendance payload") {
		return
	}
	result, err := h.service.RecordBulk(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Update attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance ID"
// @Param payload body models.UpdateAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.UpdateAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Excuse godoc
// @Summary Excuse absence
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance ID"
// @Param payload body models.ExcuseAbsenceRequest true "Excuse payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/{id}/excuse [post]
func (h *AttendanceHandler) Excuse(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.ExcuseAbsenceRequest
	if !bindJSON(c, &req, "invalid excuse payload") {
		return
	}
	record, err := h.service.Excuse(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Summary godoc
// @Summary Attendance summary
// @Tags Attendance
// @Produce json
// @Param course_id query string false "Course ID"
// @Param group_id query string false "Group ID"
// @Param student_id query string false "Student ID"
// @Param date_from query string false "From date"
// @Param date_to query string false "To date"
// @Success 200 {object} response.Envelope
// @Router /attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter, ok := attendanceFilter(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func attendanceFilter(c *gin.Context) (models.AttendanceFilter, bool) {
	filter := models.AttendanceFilter{
		CourseID:  c.Query("course_id"),
		GroupID:   c.Query("group_id"),
		StudentID: c.Query("student_id"),
		TeacherID: c.Query("teacher_id"),
		Status:    models.AttendanceStatus(c.Query("status")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	from, to, err := dateRange(c)
	if err != nil {
		response.Error(c, err)
		return filter, false
	}
	filter.DateFrom, filter.DateTo = from, to
	return filter, true
}

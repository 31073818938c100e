package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/middleware"
	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type analyticsService interface {
	TeacherOverview(ctx context.Context, teacherID string, claims *models.JWTClaims) (*models.TeacherOverviewReport, bool, error)
	CourseAnalytics(ctx context.Context, courseID string, claims *models.JWTClaims) (*models.CourseAnalytics, bool, error)
	GroupPerformance(ctx context.Context, groupID string, claims *models.JWTClaims) (*models.GroupPerformance, bool, error)
	GradeTrends(ctx context.Context, filter models.AnalyticsFilter, claims *models.JWTClaims) ([]models.GradeTrendPoint, bool, error)
	SystemMetrics(claims *models.JWTClaims) (models.SystemMetrics, error)
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// TeacherOverview godoc
// @Summary Teacher overview
// @Description Course, student and grading headline figures. Administrators may pass teacher_id or omit it for school-wide numbers.
// @Tags Analytics
// @Produce json
// @Param teacher_id query string false "Teacher ID (admin only)"
// @Success 200 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AnalyticsHandler) TeacherOverview(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.TeacherOverview(c.Request.Context(), c.Query("teacher_id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, report, nil, cacheHit, start)
}

// CourseAnalytics godoc
// @Summary Course analytics
// @Description Submission rate, attendance, grade distribution, top performers and at-risk students
// @Tags Analytics
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /analytics/courses/{id} [get]
func (h *AnalyticsHandler) CourseAnalytics(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.CourseAnalytics(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, report, nil, cacheHit, start)
}

// GroupPerformance godoc
// @Summary Group performance
// @Tags Analytics
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/groups/{id} [get]
func (h *AnalyticsHandler) GroupPerformance(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.GroupPerformance(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, report, nil, cacheHit, start)
}

// GradeTrends godoc
// @Summary Grade trends
// @Description Monthly average percentage of graded submissions
// @Tags Analytics
// @Produce json
// @Param course_id query string false "Course ID"
// @Param group_id query string false "Group ID"
// @Param student_id query string false "Student ID"
// @Param teacher_id query string false "Teacher ID (admin only)"
// @Param date_from query string false "From date"
// @Param date_to query string false "To date"
// @Success 200 {object} response.Envelope
// @Router /analytics/grade-trends [get]
func (h *AnalyticsHandler) GradeTrends(c *gin.Context) {
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
	points, cacheHit, err := h.analytics.GradeTrends(c.Request.Context(), models.AnalyticsFilter{
		TeacherID: c.Query("teacher_id"),
		CourseID:  c.Query("course_id"),
		GroupID:   c.Query("group_id"),
		StudentID: c.Query("student_id"),
		DateFrom:  from,
		DateTo:    to,
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, points, nil, cacheHit, start)
}

// System godoc
// @Summary System metrics
// @Description Cache hit ratio, query latency and report job counters
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	metrics, err := h.analytics.SystemMetrics(claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, false)
	response.JSON(c, http.StatusOK, metrics, nil, middleware.ExtractMeta(c))
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type gradeService interface {
	Grade(ctx context.Context, submissionID string, req models.GradeRequest, claims *models.JWTClaims) (*models.Submission, error)
	Return(ctx context.Context, submissionID string, req models.ReturnSubmissionRequest, claims *models.JWTClaims) (*models.Submission, error)
	WaivePenalty(ctx context.Context, submissionID string, claims *models.JWTClaims) (*models.Submission, error)
	BulkGrade(ctx context.Context, req models.BulkGradeRequest, claims *models.JWTClaims) ([]models.BulkGradeResult, error)
	MyGrades(ctx context.Context, courseID string, claims *models.JWTClaims) ([]models.CourseGrade, error)
	StudentGrades(ctx context.Context, studentID, courseID string, claims *models.JWTClaims) ([]models.CourseGrade, error)
}

// GradeHandler manages grading endpoints.
type GradeHandler struct {
	service gradeService
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(svc gradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// Grade godoc
// @Summary Grade submission
// @Description Applies the late penalty unless waived and derives the letter grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body models.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *GradeHandler) Grade(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.GradeRequest
	if !bindJSON(c, &req, "invalid grade payload") {
		return
	}
	sub, err := h.service.Grade(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Return godoc
// @Summary Return graded submission
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body models.ReturnSubmissionRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/return [post]
func (h *GradeHandler) Return(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.ReturnSubmissionRequest
	if !bindJSON(c, &req, "invalid return payload") {
		return
	}
	sub, err := h.service.Return(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// WaivePenalty godoc
// @Summary Waive late penalty
// @Tags Grades
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/waive-penalty [post]
func (h *GradeHandler) WaivePenalty(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	sub, err := h.service.WaivePenalty(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// BulkGrade godoc
// @Summary Grade several submissions
// @Description Each entry is graded independently and reported in the result list
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body models.BulkGradeRequest true "Grades"
// @Success 200 {object} response.Envelope
// @Router /submissions/bulk-grade [post]
func (h *GradeHandler) BulkGrade(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.BulkGradeRequest
	if !bindJSON(c, &req, "invalid bulk grade payload") {
		return
	}
	results, err := h.service.BulkGrade(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// MyGrades godoc
// @Summary My grades
// @Description Per-course grade summary for the authenticated student
// @Tags Grades
// @Produce json
// @Param course_id query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Router /grades/mine [get]
func (h *GradeHandler) MyGrades(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	grades, err := h.service.MyGrades(c.Request.Context(), c.Query("course_id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// StudentGrades godoc
// @Summary Student grades
// @Description Teachers see the courses they teach, administrators every course
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Param course_id query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Router /grades/students/{id} [get]
func (h *GradeHandler) StudentGrades(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	grades, err := h.service.StudentGrades(c.Request.Context(), c.Param("id"), c.Query("course_id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

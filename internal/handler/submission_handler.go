package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, assignmentID string, req models.SubmitRequest, claims *models.JWTClaims) (*models.Submission, error)
	Quiz(ctx context.Context, assignmentID string, claims *models.JWTClaims) (*models.QuizView, error)
	SubmitQuiz(ctx context.Context, assignmentID string, req models.QuizSubmitRequest, claims *models.JWTClaims) (*models.QuizResult, error)
	QuizResult(ctx context.Context, assignmentID, submissionID string, claims *models.JWTClaims) (*models.QuizResult, error)
	Mine(ctx context.Context, filter models.SubmissionFilter, claims *models.JWTClaims) ([]models.Submission, *models.Pagination, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Submission, error)
}

// SubmissionHandler serves the student side of assignments and quizzes.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(svc submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: svc}
}

// Submit godoc
// @Summary Submit assignment work
// @Description Files, text or links. Late work is accepted only when the assignment allows it.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.SubmitRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/submit [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.SubmitRequest
	if !bindJSON(c, &req, "invalid submission payload") {
		return
	}
	sub, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// Quiz godoc
// @Summary Get quiz questions
// @Description Returns the questions without correct answers
// @Tags Submissions
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/quiz [get]
func (h *SubmissionHandler) Quiz(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	view, err := h.service.Quiz(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SubmitQuiz godoc
// @Summary Submit quiz answers
// @Description Objective questions are auto-graded on submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.QuizSubmitRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/quiz [post]
func (h *SubmissionHandler) SubmitQuiz(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.QuizSubmitRequest
	if !bindJSON(c, &req, "invalid quiz payload") {
		return
	}
	result, err := h.service.SubmitQuiz(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// QuizResult godoc
// @Summary Quiz result
// @Tags Submissions
// @Produce json
// @Param id path string true "Assignment ID"
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/quiz/results/{submissionId} [get]
func (h *SubmissionHandler) QuizResult(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	submissionID, ok := requireParam(c, "submissionId")
	if !ok {
		return
	}
	result, err := h.service.QuizResult(c.Request.Context(), c.Param("id"), submissionID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Mine godoc
// @Summary List my submissions
// @Tags Submissions
// @Produce json
// @Param course_id query string false "Course ID"
// @Param status query string false "Submission status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions/mine [get]
func (h *SubmissionHandler) Mine(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.SubmissionFilter{
		CourseID: c.Query("course_id"),
		Status:   models.SubmissionStatus(c.Query("status")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.Mine(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

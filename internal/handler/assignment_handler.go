package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type assignmentService interface {
	List(ctx context.Context, filter models.AssignmentFilter, claims *models.JWTClaims) ([]models.Assignment, *models.Pagination, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error)
	Create(ctx context.Context, req models.AssignmentRequest, claims *models.JWTClaims) (*models.Assignment, error)
	Update(ctx context.Context, id string, req models.AssignmentRequest, claims *models.JWTClaims) (*models.Assignment, error)
	Delete(ctx context.Context, id string, claims *models.JWTClaims) error
	Publish(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error)
	Close(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error)
	MarkGraded(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error)
	Clone(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error)
	BulkDelete(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error)
	BulkPublish(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error)
	BulkClose(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error)
	Submissions(ctx context.Context, id string, filter models.SubmissionFilter, claims *models.JWTClaims) (*models.SubmissionList, *models.Pagination, error)
	Statistics(ctx context.Context, id string, claims *models.JWTClaims) (*models.AssignmentStatistics, error)
}

// AssignmentHandler exposes assignment lifecycle endpoints.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(svc assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// List godoc
// @Summary List assignments
// @Description Teachers see their own assignments, students the published work of their groups
// @Tags Assignments
// @Produce json
// @Param course_id query string false "Course ID"
// @Param group_id query string false "Group ID"
// @Param type query string false "Assignment type"
// @Param status query string false "Assignment status"
// @Param search query string false "Search by title or code"
// @Param due_from query string false "Due from (RFC3339 or YYYY-MM-DD)"
// @Param due_to query string false "Due to (RFC3339 or YYYY-MM-DD)"
// @Param sort_by query string false "Sort column"
// @Param sort_order query string false "asc or desc"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.AssignmentFilter{
		CourseID:  c.Query("course_id"),
		GroupID:   c.Query("group_id"),
		Type:      models.AssignmentType(c.Query("type")),
		Status:    models.AssignmentStatus(c.Query("status")),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	var err error
	if filter.DueFrom, err = queryTime(c, "due_from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.DueTo, err = queryEndOfDay(c, "due_to"); err != nil {
		response.Error(c, err)
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
// @Summary Get assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	h.respondAssignment(c, http.StatusOK, h.service.Get)
}

// Create godoc
// @Summary Create assignment
// @Description Creates a draft assignment with a generated ASN code
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body models.AssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.AssignmentRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	assignment, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Update godoc
// @Summary Update assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.AssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.AssignmentRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	assignment, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Delete godoc
// @Summary Delete assignment
// @Description Only assignments without submissions can be deleted
// @Tags Assignments
// @Param id path string true "Assignment ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/publish [post]
func (h *AssignmentHandler) Publish(c *gin.Context) {
	h.respondAssignment(c, http.StatusOK, h.service.Publish)
}

// Close godoc
// @Summary Close assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/close [post]
func (h *AssignmentHandler) Close(c *gin.Context) {
	h.respondAssignment(c, http.StatusOK, h.service.Close)
}

// MarkGraded godoc
// @Summary Mark assignment graded
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/graded [post]
func (h *AssignmentHandler) MarkGraded(c *gin.Context) {
	h.respondAssignment(c, http.StatusOK, h.service.MarkGraded)
}

// Clone godoc
// @Summary Duplicate assignment
// @Description Copies the assignment as a new draft with a fresh code
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/clone [post]
func (h *AssignmentHandler) Clone(c *gin.Context) {
	h.respondAssignment(c, http.StatusCreated, h.service.Clone)
}

// Bulk godoc
// @Summary Bulk assignment action
// @Description Applies delete, publish or close to several assignments
// @Tags Assignments
// @Accept json
// @Produce json
// @Param action path string true "delete, publish or close"
// @Param payload body models.BulkAssignmentRequest true "Assignment IDs"
// @Success 200 {object} response.Envelope
// @Router /assignments/bulk/{action} [post]
func (h *AssignmentHandler) Bulk(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var op func(context.Context, models.BulkAssignmentRequest, *models.JWTClaims) (*models.BulkResult, error)
	switch c.Param("action") {
	case "delete":
		op = h.service.BulkDelete
	case "publish":
		op = h.service.BulkPublish
	case "close":
		op = h.service.BulkClose
	default:
		response.Error(c, validationError("unsupported bulk action"))
		return
	}
	var req models.BulkAssignmentRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := op(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Submissions godoc
// @Summary List assignment submissions
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Param status query string false "Submission status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *AssignmentHandler) Submissions(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.SubmissionFilter{Status: models.SubmissionStatus(c.Query("status"))}
	filter.Page, filter.PageSize = pageParams(c)
	list, pagination, err := h.service.Submissions(c.Request.Context(), c.Param("id"), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pagination)
}

// Statistics godoc
// @Summary Assignment statistics
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/statistics [get]
func (h *AssignmentHandler) Statistics(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	stats, err := h.service.Statistics(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func (h *AssignmentHandler) respondAssignment(c *gin.Context, status int, op func(context.Context, string, *models.JWTClaims) (*models.Assignment, error)) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	assignment, err := op(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, assignment, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type materialService interface {
	List(ctx context.Context, filter models.MaterialFilter, claims *models.JWTClaims) ([]models.Material, *models.Pagination, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Material, error)
	Create(ctx context.Context, req models.MaterialRequest, claims *models.JWTClaims) (*models.Material, error)
	Update(ctx context.Context, id string, req models.MaterialRequest, claims *models.JWTClaims) (*models.Material, error)
	Delete(ctx context.Context, id string, claims *models.JWTClaims) error
	Download(ctx context.Context, id string, claims *models.JWTClaims) (*models.MaterialDownload, error)
	Stats(ctx context.Context, courseID string, claims *models.JWTClaims) (*models.MaterialStats, error)
}

// MaterialHandler exposes course materials.
type MaterialHandler struct {
	service materialService
}

func NewMaterialHandler(svc materialService) *MaterialHandler {
	return &MaterialHandler{service: svc}
}

// List godoc
// @Summary List course materials
// @Tags Materials
// @Produce json
// @Param course_id query string false "Course ID"
// @Param type query string false "Material type"
// @Param folder query string false "Folder"
// @Param search query string false "Title or description search"
// @Param is_published query bool false "Published flag (staff only)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := materialFilter(c)
	filter.CourseID = c.Query("course_id")
	h.list(c, filter, claims)
}

// ListByCourse godoc
// @Summary List materials of a course
// @Tags Materials
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/materials [get]
func (h *MaterialHandler) ListByCourse(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	courseID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	filter := materialFilter(c)
	filter.CourseID = courseID
	h.list(c, filter, claims)
}

func (h *MaterialHandler) list(c *gin.Context, filter models.MaterialFilter, claims *models.JWTClaims) {
	items, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func materialFilter(c *gin.Context) models.MaterialFilter {
	filter := models.MaterialFilter{
		Type:      models.MaterialType(c.Query("type")),
		Folder:    c.Query("folder"),
		Search:    c.Query("search"),
		Published: queryBool(c, "is_published"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter
}

// Get godoc
// @Summary Get material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [get]
func (h *MaterialHandler) Get(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	m, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, m, nil)
}

// Create godoc
// @Summary Create material
// @Tags Materials
// @Accept json
// @Produce json
// @Param payload body models.MaterialRequest true "Material payload"
// @Success 201 {object} response.Envelope
// @Router /materials [post]
func (h *MaterialHandler) Create(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.MaterialRequest
	if !bindJSON(c, &req, "invalid material payload") {
		return
	}
	m, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// Update godoc
// @Summary Update material
// @Tags Materials
// @Accept json
// @Produce json
// @Param id path string true "Material ID"
// @Param payload body models.MaterialRequest true "Material payload"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [put]
func (h *MaterialHandler) Update(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.MaterialRequest
	if !bindJSON(c, &req, "invalid material payload") {
		return
	}
	m, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, m, nil)
}

// Delete godoc
// @Summary Delete material
// @Tags Materials
// @Param id path string true "Material ID"
// @Success 204 {object} response.Envelope
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
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

// Download godoc
// @Summary Get a material's download location
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/download [post]
func (h *MaterialHandler) Download(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	out, err := h.service.Download(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Stats godoc
// @Summary Material statistics
// @Tags Materials
// @Produce json
// @Param course_id query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Router /materials/stats [get]
func (h *MaterialHandler) Stats(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), c.Query("course_id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

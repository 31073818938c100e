package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type courseService interface {
	ListCourses(ctx context.Context, filter models.CourseFilter, claims *models.JWTClaims) ([]models.Course, *models.Pagination, error)
	GetCourse(ctx context.Context, id string, claims *models.JWTClaims) (*models.Course, error)
	CreateCourse(ctx context.Context, req models.CourseRequest, claims *models.JWTClaims) (*models.Course, error)
	UpdateCourse(ctx context.Context, id string, req models.CourseRequest, claims *models.JWTClaims) (*models.Course, error)
	ListGroups(ctx context.Context, filter models.GroupFilter, claims *models.JWTClaims) ([]models.Group, *models.Pagination, error)
	GetGroup(ctx context.Context, id string, claims *models.JWTClaims) (*models.Group, error)
	CreateGroup(ctx context.Context, req models.GroupRequest, claims *models.JWTClaims) (*models.Group, error)
	UpdateGroup(ctx context.Context, id string, req models.GroupRequest, claims *models.JWTClaims) (*models.Group, error)
	ListStudents(ctx context.Context, groupID string, status models.EnrollmentStatus, claims *models.JWTClaims) ([]models.GroupStudent, error)
	Enroll(ctx context.Context, groupID string, req models.EnrollStudentRequest, claims *models.JWTClaims) error
	Withdraw(ctx context.Context, groupID, studentID string, claims *models.JWTClaims) error
}

// CourseHandler exposes course and group endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// ListCourses godoc
// @Summary List courses
// @Description Teachers see their own courses, students the courses they are enrolled in
// @Tags Courses
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param active query bool false "Active filter"
// @Param search query string false "Search by code or name"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) ListCourses(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.CourseFilter{
		TeacherID: c.Query("teacher_id"),
		Active:    queryBool(c, "active"),
		Search:    c.Query("search"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	courses, pagination, err := h.service.ListCourses(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// GetCourse godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) GetCourse(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	course, err := h.service.GetCourse(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CreateCourse godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body models.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.CourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.CreateCourse(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.CourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.UpdateCourse(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ListGroups godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Param course_id query string false "Course ID"
// @Param active query bool false "Active filter"
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *CourseHandler) ListGroups(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.GroupFilter{
		CourseID:  c.Query("course_id"),
		TeacherID: c.Query("teacher_id"),
		Active:    queryBool(c, "active"),
		Search:    c.Query("search"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	groups, pagination, err := h.service.ListGroups(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, pagination)
}

// GetGroup godoc
// @Summary Get group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *CourseHandler) GetGroup(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	group, err := h.service.GetGroup(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// CreateGroup godoc
// @Summary Create group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body models.GroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /groups [post]
func (h *CourseHandler) CreateGroup(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.GroupRequest
	if !bindJSON(c, &req, "invalid group payload") {
		return
	}
	group, err := h.service.CreateGroup(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// UpdateGroup godoc
// @Summary Update group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body models.GroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *CourseHandler) UpdateGroup(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.GroupRequest
	if !bindJSON(c, &req, "invalid group payload") {
		return
	}
	group, err := h.service.UpdateGroup(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// ListStudents godoc
// @Summary List group students
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Param status query string false "Enrollment status (active, inactive, completed)"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/students [get]
func (h *CourseHandler) ListStudents(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	students, err := h.service.ListStudents(c.Request.Context(), c.Param("id"), models.EnrollmentStatus(c.Query("status")), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Enroll godoc
// @Summary Enroll student in group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body models.EnrollStudentRequest true "Enrollment payload"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups/{id}/students [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.EnrollStudentRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	if err := h.service.Enroll(c.Request.Context(), c.Param("id"), req, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Withdraw godoc
// @Summary Withdraw student from group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Param studentId path string true "Student ID"
// @Success 204 {object} response.Envelope
// @Router /groups/{id}/students/{studentId} [delete]
func (h *CourseHandler) Withdraw(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	studentID, ok := requireParam(c, "studentId")
	if !ok {
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), c.Param("id"), studentID, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

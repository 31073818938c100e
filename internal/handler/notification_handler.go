package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, filter models.NotificationFilter, claims *models.JWTClaims) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, claims *models.JWTClaims) (*models.UnreadCount, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Notification, error)
	MarkRead(ctx context.Context, id string, claims *models.JWTClaims) (*models.Notification, error)
	MarkAllRead(ctx context.Context, claims *models.JWTClaims) (*models.InboxUpdate, error)
	Delete(ctx context.Context, id string, claims *models.JWTClaims) error
	DeleteRead(ctx context.Context, claims *models.JWTClaims) (*models.InboxUpdate, error)
	Announce(ctx context.Context, req models.AnnouncementRequest, claims *models.JWTClaims) (*models.InboxUpdate, error)
}

// NotificationHandler serves the caller's inbox.
type NotificationHandler struct {
	service notificationService
}

func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Param unread_only query bool false "Only unread entries"
// @Param type query string false "assignment, grade, payment, attendance, announcement or system"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	filter := models.NotificationFilter{Type: models.NotificationType(c.Query("type"))}
	if unread := queryBool(c, "unread_only"); unread != nil {
		filter.UnreadOnly = *unread
	}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount godoc
// @Summary Unread notification count
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, count, nil)
}

// Get godoc
// @Summary Get notification
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id} [get]
func (h *NotificationHandler) Get(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	n, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, n, nil)
}

// MarkRead godoc
// @Summary Mark notification read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id}/read [put]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	n, err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, n, nil)
}

// MarkAllRead godoc
// @Summary Mark every notification read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-all-read [put]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	res, err := h.service.MarkAllRead(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Delete godoc
// @Summary Delete notification
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
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

// DeleteRead godoc
// @Summary Delete read notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/read [delete]
func (h *NotificationHandler) DeleteRead(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	res, err := h.service.DeleteRead(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Announce godoc
// @Summary Send an announcement to groups
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.AnnouncementRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Router /notifications/announcements [post]
func (h *NotificationHandler) Announce(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.AnnouncementRequest
	if !bindJSON(c, &req, "invalid announcement payload") {
		return
	}
	res, err := h.service.Announce(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

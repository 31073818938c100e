package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

type notificationServiceMock struct {
	filter    models.NotificationFilter
	announced models.AnnouncementRequest
	deleted   string
	err       error
}

func (m *notificationServiceMock) List(ctx context.Context, filter models.NotificationFilter, claims *models.JWTClaims) ([]models.Notification, *models.Pagination, error) {
	m.filter = filter
	return []models.Notification{{ID: "n-1", RecipientID: claims.UserID}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, m.err
}

func (m *notificationServiceMock) UnreadCount(ctx context.Context, claims *models.JWTClaims) (*models.UnreadCount, error) {
	return &models.UnreadCount{Unread: 3}, m.err
}

func (m *notificationServiceMock) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Notification{ID: id}, nil
}

func (m *notificationServiceMock) MarkRead(ctx context.Context, id string, claims *models.JWTClaims) (*models.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Notification{ID: id, Read: true}, nil
}

func (m *notificationServiceMock) MarkAllRead(ctx context.Context, claims *models.JWTClaims) (*models.InboxUpdate, error) {
	return &models.InboxUpdate{Affected: 4}, m.err
}

func (m *notificationServiceMock) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	m.deleted = id
	return m.err
}

func (m *notificationServiceMock) DeleteRead(ctx context.Context, claims *models.JWTClaims) (*models.InboxUpdate, error) {
	return &models.InboxUpdate{Affected: 2}, m.err
}

func (m *notificationServiceMock) Announce(ctx context.Context, req models.AnnouncementRequest, claims *models.JWTClaims) (*models.InboxUpdate, error) {
	m.announced = req
	return &models.InboxUpdate{Affected: 12}, m.err
}

func TestNotificationHandlerListParsesFilter(t *testing.T) {
	svc := &notificationServiceMock{}
	handler := NewNotificationHandler(svc)

	c, w := newGinContext(http.MethodGet, "/notifications?unread_only=true&type=grade&page=2&page_size=5", nil)
	withClaims(c, "student-1", models.RoleStudent)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.filter.UnreadOnly)
	assert.Equal(t, models.NotificationGrade, svc.filter.Type)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)
	body := decodeEnvelope(t, w)
	require.Len(t, body["data"].([]interface{}), 1)
	assert.NotNil(t, body["pagination"])
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	handler := NewNotificationHandler(&notificationServiceMock{})

	c, w := newGinContext(http.MethodGet, "/notifications/unread-count", nil)
	withClaims(c, "student-1", models.RoleStudent)
	handler.UnreadCount(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decodeEnvelope(t, w)["data"].(map[string]interface{})["unread"])
}

func TestNotificationHandlerMarkReadNotFound(t *testing.T) {
	handler := NewNotificationHandler(&notificationServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "notification not found")})

	c, w := newGinContext(http.MethodPut, "/notifications/n-9/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "n-9"}}
	withClaims(c, "student-1", models.RoleStudent)
	handler.MarkRead(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandlerBulkActions(t *testing.T) {
	svc := &notificationServiceMock{}
	handler := NewNotificationHandler(svc)

	c, w := newGinContext(http.MethodPut, "/notifications/mark-all-read", nil)
	withClaims(c, "student-1", models.RoleStudent)
	handler.MarkAllRead(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decodeEnvelope(t, w)["data"].(map[string]interface{})["affected"])

	c, w = newGinContext(http.MethodDelete, "/notifications/read", nil)
	withClaims(c, "student-1", models.RoleStudent)
	handler.DeleteRead(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeEnvelope(t, w)["data"].(map[string]interface{})["affected"])

	c, _ = newGinContext(http.MethodDelete, "/notifications/n-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	withClaims(c, "student-1", models.RoleStudent)
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "n-1", svc.deleted)
}

func TestNotificationHandlerAnnounce(t *testing.T) {
	svc := &notificationServiceMock{}
	handler := NewNotificationHandler(svc)

	payload := `{"group_ids":["group-1"],"title":"Room change","message":"B12 today","priority":"high"}`
	c, w := newGinContext(http.MethodPost, "/notifications/announcements", []byte(payload))
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.Announce(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"group-1"}, svc.announced.GroupIDs)
	assert.Equal(t, models.PriorityHigh, svc.announced.Priority)
	assert.EqualValues(t, 12, decodeEnvelope(t, w)["data"].(map[string]interface{})["affected"])
}

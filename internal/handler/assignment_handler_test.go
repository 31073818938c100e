package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
)

type assignmentServiceMock struct {
	filter     models.AssignmentFilter
	bulkAction string
	bulkIDs    []string
}

func (m *assignmentServiceMock) List(ctx context.Context, filter models.AssignmentFilter, claims *models.JWTClaims) ([]models.Assignment, *models.Pagination, error) {
	m.filter = filter
	return []models.Assignment{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *assignmentServiceMock) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: id}, nil
}

func (m *assignmentServiceMock) Create(ctx context.Context, req models.AssignmentRequest, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: "asn-1", Code: "ASN-00001"}, nil
}

func (m *assignmentServiceMock) Update(ctx context.Context, id string, req models.AssignmentRequest, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: id}, nil
}

func (m *assignmentServiceMock) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	return nil
}

func (m *assignmentServiceMock) Publish(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: id, Status: models.AssignmentPublished}, nil
}

func (m *assignmentServiceMock) Close(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: id, Status: models.AssignmentClosed}, nil
}

func (m *assignmentServiceMock) MarkGraded(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: id}, nil
}

func (m *assignmentServiceMock) Clone(ctx context.Context, id string, claims *models.JWTClaims) (*models.Assignment, error) {
	return &models.Assignment{ID: "asn-2", Code: "ASN-00002"}, nil
}

func (m *assignmentServiceMock) BulkDelete(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error) {
	return m.bulk("delete", req)
}

func (m *assignmentServiceMock) BulkPublish(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error) {
	return m.bulk("publish", req)
}

func (m *assignmentServiceMock) BulkClose(ctx context.Context, req models.BulkAssignmentRequest, claims *models.JWTClaims) (*models.BulkResult, error) {
	return m.bulk("close", req)
}

func (m *assignmentServiceMock) bulk(action string, req models.BulkAssignmentRequest) (*models.BulkResult, error) {
	m.bulkAction, m.bulkIDs = action, req.AssignmentIDs
	done := map[string]string{"delete": models.BulkDeleted, "publish": models.BulkPublished, "close": models.BulkClosed}[action]
	return &models.BulkResult{Action: done, Succeeded: len(req.AssignmentIDs), TotalRequested: len(req.AssignmentIDs)}, nil
}

func (m *assignmentServiceMock) Submissions(ctx context.Context, id string, filter models.SubmissionFilter, claims *models.JWTClaims) (*models.SubmissionList, *models.Pagination, error) {
	return &models.SubmissionList{}, &models.Pagination{}, nil
}

func (m *assignmentServiceMock) Statistics(ctx context.Context, id string, claims *models.JWTClaims) (*models.AssignmentStatistics, error) {
	return &models.AssignmentStatistics{AssignmentID: id}, nil
}

func TestAssignmentHandlerListParsesFilter(t *testing.T) {
	svc := &assignmentServiceMock{}
	handler := NewAssignmentHandler(svc)

	c, w := newGinContext(http.MethodGet, "/assignments?course_id=course-1&status=published&due_from=2024-03-01&due_to=2024-03-31&sort_by=due_date", nil)
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "course-1", svc.filter.CourseID)
	assert.Equal(t, models.AssignmentPublished, svc.filter.Status)
	assert.Equal(t, "due_date", svc.filter.SortBy)
	require.NotNil(t, svc.filter.DueFrom)
	require.NotNil(t, svc.filter.DueTo)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), *svc.filter.DueTo)
}

func TestAssignmentHandlerListRejectsBadDate(t *testing.T) {
	handler := NewAssignmentHandler(&assignmentServiceMock{})

	c, w := newGinContext(http.MethodGet, "/assignments?due_from=yesterday", nil)
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignmentHandlerBulk(t *testing.T) {
	svc := &assignmentServiceMock{}
	handler := NewAssignmentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/assignments/bulk/publish", []byte(`{"assignment_ids":["a-1","a-2"]}`))
	c.Params = gin.Params{{Key: "action", Value: "publish"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.Bulk(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "publish", svc.bulkAction)
	assert.Equal(t, []string{"a-1", "a-2"}, svc.bulkIDs)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["published"])
	assert.EqualValues(t, 2, data["total_requested"])
	assert.Equal(t, []interface{}{}, data["failed"])
	assert.NotContains(t, data, "succeeded")

	c, w = newGinContext(http.MethodPost, "/assignments/bulk/archive", []byte(`{"assignment_ids":["a-1"]}`))
	c.Params = gin.Params{{Key: "action", Value: "archive"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.Bulk(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignmentHandlerCloneReturnsCreated(t *testing.T) {
	handler := NewAssignmentHandler(&assignmentServiceMock{})

	c, w := newGinContext(http.MethodPost, "/assignments/asn-1/clone", nil)
	c.Params = gin.Params{{Key: "id", Value: "asn-1"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.Clone(c)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "ASN-00002", data["code"])
}

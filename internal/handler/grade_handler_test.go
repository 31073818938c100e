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

type gradeServiceMock struct {
	graded    models.GradeRequest
	bulk      models.BulkGradeRequest
	studentID string
	courseID  string
	waivedFor string
	err       error
}

func (m *gradeServiceMock) Grade(ctx context.Context, submissionID string, req models.GradeRequest, claims *models.JWTClaims) (*models.Submission, error) {
	m.graded = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Submission{ID: submissionID, Status: models.SubmissionGraded}, nil
}

func (m *gradeServiceMock) Return(ctx context.Context, submissionID string, req models.ReturnSubmissionRequest, claims *models.JWTClaims) (*models.Submission, error) {
	return &models.Submission{ID: submissionID, Status: models.SubmissionReturned}, m.err
}

func (m *gradeServiceMock) WaivePenalty(ctx context.Context, submissionID string, claims *models.JWTClaims) (*models.Submission, error) {
	m.waivedFor = submissionID
	return &models.Submission{ID: submissionID, PenaltyWaived: true}, m.err
}

func (m *gradeServiceMock) BulkGrade(ctx context.Context, req models.BulkGradeRequest, claims *models.JWTClaims) ([]models.BulkGradeResult, error) {
	m.bulk = req
	results := make([]models.BulkGradeResult, 0, len(req.Grades))
	for _, item := range req.Grades {
		results = append(results, models.BulkGradeResult{SubmissionID: item.SubmissionID, Success: true})
	}
	return results, m.err
}

func (m *gradeServiceMock) MyGrades(ctx context.Context, courseID string, claims *models.JWTClaims) ([]models.CourseGrade, error) {
	m.courseID = courseID
	return []models.CourseGrade{{CourseID: "course-1", StudentID: claims.UserID, Grade: 87.5, LetterGrade: "B"}}, m.err
}

func (m *gradeServiceMock) StudentGrades(ctx context.Context, studentID, courseID string, claims *models.JWTClaims) ([]models.CourseGrade, error) {
	m.studentID, m.courseID = studentID, courseID
	return []models.CourseGrade{}, m.err
}

func TestGradeHandlerGrade(t *testing.T) {
	svc := &gradeServiceMock{}
	handler := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodPost, "/submissions/sub-1/grade", []byte(`{"points_earned":18.5,"feedback":"Good work"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.Grade(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.graded.PointsEarned)
	assert.Equal(t, 18.5, *svc.graded.PointsEarned)
	assert.Equal(t, "Good work", svc.graded.Feedback)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "graded", data["status"])
}

func TestGradeHandlerGradeForbidden(t *testing.T) {
	handler := NewGradeHandler(&gradeServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "not your assignment")})

	c, w := newGinContext(http.MethodPost, "/submissions/sub-1/grade", []byte(`{"points_earned":5}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	withClaims(c, "teacher-2", models.RoleTeacher)
	handler.Grade(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGradeHandlerBulkGrade(t *testing.T) {
	svc := &gradeServiceMock{}
	handler := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodPost, "/submissions/bulk-grade", []byte(`{"grades":[{"submission_id":"sub-1","points_earned":7},{"submission_id":"sub-2","points_earned":9}]}`))
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.BulkGrade(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.bulk.Grades, 2)
	assert.Equal(t, "sub-2", svc.bulk.Grades[1].SubmissionID)
	require.NotNil(t, svc.bulk.Grades[1].PointsEarned)
	assert.Equal(t, 9.0, *svc.bulk.Grades[1].PointsEarned)
	data := decodeEnvelope(t, w)["data"].([]interface{})
	assert.Len(t, data, 2)
}

func TestGradeHandlerWaivePenalty(t *testing.T) {
	svc := &gradeServiceMock{}
	handler := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodPost, "/submissions/sub-3/waive-penalty", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-3"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.WaivePenalty(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sub-3", svc.waivedFor)
}

func TestGradeHandlerGradeViews(t *testing.T) {
	svc := &gradeServiceMock{}
	handler := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodGet, "/grades/mine?course_id=course-1", nil)
	withClaims(c, "student-1", models.RoleStudent)
	handler.MyGrades(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "course-1", svc.courseID)
	grades := decodeEnvelope(t, w)["data"].([]interface{})
	require.Len(t, grades, 1)
	assert.Equal(t, "B", grades[0].(map[string]interface{})["letter_grade"])

	c, w = newGinContext(http.MethodGet, "/grades/students/student-4", nil)
	c.Params = gin.Params{{Key: "id", Value: "student-4"}}
	withClaims(c, "teacher-1", models.RoleTeacher)
	handler.StudentGrades(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-4", svc.studentID)
	assert.Empty(t, svc.courseID)
}

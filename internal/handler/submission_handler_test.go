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

type submissionServiceMock struct {
	submitted    models.SubmitRequest
	quizAnswers  []models.QuizAnswerInput
	filter       models.SubmissionFilter
	resultLookup [2]string
	err          error
}

func (m *submissionServiceMock) Submit(ctx context.Context, assignmentID string, req models.SubmitRequest, claims *models.JWTClaims) (*models.Submission, error) {
	m.submitted = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Submission{ID: "sub-1", AssignmentID: assignmentID, StudentID: claims.UserID}, nil
}

func (m *submissionServiceMock) Quiz(ctx context.Context, assignmentID string, claims *models.JWTClaims) (*models.QuizView, error) {
	return &models.QuizView{AssignmentID: assignmentID, Title: "Unit 1 quiz"}, m.err
}

func (m *submissionServiceMock) SubmitQuiz(ctx context.Context, assignmentID string, req models.QuizSubmitRequest, claims *models.JWTClaims) (*models.QuizResult, error) {
	m.quizAnswers = req.Answers
	return &models.QuizResult{SubmissionID: "sub-2", AssignmentID: assignmentID, Percentage: 80}, m.err
}

func (m *submissionServiceMock) QuizResult(ctx context.Context, assignmentID, submissionID string, claims *models.JWTClaims) (*models.QuizResult, error) {
	m.resultLookup = [2]string{assignmentID, submissionID}
	return &models.QuizResult{SubmissionID: submissionID}, m.err
}

func (m *submissionServiceMock) Mine(ctx context.Context, filter models.SubmissionFilter, claims *models.JWTClaims) ([]models.Submission, *models.Pagination, error) {
	m.filter = filter
	return []models.Submission{}, &models.Pagination{}, m.err
}

func (m *submissionServiceMock) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Submission, error) {
	return &models.Submission{ID: id}, m.err
}

func TestSubmissionHandlerSubmit(t *testing.T) {
	svc := &submissionServiceMock{}
	handler := NewSubmissionHandler(svc)

	c, w := newGinContext(http.MethodPost, "/assignments/asn-1/submit", []byte(`{"submission_type":"text","text_content":"my essay"}`))
	c.Params = gin.Params{{Key: "id", Value: "asn-1"}}
	withClaims(c, "student-1", models.RoleStudent)
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "my essay", svc.submitted.TextContent)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "student-1", data["student_id"])
}

func TestSubmissionHandlerSubmitPastDeadline(t *testing.T) {
	handler := NewSubmissionHandler(&submissionServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "submission deadline has passed")})

	c, w := newGinContext(http.MethodPost, "/assignments/asn-1/submit", []byte(`{"text_content":"late"}`))
	c.Params = gin.Params{{Key: "id", Value: "asn-1"}}
	withClaims(c, "student-1", models.RoleStudent)
	handler.Submit(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "submission deadline has passed", body["error"].(map[string]interface{})["message"])
}

func TestSubmissionHandlerSubmitQuiz(t *testing.T) {
	svc := &submissionServiceMock{}
	handler := NewSubmissionHandler(svc)

	c, w := newGinContext(http.MethodPost, "/assignments/asn-1/quiz", []byte(`{"answers":[{"question_index":0,"selected_option_index":2},{"question_index":1,"answer":"Cairo"}]}`))
	c.Params = gin.Params{{Key: "id", Value: "asn-1"}}
	withClaims(c, "student-1", models.RoleStudent)
	handler.SubmitQuiz(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, svc.quizAnswers, 2)
	require.NotNil(t, svc.quizAnswers[0].SelectedOptionIndex)
	assert.Equal(t, 2, *svc.quizAnswers[0].SelectedOptionIndex)
	assert.Equal(t, "Cairo", svc.quizAnswers[1].Answer)
}

func TestSubmissionHandlerQuizResultParams(t *testing.T) {
	svc := &submissionServiceMock{}
	handler := NewSubmissionHandler(svc)

	c, w := newGinContext(http.MethodGet, "/assignments/asn-1/quiz/results/sub-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "asn-1"}, {Key: "submissionId", Value: "sub-9"}}
	withClaims(c, "student-1", models.RoleStudent)
	handler.QuizResult(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]string{"asn-1", "sub-9"}, svc.resultLookup)
}

func TestSubmissionHandlerMineFilter(t *testing.T) {
	svc := &submissionServiceMock{}
	handler := NewSubmissionHandler(svc)

	c, w := newGinContext(http.MethodGet, "/submissions/mine?course_id=course-1&status=graded", nil)
	withClaims(c, "student-1", models.RoleStudent)
	handler.Mine(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "course-1", svc.filter.CourseID)
	assert.Equal(t, models.SubmissionGraded, svc.filter.Status)
	assert.Equal(t, 1, svc.filter.Page)
	assert.Equal(t, 20, svc.filter.PageSize)
}

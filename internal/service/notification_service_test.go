package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/events"
)

type fakeNotificationRepo struct {
	items     []models.Notification
	createErr error
}

func (f *fakeNotificationRepo) CreateBatch(ctx context.Context, items []models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	for i := range items {
		items[i].ID = "n-" + items[i].RecipientID + "-" + string(items[i].Type)
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range f.items {
		if n.RecipientID != filter.RecipientID || (filter.UnreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (f *fakeNotificationRepo) find(id, recipientID string) *models.Notification {
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].RecipientID == recipientID {
			return &f.items[i]
		}
	}
	return nil
}

func (f *fakeNotificationRepo) FindForRecipient(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	n := f.find(id, recipientID)
	if n == nil {
		return nil, sql.ErrNoRows
	}
	copy := *n
	return &copy, nil
}

func (f *fakeNotificationRepo) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	count := 0
	for _, n := range f.items {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	n := f.find(id, recipientID)
	if n == nil {
		return sql.ErrNoRows
	}
	n.Read, n.ReadAt = true, &at
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	var affected int64
	for i := range f.items {
		if f.items[i].RecipientID == recipientID && !f.items[i].Read {
			f.items[i].Read, f.items[i].ReadAt = true, &at
			affected++
		}
	}
	return affected, nil
}

func (f *fakeNotificationRepo) Delete(ctx context.Context, id, recipientID string) error {
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].RecipientID == recipientID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeNotificationRepo) DeleteRead(ctx context.Context, recipientID string) (int64, error) {
	var kept []models.Notification
	var removed int64
	for _, n := range f.items {
		if n.RecipientID == recipientID && n.Read {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	f.items = kept
	return removed, nil
}

func newNotificationFixture() (*NotificationService, *fakeNotificationRepo) {
	groups := &fakeGroupRepo{
		groups: map[string]*models.Group{
			"group-1": {ID: "group-1", CourseID: "course-1", TeacherID: "teacher-1"},
			"group-2": {ID: "group-2", CourseID: "course-1", TeacherID: "teacher-2"},
		},
		rosters: map[string]map[string]models.EnrollmentStatus{
			"group-1": {"student-1": models.EnrollmentActive, "student-2": models.EnrollmentActive, "student-3": models.EnrollmentInactive},
			"group-2": {"student-2": models.EnrollmentActive, "student-4": models.EnrollmentActive},
		},
	}
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, groups, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, repo
}

func recipientsOf(items []models.Notification) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.RecipientID)
	}
	sort.Strings(out)
	return out
}

func TestNotificationHandleAssignmentPublishedReachesActiveStudentsOnce(t *testing.T) {
	svc, repo := newNotificationFixture()
	due := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)

	err := svc.HandleEvent(context.Background(), events.AssignmentPublished, map[string]interface{}{
		"assignment_id": "a-1",
		"title":         "Essay",
		"group_ids":     []string{"group-1", "group-2"},
		"due_date":      due,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"student-1", "student-2", "student-4"}, recipientsOf(repo.items))

	n := repo.items[0]
	assert.Equal(t, models.NotificationAssignment, n.Type)
	assert.Equal(t, "New assignment: Essay", n.Title)
	assert.Contains(t, n.Message, "2024-06-10 23:59")
	require.NotNil(t, n.EntityID)
	assert.Equal(t, "a-1", *n.EntityID)
	assert.Equal(t, "assignment", *n.EntityType)
}

func TestNotificationHandleGradeAndPayment(t *testing.T) {
	svc, repo := newNotificationFixture()
	pct, letter := 87.5, "B+"

	require.NoError(t, svc.HandleEvent(context.Background(), events.SubmissionGraded, map[string]interface{}{
		"submission_id":    "sub-1",
		"student_id":       "student-1",
		"final_percentage": &pct,
		"letter_grade":     &letter,
	}))
	require.NoError(t, svc.HandleEvent(context.Background(), events.PaymentRecorded, map[string]interface{}{
		"payment_id": "pay-1",
		"student_id": "student-1",
		"amount":     250.0,
		"currency":   "EGP",
		"status":     models.PaymentPaid,
	}))
	require.Len(t, repo.items, 2)

	grade := repo.items[0]
	assert.Equal(t, models.NotificationGrade, grade.Type)
	assert.Equal(t, models.PriorityHigh, grade.Priority)
	assert.Equal(t, "Your submission has been graded: 87.50% (B+).", grade.Message)
	assert.Equal(t, "/submissions/sub-1", grade.ActionURL)

	payment := repo.items[1]
	assert.Equal(t, "We received your payment of 250.00 EGP.", payment.Message)
	assert.Equal(t, "paid", payment.Metadata["status"])
}

func TestNotificationHandleEventIgnoresUnknownAndMalformed(t *testing.T) {
	svc, repo := newNotificationFixture()

	require.NoError(t, svc.HandleEvent(context.Background(), events.QuizSubmitted, map[string]interface{}{"student_id": "student-1"}))
	require.NoError(t, svc.HandleEvent(context.Background(), events.SubmissionGraded, "not a map"))
	require.NoError(t, svc.HandleEvent(context.Background(), events.SubmissionGraded, map[string]interface{}{}))
	assert.Empty(t, repo.items)

	repo.createErr = errors.New("db down")
	assert.Error(t, svc.HandleEvent(context.Background(), events.PaymentRecorded, map[string]interface{}{"student_id": "student-1", "amount": 10.0}))
}

func TestNotificationInboxIsScopedToCaller(t *testing.T) {
	svc, repo := newNotificationFixture()
	repo.items = []models.Notification{
		{ID: "n-1", RecipientID: "student-1", Type: models.NotificationGrade},
		{ID: "n-2", RecipientID: "student-1", Type: models.NotificationPayment},
		{ID: "n-3", RecipientID: "student-2", Type: models.NotificationGrade},
	}
	ctx := context.Background()
	me := studentClaims("student-1")

	items, page, err := svc.List(ctx, models.NotificationFilter{RecipientID: "student-2"}, me)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.TotalCount)

	_, err = svc.Get(ctx, "n-3", me)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	read, err := svc.MarkRead(ctx, "n-1", me)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	count, err := svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 1, count.Unread)

	all, err := svc.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.EqualValues(t, 1, all.Affected)

	cleared, err := svc.DeleteRead(ctx, me)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cleared.Affected)
	assert.Len(t, repo.items, 1)

	err = svc.Delete(ctx, "n-3", me)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationAnnounceRequiresOwnedGroups(t *testing.T) {
	svc, repo := newNotificationFixture()
	ctx := context.Background()
	req := models.AnnouncementRequest{GroupIDs: []string{"group-1"}, Title: "Room change", Message: "We meet in B12 today."}

	_, err := svc.Announce(ctx, req, studentClaims("student-1"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Announce(ctx, models.AnnouncementRequest{GroupIDs: []string{"group-2"}, Title: "x", Message: "y"}, teacherClaims("teacher-1"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	res, err := svc.Announce(ctx, req, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Affected)
	assert.Equal(t, []string{"student-1", "student-2"}, recipientsOf(repo.items))
	assert.Equal(t, models.PriorityNormal, repo.items[0].Priority)
	require.NotNil(t, repo.items[0].SenderID)
	assert.Equal(t, "teacher-1", *repo.items[0].SenderID)
}

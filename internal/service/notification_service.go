package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/events"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

type notificationRepository interface {
	CreateBatch(ctx context.Context, items []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	FindForRecipient(ctx context.Context, id, recipientID string) (*models.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
	DeleteRead(ctx context.Context, recipientID string) (int64, error)
}

type rosterReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	ListStudents(ctx context.Context, groupID string, status models.EnrollmentStatus) ([]models.GroupStudent, error)
}

// NotificationService keeps every user's in-app inbox. Entries are written
// from domain events and staff announcements.
type NotificationService struct {
	repo      notificationRepository
	groups    rosterReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewNotificationService(repo notificationRepository, groups rosterReader, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, groups: groups, validator: validate, logger: logger, now: time.Now}
}

// List pages through the caller's own inbox.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter, claims *models.JWTClaims) ([]models.Notification, *models.Pagination, error) {
	filter.RecipientID = claims.UserID
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, claims *models.JWTClaims) (*models.UnreadCount, error) {
	n, err := s.repo.UnreadCount(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return &models.UnreadCount{Unread: n}, nil
}

// Get returns one inbox entry. Other users' entries are reported as missing.
func (s *NotificationService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Notification, error) {
	n, err := s.repo.FindForRecipient(ctx, id, claims.UserID)
	if err != nil {
		return nil, notificationError(err, "failed to load notification")
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string, claims *models.JWTClaims) (*models.Notification, error) {
	if err := s.repo.MarkRead(ctx, id, claims.UserID, s.now().UTC()); err != nil {
		return nil, notificationError(err, "failed to mark notification read")
	}
	return s.Get(ctx, id, claims)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, claims *models.JWTClaims) (*models.InboxUpdate, error) {
	n, err := s.repo.MarkAllRead(ctx, claims.UserID, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return &models.InboxUpdate{Affected: n}, nil
}

func (s *NotificationService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if err := s.repo.Delete(ctx, id, claims.UserID); err != nil {
		return notificationError(err, "failed to delete notification")
	}
	return nil
}

// DeleteRead clears every entry the caller has already read.
func (s *NotificationService) DeleteRead(ctx context.Context, claims *models.JWTClaims) (*models.InboxUpdate, error) {
	n, err := s.repo.DeleteRead(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notifications")
	}
	return &models.InboxUpdate{Affected: n}, nil
}

// Announce sends one entry to every active student of the groups. Teachers
// may only address their own groups.
func (s *NotificationService) Announce(ctx context.Context, req models.AnnouncementRequest, claims *models.JWTClaims) (*models.InboxUpdate, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement")
	}
	for _, id := range req.GroupIDs {
		group, err := s.groups.FindByID(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
		case !claims.Role.IsAdmin() && group.TeacherID != claims.UserID:
			return nil, appErrors.Clone(appErrors.ErrForbidden, "group belongs to another teacher")
		}
	}
	recipients, err := s.activeStudents(ctx, req.GroupIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group rosters")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	sender := claims.UserID
	items := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		items = append(items, models.Notification{
			RecipientID: id,
			SenderID:    &sender,
			Type:        models.NotificationAnnouncement,
			Title:       req.Title,
			Message:     req.Message,
			Priority:    priority,
			ActionURL:   req.ActionURL,
		})
	}
	if err := s.repo.CreateBatch(ctx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send announcement")
	}
	s.logger.Info("announcement sent", zap.String("sender_id", sender), zap.Int("recipients", len(items)))
	return &models.InboxUpdate{Affected: int64(len(items))}, nil
}

// HandleEvent turns a published domain event into inbox entries. It is
// registered with events.WithHandlers; unknown events are ignored.
func (s *NotificationService) HandleEvent(ctx context.Context, event string, data interface{}) error {
	payload, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	var items []models.Notification
	switch event {
	case events.AssignmentPublished:
		groupIDs, _ := payload["group_ids"].([]string)
		students, err := s.activeStudents(ctx, groupIDs)
		if err != nil {
			return err
		}
		title := "New assignment: " + payloadString(payload, "title")
		message := "A new assignment was published for your group."
		if due, ok := payload["due_date"].(time.Time); ok && !due.IsZero() {
			message = fmt.Sprintf("A new assignment is due on %s.", due.UTC().Format("2006-01-02 15:04 MST"))
		}
		assignmentID := payloadString(payload, "assignment_id")
		for _, id := range students {
			n := models.Notification{RecipientID: id, Type: models.NotificationAssignment, Title: title, Message: message, Priority: models.PriorityNormal,
				ActionURL: "/assignments/" + assignmentID}
			items = append(items, *n.About("assignment", assignmentID))
		}
	case events.SubmissionGraded:
		studentID := payloadString(payload, "student_id")
		if studentID == "" {
			return nil
		}
		message := "Your submission has been graded."
		if pct, ok := payloadFloat(payload, "final_percentage"); ok {
			message = fmt.Sprintf("Your submission has been graded: %.2f%%", pct)
			if letter := payloadString(payload, "letter_grade"); letter != "" {
				message += " (" + letter + ")"
			}
			message += "."
		}
		n := models.Notification{RecipientID: studentID, Type: models.NotificationGrade, Title: "Submission graded", Message: message, Priority: models.PriorityHigh,
			ActionURL: "/submissions/" + payloadString(payload, "submission_id")}
		items = append(items, *n.About("submission", payloadString(payload, "submission_id")))
	case events.PaymentRecorded:
		studentID := payloadString(payload, "student_id")
		if studentID == "" {
			return nil
		}
		amount, _ := payloadFloat(payload, "amount")
		n := models.Notification{RecipientID: studentID, Type: models.NotificationPayment, Title: "Payment received",
			Message:  fmt.Sprintf("We received your payment of %.2f %s.", amount, payloadString(payload, "currency")),
			Priority: models.PriorityNormal,
			Metadata: models.NotificationMetadata{"amount": amount, "status": payloadString(payload, "status")}}
		items = append(items, *n.About("payment", payloadString(payload, "payment_id")))
	default:
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	if err := s.repo.CreateBatch(ctx, items); err != nil {
		s.logger.Warn("inbox entries not stored", zap.String("event", event), zap.Error(err))
		return err
	}
	return nil
}

// activeStudents returns each active student of groupIDs once.
func (s *NotificationService) activeStudents(ctx context.Context, groupIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, groupID := range groupIDs {
		roster, err := s.groups.ListStudents(ctx, groupID, models.EnrollmentActive)
		if err != nil {
			return nil, err
		}
		for _, st := range roster {
			if !seen[st.StudentID] {
				seen[st.StudentID] = true
				out = append(out, st.StudentID)
			}
		}
	}
	return out, nil
}

func notificationError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

func payloadString(payload map[string]interface{}, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case *string:
		return strings.TrimSpace(derefString(v))
	case nil:
		return ""
	}
	if rv := reflect.ValueOf(payload[key]); rv.Kind() == reflect.String {
		return strings.TrimSpace(rv.String())
	}
	return ""
}

func payloadFloat(payload map[string]interface{}, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case *float64:
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

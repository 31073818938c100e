package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const notificationColumns = `id, recipient_id, sender_id, type, title, message, priority, entity_type, entity_id, action_url, metadata, read, read_at, created_at`

// NotificationRepository stores the per-user inbox.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts items in one transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, items []models.Notification) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const query = `INSERT INTO notifications (` + notificationColumns + `)
VALUES (:id, :recipient_id, :sender_id, :type, :title, :message, :priority, :entity_type, :entity_id, :action_url, :metadata, :read, :read_at, :created_at)`
	for i := range items {
		n := &items[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.Priority == "" {
			n.Priority = models.PriorityNormal
		}
		if _, err := tx.NamedExecContext(ctx, query, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification batch: %w", err)
	}
	return nil
}

func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var where whereBuilder
	where.add("recipient_id = ?", filter.RecipientID)
	if filter.UnreadOnly {
		where.addRaw("read = FALSE")
	}
	if filter.Type != "" {
		where.add("type = ?", filter.Type)
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	items := []models.Notification{}
	query := fmt.Sprintf("SELECT %s FROM notifications%s ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, where.clause(), limit, offset)
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// FindForRecipient returns sql.ErrNoRows when id belongs to someone else.
func (r *NotificationRepository) FindForRecipient(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1 AND recipient_id = $2", id, recipientID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return &n, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE", recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead returns sql.ErrNoRows when the recipient has no such entry.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	const query = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND recipient_id = $2`
	n, err := r.affected(ctx, "mark notification read", query, id, recipientID, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE, read_at = $2 WHERE recipient_id = $1 AND read = FALSE`
	return r.affected(ctx, "mark notifications read", query, recipientID, at)
}

// Delete returns sql.ErrNoRows when the recipient has no such entry.
func (r *NotificationRepository) Delete(ctx context.Context, id, recipientID string) error {
	n, err := r.affected(ctx, "delete notification", "DELETE FROM notifications WHERE id = $1 AND recipient_id = $2", id, recipientID)
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *NotificationRepository) DeleteRead(ctx context.Context, recipientID string) (int64, error) {
	return r.affected(ctx, "delete read notifications", "DELETE FROM notifications WHERE recipient_id = $1 AND read = TRUE", recipientID)
}

func (r *NotificationRepository) affected(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

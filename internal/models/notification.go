package models

import (
	"database/sql/driver"
	"time"
)

// NotificationType groups inbox entries by what caused them.
type NotificationType string

const (
	NotificationAssignment   NotificationType = "assignment"
	NotificationGrade        NotificationType = "grade"
	NotificationPayment      NotificationType = "payment"
	NotificationAttendance   NotificationType = "attendance"
	NotificationAnnouncement NotificationType = "announcement"
	NotificationSystem       NotificationType = "system"
)

// NotificationPriority orders entries for display.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationMetadata is persisted as JSONB.
type NotificationMetadata map[string]interface{}

// Value implements driver.Valuer.
func (m NotificationMetadata) Value() (driver.Value, error) {
	if m == nil {
		m = NotificationMetadata{}
	}
	return jsonValue(m)
}

// Scan implements sql.Scanner.
func (m *NotificationMetadata) Scan(value interface{}) error {
	return jsonScan(value, m)
}

// Notification is one entry of a user's in-app inbox.
type Notification struct {
	ID          string               `db:"id" json:"id"`
	RecipientID string               `db:"recipient_id" json:"recipient_id"`
	SenderID    *string              `db:"sender_id" json:"sender_id,omitempty"`
	Type        NotificationType     `db:"type" json:"type"`
	Title       string               `db:"title" json:"title"`
	Message     string               `db:"message" json:"message"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	EntityType  *string              `db:"entity_type" json:"entity_type,omitempty"`
	EntityID    *string              `db:"entity_id" json:"entity_id,omitempty"`
	ActionURL   string               `db:"action_url" json:"action_url,omitempty"`
	Metadata    NotificationMetadata `db:"metadata" json:"metadata,omitempty"`
	Read        bool                 `db:"read" json:"read"`
	ReadAt      *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

// About links the notification to the record it concerns.
func (n *Notification) About(entityType, entityID string) *Notification {
	if entityID != "" {
		n.EntityType, n.EntityID = &entityType, &entityID
	}
	return n
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Type        NotificationType
	Page        int
	PageSize    int
}

// UnreadCount is the badge counter of the inbox.
type UnreadCount struct {
	Unread int `json:"unread"`
}

// InboxUpdate reports how many entries a bulk inbox action touched.
type InboxUpdate struct {
	Affected int64 `json:"affected"`
}

// AnnouncementRequest sends a staff announcement to the students of groups.
type AnnouncementRequest struct {
	GroupIDs  []string             `json:"group_ids" validate:"required,min=1,max=50,dive,required"`
	Title     string               `json:"title" validate:"required,max=200"`
	Message   string               `json:"message" validate:"required,max=500"`
	Priority  NotificationPriority `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ActionURL string               `json:"action_url" validate:"omitempty,max=500"`
}

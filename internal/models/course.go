package models

import (
	"database/sql/driver"
	"time"
)

// Course is a subject offering owned by a teacher.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	TeacherID string
	StudentID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
}

// CourseRequest is the create/update payload.
type CourseRequest struct {
	Code        string  `json:"code" validate:"required,max=30"`
	Name        string  `json:"name" validate:"required,max=150"`
	Description string  `json:"description" validate:"max=2000"`
	TeacherID   *string `json:"teacher_id"`
	Active      *bool   `json:"active"`
}

// GroupSession is one weekly slot of a group's timetable.
type GroupSession struct {
	Day       string `json:"day" validate:"required,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	Room      string `json:"room,omitempty"`
}

// GroupSchedule is persisted as JSONB.
type GroupSchedule []GroupSession

// Value implements driver.Valuer.
func (s GroupSchedule) Value() (driver.Value, error) {
	if s == nil {
		s = GroupSchedule{}
	}
	return jsonValue([]GroupSession(s))
}

// Scan implements sql.Scanner.
func (s *GroupSchedule) Scan(value interface{}) error {
	return jsonScan(value, (*[]GroupSession)(s))
}

// Group is a cohort of students attending a course together.
type Group struct {
	ID              string        `db:"id" json:"id"`
	Code            string        `db:"code" json:"code"`
	Name            string        `db:"name" json:"name"`
	CourseID        string        `db:"course_id" json:"course_id"`
	CourseName      string        `db:"course_name" json:"course_name,omitempty"`
	TeacherID       string        `db:"teacher_id" json:"teacher_id"`
	Capacity        int           `db:"capacity" json:"capacity"`
	PricePerSession float64       `db:"price_per_session" json:"price_per_session"`
	Currency        string        `db:"currency" json:"currency"`
	Schedule        GroupSchedule `db:"schedule" json:"schedule"`
	Active          bool          `db:"active" json:"active"`
	StudentCount    int           `db:"student_count" json:"student_count"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// GroupFilter narrows group listings.
type GroupFilter struct {
	CourseID  string
	TeacherID string
	StudentID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
}

// GroupRequest is the create/update payload.
type GroupRequest struct {
	Code            string         `json:"code" validate:"required,max=30"`
	Name            string         `json:"name" validate:"required,max=150"`
	CourseID        string         `json:"course_id" validate:"required"`
	Capacity        int            `json:"capacity" validate:"gte=0,lte=500"`
	PricePerSession float64        `json:"price_per_session" validate:"gte=0"`
	Currency        string         `json:"currency" validate:"omitempty,oneof=EGP USD EUR SAR AED"`
	Schedule        []GroupSession `json:"schedule" validate:"dive"`
	Active          *bool          `json:"active"`
}

// EnrollmentStatus tracks a student's membership of a group.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentInactive  EnrollmentStatus = "inactive"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

// GroupStudent is a roster row.
type GroupStudent struct {
	GroupID    string           `db:"group_id" json:"group_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	FullName   string           `db:"full_name" json:"full_name"`
	Email      string           `db:"email" json:"email"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollStudentRequest adds a student to a group.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

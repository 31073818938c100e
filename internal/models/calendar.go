package models

import "time"

// EventAudience restricts who sees a school event.
type EventAudience string

const (
	AudienceAll      EventAudience = "all"
	AudienceTeachers EventAudience = "teachers"
	AudienceStudents EventAudience = "students"
)

// AudiencesFor returns the audiences visible to role.
func AudiencesFor(role UserRole) []EventAudience {
	switch {
	case role.IsAdmin():
		return []EventAudience{AudienceAll, AudienceTeachers, AudienceStudents}
	case role == RoleTeacher:
		return []EventAudience{AudienceAll, AudienceTeachers}
	default:
		return []EventAudience{AudienceAll, AudienceStudents}
	}
}

// CalendarEvent is a school-wide calendar entry such as a holiday or exam week.
type CalendarEvent struct {
	ID          string        `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	EventType   string        `db:"event_type" json:"event_type"`
	StartDate   time.Time     `db:"start_date" json:"start_date"`
	EndDate     time.Time     `db:"end_date" json:"end_date"`
	AllDay      bool          `db:"all_day" json:"all_day"`
	Audience    EventAudience `db:"audience" json:"audience"`
	Location    *string       `db:"location" json:"location,omitempty"`
	CreatedBy   string        `db:"created_by" json:"created_by"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// CalendarFilter narrows school events.
type CalendarFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Audience  []EventAudience
	Page      int
	PageSize  int
}

// CalendarEventRequest is the create/update payload for school events.
type CalendarEventRequest struct {
	Title       string        `json:"title" validate:"required,max=200"`
	Description string        `json:"description" validate:"max=2000"`
	EventType   string        `json:"event_type" validate:"required,oneof=holiday exam meeting activity other"`
	StartDate   time.Time     `json:"start_date" validate:"required"`
	EndDate     time.Time     `json:"end_date" validate:"required"`
	AllDay      bool          `json:"all_day"`
	Audience    EventAudience `json:"audience" validate:"omitempty,oneof=all teachers students"`
	Location    *string       `json:"location" validate:"omitempty,max=200"`
}

// Calendar entry kinds.
const (
	EntryAssignment = "assignment"
	EntryQuiz       = "quiz"
	EntrySession    = "session"
	EntryEvent      = "event"
)

// CalendarEntry is one item of the aggregated personal calendar.
type CalendarEntry struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Date        time.Time              `json:"date"`
	EndDate     *time.Time             `json:"end_date,omitempty"`
	AllDay      bool                   `json:"all_day"`
	Color       string                 `json:"color"`
	Course      string                 `json:"course,omitempty"`
	Group       string                 `json:"group,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// DateRange is an inclusive interval.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarStats counts entries per kind.
type CalendarStats struct {
	Total       int `json:"total"`
	Assignments int `json:"assignments"`
	Quizzes     int `json:"quizzes"`
	Sessions    int `json:"sessions"`
	Events      int `json:"events"`
}

// CalendarView is the personal calendar payload.
type CalendarView struct {
	Events       []CalendarEntry            `json:"events"`
	EventsByDate map[string][]CalendarEntry `json:"events_by_date"`
	DateRange    DateRange                  `json:"date_range"`
	Stats        CalendarStats              `json:"stats"`
}

// CalendarQuery selects the calendar window.
type CalendarQuery struct {
	View  string
	Month int
	Year  int
	Day   int
	Type  string
}

// CalendarAssignment is an assignment deadline joined with display names.
type CalendarAssignment struct {
	ID         string         `db:"id"`
	Code       string         `db:"code"`
	Title      string         `db:"title"`
	Type       AssignmentType `db:"type"`
	Status     string         `db:"status"`
	DueDate    time.Time      `db:"due_date"`
	MaxPoints  float64        `db:"max_points"`
	CourseName string         `db:"course_name"`
}

// UpcomingDeadline is an assignment due soon.
type UpcomingDeadline struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Course    string    `json:"course"`
	DaysUntil int       `json:"days_until"`
}

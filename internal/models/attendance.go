package models

import (
	"database/sql/driver"
	"time"
)

// AttendanceStatus is the outcome for a student in one class session.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
	AttendancePartial AttendanceStatus = "partial"
)

// ClassType describes the session format.
type ClassType string

const (
	ClassLecture  ClassType = "lecture"
	ClassLab      ClassType = "lab"
	ClassTutorial ClassType = "tutorial"
	ClassSeminar  ClassType = "seminar"
	ClassExam     ClassType = "exam"
	ClassOther    ClassType = "other"
)

// LateGraceMinutes is the threshold below which a late arrival still counts 0.8.
const LateGraceMinutes = 15

// AttendanceChange records one modification of a record.
type AttendanceChange struct {
	ModifiedBy     string           `json:"modified_by"`
	ModifiedAt     time.Time        `json:"modified_at"`
	PreviousStatus AttendanceStatus `json:"previous_status"`
	NewStatus      AttendanceStatus `json:"new_status"`
	Reason         string           `json:"reason,omitempty"`
}

// AttendanceHistory is persisted as JSONB.
type AttendanceHistory []AttendanceChange

// Value implements driver.Valuer.
func (h AttendanceHistory) Value() (driver.Value, error) {
	if h == nil {
		h = AttendanceHistory{}
	}
	return jsonValue([]AttendanceChange(h))
}

// Scan implements sql.Scanner.
func (h *AttendanceHistory) Scan(value interface{}) error {
	return jsonScan(value, (*[]AttendanceChange)(h))
}

// Attendance is one student's presence in one class session.
type Attendance struct {
	ID                 string            `db:"id" json:"id"`
	CourseID           string            `db:"course_id" json:"course_id"`
	GroupID            *string           `db:"group_id" json:"group_id,omitempty"`
	StudentID          string            `db:"student_id" json:"student_id"`
	TeacherID          string            `db:"teacher_id" json:"teacher_id"`
	ClassDate          time.Time         `db:"class_date" json:"class_date"`
	ClassStartTime     string            `db:"class_start_time" json:"class_start_time"`
	ClassEndTime       string            `db:"class_end_time" json:"class_end_time"`
	ClassType          ClassType         `db:"class_type" json:"class_type"`
	Topic              string            `db:"topic" json:"topic,omitempty"`
	Room               string            `db:"room" json:"room,omitempty"`
	Status             AttendanceStatus  `db:"status" json:"status"`
	ArrivalTime        *string           `db:"arrival_time" json:"arrival_time,omitempty"`
	MinutesLate        int               `db:"minutes_late" json:"minutes_late"`
	MinutesEarlyLeave  int               `db:"minutes_early_leave" json:"minutes_early_leave"`
	AbsenceReason      *string           `db:"absence_reason" json:"absence_reason,omitempty"`
	AbsenceNote        *string           `db:"absence_note" json:"absence_note,omitempty"`
	IsExcused          bool              `db:"is_excused" json:"is_excused"`
	ParticipationScore *int              `db:"participation_score" json:"participation_score,omitempty"`
	TeacherNotes       *string           `db:"teacher_notes" json:"teacher_notes,omitempty"`
	RecordedBy         string            `db:"recorded_by" json:"recorded_by"`
	History            AttendanceHistory `db:"history" json:"history,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`

	StudentName string `db:"student_name" json:"student_name,omitempty"`
}

// Credit weighs the record for attendance percentages.
func (a *Attendance) Credit() float64 {
	return AttendanceValue(a.Status, a.MinutesLate)
}

// AttendanceValue returns the credit a status earns toward attendance rate.
func AttendanceValue(status AttendanceStatus, minutesLate int) float64 {
	switch status {
	case AttendancePresent, AttendanceExcused:
		return 1
	case AttendanceLate:
		if minutesLate <= LateGraceMinutes {
			return 0.8
		}
		return 0.5
	case AttendancePartial:
		return 0.5
	default:
		return 0
	}
}

// RequiresReason reports whether a status must carry an absence reason.
func (s AttendanceStatus) RequiresReason() bool {
	return s == AttendanceAbsent || s == AttendanceExcused
}

// MinutesBetween returns the minutes from start to end for "HH:MM" values,
// or 0 when either fails to parse or end is not after start.
func MinutesBetween(start, end string) int {
	s, err := time.Parse("15:04", start)
	if err != nil {
		return 0
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return 0
	}
	diff := int(e.Sub(s).Minutes())
	if diff < 0 {
		return 0
	}
	return diff
}

// AttendanceFilter narrows attendance listings.
type AttendanceFilter struct {
	CourseID  string
	GroupID   string
	StudentID string
	TeacherID string
	Status    AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// AttendanceRequest records one student's attendance.
type AttendanceRequest struct {
	CourseID           string           `json:"course_id" validate:"required"`
	GroupID            string           `json:"group_id"`
	StudentID          string           `json:"student_id" validate:"required"`
	ClassDate          time.Time        `json:"class_date" validate:"required"`
	ClassStartTime     string           `json:"class_start_time" validate:"required,hhmm"`
	ClassEndTime       string           `json:"class_end_time" validate:"required,hhmm"`
	ClassType          ClassType        `json:"class_type" validate:"omitempty,oneof=lecture lab tutorial seminar exam other"`
	Topic              string           `json:"topic" validate:"max=200"`
	Room               string           `json:"room" validate:"max=50"`
	Status             AttendanceStatus `json:"status" validate:"required,oneof=present absent late excused partial"`
	ArrivalTime        string           `json:"arrival_time" validate:"omitempty,hhmm"`
	MinutesEarlyLeave  int              `json:"minutes_early_leave" validate:"gte=0"`
	AbsenceReason      string           `json:"absence_reason" validate:"max=500"`
	AbsenceNote        string           `json:"absence_note" validate:"max=1000"`
	ParticipationScore *int             `json:"participation_score" validate:"omitempty,gte=0,lte=10"`
	TeacherNotes       string           `json:"teacher_notes" validate:"max=1000"`
}

// BulkAttendanceEntry is one student line of a bulk session record.
type BulkAttendanceEntry struct {
	StudentID          string           `json:"student_id" validate:"required"`
	Status             AttendanceStatus `json:"status" validate:"required,oneof=present absent late excused partial"`
	ArrivalTime        string           `json:"arrival_time" validate:"omitempty,hhmm"`
	AbsenceReason      string           `json:"absence_reason" validate:"max=500"`
	ParticipationScore *int             `json:"participation_score" validate:"omitempty,gte=0,lte=10"`
	TeacherNotes       string           `json:"teacher_notes" validate:"max=1000"`
}

// BulkAttendanceRequest records a whole group session.
type BulkAttendanceRequest struct {
	GroupID        string                `json:"group_id" validate:"required"`
	ClassDate      time.Time             `json:"class_date" validate:"required"`
	ClassStartTime string                `json:"class_start_time" validate:"required,hhmm"`
	ClassEndTime   string                `json:"class_end_time" validate:"required,hhmm"`
	ClassType      ClassType             `json:"class_type" validate:"omitempty,oneof=lecture lab tutorial seminar exam other"`
	Topic          string                `json:"topic" validate:"max=200"`
	Room           string                `json:"room" validate:"max=50"`
	Records        []BulkAttendanceEntry `json:"records" validate:"required,min=1,dive"`
}

// BulkAttendanceResult reports created and skipped rows.
type BulkAttendanceResult struct {
	Created       []Attendance          `json:"created"`
	Failed        []BulkFailure         `json:"failed"`
	SessionIncome *FinancialTransaction `json:"session_income,omitempty"`
}

// UpdateAttendanceRequest changes a record's status.
type UpdateAttendanceRequest struct {
	Status             AttendanceStatus `json:"status" validate:"required,oneof=present absent late excused partial"`
	ArrivalTime        string           `json:"arrival_time" validate:"omitempty,hhmm"`
	AbsenceReason      string           `json:"absence_reason" validate:"max=500"`
	ParticipationScore *int             `json:"participation_score" validate:"omitempty,gte=0,lte=10"`
	TeacherNotes       string           `json:"teacher_notes" validate:"max=1000"`
	Reason             string           `json:"reason" validate:"max=500"`
}

// ExcuseAbsenceRequest excuses an absence.
type ExcuseAbsenceRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Note   string `json:"note" validate:"max=1000"`
}

// AttendanceSummary aggregates attendance over a period.
type AttendanceSummary struct {
	StudentID            string  `json:"student_id,omitempty"`
	CourseID             string  `json:"course_id,omitempty"`
	TotalClasses         int     `json:"total_classes"`
	Present              int     `json:"present"`
	Late                 int     `json:"late"`
	Absent               int     `json:"absent"`
	Excused              int     `json:"excused"`
	Partial              int     `json:"partial"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

package models

import (
	"database/sql/driver"
	"time"
)

// ReportType enumerates supported asynchronous report categories.
type ReportType string

const (
	ReportTypeGradebook    ReportType = "gradebook"
	ReportTypeTransactions ReportType = "transactions"
	ReportTypeAttendance   ReportType = "attendance"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
	ReportFormatXLSX ReportFormat = "xlsx"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
	ReportStatusExpired    ReportStatus = "EXPIRED"
)

// Terminal reports whether the job holds a result a worker must not overwrite.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusExpired
}

// ReportJob persisted background job metadata.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultKey    *string         `db:"result_key" json:"-"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams stores the request options as JSONB.
type ReportJobParams struct {
	Format    ReportFormat `json:"format"`
	CourseID  string       `json:"course_id,omitempty"`
	GroupID   string       `json:"group_id,omitempty"`
	TeacherID string       `json:"teacher_id,omitempty"`
	StartDate *time.Time   `json:"start_date,omitempty"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	return jsonValue(p)
}

// Scan implements sql.Scanner.
func (p *ReportJobParams) Scan(value interface{}) error {
	*p = ReportJobParams{}
	return jsonScan(value, p)
}

// ReportRequest is the payload for POST /reports.
type ReportRequest struct {
	Type      ReportType   `json:"type" validate:"required,oneof=gradebook transactions attendance"`
	Format    ReportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	CourseID  string       `json:"course_id"`
	GroupID   string       `json:"group_id"`
	StartDate *time.Time   `json:"start_date"`
	EndDate   *time.Time   `json:"end_date"`
}

// ReportStatusResponse is returned when polling a job.
type ReportStatusResponse struct {
	ID          string       `json:"id"`
	Type        ReportType   `json:"type"`
	Status      ReportStatus `json:"status"`
	Progress    int          `json:"progress"`
	DownloadURL *string      `json:"download_url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Error       *string      `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// GradebookRow is one graded submission in the gradebook export.
type GradebookRow struct {
	StudentName     string     `db:"student_name"`
	StudentEmail    string     `db:"student_email"`
	AssignmentCode  string     `db:"assignment_code"`
	AssignmentTitle string     `db:"assignment_title"`
	MaxPoints       float64    `db:"max_points"`
	Status          string     `db:"status"`
	IsLate          bool       `db:"is_late"`
	FinalPoints     *float64   `db:"final_points"`
	FinalPercentage *float64   `db:"final_percentage"`
	LetterGrade     *string    `db:"letter_grade"`
	SubmittedAt     time.Time  `db:"submitted_at"`
	GradedAt        *time.Time `db:"graded_at"`
}
